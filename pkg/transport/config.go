// SPDX-FileCopyrightText: 2026 The RiftNet Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"time"

	"github.com/riftforged/riftnet-go/pkg/reliability"
)

// Config carries the recognized transport options. Zero fields other than
// HeartbeatInterval are replaced by their defaults when the Transport is
// constructed.
type Config struct {
	// TickHz is the maintenance frequency driving retransmissions, delayed
	// ACKs, heartbeats and connection reaping.
	TickHz int

	// IdleTimeout reaps a connection after this long without any datagram.
	IdleTimeout time.Duration

	// HeartbeatInterval emits an empty unreliable Heartbeat after this long
	// without any outbound frame. Zero disables heartbeats.
	HeartbeatInterval time.Duration

	// MaxRetries bounds retransmissions per in-flight packet.
	MaxRetries int

	// MinRTOMs and MaxRTOMs clamp the retransmission timeout.
	MinRTOMs float32
	MaxRTOMs float32

	// AckDelayMinMs and AckDelayMaxMs clamp the delayed-ACK interval.
	AckDelayMinMs float32
	AckDelayMaxMs float32

	// MaxPendingBytes bounds the pre-handshake send queue of one connection.
	// The oldest payload is dropped on overflow.
	MaxPendingBytes int

	// NonceSearchWindow is how far ahead of the receive watermark an
	// encrypted datagram's nonce may lie.
	NonceSearchWindow uint64

	// EventBuffer is the capacity of the event channel. Events are dropped
	// with a warning when the application does not keep up.
	EventBuffer int
}

// DefaultConfig returns the protocol defaults.
func DefaultConfig() Config {
	return Config{
		TickHz:            10,
		IdleTimeout:       30 * time.Second,
		HeartbeatInterval: 5 * time.Second,
		MaxRetries:        reliability.MaxRetries,
		MinRTOMs:          reliability.MinRTOMs,
		MaxRTOMs:          reliability.MaxRTOMs,
		AckDelayMinMs:     reliability.AckDelayMinMs,
		AckDelayMaxMs:     reliability.AckDelayMaxMs,
		MaxPendingBytes:   512 * 1024,
		NonceSearchWindow: 5,
		EventBuffer:       256,
	}
}

// withDefaults fills every zero field except HeartbeatInterval from
// DefaultConfig; a zero HeartbeatInterval stays zero and disables heartbeats.
func (c Config) withDefaults() Config {
	def := DefaultConfig()

	if c.TickHz <= 0 {
		c.TickHz = def.TickHz
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = def.IdleTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.MinRTOMs <= 0 {
		c.MinRTOMs = def.MinRTOMs
	}
	if c.MaxRTOMs <= 0 {
		c.MaxRTOMs = def.MaxRTOMs
	}
	if c.AckDelayMinMs <= 0 {
		c.AckDelayMinMs = def.AckDelayMinMs
	}
	if c.AckDelayMaxMs <= 0 {
		c.AckDelayMaxMs = def.AckDelayMaxMs
	}
	if c.MaxPendingBytes <= 0 {
		c.MaxPendingBytes = def.MaxPendingBytes
	}
	if c.NonceSearchWindow == 0 {
		c.NonceSearchWindow = def.NonceSearchWindow
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = def.EventBuffer
	}

	return c
}

// reliabilityParams maps this Config onto the reliability engine's knobs.
func (c Config) reliabilityParams() reliability.Params {
	return reliability.Params{
		MaxRetries:    c.MaxRetries,
		MinRTOMs:      c.MinRTOMs,
		MaxRTOMs:      c.MaxRTOMs,
		AckDelayMinMs: c.AckDelayMinMs,
		AckDelayMaxMs: c.AckDelayMaxMs,
	}
}

// tickInterval is the maintenance period derived from TickHz.
func (c Config) tickInterval() time.Duration {
	return time.Second / time.Duration(c.TickHz)
}
