// SPDX-FileCopyrightText: 2026 The RiftNet Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"fmt"

	"github.com/riftforged/riftnet-go/pkg/wire"
)

// DisconnectReason explains why a connection went away.
type DisconnectReason int

const (
	// ReasonIdle marks a connection reaped after the idle timeout.
	ReasonIdle DisconnectReason = iota

	// ReasonTimedOut marks a connection dropped by the retry limit.
	ReasonTimedOut

	// ReasonCryptoFailure marks a failed key agreement.
	ReasonCryptoFailure

	// ReasonClosed marks a locally closed transport.
	ReasonClosed
)

func (dr DisconnectReason) String() string {
	switch dr {
	case ReasonIdle:
		return "Idle"
	case ReasonTimedOut:
		return "TimedOut"
	case ReasonCryptoFailure:
		return "CryptoFailure"
	case ReasonClosed:
		return "Closed"
	default:
		return "INVALID"
	}
}

// Event is the generic interface for everything a Transport reports to its
// application. The following types named *Event are implementations of this
// interface.
type Event interface {
	// Peer returns the endpoint this event concerns.
	Peer() wire.Endpoint
}

// ConnectedEvent indicates a completed handshake: both sides hold session
// keys and application payloads flow from now on.
type ConnectedEvent struct {
	Endpoint wire.Endpoint
}

func (ce ConnectedEvent) Peer() wire.Endpoint { return ce.Endpoint }

func (ce ConnectedEvent) String() string {
	return fmt.Sprintf("Connected(%v)", ce.Endpoint)
}

// DisconnectedEvent indicates a reaped or failed connection. It is delivered
// at most once per connection.
type DisconnectedEvent struct {
	Endpoint wire.Endpoint
	Reason   DisconnectReason
}

func (de DisconnectedEvent) Peer() wire.Endpoint { return de.Endpoint }

func (de DisconnectedEvent) String() string {
	return fmt.Sprintf("Disconnected(%v, %v)", de.Endpoint, de.Reason)
}

// ReceivedEvent carries one application payload arriving from a peer.
type ReceivedEvent struct {
	Endpoint wire.Endpoint
	Type     wire.PacketType
	Payload  []byte
}

func (re ReceivedEvent) Peer() wire.Endpoint { return re.Endpoint }

func (re ReceivedEvent) String() string {
	return fmt.Sprintf("Received(%v, %v, %d bytes)", re.Endpoint, re.Type, len(re.Payload))
}

// ErrorEvent surfaces a non-fatal transport error to the application.
type ErrorEvent struct {
	Endpoint wire.Endpoint
	Err      error
}

func (ee ErrorEvent) Peer() wire.Endpoint { return ee.Endpoint }

func (ee ErrorEvent) String() string {
	return fmt.Sprintf("Error(%v, %v)", ee.Endpoint, ee.Err)
}
