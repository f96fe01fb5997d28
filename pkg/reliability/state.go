// SPDX-FileCopyrightText: 2026 The RiftNet Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package reliability owns the per-connection reliability protocol: sequence
// numbers, cumulative plus bitfield acknowledgements, RTT/RTO estimation,
// retransmission, duplicate suppression and timeout detection.
package reliability

import (
	"errors"
	"sync"
	"time"

	"github.com/riftforged/riftnet-go/pkg/wire"
)

// Estimator and retransmission constants, following the classic TCP-style
// smoothed RTT computation.
const (
	RTTAlpha float32 = 1.0 / 8.0
	RTTBeta  float32 = 1.0 / 4.0
	RTOK     float32 = 4.0

	MinRTOMs float32 = 100
	MaxRTOMs float32 = 3000

	InitialRTTMs    float32 = 200
	InitialRTTVarMs float32 = 100
	InitialRTOMs    float32 = 400

	// MaxRetries bounds how often one in-flight packet is retransmitted
	// before the connection is declared dead.
	MaxRetries = 10

	// AckDelayMinMs and AckDelayMaxMs clamp the delayed-ACK interval,
	// computed as a quarter of the smoothed RTT.
	AckDelayMinMs float32 = 5
	AckDelayMaxMs float32 = 20
)

// Params are the tunable knobs of one State. The zero value is not usable;
// start from DefaultParams.
type Params struct {
	// MaxRetries bounds retransmissions per in-flight packet.
	MaxRetries int

	// MinRTOMs and MaxRTOMs clamp the retransmission timeout.
	MinRTOMs float32
	MaxRTOMs float32

	// AckDelayMinMs and AckDelayMaxMs clamp the delayed-ACK interval.
	AckDelayMinMs float32
	AckDelayMaxMs float32
}

// DefaultParams returns the protocol defaults.
func DefaultParams() Params {
	return Params{
		MaxRetries:    MaxRetries,
		MinRTOMs:      MinRTOMs,
		MaxRTOMs:      MaxRTOMs,
		AckDelayMinMs: AckDelayMinMs,
		AckDelayMaxMs: AckDelayMaxMs,
	}
}

// Sentinel errors of the reliability engine.
var (
	// ErrMalformedFrame marks a datagram the wire codec rejected.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrDuplicate marks a sequence number that was already delivered.
	ErrDuplicate = errors.New("duplicate sequence number")

	// ErrTooOld marks a sequence number behind the receive window.
	ErrTooOld = errors.New("sequence number too old to represent")

	// ErrRetryLimit marks a connection dropped by the retransmission limit.
	ErrRetryLimit = errors.New("retry limit exceeded")
)

// inflightPacket records one reliable send awaiting acknowledgement. The
// framed plaintext is held for retransmission until the peer acknowledges the
// sequence number or the retry limit drops the connection.
type inflightPacket struct {
	seq     uint16
	ptype   wire.PacketType
	sentAt  time.Time
	retries int
	frame   []byte
}

// State is the reliability state of one connection. All operations lock the
// internal mutex; callers never observe partial updates.
type State struct {
	mutex sync.Mutex

	params Params

	nextOutgoingSeq uint16

	highestReceivedSeq uint16
	receivedBitfield   uint32

	smoothedRTTMs  float32
	rttVarianceMs  float32
	rtoMs          float32
	firstRTTSample bool

	inflight []*inflightPacket

	lastRxTime time.Time
	lastTxTime time.Time

	hasPendingAck       bool
	consecutiveTimeouts int
	droppedByRetryLimit bool
}

// NewState creates the reliability state for a fresh connection.
func NewState(params Params, now time.Time) *State {
	return &State{
		params:          params,
		nextOutgoingSeq: 1,
		smoothedRTTMs:   InitialRTTMs,
		rttVarianceMs:   InitialRTTVarMs,
		rtoMs:           InitialRTOMs,
		firstRTTSample:  true,
		lastRxTime:      now,
		lastTxTime:      now,
	}
}

// sequenceMoreRecent is the wrap-aware half-range comparison over uint16:
// s1 is more recent than s2 iff the forward distance from s2 to s1 is
// shorter than half the sequence space.
func sequenceMoreRecent(s1, s2 uint16) bool {
	const halfRange = 1 << 15
	return ((s1 > s2) && (s1-s2 < halfRange)) || ((s2 > s1) && (s2-s1 > halfRange))
}

// applyRTTSample feeds one round-trip measurement into the estimator.
// Callers hold the mutex.
func (s *State) applyRTTSample(sampleMs float32) {
	if s.firstRTTSample {
		s.smoothedRTTMs = sampleMs
		s.rttVarianceMs = sampleMs / 2
		s.firstRTTSample = false
	} else {
		delta := sampleMs - s.smoothedRTTMs
		s.smoothedRTTMs += RTTAlpha * delta
		if delta < 0 {
			delta = -delta
		}
		s.rttVarianceMs += RTTBeta * (delta - s.rttVarianceMs)
	}

	s.rtoMs = clamp(s.smoothedRTTMs+RTOK*s.rttVarianceMs, s.params.MinRTOMs, s.params.MaxRTOMs)
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Dropped reports whether the retry limit killed this connection.
func (s *State) Dropped() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.droppedByRetryLimit
}

// IsTimedOut reports whether the connection is dead, either through the retry
// limit or because no datagram arrived within the idle timeout.
func (s *State) IsTimedOut(now time.Time, idleTimeout time.Duration) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.droppedByRetryLimit || now.Sub(s.lastRxTime) > idleTimeout
}

// SinceLastTx returns how long ago the last frame left this connection.
func (s *State) SinceLastTx(now time.Time) time.Duration {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return now.Sub(s.lastTxTime)
}

// SinceLastRx returns how long ago the last valid frame arrived.
func (s *State) SinceLastRx(now time.Time) time.Duration {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return now.Sub(s.lastRxTime)
}

// Snapshot is a point-in-time copy of the observable reliability counters.
type Snapshot struct {
	NextOutgoingSeq    uint16  `json:"next_outgoing_seq"`
	HighestReceivedSeq uint16  `json:"highest_received_seq"`
	ReceivedBitfield   uint32  `json:"received_bitfield"`
	SmoothedRTTMs      float32 `json:"smoothed_rtt_ms"`
	RTTVarianceMs      float32 `json:"rtt_variance_ms"`
	RTOMs              float32 `json:"rto_ms"`
	Inflight           int     `json:"inflight"`
	HasPendingAck      bool    `json:"has_pending_ack"`
	Dropped            bool    `json:"dropped"`
}

// TakeSnapshot copies the observable counters under the lock.
func (s *State) TakeSnapshot() Snapshot {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return Snapshot{
		NextOutgoingSeq:    s.nextOutgoingSeq,
		HighestReceivedSeq: s.highestReceivedSeq,
		ReceivedBitfield:   s.receivedBitfield,
		SmoothedRTTMs:      s.smoothedRTTMs,
		RTTVarianceMs:      s.rttVarianceMs,
		RTOMs:              s.rtoMs,
		Inflight:           len(s.inflight),
		HasPendingAck:      s.hasPendingAck,
		Dropped:            s.droppedByRetryLimit,
	}
}
