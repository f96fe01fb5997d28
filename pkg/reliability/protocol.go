// SPDX-FileCopyrightText: 2026 The RiftNet Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package reliability

import (
	"fmt"
	"time"

	"github.com/riftforged/riftnet-go/pkg/wire"
)

// PrepareOutgoing allocates the next sequence number, frames the body with
// the current acknowledgement view, and, for reliable sends, records the
// frame as in-flight until the peer acknowledges it. ACK-only frames are
// never tracked; they are not themselves acknowledged.
func (s *State) PrepareOutgoing(pt wire.PacketType, body []byte, reliable bool, now time.Time) ([]byte, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if len(body) > wire.MaxBody {
		return nil, wire.ErrPayloadTooLarge
	}

	seq := s.nextOutgoingSeq
	s.nextOutgoingSeq++
	if s.nextOutgoingSeq == 0 {
		// Zero unambiguously means "none", skip it on wrap.
		s.nextOutgoingSeq = 1
	}

	frame, err := wire.EncodeFrame(pt, wire.ReliableHeader{
		Seq:      seq,
		Ack:      s.highestReceivedSeq,
		Bitfield: s.receivedBitfield,
	}, body)
	if err != nil {
		return nil, err
	}

	ackOnly := pt == wire.ReliableAck && len(body) == 0
	if reliable && !ackOnly {
		s.inflight = append(s.inflight, &inflightPacket{
			seq:    seq,
			ptype:  pt,
			sentAt: now,
			frame:  frame,
		})
	}

	s.hasPendingAck = false
	s.lastTxTime = now

	return frame, nil
}

// ProcessIncoming parses one framed plaintext datagram, applies the peer's
// acknowledgement view to the in-flight queue, updates the receive window and
// schedules an ACK where needed. It returns the packet type and the still
// compressed body, or one of ErrMalformedFrame, ErrDuplicate, ErrTooOld.
//
// The acknowledgement view is processed even for frames later rejected as
// duplicates; only unparsable datagrams carry no usable information.
func (s *State) ProcessIncoming(frame []byte, now time.Time) (wire.PacketType, []byte, error) {
	_, rh, body, err := wire.DecodeFrame(frame)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.lastRxTime = now
	s.processAcks(rh.Ack, rh.Bitfield, now)

	seq := rh.Seq
	if sequenceMoreRecent(seq, s.highestReceivedSeq) {
		d := seq - s.highestReceivedSeq
		if uint32(d) < 32 {
			s.receivedBitfield <<= d
		} else {
			s.receivedBitfield = 0
		}
		s.receivedBitfield |= 1
		s.highestReceivedSeq = seq
	} else {
		d := s.highestReceivedSeq - seq
		if uint32(d) >= 32 {
			return rh.Type, nil, ErrTooOld
		}
		if s.receivedBitfield&(1<<d) != 0 {
			// Already delivered. The duplicate still deserves an ACK, the
			// original one may have been lost.
			s.hasPendingAck = true
			return rh.Type, nil, ErrDuplicate
		}
		s.receivedBitfield |= 1 << d
	}

	zeroLenCtrl := len(body) == 0 && (rh.Type == wire.ReliableAck || rh.Type == wire.Heartbeat)
	if !zeroLenCtrl {
		s.hasPendingAck = true
	}

	return rh.Type, body, nil
}

// processAcks removes every in-flight entry the given acknowledgement view
// covers and feeds first-transmission round trips into the RTT estimator.
// Callers hold the mutex.
func (s *State) processAcks(ack uint16, bitfield uint32, now time.Time) {
	remaining := s.inflight[:0]
	acked := false

	for _, e := range s.inflight {
		match := false
		if ack == e.seq {
			match = true
		} else if sequenceMoreRecent(ack, e.seq) {
			diff := ack - e.seq
			if diff >= 1 && diff <= 32 {
				match = bitfield&(1<<(diff-1)) != 0
			}
		}

		if !match {
			remaining = append(remaining, e)
			continue
		}

		acked = true
		if e.retries == 0 {
			s.applyRTTSample(float32(now.Sub(e.sentAt).Nanoseconds()) / 1e6)
		}
	}

	s.inflight = remaining
	if acked {
		s.consecutiveTimeouts = 0
	}
}

// ProcessMaintenance retransmits every in-flight entry whose RTO elapsed,
// doubling the RTO per retransmission. The send function re-encrypts with a
// fresh transmit nonce and dispatches the frame. When an entry exhausts
// MaxRetries the connection is marked dropped and ErrRetryLimit is returned.
func (s *State) ProcessMaintenance(now time.Time, send func(frame []byte)) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.droppedByRetryLimit {
		return ErrRetryLimit
	}

	for _, e := range s.inflight {
		elapsed := float32(now.Sub(e.sentAt).Nanoseconds()) / 1e6
		if elapsed < s.rtoMs {
			continue
		}

		if e.retries+1 > s.params.MaxRetries {
			s.droppedByRetryLimit = true
			return ErrRetryLimit
		}

		send(e.frame)
		e.sentAt = now
		e.retries++
		s.consecutiveTimeouts++

		s.rtoMs = clamp(s.rtoMs*2, s.params.MinRTOMs, s.params.MaxRTOMs)
	}

	return nil
}

// AckDelay is the current delayed-ACK interval, a quarter of the smoothed RTT
// clamped to [AckDelayMinMs, AckDelayMaxMs].
func (s *State) AckDelay() time.Duration {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delayMs := clamp(s.smoothedRTTMs/4, s.params.AckDelayMinMs, s.params.AckDelayMaxMs)
	return time.Duration(delayMs * float32(time.Millisecond))
}

// ShouldSendAck reports whether a pending acknowledgement waited long enough
// without an outbound frame carrying it piggybacked.
func (s *State) ShouldSendAck(now time.Time) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.hasPendingAck {
		return false
	}

	delayMs := clamp(s.smoothedRTTMs/4, s.params.AckDelayMinMs, s.params.AckDelayMaxMs)
	return float32(now.Sub(s.lastTxTime).Nanoseconds())/1e6 >= delayMs
}
