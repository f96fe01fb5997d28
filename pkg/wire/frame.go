// SPDX-FileCopyrightText: 2026 The RiftNet Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"errors"
)

// Sentinel errors raised while framing or parsing datagrams.
var (
	// ErrTooShort marks a datagram smaller than both headers combined.
	ErrTooShort = errors.New("datagram shorter than both headers")

	// ErrBadMagic marks an outer header whose magic field does not match.
	ErrBadMagic = errors.New("bad protocol magic")

	// ErrUnsupportedVersion marks an outer header with an unknown version.
	ErrUnsupportedVersion = errors.New("unsupported protocol version")

	// ErrLengthMismatch marks an outer length field that disagrees with the
	// datagram size or cannot cover the reliability sub-header.
	ErrLengthMismatch = errors.New("outer length field mismatches datagram size")

	// ErrTypeMismatch marks a frame whose outer and reliability types differ.
	ErrTypeMismatch = errors.New("outer and reliability packet types differ")

	// ErrPayloadTooLarge marks a body exceeding MaxBody.
	ErrPayloadTooLarge = errors.New("payload exceeds body budget")
)

// EncodeFrame serializes one framed plaintext datagram: the outer Header, the
// given ReliableHeader with its Type forced to pt, and the body. The reserved
// sub-header nonce field is always written as zero.
func EncodeFrame(pt PacketType, rh ReliableHeader, body []byte) ([]byte, error) {
	if len(body) > MaxBody {
		return nil, ErrPayloadTooLarge
	}

	rh.Type = pt
	rh.Nonce = 0

	payloadLen := uint16(ReliableHeaderLen + len(body))
	frame := make([]byte, HeaderLen+int(payloadLen))

	NewHeader(pt, rh.Seq, payloadLen).Put(frame[:HeaderLen])
	rh.Put(frame[HeaderLen : HeaderLen+ReliableHeaderLen])
	copy(frame[HeaderLen+ReliableHeaderLen:], body)

	return frame, nil
}

// DecodeFrame parses one framed plaintext datagram into its outer Header,
// ReliableHeader and body slice. The body aliases the input buffer.
func DecodeFrame(frame []byte) (h Header, rh ReliableHeader, body []byte, err error) {
	if len(frame) < HeaderLen+ReliableHeaderLen {
		err = ErrTooShort
		return
	}

	if err = h.Parse(frame); err != nil {
		return
	}

	if int(h.Length)+HeaderLen != len(frame) || h.Length < ReliableHeaderLen {
		err = ErrLengthMismatch
		return
	}

	rh.Parse(frame[HeaderLen:])

	if rh.Type != h.Type {
		err = ErrTypeMismatch
		return
	}

	body = frame[HeaderLen+ReliableHeaderLen:]
	return
}
