// SPDX-FileCopyrightText: 2026 The RiftNet Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Header is the outer packet header, eleven bytes of big-endian fields in
// front of every framed datagram.
//
//	Magic   uint32  fixed protocol tag
//	Version uint16  protocol version
//	Length  uint16  payload length after this header
//	Type    uint8   packet type discriminator
//	Seq     uint16  mirror of the reliability sequence number
type Header struct {
	Magic   uint32
	Version uint16
	Length  uint16
	Type    PacketType
	Seq     uint16
}

// NewHeader creates a Header for the given type, sequence number and payload
// length, where the payload covers the ReliableHeader plus the body.
func NewHeader(pt PacketType, seq uint16, payloadLen uint16) Header {
	return Header{
		Magic:   Magic,
		Version: Version,
		Length:  payloadLen,
		Type:    pt,
		Seq:     seq,
	}
}

func (h Header) String() string {
	return fmt.Sprintf("Header(Version=%d, Length=%d, Type=%v, Seq=%d)",
		h.Version, h.Length, h.Type, h.Seq)
}

func (h Header) Marshal(w io.Writer) error {
	var buf [HeaderLen]byte
	h.Put(buf[:])

	if n, err := w.Write(buf[:]); err != nil {
		return err
	} else if n != HeaderLen {
		return fmt.Errorf("wrote %d octets instead of %d", n, HeaderLen)
	}

	return nil
}

func (h *Header) Unmarshal(r io.Reader) error {
	var buf [HeaderLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}

	return h.Parse(buf[:])
}

// Put serializes this Header into the first HeaderLen bytes of b.
func (h Header) Put(b []byte) {
	_ = b[HeaderLen-1]

	binary.BigEndian.PutUint32(b[0:4], h.Magic)
	binary.BigEndian.PutUint16(b[4:6], h.Version)
	binary.BigEndian.PutUint16(b[6:8], h.Length)
	b[8] = byte(h.Type)
	binary.BigEndian.PutUint16(b[9:11], h.Seq)
}

// Parse deserializes this Header from the first HeaderLen bytes of b and
// validates the magic and version fields.
func (h *Header) Parse(b []byte) error {
	if len(b) < HeaderLen {
		return ErrTooShort
	}

	h.Magic = binary.BigEndian.Uint32(b[0:4])
	h.Version = binary.BigEndian.Uint16(b[4:6])
	h.Length = binary.BigEndian.Uint16(b[6:8])
	h.Type = PacketType(b[8])
	h.Seq = binary.BigEndian.Uint16(b[9:11])

	if h.Magic != Magic {
		return ErrBadMagic
	}
	if h.Version != Version {
		return ErrUnsupportedVersion
	}

	return nil
}
