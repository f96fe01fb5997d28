// SPDX-FileCopyrightText: 2026 The RiftNet Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ReliableHeader is the reliability sub-header, seventeen bytes of big-endian
// fields directly after the outer Header.
//
//	Seq      uint16  sequence number of this frame
//	Ack      uint16  highest sequence number received from the peer
//	Bitfield uint32  bit k set: sequence Ack-1-k was received
//	Type     uint8   mirror of the outer packet type
//	Nonce    uint64  reserved, zero on send, ignored on receive
type ReliableHeader struct {
	Seq      uint16
	Ack      uint16
	Bitfield uint32
	Type     PacketType
	Nonce    uint64
}

func (rh ReliableHeader) String() string {
	return fmt.Sprintf("ReliableHeader(Seq=%d, Ack=%d, Bitfield=%#08x, Type=%v)",
		rh.Seq, rh.Ack, rh.Bitfield, rh.Type)
}

func (rh ReliableHeader) Marshal(w io.Writer) error {
	var buf [ReliableHeaderLen]byte
	rh.Put(buf[:])

	if n, err := w.Write(buf[:]); err != nil {
		return err
	} else if n != ReliableHeaderLen {
		return fmt.Errorf("wrote %d octets instead of %d", n, ReliableHeaderLen)
	}

	return nil
}

func (rh *ReliableHeader) Unmarshal(r io.Reader) error {
	var buf [ReliableHeaderLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}

	rh.Parse(buf[:])
	return nil
}

// Put serializes this ReliableHeader into the first ReliableHeaderLen bytes of b.
func (rh ReliableHeader) Put(b []byte) {
	_ = b[ReliableHeaderLen-1]

	binary.BigEndian.PutUint16(b[0:2], rh.Seq)
	binary.BigEndian.PutUint16(b[2:4], rh.Ack)
	binary.BigEndian.PutUint32(b[4:8], rh.Bitfield)
	b[8] = byte(rh.Type)
	binary.BigEndian.PutUint64(b[9:17], rh.Nonce)
}

// Parse deserializes this ReliableHeader from the first ReliableHeaderLen bytes of b.
func (rh *ReliableHeader) Parse(b []byte) {
	_ = b[ReliableHeaderLen-1]

	rh.Seq = binary.BigEndian.Uint16(b[0:2])
	rh.Ack = binary.BigEndian.Uint16(b[2:4])
	rh.Bitfield = binary.BigEndian.Uint32(b[4:8])
	rh.Type = PacketType(b[8])
	rh.Nonce = binary.BigEndian.Uint64(b[9:17])
}
