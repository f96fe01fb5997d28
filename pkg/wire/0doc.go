// SPDX-FileCopyrightText: 2026 The RiftNet Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package wire implements the outer packet header and the reliability sub-header of the
// RiftNet datagram protocol, together with their big-endian serialization.
package wire

const (
	// Magic is the protocol tag leading every outer header, "RFNT" on the wire.
	Magic uint32 = 0x52464E54

	// Version is the protocol version this implementation speaks.
	Version uint16 = 1

	// HeaderLen is the wire size of the outer Header.
	HeaderLen = 11

	// ReliableHeaderLen is the wire size of the ReliableHeader.
	ReliableHeaderLen = 17

	// MaxDatagram is the upper bound for one framed plaintext datagram,
	// measured before encryption overhead.
	MaxDatagram = 1024

	// MaxBody is the remaining budget for a packet body after both headers.
	MaxBody = MaxDatagram - HeaderLen - ReliableHeaderLen
)
