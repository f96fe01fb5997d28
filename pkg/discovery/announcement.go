// SPDX-FileCopyrightText: 2026 The RiftNet Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package discovery announces a listening transport on the local network
// through UDP multicast and surfaces discovered servers to clients.
package discovery

import (
	"encoding/binary"
	"fmt"

	"github.com/riftforged/riftnet-go/pkg/wire"
)

const (
	// announcementMagic tags every discovery payload, "RFDS" on the wire.
	announcementMagic uint32 = 0x52464453

	// announcementLen is the wire size of one Announcement.
	announcementLen = 8
)

// Announcement of one listening transport: its protocol version and UDP port.
// The announcing host's address comes from the multicast source.
type Announcement struct {
	Version uint16
	Port    uint16
}

// NewAnnouncement creates an Announcement for the local listen port.
func NewAnnouncement(port uint16) Announcement {
	return Announcement{
		Version: wire.Version,
		Port:    port,
	}
}

func (announcement Announcement) String() string {
	return fmt.Sprintf("Announcement(Version=%d, Port=%d)", announcement.Version, announcement.Port)
}

// MarshalAnnouncement serializes an Announcement into its multicast payload.
func MarshalAnnouncement(announcement Announcement) []byte {
	data := make([]byte, announcementLen)

	binary.BigEndian.PutUint32(data[0:4], announcementMagic)
	binary.BigEndian.PutUint16(data[4:6], announcement.Version)
	binary.BigEndian.PutUint16(data[6:8], announcement.Port)

	return data
}

// UnmarshalAnnouncement parses a multicast payload back into an Announcement.
func UnmarshalAnnouncement(data []byte) (announcement Announcement, err error) {
	if len(data) != announcementLen {
		err = fmt.Errorf("announcement of %d bytes instead of %d", len(data), announcementLen)
		return
	}

	if magic := binary.BigEndian.Uint32(data[0:4]); magic != announcementMagic {
		err = fmt.Errorf("announcement magic does not match: %x != %x", magic, announcementMagic)
		return
	}

	announcement.Version = binary.BigEndian.Uint16(data[4:6])
	announcement.Port = binary.BigEndian.Uint16(data[6:8])

	if announcement.Version != wire.Version {
		err = fmt.Errorf("announcement version %d is unsupported", announcement.Version)
		return
	}

	return
}
