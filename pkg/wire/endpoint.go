// SPDX-FileCopyrightText: 2026 The RiftNet Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"fmt"
	"net"
	"strconv"
)

// Endpoint is an immutable address/port tuple identifying a peer. Two
// Endpoints compare equal iff both fields are equal, so an Endpoint can serve
// as a map key for connection demultiplexing.
type Endpoint struct {
	Addr string
	Port uint16
}

// NewEndpoint creates an Endpoint from an address literal and a port.
func NewEndpoint(addr string, port uint16) Endpoint {
	return Endpoint{Addr: addr, Port: port}
}

// EndpointFromUDPAddr converts a net.UDPAddr, e.g., a ReadFromUDP source
// address, into an Endpoint.
func EndpointFromUDPAddr(addr *net.UDPAddr) Endpoint {
	return Endpoint{
		Addr: addr.IP.String(),
		Port: uint16(addr.Port),
	}
}

// ParseEndpoint parses a "host:port" string into an Endpoint.
func ParseEndpoint(s string) (ep Endpoint, err error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return
	}

	ep = Endpoint{Addr: host, Port: uint16(port)}
	return
}

// UDPAddr resolves this Endpoint into a net.UDPAddr usable for WriteToUDP.
func (ep Endpoint) UDPAddr() (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp", ep.String())
}

func (ep Endpoint) String() string {
	return net.JoinHostPort(ep.Addr, fmt.Sprintf("%d", ep.Port))
}
