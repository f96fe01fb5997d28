// SPDX-FileCopyrightText: 2026 The RiftNet Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"testing"
	"time"

	"github.com/riftforged/riftnet-go/pkg/security"
	"github.com/riftforged/riftnet-go/pkg/wire"
)

func TestManagerCreatesOnFirstContact(t *testing.T) {
	var stats Stats
	sent := 0

	m := newManager(DefaultConfig(), true,
		func(wire.Endpoint, []byte) { sent++ },
		func(Event) {}, &stats)

	kx, err := security.NewKeyExchange()
	if err != nil {
		t.Fatal(err)
	}
	pub := kx.PublicKey()

	peer := wire.NewEndpoint("10.1.1.1", 5000)
	m.Dispatch(peer, pub[:])

	if m.Len() != 1 {
		t.Fatalf("expected one connection, got %d", m.Len())
	}
	if sent == 0 {
		t.Fatal("first contact must be answered with the local public key")
	}

	conn, ok := m.Get(peer)
	if !ok {
		t.Fatal("connection not found")
	}
	if conn.Snapshot().Phase != PhaseEstablished.String() {
		t.Fatal("receiving a public key must establish the connection")
	}

	// A second datagram reuses the connection.
	m.Dispatch(peer, []byte("garbage, will not decrypt"))
	if m.Len() != 1 {
		t.Fatalf("expected still one connection, got %d", m.Len())
	}
}

func TestManagerIgnoresUnknownWhenNotAccepting(t *testing.T) {
	var stats Stats

	m := newManager(DefaultConfig(), false,
		func(wire.Endpoint, []byte) {}, func(Event) {}, &stats)

	m.Dispatch(wire.NewEndpoint("10.1.1.1", 5000), []byte{0x00})

	if m.Len() != 0 {
		t.Fatalf("the connecting side must not accept new endpoints, got %d", m.Len())
	}
}

func TestManagerReapsDeadConnections(t *testing.T) {
	var stats Stats

	m := newManager(DefaultConfig(), true,
		func(wire.Endpoint, []byte) {}, func(Event) {}, &stats)

	if _, err := m.Connect(wire.NewEndpoint("10.1.1.1", 5000)); err != nil {
		t.Fatal(err)
	}
	if m.Len() != 1 {
		t.Fatal("connection missing")
	}

	// No datagram ever arrives; the idle timeout reaps it.
	m.MaintainAll(time.Now().Add(31 * time.Second))

	if m.Len() != 0 {
		t.Fatalf("idle connection must be reaped, %d left", m.Len())
	}
	if stats.connsReaped.Load() != 1 {
		t.Fatal("reap counter must increment")
	}
}
