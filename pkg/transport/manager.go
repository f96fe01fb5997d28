// SPDX-FileCopyrightText: 2026 The RiftNet Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/riftforged/riftnet-go/pkg/security"
	"github.com/riftforged/riftnet-go/pkg/wire"
)

// Manager owns the endpoint-to-connection table. The table lock is only held
// for lookup, create and remove; packet processing happens outside it on the
// per-connection locks, so reaping an endpoint is atomic with respect to the
// datagram path.
type Manager struct {
	cfg Config

	// acceptNew allows creating connections on first contact. True for the
	// accepting side, false for the connecting side.
	acceptNew bool

	sendRaw func(wire.Endpoint, []byte)
	emit    func(Event)
	stats   *Stats

	mutex sync.Mutex
	conns map[wire.Endpoint]*Conn
}

// newManager creates an empty connection table.
func newManager(cfg Config, acceptNew bool,
	sendRaw func(wire.Endpoint, []byte), emit func(Event), stats *Stats) *Manager {

	return &Manager{
		cfg:       cfg,
		acceptNew: acceptNew,
		sendRaw:   sendRaw,
		emit:      emit,
		stats:     stats,
		conns:     make(map[wire.Endpoint]*Conn),
	}
}

// Dispatch routes one inbound datagram to the connection of its source
// endpoint, creating it on first contact where permitted. The accepting side
// answers a new endpoint by emitting its public key in the clear.
func (m *Manager) Dispatch(source wire.Endpoint, datagram []byte) {
	m.mutex.Lock()
	conn, ok := m.conns[source]
	if !ok {
		if !m.acceptNew {
			m.mutex.Unlock()

			log.WithField("peer", source).Debug("Ignoring datagram from unknown endpoint")
			return
		}

		var err error
		conn, err = newConn(source, security.Responder, m.cfg, m.sendRaw, m.emit, m.stats)
		if err != nil {
			m.mutex.Unlock()

			log.WithFields(log.Fields{
				"peer":  source,
				"error": err,
			}).Error("Creating connection failed")
			return
		}

		m.conns[source] = conn
		m.stats.connsCreated.Add(1)

		log.WithField("peer", source).Info("New connection on first contact")
	}
	m.mutex.Unlock()

	if !ok {
		// First contact: introduce ourselves before consuming the datagram.
		conn.StartHandshake()
	}

	conn.HandleDatagram(datagram)
}

// Connect creates the connecting side's connection and opens the handshake.
func (m *Manager) Connect(peer wire.Endpoint) (*Conn, error) {
	m.mutex.Lock()
	if conn, ok := m.conns[peer]; ok {
		m.mutex.Unlock()
		return conn, nil
	}

	conn, err := newConn(peer, security.Initiator, m.cfg, m.sendRaw, m.emit, m.stats)
	if err != nil {
		m.mutex.Unlock()
		return nil, err
	}

	m.conns[peer] = conn
	m.stats.connsCreated.Add(1)
	m.mutex.Unlock()

	conn.StartHandshake()
	return conn, nil
}

// Get returns the connection for an endpoint, if any.
func (m *Manager) Get(peer wire.Endpoint) (*Conn, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	conn, ok := m.conns[peer]
	return conn, ok
}

// MaintainAll runs one maintenance pass over every connection and removes the
// dead ones from the table.
func (m *Manager) MaintainAll(now time.Time) {
	m.mutex.Lock()
	conns := make([]*Conn, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	m.mutex.Unlock()

	for _, conn := range conns {
		if !conn.Maintenance(now) {
			continue
		}

		m.mutex.Lock()
		delete(m.conns, conn.Endpoint())
		m.mutex.Unlock()

		m.stats.connsReaped.Add(1)
		log.WithField("peer", conn.Endpoint()).Debug("Reaped connection")
	}
}

// Snapshots copies the observable state of every connection.
func (m *Manager) Snapshots() []ConnSnapshot {
	m.mutex.Lock()
	conns := make([]*Conn, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	m.mutex.Unlock()

	snaps := make([]ConnSnapshot, 0, len(conns))
	for _, conn := range conns {
		snaps = append(snaps, conn.Snapshot())
	}
	return snaps
}

// CloseAll signals Disconnected to every remaining connection and clears the
// table.
func (m *Manager) CloseAll() {
	m.mutex.Lock()
	conns := make([]*Conn, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	m.conns = make(map[wire.Endpoint]*Conn)
	m.mutex.Unlock()

	for _, conn := range conns {
		conn.signalDisconnected(ReasonClosed)
	}
}

// Len returns the number of live connections.
func (m *Manager) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.conns)
}
