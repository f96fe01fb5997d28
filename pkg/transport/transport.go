// SPDX-FileCopyrightText: 2026 The RiftNet Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/riftforged/riftnet-go/pkg/security"
	"github.com/riftforged/riftnet-go/pkg/wire"
)

// readBufferSize covers the largest possible encrypted datagram: the nonce
// prefix, a full framed plaintext and the AEAD tag.
const readBufferSize = security.NonceLen + wire.MaxDatagram + security.Overhead

// ErrUnknownPeer marks a send to an endpoint without a connection.
var ErrUnknownPeer = errors.New("no connection to this endpoint")

// Transport is the single handle an application owns: the UDP socket, the
// connection table, the receive pump and the maintenance ticker.
type Transport struct {
	cfg Config

	conn    *net.UDPConn
	manager *Manager
	stats   Stats

	events chan Event

	stopSyn chan struct{}
	pumpAck chan struct{}
	tickAck chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// Listen creates the accepting side, bound to the given endpoint. New
// connections appear on first contact from unknown source endpoints.
func Listen(bind wire.Endpoint, cfg Config) (*Transport, error) {
	addr, err := bind.UDPAddr()
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}

	t := newTransport(conn, true, cfg)

	log.WithField("listen", conn.LocalAddr()).Info("Transport listening")
	return t, nil
}

// Dial creates the connecting side and opens the handshake towards the
// server endpoint. The returned Transport maintains this one connection.
func Dial(server wire.Endpoint, cfg Config) (*Transport, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, err
	}

	t := newTransport(conn, false, cfg)

	if _, err := t.manager.Connect(server); err != nil {
		_ = conn.Close()
		return nil, err
	}

	log.WithFields(log.Fields{
		"local":  conn.LocalAddr(),
		"server": server,
	}).Info("Transport dialing")
	return t, nil
}

func newTransport(conn *net.UDPConn, acceptNew bool, cfg Config) *Transport {
	cfg = cfg.withDefaults()

	t := &Transport{
		cfg:     cfg,
		conn:    conn,
		events:  make(chan Event, cfg.EventBuffer),
		stopSyn: make(chan struct{}),
		pumpAck: make(chan struct{}),
		tickAck: make(chan struct{}),
	}
	t.manager = newManager(cfg, acceptNew, t.writeTo, t.emitEvent, &t.stats)

	go t.pump()
	go t.tick()

	return t
}

// Events is the channel delivering Connected, Disconnected, Received and
// Error events. It must be drained; events are dropped with a warning when
// the buffer overflows.
func (t *Transport) Events() <-chan Event {
	return t.events
}

// LocalEndpoint returns the bound local endpoint.
func (t *Transport) LocalEndpoint() wire.Endpoint {
	return wire.EndpointFromUDPAddr(t.conn.LocalAddr().(*net.UDPAddr))
}

// Send enqueues one application payload towards a connected peer.
func (t *Transport) Send(peer wire.Endpoint, pt wire.PacketType, payload []byte, reliable bool) error {
	conn, ok := t.manager.Get(peer)
	if !ok {
		return ErrUnknownPeer
	}

	return conn.Send(pt, payload, reliable)
}

// Stats copies the transport counters.
func (t *Transport) Stats() StatsSnapshot {
	return t.stats.Snapshot()
}

// Snapshots copies the observable state of every connection.
func (t *Transport) Snapshots() []ConnSnapshot {
	return t.manager.Snapshots()
}

// ConnectionCount returns the number of live connections.
func (t *Transport) ConnectionCount() int {
	return t.manager.Len()
}

// writeTo dispatches one raw datagram. Socket errors surface as Error events;
// the datagram is lost, which the reliability layer already accounts for.
func (t *Transport) writeTo(peer wire.Endpoint, datagram []byte) {
	addr, err := peer.UDPAddr()
	if err == nil {
		_, err = t.conn.WriteToUDP(datagram, addr)
	}

	if err != nil && !errors.Is(err, net.ErrClosed) {
		log.WithFields(log.Fields{
			"peer":  peer,
			"error": err,
		}).Warn("Socket send failed")

		t.emitEvent(ErrorEvent{Endpoint: peer, Err: err})
	}
}

// emitEvent delivers one event without ever blocking the datagram path.
func (t *Transport) emitEvent(ev Event) {
	select {
	case t.events <- ev:
	default:
		t.stats.eventsDropped.Add(1)
		log.WithField("event", ev).Warn("Event channel full, dropping event")
	}
}

// pump is the long-running receive task: read one datagram, dispatch it to
// the connection table, repeat until the socket closes.
func (t *Transport) pump() {
	defer close(t.pumpAck)

	buf := make([]byte, readBufferSize)
	for {
		n, addr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-t.stopSyn:
				return
			default:
			}

			if errors.Is(err, net.ErrClosed) {
				return
			}

			log.WithError(err).Warn("Socket receive failed")
			t.emitEvent(ErrorEvent{Err: err})
			continue
		}

		datagram := make([]byte, n)
		copy(datagram, buf[:n])

		t.manager.Dispatch(wire.EndpointFromUDPAddr(addr), datagram)
	}
}

// tick drives the maintenance pass at the configured frequency.
func (t *Transport) tick() {
	defer close(t.tickAck)

	ticker := time.NewTicker(t.cfg.tickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-t.stopSyn:
			return

		case now := <-ticker.C:
			t.manager.MaintainAll(now)
		}
	}
}

// Close stops both tasks, closes the socket and signals Disconnected to every
// remaining connection. In-flight reliable packets are abandoned.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.stopSyn)

		var errs *multierror.Error
		if err := t.conn.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}

		<-t.pumpAck
		<-t.tickAck

		t.manager.CloseAll()
		close(t.events)

		t.closeErr = errs.ErrorOrNil()
		log.Info("Transport closed")
	})

	return t.closeErr
}
