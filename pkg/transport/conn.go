// SPDX-FileCopyrightText: 2026 The RiftNet Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/riftforged/riftnet-go/pkg/compress"
	"github.com/riftforged/riftnet-go/pkg/reliability"
	"github.com/riftforged/riftnet-go/pkg/security"
	"github.com/riftforged/riftnet-go/pkg/wire"
)

// HandshakePhase is the key-agreement progress of one connection.
type HandshakePhase int

const (
	// PhaseIdle means no handshake message has been exchanged yet.
	PhaseIdle HandshakePhase = iota

	// PhaseAwaitingPeerKey means the local public key went out and the
	// peer's one has not arrived.
	PhaseAwaitingPeerKey

	// PhaseEstablished means both directional keys are derived; every
	// datagram from now on is encrypted.
	PhaseEstablished
)

func (hp HandshakePhase) String() string {
	switch hp {
	case PhaseIdle:
		return "Idle"
	case PhaseAwaitingPeerKey:
		return "AwaitingPeerKey"
	case PhaseEstablished:
		return "Established"
	default:
		return "INVALID"
	}
}

// pendingSend is one application payload queued before the handshake
// completed.
type pendingSend struct {
	ptype    wire.PacketType
	payload  []byte
	reliable bool
}

// Conn is one logical connection to one peer: the handshake state machine
// plus the composed compression, security and reliability pipeline.
//
// The connection mutex guards phase, channel and the pending queue; the
// reliability state and the secure channel carry their own locks which only
// ever nest inside it.
type Conn struct {
	endpoint wire.Endpoint
	role     security.Role
	cfg      Config

	sendRaw func(wire.Endpoint, []byte)
	emit    func(Event)
	stats   *Stats

	mutex   sync.Mutex
	phase   HandshakePhase
	kx      *security.KeyExchange
	channel *security.Channel
	failed  bool

	pending      []pendingSend
	pendingBytes int

	rel *reliability.State

	disconnected bool
}

// newConn creates a connection in PhaseIdle with a fresh ephemeral keypair.
func newConn(endpoint wire.Endpoint, role security.Role, cfg Config,
	sendRaw func(wire.Endpoint, []byte), emit func(Event), stats *Stats) (*Conn, error) {

	kx, err := security.NewKeyExchange()
	if err != nil {
		return nil, err
	}

	return &Conn{
		endpoint: endpoint,
		role:     role,
		cfg:      cfg,
		sendRaw:  sendRaw,
		emit:     emit,
		stats:    stats,
		kx:       kx,
		rel:      reliability.NewState(cfg.reliabilityParams(), time.Now()),
	}, nil
}

// Endpoint returns the peer this connection talks to.
func (c *Conn) Endpoint() wire.Endpoint {
	return c.endpoint
}

// StartHandshake emits the local public key in the clear, once. Safe to call
// repeatedly; later calls are no-ops.
func (c *Conn) StartHandshake() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.startHandshakeLocked()
}

func (c *Conn) startHandshakeLocked() {
	if c.phase != PhaseIdle {
		return
	}
	c.phase = PhaseAwaitingPeerKey

	pub := c.kx.PublicKey()
	log.WithFields(log.Fields{
		"peer": c.endpoint,
		"role": c.role,
	}).Debug("Sending public key")

	c.sendRaw(c.endpoint, pub[:])
	c.stats.txDatagrams.Add(1)
}

// Send compresses, frames, encrypts and dispatches one application payload.
// Before the handshake completed the payload is queued, bounded by
// MaxPendingBytes with the oldest payload dropped on overflow.
func (c *Conn) Send(pt wire.PacketType, payload []byte, reliable bool) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.phase != PhaseEstablished {
		c.pending = append(c.pending, pendingSend{ptype: pt, payload: payload, reliable: reliable})
		c.pendingBytes += len(payload)

		for c.pendingBytes > c.cfg.MaxPendingBytes && len(c.pending) > 0 {
			dropped := c.pending[0]
			c.pending = c.pending[1:]
			c.pendingBytes -= len(dropped.payload)

			log.WithFields(log.Fields{
				"peer":  c.endpoint,
				"bytes": len(dropped.payload),
			}).Warn("Pending send queue overflowed, dropping oldest payload")
		}

		c.startHandshakeLocked()
		return nil
	}

	return c.sendLocked(pt, payload, reliable, time.Now())
}

// sendLocked runs the established send pipeline. Callers hold the mutex.
func (c *Conn) sendLocked(pt wire.PacketType, payload []byte, reliable bool, now time.Time) error {
	body := compress.Compress(payload)

	frame, err := c.rel.PrepareOutgoing(pt, body, reliable, now)
	if err != nil {
		return err
	}

	c.sendRaw(c.endpoint, c.channel.Seal(frame))
	c.stats.txDatagrams.Add(1)
	return nil
}

// HandleDatagram processes one raw datagram from the pump: a 32-byte public
// key while the handshake is open, an encrypted frame afterwards.
func (c *Conn) HandleDatagram(datagram []byte) {
	c.stats.rxDatagrams.Add(1)

	c.mutex.Lock()
	if c.phase != PhaseEstablished {
		c.handleHandshakeLocked(datagram)
		c.mutex.Unlock()
		return
	}
	channel := c.channel
	c.mutex.Unlock()

	plaintext, err := channel.Open(datagram)
	if err != nil {
		c.stats.dropDecrypt.Add(1)
		log.WithFields(log.Fields{
			"peer":  c.endpoint,
			"error": err,
		}).Warn("Dropping undecryptable datagram")
		return
	}

	pt, body, err := c.rel.ProcessIncoming(plaintext, time.Now())
	switch {
	case errors.Is(err, reliability.ErrMalformedFrame):
		c.stats.dropMalformed.Add(1)
		log.WithFields(log.Fields{
			"peer":  c.endpoint,
			"error": err,
		}).Warn("Dropping malformed frame")
		return

	case errors.Is(err, reliability.ErrDuplicate):
		c.stats.dropDuplicate.Add(1)
		log.WithField("peer", c.endpoint).Trace("Ignoring duplicate frame")
		return

	case errors.Is(err, reliability.ErrTooOld):
		c.stats.dropTooOld.Add(1)
		log.WithField("peer", c.endpoint).Trace("Ignoring frame behind the receive window")
		return

	case err != nil:
		log.WithFields(log.Fields{
			"peer":  c.endpoint,
			"error": err,
		}).Warn("Dropping frame")
		return
	}

	if pt == wire.ReliableAck || (pt == wire.Heartbeat && len(body) == 0) {
		return
	}

	payload, err := compress.Decompress(body)
	if err != nil {
		c.stats.dropDecompress.Add(1)
		log.WithFields(log.Fields{
			"peer":  c.endpoint,
			"error": err,
		}).Warn("Dropping packet body failing decompression")
		return
	}

	c.emit(ReceivedEvent{Endpoint: c.endpoint, Type: pt, Payload: payload})
}

// handleHandshakeLocked consumes a pre-handshake datagram. Callers hold the
// mutex.
func (c *Conn) handleHandshakeLocked(datagram []byte) {
	if len(datagram) != security.KeyLen {
		log.WithFields(log.Fields{
			"peer": c.endpoint,
			"size": len(datagram),
		}).Warn("Dropping non-handshake datagram before key agreement")
		return
	}

	var peerKey [security.KeyLen]byte
	copy(peerKey[:], datagram)

	keys, err := c.kx.Derive(peerKey, c.role)
	if err == nil {
		c.channel, err = security.NewChannel(keys, c.cfg.NonceSearchWindow)
	}
	if err != nil {
		log.WithFields(log.Fields{
			"peer":  c.endpoint,
			"error": err,
		}).Error("Key agreement failed, tearing down connection")

		c.failed = true
		c.emitDisconnectedLocked(ReasonCryptoFailure)
		return
	}

	// Complete the symmetry if our key has not gone out yet.
	c.startHandshakeLocked()
	c.phase = PhaseEstablished

	log.WithFields(log.Fields{
		"peer": c.endpoint,
		"role": c.role,
	}).Info("Handshake complete, channel established")

	c.emit(ConnectedEvent{Endpoint: c.endpoint})

	queued := c.pending
	c.pending = nil
	c.pendingBytes = 0

	now := time.Now()
	for _, ps := range queued {
		if err := c.sendLocked(ps.ptype, ps.payload, ps.reliable, now); err != nil {
			log.WithFields(log.Fields{
				"peer":  c.endpoint,
				"error": err,
			}).Warn("Flushing queued payload failed")
		}
	}
}

// Maintenance drives retransmissions, delayed ACKs, heartbeats and timeout
// detection. It reports whether the connection is dead and should be reaped.
func (c *Conn) Maintenance(now time.Time) (dead bool) {
	c.mutex.Lock()
	phase := c.phase
	channel := c.channel
	failed := c.failed
	c.mutex.Unlock()

	if failed {
		return true
	}

	if phase == PhaseEstablished {
		err := c.rel.ProcessMaintenance(now, func(frame []byte) {
			c.sendRaw(c.endpoint, channel.Seal(frame))
			c.stats.txDatagrams.Add(1)
			c.stats.retransmissions.Add(1)
		})
		if errors.Is(err, reliability.ErrRetryLimit) {
			log.WithField("peer", c.endpoint).Warn("Retry limit exceeded, dropping connection")

			c.signalDisconnected(ReasonTimedOut)
			return true
		}

		if c.rel.ShouldSendAck(now) {
			c.mutex.Lock()
			if frame, err := c.rel.PrepareOutgoing(wire.ReliableAck, nil, true, now); err == nil {
				c.sendRaw(c.endpoint, channel.Seal(frame))
				c.stats.txDatagrams.Add(1)
			}
			c.mutex.Unlock()
		}

		if c.cfg.HeartbeatInterval > 0 && c.rel.SinceLastTx(now) >= c.cfg.HeartbeatInterval {
			c.mutex.Lock()
			if err := c.sendLocked(wire.Heartbeat, nil, false, now); err != nil {
				log.WithFields(log.Fields{
					"peer":  c.endpoint,
					"error": err,
				}).Warn("Heartbeat failed")
			}
			c.mutex.Unlock()
		}
	}

	if c.rel.IsTimedOut(now, c.cfg.IdleTimeout) {
		reason := ReasonIdle
		if c.rel.Dropped() {
			reason = ReasonTimedOut
		}
		log.WithFields(log.Fields{
			"peer":   c.endpoint,
			"reason": reason,
		}).Info("Connection timed out")

		c.signalDisconnected(reason)
		return true
	}

	return false
}

// signalDisconnected delivers the Disconnected event at most once.
func (c *Conn) signalDisconnected(reason DisconnectReason) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.emitDisconnectedLocked(reason)
}

func (c *Conn) emitDisconnectedLocked(reason DisconnectReason) {
	if c.disconnected {
		return
	}
	c.disconnected = true

	c.emit(DisconnectedEvent{Endpoint: c.endpoint, Reason: reason})
}

// ConnSnapshot is the observable state of one connection.
type ConnSnapshot struct {
	Endpoint    string               `json:"endpoint"`
	Role        string               `json:"role"`
	Phase       string               `json:"phase"`
	Reliability reliability.Snapshot `json:"reliability"`
	TxNonce     uint64               `json:"tx_nonce"`
	LastRxNonce uint64               `json:"last_rx_nonce"`
}

// Snapshot copies the observable state for the monitor.
func (c *Conn) Snapshot() ConnSnapshot {
	c.mutex.Lock()
	phase := c.phase
	channel := c.channel
	c.mutex.Unlock()

	snap := ConnSnapshot{
		Endpoint:    c.endpoint.String(),
		Role:        c.role.String(),
		Phase:       phase.String(),
		Reliability: c.rel.TakeSnapshot(),
	}
	if channel != nil {
		snap.TxNonce = channel.TxNonce()
		snap.LastRxNonce = channel.LastRxNonce()
	}
	return snap
}
