// SPDX-FileCopyrightText: 2026 The RiftNet Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"bytes"
	"crypto/rand"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/riftforged/riftnet-go/pkg/security"
	"github.com/riftforged/riftnet-go/pkg/wire"
)

// eventLog collects events concurrently.
type eventLog struct {
	mutex  sync.Mutex
	events []Event
}

func (el *eventLog) emit(ev Event) {
	el.mutex.Lock()
	defer el.mutex.Unlock()
	el.events = append(el.events, ev)
}

func (el *eventLog) snapshot() []Event {
	el.mutex.Lock()
	defer el.mutex.Unlock()
	return append([]Event(nil), el.events...)
}

func (el *eventLog) received() (res []ReceivedEvent) {
	for _, ev := range el.snapshot() {
		if re, ok := ev.(ReceivedEvent); ok {
			res = append(res, re)
		}
	}
	return
}

func (el *eventLog) count(match func(Event) bool) (n int) {
	for _, ev := range el.snapshot() {
		if match(ev) {
			n++
		}
	}
	return
}

// queuedDatagram is one datagram waiting in the test network.
type queuedDatagram struct {
	to       *Conn
	datagram []byte
}

// connPair wires two Conns through a queued in-memory network. Datagrams are
// enqueued by the connections and delivered by flush, outside any connection
// lock, mirroring how the socket decouples both peers. The drop functions may
// swallow datagrams to simulate loss.
type connPair struct {
	initiator, responder   *Conn
	initEvents, respEvents *eventLog

	mutex      sync.Mutex
	queue      []queuedDatagram
	dropToResp func(datagram []byte) bool
	dropToInit func(datagram []byte) bool
}

func newConnPair(t *testing.T, cfg Config) *connPair {
	t.Helper()
	cfg = cfg.withDefaults()

	pair := &connPair{
		initEvents: &eventLog{},
		respEvents: &eventLog{},
	}

	var initStats, respStats Stats

	epInit := wire.NewEndpoint("10.0.0.1", 1000)
	epResp := wire.NewEndpoint("10.0.0.2", 2000)

	toResponder := func(_ wire.Endpoint, datagram []byte) {
		pair.mutex.Lock()
		defer pair.mutex.Unlock()

		if pair.dropToResp != nil && pair.dropToResp(datagram) {
			return
		}
		pair.queue = append(pair.queue, queuedDatagram{pair.responder, append([]byte(nil), datagram...)})
	}
	toInitiator := func(_ wire.Endpoint, datagram []byte) {
		pair.mutex.Lock()
		defer pair.mutex.Unlock()

		if pair.dropToInit != nil && pair.dropToInit(datagram) {
			return
		}
		pair.queue = append(pair.queue, queuedDatagram{pair.initiator, append([]byte(nil), datagram...)})
	}

	var err error
	pair.initiator, err = newConn(epResp, security.Initiator, cfg, toResponder, pair.initEvents.emit, &initStats)
	if err != nil {
		t.Fatal(err)
	}
	pair.responder, err = newConn(epInit, security.Responder, cfg, toInitiator, pair.respEvents.emit, &respStats)
	if err != nil {
		t.Fatal(err)
	}

	return pair
}

// flush delivers queued datagrams, including the ones enqueued while
// delivering, until the network is silent.
func (pair *connPair) flush() {
	for {
		pair.mutex.Lock()
		if len(pair.queue) == 0 {
			pair.mutex.Unlock()
			return
		}
		next := pair.queue[0]
		pair.queue = pair.queue[1:]
		pair.mutex.Unlock()

		next.to.HandleDatagram(next.datagram)
	}
}

// setDropToResp installs a drop filter for the initiator-to-responder path.
func (pair *connPair) setDropToResp(drop func([]byte) bool) {
	pair.mutex.Lock()
	defer pair.mutex.Unlock()
	pair.dropToResp = drop
}

func (pair *connPair) handshake(t *testing.T) {
	t.Helper()

	pair.initiator.StartHandshake()
	pair.flush()

	if pair.initiator.Snapshot().Phase != PhaseEstablished.String() {
		t.Fatal("initiator not established")
	}
	if pair.responder.Snapshot().Phase != PhaseEstablished.String() {
		t.Fatal("responder not established")
	}
}

func TestConnHandshake(t *testing.T) {
	pair := newConnPair(t, Config{})
	pair.handshake(t)

	isConnected := func(ev Event) bool { _, ok := ev.(ConnectedEvent); return ok }
	if pair.initEvents.count(isConnected) != 1 || pair.respEvents.count(isConnected) != 1 {
		t.Fatal("both sides must report Connected exactly once")
	}
}

func TestConnRejectsBogusHandshake(t *testing.T) {
	pair := newConnPair(t, Config{})

	pair.responder.HandleDatagram([]byte("way too short"))

	if pair.responder.Snapshot().Phase != PhaseIdle.String() {
		t.Fatal("bogus pre-handshake datagram must not change the phase")
	}
}

func TestConnSendReceiveAndAck(t *testing.T) {
	pair := newConnPair(t, Config{})
	pair.handshake(t)

	body := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if err := pair.initiator.Send(wire.PlayerAction, body, true); err != nil {
		t.Fatal(err)
	}
	pair.flush()

	received := pair.respEvents.received()
	if len(received) != 1 {
		t.Fatalf("expected one delivery, got %d", len(received))
	}
	if received[0].Type != wire.PlayerAction || !bytes.Equal(received[0].Payload, body) {
		t.Fatalf("unexpected delivery %v", received[0])
	}

	if got := pair.initiator.Snapshot().Reliability.Inflight; got != 1 {
		t.Fatalf("expected one in-flight entry, got %d", got)
	}

	// The responder's delayed ACK drains the initiator's in-flight queue and
	// produces the first RTT sample.
	pair.responder.Maintenance(time.Now().Add(25 * time.Millisecond))
	pair.flush()

	snap := pair.initiator.Snapshot().Reliability
	if snap.Inflight != 0 {
		t.Fatalf("in-flight entry must be acknowledged, %d left", snap.Inflight)
	}
	if snap.SmoothedRTTMs >= 200 {
		t.Fatalf("RTT sample not applied, srtt=%v", snap.SmoothedRTTMs)
	}
}

func TestConnRetransmission(t *testing.T) {
	pair := newConnPair(t, Config{})
	pair.handshake(t)

	// Swallow the first encrypted data datagram.
	dropped := false
	pair.setDropToResp(func([]byte) bool {
		if !dropped {
			dropped = true
			return true
		}
		return false
	})

	if err := pair.initiator.Send(wire.PlayerAction, []byte{0x01}, true); err != nil {
		t.Fatal(err)
	}
	pair.flush()

	if len(pair.respEvents.received()) != 0 {
		t.Fatal("the first datagram should have been lost")
	}

	// After the RTO the frame goes out again with a fresh nonce.
	pair.initiator.Maintenance(time.Now().Add(500 * time.Millisecond))
	pair.flush()

	received := pair.respEvents.received()
	if len(received) != 1 {
		t.Fatalf("expected exactly one delivery after retransmission, got %d", len(received))
	}
	if !bytes.Equal(received[0].Payload, []byte{0x01}) {
		t.Fatal("retransmitted payload mismatches")
	}
}

func TestConnPendingQueueFlushedOnHandshake(t *testing.T) {
	pair := newConnPair(t, Config{})

	// Queue before any handshake; Send kicks the key exchange itself.
	if err := pair.initiator.Send(wire.ChatMessage, []byte("early"), true); err != nil {
		t.Fatal(err)
	}
	pair.flush()

	received := pair.respEvents.received()
	if len(received) != 1 {
		t.Fatalf("queued payload must flush after the handshake, got %d deliveries", len(received))
	}
	if !bytes.Equal(received[0].Payload, []byte("early")) {
		t.Fatal("flushed payload mismatches")
	}
}

func TestConnPendingQueueOverflow(t *testing.T) {
	pair := newConnPair(t, Config{MaxPendingBytes: 8})

	// Disconnect the wire so the handshake cannot complete.
	pair.setDropToResp(func([]byte) bool { return true })

	if err := pair.initiator.Send(wire.ChatMessage, []byte("oldest!!"), true); err != nil {
		t.Fatal(err)
	}
	if err := pair.initiator.Send(wire.ChatMessage, []byte("newest!!"), true); err != nil {
		t.Fatal(err)
	}

	pair.initiator.mutex.Lock()
	defer pair.initiator.mutex.Unlock()
	if len(pair.initiator.pending) != 1 || !bytes.Equal(pair.initiator.pending[0].payload, []byte("newest!!")) {
		t.Fatalf("oldest payload must be dropped on overflow, %d queued", len(pair.initiator.pending))
	}
}

func TestConnPayloadTooLarge(t *testing.T) {
	pair := newConnPair(t, Config{})
	pair.handshake(t)

	// Random bytes do not compress, so the body budget applies to them as is.
	payload := make([]byte, wire.MaxBody+200)
	if _, err := rand.Read(payload); err != nil {
		t.Fatal(err)
	}

	if err := pair.initiator.Send(wire.GameState, payload, true); !errors.Is(err, wire.ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestConnRetryLimitDisconnects(t *testing.T) {
	pair := newConnPair(t, Config{MaxRetries: 2})
	pair.handshake(t)

	pair.setDropToResp(func([]byte) bool { return true })

	if err := pair.initiator.Send(wire.PlayerAction, []byte{0x01}, true); err != nil {
		t.Fatal(err)
	}
	pair.flush()

	now := time.Now()
	var dead bool
	for i := 0; i < 6 && !dead; i++ {
		now = now.Add(4 * time.Second)
		dead = pair.initiator.Maintenance(now)
		pair.flush()
	}

	if !dead {
		t.Fatal("connection must die after the retry limit")
	}

	isTimedOut := func(ev Event) bool {
		de, ok := ev.(DisconnectedEvent)
		return ok && de.Reason == ReasonTimedOut
	}
	if pair.initEvents.count(isTimedOut) != 1 {
		t.Fatal("Disconnected(TimedOut) must be signaled exactly once")
	}
}

func TestConnIdleTimeout(t *testing.T) {
	pair := newConnPair(t, Config{})
	pair.handshake(t)

	if pair.initiator.Maintenance(time.Now().Add(29 * time.Second)) {
		t.Fatal("connection reaped before the idle timeout")
	}
	pair.flush()

	if !pair.initiator.Maintenance(time.Now().Add(31 * time.Second)) {
		t.Fatal("idle connection must be reaped")
	}

	isIdle := func(ev Event) bool {
		de, ok := ev.(DisconnectedEvent)
		return ok && de.Reason == ReasonIdle
	}
	if pair.initEvents.count(isIdle) != 1 {
		t.Fatal("Disconnected(Idle) must be signaled exactly once")
	}
}

func TestConnHeartbeatKeepsPeerAlive(t *testing.T) {
	pair := newConnPair(t, Config{HeartbeatInterval: time.Second})
	pair.handshake(t)

	// A maintenance pass past the heartbeat interval emits a heartbeat, which
	// consumes a sequence number on the responder's receive window.
	if got := pair.responder.Snapshot().Reliability.HighestReceivedSeq; got != 0 {
		t.Fatalf("responder received frames too early, highest seq %d", got)
	}

	pair.initiator.Maintenance(time.Now().Add(2 * time.Second))
	pair.flush()

	if got := pair.responder.Snapshot().Reliability.HighestReceivedSeq; got != 1 {
		t.Fatalf("heartbeat must reach the responder, highest seq %d", got)
	}

	// Heartbeats with empty bodies are invisible to the application.
	for _, re := range pair.respEvents.received() {
		if re.Type == wire.Heartbeat {
			t.Fatal("empty heartbeats must not reach the application")
		}
	}
}

func TestConnDuplicateDelivery(t *testing.T) {
	pair := newConnPair(t, Config{})
	pair.handshake(t)

	// Capture the encrypted datagram and deliver it twice. The AEAD layer
	// already rejects the replayed nonce, so the duplicate dies there; the
	// reliability window guards retransmissions arriving under fresh nonces.
	var captured []byte
	pair.setDropToResp(func(datagram []byte) bool {
		captured = append([]byte(nil), datagram...)
		return false
	})

	if err := pair.initiator.Send(wire.PlayerAction, []byte{0x07}, true); err != nil {
		t.Fatal(err)
	}
	pair.flush()

	pair.responder.HandleDatagram(captured)

	if got := len(pair.respEvents.received()); got != 1 {
		t.Fatalf("payload must be delivered exactly once, got %d", got)
	}
}
