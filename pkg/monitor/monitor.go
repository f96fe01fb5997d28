// SPDX-FileCopyrightText: 2026 The RiftNet Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package monitor exposes a read-only HTTP endpoint over a running Transport:
// JSON connection snapshots on /status, Prometheus counters on /metrics and a
// live transport-event stream on /ws.
package monitor

import (
	"encoding/json"
	"net/http"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/riftforged/riftnet-go/pkg/transport"
)

// Monitor serves the status endpoints of one Transport.
type Monitor struct {
	transport *transport.Transport
	router    *mux.Router
	server    *http.Server

	upgrader websocket.Upgrader

	clientsMutex sync.Mutex
	clients      map[*websocket.Conn]struct{}
}

// NewMonitor creates a Monitor for the given Transport, listening on the
// given address, e.g., "localhost:8484". The registry receives this
// transport's collectors; pass prometheus.DefaultRegisterer when in doubt.
func NewMonitor(t *transport.Transport, listen string, registry prometheus.Registerer) (*Monitor, error) {
	m := &Monitor{
		transport: t,
		router:    mux.NewRouter(),
		clients:   make(map[*websocket.Conn]struct{}),
	}

	if err := registry.Register(newStatsCollector(t)); err != nil {
		return nil, err
	}

	m.router.HandleFunc("/status", m.handleStatus).Methods(http.MethodGet)
	m.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	m.router.HandleFunc("/ws", m.handleWs).Methods(http.MethodGet)

	m.server = &http.Server{
		Addr:    listen,
		Handler: m.router,
	}

	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Monitor HTTP server failed")
		}
	}()

	log.WithField("listen", listen).Info("Monitor serving")
	return m, nil
}

// statusReport is the /status response document.
type statusReport struct {
	Local       string                   `json:"local"`
	Connections []transport.ConnSnapshot `json:"connections"`
	Stats       transport.StatsSnapshot  `json:"stats"`
}

// handleStatus serves GET /status.
func (m *Monitor) handleStatus(w http.ResponseWriter, _ *http.Request) {
	report := statusReport{
		Local:       m.transport.LocalEndpoint().String(),
		Connections: m.transport.Snapshots(),
		Stats:       m.transport.Stats(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		log.WithError(err).Warn("Failed to write status response")
	}
}

// handleWs serves GET /ws, streaming transport events as JSON documents.
func (m *Monitor) handleWs(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("Upgrading HTTP request to WebSocket errored")
		return
	}

	m.clientsMutex.Lock()
	m.clients[conn] = struct{}{}
	m.clientsMutex.Unlock()

	// Drain control frames; Broadcast pushes the data.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				m.dropClient(conn)
				return
			}
		}
	}()
}

// wsEvent is one streamed transport event.
type wsEvent struct {
	Kind    string `json:"kind"`
	Peer    string `json:"peer"`
	Type    string `json:"type,omitempty"`
	Payload int    `json:"payload_bytes,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Broadcast pushes one transport event to every connected websocket client.
// Wire it to the application's event loop. Each client is written to
// synchronously under the client lock; a client whose write fails is dropped.
func (m *Monitor) Broadcast(ev transport.Event) {
	doc := wsEvent{Peer: ev.Peer().String()}

	switch e := ev.(type) {
	case transport.ConnectedEvent:
		doc.Kind = "connected"
	case transport.DisconnectedEvent:
		doc.Kind = "disconnected"
		doc.Reason = e.Reason.String()
	case transport.ReceivedEvent:
		doc.Kind = "received"
		doc.Type = e.Type.String()
		doc.Payload = len(e.Payload)
	case transport.ErrorEvent:
		doc.Kind = "error"
		doc.Error = e.Err.Error()
	default:
		return
	}

	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	for conn := range m.clients {
		if err := conn.WriteJSON(doc); err != nil {
			log.WithError(err).Debug("Dropping websocket monitor client")

			delete(m.clients, conn)
			_ = conn.Close()
		}
	}
}

func (m *Monitor) dropClient(conn *websocket.Conn) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if _, ok := m.clients[conn]; ok {
		delete(m.clients, conn)
		_ = conn.Close()
	}
}

// Close shuts the HTTP server down and disconnects every websocket client.
func (m *Monitor) Close() error {
	m.clientsMutex.Lock()
	for conn := range m.clients {
		_ = conn.Close()
	}
	m.clients = make(map[*websocket.Conn]struct{})
	m.clientsMutex.Unlock()

	return m.server.Close()
}
