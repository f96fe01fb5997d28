// SPDX-FileCopyrightText: 2026 The RiftNet Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package monitor

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/riftforged/riftnet-go/pkg/transport"
	"github.com/riftforged/riftnet-go/pkg/wire"
)

func getRandomPort(t *testing.T) int {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		t.Error(err)
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}

	defer func() { _ = l.Close() }()

	return l.Addr().(*net.TCPAddr).Port
}

func TestMonitorStatusAndMetrics(t *testing.T) {
	server, err := transport.Listen(wire.NewEndpoint("127.0.0.1", 0), transport.Config{})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = server.Close() }()

	listen := fmt.Sprintf("localhost:%d", getRandomPort(t))
	m, err := NewMonitor(server, listen, prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = m.Close() }()

	// The HTTP server needs a moment to bind.
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(fmt.Sprintf("http://%s/status", listen))
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	var report struct {
		Local       string                   `json:"local"`
		Connections []transport.ConnSnapshot `json:"connections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(report.Local, fmt.Sprintf("%d", server.LocalEndpoint().Port)) {
		t.Fatalf("unexpected local endpoint %q", report.Local)
	}
	if len(report.Connections) != 0 {
		t.Fatalf("expected no connections, got %d", len(report.Connections))
	}
}

func TestStatsCollector(t *testing.T) {
	server, err := transport.Listen(wire.NewEndpoint("127.0.0.1", 0), transport.Config{})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = server.Close() }()

	registry := prometheus.NewPedanticRegistry()
	if err := registry.Register(newStatsCollector(server)); err != nil {
		t.Fatal(err)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatal(err)
	}

	names := make(map[string]struct{})
	for _, family := range families {
		names[family.GetName()] = struct{}{}
	}

	for _, expected := range []string{
		"riftnet_rx_datagrams_total",
		"riftnet_tx_datagrams_total",
		"riftnet_retransmissions_total",
		"riftnet_drops_total",
		"riftnet_connections",
	} {
		if _, ok := names[expected]; !ok {
			t.Fatalf("metric %s missing", expected)
		}
	}
}
