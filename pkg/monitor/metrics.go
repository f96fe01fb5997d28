// SPDX-FileCopyrightText: 2026 The RiftNet Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package monitor

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/riftforged/riftnet-go/pkg/transport"
)

// statsCollector exports the transport counters as Prometheus metrics.
type statsCollector struct {
	transport *transport.Transport

	rxDatagrams     *prometheus.Desc
	txDatagrams     *prometheus.Desc
	retransmissions *prometheus.Desc
	drops           *prometheus.Desc
	connections     *prometheus.Desc
	connsCreated    *prometheus.Desc
	connsReaped     *prometheus.Desc
	eventsDropped   *prometheus.Desc
}

func newStatsCollector(t *transport.Transport) *statsCollector {
	return &statsCollector{
		transport: t,

		rxDatagrams: prometheus.NewDesc("riftnet_rx_datagrams_total",
			"Datagrams received from the socket.", nil, nil),
		txDatagrams: prometheus.NewDesc("riftnet_tx_datagrams_total",
			"Datagrams handed to the socket.", nil, nil),
		retransmissions: prometheus.NewDesc("riftnet_retransmissions_total",
			"Reliable frames sent again after an RTO.", nil, nil),
		drops: prometheus.NewDesc("riftnet_drops_total",
			"Datagrams dropped on the receive path.", []string{"reason"}, nil),
		connections: prometheus.NewDesc("riftnet_connections",
			"Live connections.", nil, nil),
		connsCreated: prometheus.NewDesc("riftnet_connections_created_total",
			"Connections ever created.", nil, nil),
		connsReaped: prometheus.NewDesc("riftnet_connections_reaped_total",
			"Connections reaped by timeout, retry limit or failed key agreement.", nil, nil),
		eventsDropped: prometheus.NewDesc("riftnet_events_dropped_total",
			"Events dropped because the application did not keep up.", nil, nil),
	}
}

func (sc *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- sc.rxDatagrams
	ch <- sc.txDatagrams
	ch <- sc.retransmissions
	ch <- sc.drops
	ch <- sc.connections
	ch <- sc.connsCreated
	ch <- sc.connsReaped
	ch <- sc.eventsDropped
}

func (sc *statsCollector) Collect(ch chan<- prometheus.Metric) {
	stats := sc.transport.Stats()

	counter := func(desc *prometheus.Desc, value uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(value), labels...)
	}

	counter(sc.rxDatagrams, stats.RxDatagrams)
	counter(sc.txDatagrams, stats.TxDatagrams)
	counter(sc.retransmissions, stats.Retransmissions)

	counter(sc.drops, stats.DropDecrypt, "decrypt")
	counter(sc.drops, stats.DropMalformed, "malformed")
	counter(sc.drops, stats.DropDuplicate, "duplicate")
	counter(sc.drops, stats.DropTooOld, "too_old")
	counter(sc.drops, stats.DropDecompress, "decompress")

	ch <- prometheus.MustNewConstMetric(sc.connections, prometheus.GaugeValue,
		float64(sc.transport.ConnectionCount()))

	counter(sc.connsCreated, stats.ConnsCreated)
	counter(sc.connsReaped, stats.ConnsReaped)
	counter(sc.eventsDropped, stats.EventsDropped)
}
