// SPDX-FileCopyrightText: 2026 The RiftNet Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import "sync/atomic"

// Stats counts transport activity. All fields are updated atomically on the
// datagram path; Snapshot copies them for observers.
type Stats struct {
	rxDatagrams     atomic.Uint64
	txDatagrams     atomic.Uint64
	retransmissions atomic.Uint64

	dropDecrypt    atomic.Uint64
	dropMalformed  atomic.Uint64
	dropDuplicate  atomic.Uint64
	dropTooOld     atomic.Uint64
	dropDecompress atomic.Uint64

	connsCreated  atomic.Uint64
	connsReaped   atomic.Uint64
	eventsDropped atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of all transport counters.
type StatsSnapshot struct {
	RxDatagrams     uint64 `json:"rx_datagrams"`
	TxDatagrams     uint64 `json:"tx_datagrams"`
	Retransmissions uint64 `json:"retransmissions"`

	DropDecrypt    uint64 `json:"drop_decrypt"`
	DropMalformed  uint64 `json:"drop_malformed"`
	DropDuplicate  uint64 `json:"drop_duplicate"`
	DropTooOld     uint64 `json:"drop_too_old"`
	DropDecompress uint64 `json:"drop_decompress"`

	ConnsCreated  uint64 `json:"conns_created"`
	ConnsReaped   uint64 `json:"conns_reaped"`
	EventsDropped uint64 `json:"events_dropped"`
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		RxDatagrams:     s.rxDatagrams.Load(),
		TxDatagrams:     s.txDatagrams.Load(),
		Retransmissions: s.retransmissions.Load(),
		DropDecrypt:     s.dropDecrypt.Load(),
		DropMalformed:   s.dropMalformed.Load(),
		DropDuplicate:   s.dropDuplicate.Load(),
		DropTooOld:      s.dropTooOld.Load(),
		DropDecompress:  s.dropDecompress.Load(),
		ConnsCreated:    s.connsCreated.Load(),
		ConnsReaped:     s.connsReaped.Load(),
		EventsDropped:   s.eventsDropped.Load(),
	}
}
