// SPDX-FileCopyrightText: 2026 The RiftNet Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package transport composes the wire codec, compression stage, secure
// channel and reliability engine into connections, demultiplexes datagrams
// onto them, and drives the receive pump plus the periodic maintenance tick.
//
// A Transport is the single handle the application owns. Listen creates the
// accepting side, Dial the connecting side; both deliver Connected,
// Disconnected, Received and Error events through one channel.
//
// Locking follows a strict order: the connection table lock is only ever
// taken for lookup, create and remove, never while a packet is processed, and
// never around a socket send. Each connection serializes its own packet
// processing; two connection locks are never held at once.
package transport
