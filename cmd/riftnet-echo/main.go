// SPDX-FileCopyrightText: 2026 The RiftNet Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// riftnet-echo connects to a riftnetd server, sends numbered EchoTest
// payloads and reports their round trips.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/riftforged/riftnet-go/pkg/transport"
	"github.com/riftforged/riftnet-go/pkg/wire"
)

func main() {
	var (
		host     = flag.String("host", "127.0.0.1", "server address")
		port     = flag.Uint("port", 47000, "server UDP port")
		count    = flag.Int("count", 10, "number of echo payloads")
		interval = flag.Duration("interval", 100*time.Millisecond, "delay between payloads")
		reliable = flag.Bool("reliable", true, "send reliably")
		timeout  = flag.Duration("timeout", 10*time.Second, "overall deadline")
	)
	flag.Parse()

	server := wire.NewEndpoint(*host, uint16(*port))

	t, err := transport.Dial(server, transport.DefaultConfig())
	if err != nil {
		log.WithError(err).Fatal("Dialing failed")
	}
	defer func() { _ = t.Close() }()

	sent := make(map[uint64]time.Time)
	received := 0
	deadline := time.After(*timeout)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	next := uint64(0)
	for received < *count {
		select {
		case ev, ok := <-t.Events():
			if !ok {
				log.Fatal("Transport closed")
			}

			switch e := ev.(type) {
			case transport.ReceivedEvent:
				if e.Type != wire.EchoTest || len(e.Payload) != 8 {
					continue
				}

				id := binary.BigEndian.Uint64(e.Payload)
				start, ok := sent[id]
				if !ok {
					continue
				}
				delete(sent, id)
				received++

				fmt.Printf("echo %d: %v\n", id, time.Since(start).Round(time.Microsecond))

			case transport.DisconnectedEvent:
				log.WithField("reason", e.Reason).Fatal("Server disconnected")
			}

		case <-ticker.C:
			if next >= uint64(*count) {
				continue
			}

			payload := make([]byte, 8)
			binary.BigEndian.PutUint64(payload, next)

			sent[next] = time.Now()
			if err := t.Send(server, wire.EchoTest, payload, *reliable); err != nil {
				log.WithError(err).Fatal("Sending failed")
			}
			next++

		case <-deadline:
			log.WithFields(log.Fields{
				"received": received,
				"expected": *count,
			}).Fatal("Timed out")
		}
	}

	fmt.Printf("%d/%d echoes received\n", received, *count)
}
