// SPDX-FileCopyrightText: 2026 The RiftNet Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// riftnetd is the RiftNet server daemon: it accepts connections on a UDP
// endpoint, answers EchoTest payloads, and optionally announces itself on the
// local network and serves a monitor endpoint.
package main

import (
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"

	"github.com/pkg/profile"

	"github.com/riftforged/riftnet-go/pkg/monitor"
	"github.com/riftforged/riftnet-go/pkg/transport"
	"github.com/riftforged/riftnet-go/pkg/wire"
)

// waitSigint blocks the current thread until a SIGINT appears.
func waitSigint() {
	signalSyn := make(chan os.Signal, 1)
	signalAck := make(chan struct{})

	signal.Notify(signalSyn, os.Interrupt)

	go func() {
		<-signalSyn
		close(signalAck)
	}()

	<-signalAck
}

// serve answers application events until the transport closes: EchoTest
// payloads bounce back to their sender, everything else is logged.
func serve(t *transport.Transport, mon *monitor.Monitor) {
	for ev := range t.Events() {
		if mon != nil {
			mon.Broadcast(ev)
		}

		switch e := ev.(type) {
		case transport.ReceivedEvent:
			if e.Type == wire.EchoTest {
				if err := t.Send(e.Endpoint, wire.EchoTest, e.Payload, true); err != nil {
					log.WithFields(log.Fields{
						"peer":  e.Endpoint,
						"error": err,
					}).Warn("Echoing payload failed")
				}
				continue
			}

			log.WithFields(log.Fields{
				"peer":  e.Endpoint,
				"type":  e.Type,
				"bytes": len(e.Payload),
			}).Info("Received payload")

		case transport.ConnectedEvent:
			log.WithField("peer", e.Endpoint).Info("Peer connected")

		case transport.DisconnectedEvent:
			log.WithFields(log.Fields{
				"peer":   e.Endpoint,
				"reason": e.Reason,
			}).Info("Peer disconnected")

		case transport.ErrorEvent:
			log.WithFields(log.Fields{
				"peer":  e.Endpoint,
				"error": e.Err,
			}).Warn("Transport error")
		}
	}
}

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("Usage: %s configuration.toml", os.Args[0])
	}

	t, ds, mon, profiling, err := parseCore(os.Args[1])
	if err != nil {
		log.WithFields(log.Fields{
			"error": err,
		}).Fatal("Failed to parse config")
	}

	if profiling {
		defer profile.Start(profile.ProfilePath(".")).Stop()
	}

	go serve(t, mon)

	waitSigint()
	log.Info("Shutting down..")

	if err := t.Close(); err != nil {
		log.WithError(err).Warn("Closing transport errored")
	}

	if ds != nil {
		ds.Close()
	}

	if mon != nil {
		if err := mon.Close(); err != nil {
			log.WithError(err).Warn("Closing monitor errored")
		}
	}
}
