// SPDX-FileCopyrightText: 2026 The RiftNet Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/schollz/peerdiscovery"

	"github.com/riftforged/riftnet-go/pkg/wire"
)

const (
	// multicastAddress4 is the multicast IPv4 address used for discovery.
	multicastAddress4 = "239.71.82.70"

	// multicastPort is the multicast UDP port used for discovery.
	multicastPort = 35071
)

// Manager publishes the local Announcement and reports discovered servers.
type Manager struct {
	// NotifyFunc is called once per newly discovered server endpoint.
	NotifyFunc func(wire.Endpoint)

	stopChan chan struct{}

	seenMutex sync.Mutex
	seen      map[wire.Endpoint]struct{}
}

// NewManager announces the given listen port on the local network every
// interval and invokes notifyFunc for every other transport it hears from.
func NewManager(listenPort uint16, notifyFunc func(wire.Endpoint), interval time.Duration) (*Manager, error) {
	manager := &Manager{
		NotifyFunc: notifyFunc,
		stopChan:   make(chan struct{}),
		seen:       make(map[wire.Endpoint]struct{}),
	}

	log.WithFields(log.Fields{
		"port":     listenPort,
		"interval": interval,
	}).Info("Starting discovery manager")

	settings := peerdiscovery.Settings{
		Limit:            -1,
		Port:             fmt.Sprintf("%d", multicastPort),
		MulticastAddress: multicastAddress4,
		Payload:          MarshalAnnouncement(NewAnnouncement(listenPort)),
		Delay:            interval,
		TimeLimit:        -1,
		StopChan:         manager.stopChan,
		AllowSelf:        false,
		IPVersion:        peerdiscovery.IPv4,
		Notify:           manager.notify,
	}

	discoverErrChan := make(chan error)
	go func() {
		_, discoverErr := peerdiscovery.Discover(settings)
		discoverErrChan <- discoverErr
	}()

	select {
	case discoverErr := <-discoverErrChan:
		if discoverErr != nil {
			return nil, discoverErr
		}

	case <-time.After(time.Second):
		break
	}

	return manager, nil
}

func (manager *Manager) notify(discovered peerdiscovery.Discovered) {
	announcement, err := UnmarshalAnnouncement(discovered.Payload)
	if err != nil {
		log.WithError(err).WithField("peer", discovered.Address).
			Warn("Discovery failed to parse incoming payload")

		return
	}

	endpoint := wire.NewEndpoint(discovered.Address, announcement.Port)

	manager.seenMutex.Lock()
	if _, ok := manager.seen[endpoint]; ok {
		manager.seenMutex.Unlock()
		return
	}
	manager.seen[endpoint] = struct{}{}
	manager.seenMutex.Unlock()

	log.WithFields(log.Fields{
		"peer":         discovered.Address,
		"announcement": announcement,
	}).Debug("Discovery received an announcement")

	if manager.NotifyFunc != nil {
		manager.NotifyFunc(endpoint)
	}
}

// Close this Manager.
func (manager *Manager) Close() {
	manager.stopChan <- struct{}{}
}
