// SPDX-FileCopyrightText: 2026 The RiftNet Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/BurntSushi/toml"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/riftforged/riftnet-go/pkg/discovery"
	"github.com/riftforged/riftnet-go/pkg/monitor"
	"github.com/riftforged/riftnet-go/pkg/transport"
	"github.com/riftforged/riftnet-go/pkg/wire"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Core      coreConf
	Logging   logConf
	Transport transportConf
	Discovery discoveryConf
	Monitor   monitorConf
}

// coreConf describes the Core-configuration block.
type coreConf struct {
	Listen    string
	Profiling bool
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// transportConf describes the Transport-configuration block.
type transportConf struct {
	TickHz            int    `toml:"tick-hz"`
	IdleTimeout       string `toml:"idle-timeout"`
	HeartbeatInterval string `toml:"heartbeat-interval"`
	MaxRetries        int    `toml:"max-retries"`
	MaxPendingBytes   int    `toml:"max-pending-bytes"`
	NonceWindow       uint64 `toml:"nonce-window"`
}

// discoveryConf describes the Discovery-configuration block.
type discoveryConf struct {
	Enable   bool
	Interval uint
}

// monitorConf describes the Monitor-configuration block.
type monitorConf struct {
	Listen string
}

// parseTransportConf maps the TOML block onto a transport.Config.
func parseTransportConf(conf transportConf) (cfg transport.Config, err error) {
	cfg = transport.DefaultConfig()

	if conf.TickHz > 0 {
		cfg.TickHz = conf.TickHz
	}
	if conf.IdleTimeout != "" {
		if cfg.IdleTimeout, err = time.ParseDuration(conf.IdleTimeout); err != nil {
			return
		}
	}
	if conf.HeartbeatInterval != "" {
		if cfg.HeartbeatInterval, err = time.ParseDuration(conf.HeartbeatInterval); err != nil {
			return
		}
	}
	if conf.MaxRetries > 0 {
		cfg.MaxRetries = conf.MaxRetries
	}
	if conf.MaxPendingBytes > 0 {
		cfg.MaxPendingBytes = conf.MaxPendingBytes
	}
	if conf.NonceWindow > 0 {
		cfg.NonceSearchWindow = conf.NonceWindow
	}

	return
}

// parseCore creates the Transport and its optional companions based on the
// given TOML configuration.
func parseCore(filename string) (t *transport.Transport, ds *discovery.Manager, mon *monitor.Monitor, profiling bool, err error) {
	var conf tomlConfig
	if _, err = toml.DecodeFile(filename, &conf); err != nil {
		return
	}

	// Logging
	if conf.Logging.Level != "" {
		if lvl, lvlErr := log.ParseLevel(conf.Logging.Level); lvlErr != nil {
			log.WithFields(log.Fields{
				"level":    conf.Logging.Level,
				"error":    lvlErr,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.Logging.ReportCaller)

	switch conf.Logging.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		log.Warn("Unknown logging format")
	}

	profiling = conf.Core.Profiling

	// Core
	if conf.Core.Listen == "" {
		err = fmt.Errorf("core.listen is empty")
		return
	}

	listen, listenErr := wire.ParseEndpoint(conf.Core.Listen)
	if listenErr != nil {
		err = listenErr
		return
	}

	cfg, cfgErr := parseTransportConf(conf.Transport)
	if cfgErr != nil {
		err = cfgErr
		return
	}

	t, err = transport.Listen(listen, cfg)
	if err != nil {
		return
	}

	// Discovery
	if conf.Discovery.Enable {
		if conf.Discovery.Interval == 0 {
			conf.Discovery.Interval = 10
		}

		ds, err = discovery.NewManager(
			t.LocalEndpoint().Port, nil,
			time.Duration(conf.Discovery.Interval)*time.Second)
		if err != nil {
			return
		}
	}

	// Monitor
	if conf.Monitor.Listen != "" {
		mon, err = monitor.NewMonitor(t, conf.Monitor.Listen, prometheus.DefaultRegisterer)
		if err != nil {
			return
		}
	}

	return
}
