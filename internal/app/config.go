package app

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	GraphPath string // .hcl or .json graph file, optional

	LogFormat string
	LogLevel  string

	Workers        int // 0 = unbounded
	PrivateThreads bool
	Paused         bool
	TickFrequency  float64 // default counter tick, Hz

	APIPort      int    // 0 disables the HTTP API
	MonitorURL   string // socket.io monitor, empty disables
	PostgresDSN  string // selects the PostgreSQL snapshot store
	SnapshotDir  string // selects the directory snapshot store
	OTLPEndpoint string // empty keeps noop telemetry

	RunFor time.Duration // 0 runs until the context ends
}

// NewConfig validates cfg and returns a copy.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.GraphPath == "" && cfg.APIPort == 0 && cfg.MonitorURL == "" {
		return nil, errors.New("nothing to run: provide a graph file, an API port or a monitor URL")
	}
	if cfg.PostgresDSN != "" && cfg.SnapshotDir != "" {
		return nil, errors.New("postgres DSN and snapshot directory are mutually exclusive")
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("workers must not be negative, got %d", cfg.Workers)
	}
	if cfg.TickFrequency < 0 {
		return nil, fmt.Errorf("tick frequency must not be negative, got %g", cfg.TickFrequency)
	}
	if cfg.APIPort < 0 || cfg.APIPort > 65535 {
		return nil, fmt.Errorf("api port out of range: %d", cfg.APIPort)
	}
	if cfg.RunFor < 0 {
		return nil, fmt.Errorf("run-for must not be negative, got %s", cfg.RunFor)
	}
	if cfg.MonitorURL != "" {
		u, err := url.Parse(cfg.MonitorURL)
		if err != nil {
			return nil, fmt.Errorf("invalid monitor URL: %w", err)
		}
		switch u.Scheme {
		case "http", "https", "ws", "wss":
		default:
			return nil, fmt.Errorf("invalid monitor URL scheme %q", u.Scheme)
		}
	}
	return &cfg, nil
}
