// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

// Package config provides configuration management for RailAtlas.
//
// Configuration is loaded via Koanf v2 with layered sources, highest
// priority last:
//
//  1. Built-in defaults
//  2. Config file (config.yaml)
//  3. Environment variables
//
// Beacon shared-secret keys may be stored encrypted in the config file
// using the "enc:" prefix; see secrets.go.
package config

import (
	"time"
)

// Config is the root configuration structure.
type Config struct {
	Log      LogConfig      `koanf:"log"`
	Database DatabaseConfig `koanf:"database"`
	HTTP     HTTPConfig     `koanf:"http"`
	Sync     SyncConfig     `koanf:"sync"`

	// Servers lists the Minecraft servers to mirror. Each entry owns one
	// Beacon connection in the pool while its sync config is usable.
	Servers []ServerSync `koanf:"servers"`

	// MasterKey decrypts "enc:" secrets in server entries. Usually set
	// via the RAILATLAS_MASTER_KEY environment variable.
	MasterKey string `koanf:"master_key"`
}

// LogConfig controls the global zerolog logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// DatabaseConfig controls the DuckDB cache.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB worker thread count; 0 uses runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// HTTPConfig controls the administrative API server.
type HTTPConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`

	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_requests"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// SyncConfig controls background mirroring cadence.
type SyncConfig struct {
	// RailwayRefreshInterval is how often the railway snapshot of each
	// server is pulled and geometry recomputed when changed.
	RailwayRefreshInterval time.Duration `koanf:"railway_refresh_interval"`

	// LogSyncInterval is how often an incremental log sync is triggered.
	LogSyncInterval time.Duration `koanf:"log_sync_interval"`

	// LogWindow is the trailing window an incremental sync requests.
	LogWindow time.Duration `koanf:"log_window"`

	// PageSize is the limit used when paging remote logs and entities.
	PageSize int `koanf:"page_size"`

	// HealthCheckInterval is the connection pool health check cadence.
	HealthCheckInterval time.Duration `koanf:"health_check_interval"`
}

// ServerSync is the remote-sync configuration of one Minecraft server.
// An entry is usable when Enabled is true and Endpoint and Key are both
// present; only usable entries get a pool connection.
type ServerSync struct {
	ID      string `koanf:"id"`
	Enabled bool   `koanf:"enabled"`

	// Endpoint is the Beacon websocket URL (ws:// or wss://).
	Endpoint string `koanf:"endpoint"`

	// Key is the shared secret sent with every request. May be stored
	// with the "enc:" prefix and decrypted via MasterKey at load time.
	Key string `koanf:"key"`

	// Timeout is the per-call RPC timeout. Default 10s.
	Timeout time.Duration `koanf:"timeout"`

	// RailwayMod tags mirrored entities; only "mtr" is recognized today.
	RailwayMod string `koanf:"railway_mod"`

	// MaxRetry is informational only: the pool's backoff schedule governs
	// actual retry behavior.
	MaxRetry int `koanf:"max_retry"`
}

// Usable reports whether this entry should own a pool connection.
func (s ServerSync) Usable() bool {
	return s.Enabled && s.Endpoint != "" && s.Key != ""
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Database: DatabaseConfig{
			Path:      "/data/railatlas.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		HTTP: HTTPConfig{
			Host:            "0.0.0.0",
			Port:            8310,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Sync: SyncConfig{
			RailwayRefreshInterval: 5 * time.Minute,
			LogSyncInterval:        15 * time.Minute,
			LogWindow:              48 * time.Hour,
			PageSize:               500,
			HealthCheckInterval:    15 * time.Second,
		},
		Servers: nil,
	}
}
