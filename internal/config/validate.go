// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateHTTP(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	return c.validateServers()
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("database.threads must be >= 0, got %d", c.Database.Threads)
	}
	return nil
}

func (c *Config) validateHTTP() error {
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.HTTP.RateLimitReqs < 0 {
		return fmt.Errorf("http.rate_limit_requests must be >= 0")
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.RailwayRefreshInterval < time.Second {
		return fmt.Errorf("sync.railway_refresh_interval must be at least 1s")
	}
	if c.Sync.LogSyncInterval < time.Second {
		return fmt.Errorf("sync.log_sync_interval must be at least 1s")
	}
	if c.Sync.LogWindow <= 0 {
		return fmt.Errorf("sync.log_window must be positive")
	}
	if c.Sync.PageSize < 1 {
		return fmt.Errorf("sync.page_size must be at least 1")
	}
	return nil
}

func (c *Config) validateServers() error {
	seen := make(map[string]bool, len(c.Servers))
	for i := range c.Servers {
		s := &c.Servers[i]
		if s.ID == "" {
			return fmt.Errorf("servers[%d]: id is required", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("servers[%d]: duplicate server id %q", i, s.ID)
		}
		seen[s.ID] = true

		if !s.Enabled {
			continue
		}

		if s.Endpoint == "" {
			return fmt.Errorf("server %q: endpoint is required when sync is enabled", s.ID)
		}
		u, err := url.Parse(s.Endpoint)
		if err != nil {
			return fmt.Errorf("server %q: invalid endpoint: %w", s.ID, err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("server %q: endpoint scheme must be ws or wss, got %q", s.ID, u.Scheme)
		}
		if s.Key == "" {
			return fmt.Errorf("server %q: key is required when sync is enabled", s.ID)
		}

		if s.Timeout == 0 {
			s.Timeout = 10 * time.Second
		}
		if s.Timeout < 0 {
			return fmt.Errorf("server %q: timeout must be positive", s.ID)
		}
		if s.RailwayMod == "" {
			s.RailwayMod = "mtr"
		}
		if !strings.EqualFold(s.RailwayMod, "mtr") {
			return fmt.Errorf("server %q: unsupported railway_mod %q", s.ID, s.RailwayMod)
		}
	}
	return nil
}
