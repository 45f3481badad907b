// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

package sync

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/railatlas/railatlas/internal/config"
	"github.com/railatlas/railatlas/internal/logging"
	"github.com/railatlas/railatlas/internal/models"
)

// Retry delays by attempt number. The fourth delay is the cap; every
// attempt past it reuses the same 60s interval.
var backoffSchedule = []time.Duration{
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

// backoffDelay returns the delay before the given 1-based attempt.
func backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(backoffSchedule) {
		attempt = len(backoffSchedule)
	}
	return backoffSchedule[attempt-1]
}

// defaultHealthCheckInterval is how often the Pool sweeps for
// disconnected entries when no interval is configured.
const defaultHealthCheckInterval = 15 * time.Second

// poolEntry tracks one server's client plus its retry timer state.
type poolEntry struct {
	client  *BeaconClient
	breaker *BreakerClient
	timer   Timer // pending backoff timer, nil when none scheduled
	removed bool
}

// Pool owns exactly one Beacon client per configured server. It is the
// only component that reconnects: the client reports disconnects and
// stays down until the Pool's backoff timer chain or an operator action
// dials again. A background health check re-arms entries that have no
// pending timer, so a server that drops stays in the retry loop until
// it is removed from the pool.
type Pool struct {
	clock          Clock
	healthInterval time.Duration

	mu      sync.Mutex
	entries map[string]*poolEntry
}

// NewPool creates an empty pool using the real clock.
func NewPool(cfg config.SyncConfig) *Pool {
	return NewPoolWithClock(cfg, RealClock{})
}

// NewPoolWithClock creates an empty pool with an injected clock.
func NewPoolWithClock(cfg config.SyncConfig, clock Clock) *Pool {
	interval := cfg.HealthCheckInterval
	if interval <= 0 {
		interval = defaultHealthCheckInterval
	}
	return &Pool{
		clock:          clock,
		healthInterval: interval,
		entries:        make(map[string]*poolEntry),
	}
}

// GetOrCreate returns the breaker-wrapped client for the server. An
// existing entry with identical endpoint and key is returned unchanged.
// When the configuration differs the old client is torn down and a
// fresh entry replaces it. New entries dial immediately; on failure the
// first backoff retry is scheduled.
func (p *Pool) GetOrCreate(ctx context.Context, cfg config.ServerSync) (*BreakerClient, error) {
	if !cfg.Usable() {
		return nil, fmt.Errorf("server %q: sync configuration not usable", cfg.ID)
	}

	p.mu.Lock()
	if e, ok := p.entries[cfg.ID]; ok {
		if e.client.Endpoint() == cfg.Endpoint && e.client.key == cfg.Key {
			p.mu.Unlock()
			return e.breaker, nil
		}
		logging.Info().Str("server", cfg.ID).Msg("[POOL] Configuration changed, replacing connection")
		p.teardownLocked(e)
	}

	client := NewBeaconClient(cfg.ID, cfg.Endpoint, cfg.Key, cfg.Timeout)
	entry := &poolEntry{
		client:  client,
		breaker: NewBreakerClient(client),
	}
	p.entries[cfg.ID] = entry
	p.mu.Unlock()

	if err := client.Connect(ctx); err != nil {
		logging.Warn().Err(err).Str("server", cfg.ID).Msg("[POOL] Initial connection failed")
		p.scheduleRetry(cfg.ID)
	}
	return entry.breaker, nil
}

// Get returns the breaker-wrapped client for a known server, or nil.
func (p *Pool) Get(serverID string) *BreakerClient {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[serverID]; ok {
		return e.breaker
	}
	return nil
}

// Remove cancels any pending retry timer, disconnects and deletes the
// entry. Safe to call for unknown servers.
func (p *Pool) Remove(serverID string) {
	p.mu.Lock()
	e, ok := p.entries[serverID]
	if ok {
		p.teardownLocked(e)
		delete(p.entries, serverID)
	}
	p.mu.Unlock()

	if ok {
		logging.Info().Str("server", serverID).Msg("[POOL] Connection removed")
	}
}

// teardownLocked marks an entry removed so in-flight timer callbacks
// become no-ops, then stops its timer and disconnects. Caller holds p.mu.
func (p *Pool) teardownLocked(e *poolEntry) {
	e.removed = true
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.client.Disconnect()
}

// Connect is the operator action to dial a server now. The attempt
// counter is reset before dialing.
func (p *Pool) Connect(ctx context.Context, serverID string) error {
	e := p.entry(serverID)
	if e == nil {
		return fmt.Errorf("server %q: no pool entry", serverID)
	}
	e.client.ResetReconnectAttempts()
	return e.client.Connect(ctx)
}

// Reconnect is the operator action to tear down and redial.
func (p *Pool) Reconnect(ctx context.Context, serverID string) error {
	e := p.entry(serverID)
	if e == nil {
		return fmt.Errorf("server %q: no pool entry", serverID)
	}
	e.client.ResetReconnectAttempts()
	return e.client.ForceReconnect(ctx)
}

// Disconnect is the operator action to hang up without removing the
// entry. The health check will not redial while a retry timer is armed,
// but an armed timer rechecks status before acting, so a deliberate
// disconnect stays down only until the next health sweep.
func (p *Pool) Disconnect(serverID string) error {
	e := p.entry(serverID)
	if e == nil {
		return fmt.Errorf("server %q: no pool entry", serverID)
	}
	e.client.ResetReconnectAttempts()
	e.client.Disconnect()
	return nil
}

// Beacon returns the RPC surface for a pooled server. The second
// return is false when no entry exists.
func (p *Pool) Beacon(serverID string) (BeaconAPI, bool) {
	e := p.entry(serverID)
	if e == nil {
		return nil, false
	}
	return e.breaker, true
}

func (p *Pool) entry(serverID string) *poolEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entries[serverID]
}

// ListStatuses reports every entry's connection status, sorted by
// server id for stable output.
func (p *Pool) ListStatuses() []models.ConnectionStatus {
	p.mu.Lock()
	entries := make([]*poolEntry, 0, len(p.entries))
	for _, e := range p.entries {
		entries = append(entries, e)
	}
	p.mu.Unlock()

	statuses := make([]models.ConnectionStatus, 0, len(entries))
	for _, e := range entries {
		statuses = append(statuses, e.client.Status())
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ServerID < statuses[j].ServerID })
	return statuses
}

// Run drives the periodic health check until ctx is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			p.healthCheck()
		}
	}
}

// healthCheck arms a retry timer for every entry that is disconnected,
// not mid-dial and not already waiting on a timer.
func (p *Pool) healthCheck() {
	p.mu.Lock()
	var stale []string
	for id, e := range p.entries {
		if e.timer != nil {
			continue
		}
		st := e.client.Status()
		if st.Connected || st.Connecting {
			continue
		}
		stale = append(stale, id)
	}
	p.mu.Unlock()

	for _, id := range stale {
		p.scheduleRetry(id)
	}
}

// scheduleRetry arms the backoff timer for the entry's next attempt.
// The delay is derived from the attempts already made, so the first
// retry waits 5s and later ones walk the schedule up to the 60s cap.
func (p *Pool) scheduleRetry(serverID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[serverID]
	if !ok || e.removed || e.timer != nil {
		return
	}

	attempt := e.client.Status().ReconnectAttempts + 1
	delay := backoffDelay(attempt)
	logging.Debug().
		Str("server", serverID).
		Int("attempt", attempt).
		Dur("delay", delay).
		Msg("[POOL] Scheduling reconnection attempt")

	e.timer = p.clock.AfterFunc(delay, func() {
		p.retryFire(serverID)
	})
}

// retryFire runs one scheduled reconnection attempt. It rechecks the
// connection first because an operator reconnect may have beaten the
// timer, and reschedules itself on failure so the chain is
// self-sustaining until the entry is removed or the dial succeeds.
func (p *Pool) retryFire(serverID string) {
	p.mu.Lock()
	e, ok := p.entries[serverID]
	if !ok || e.removed {
		p.mu.Unlock()
		return
	}
	e.timer = nil
	client := e.client
	p.mu.Unlock()

	if client.IsConnected() {
		client.ResetReconnectAttempts()
		return
	}

	client.RecordReconnectAttempt()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	err := client.Connect(ctx)
	cancel()

	if err == nil {
		logging.Info().Str("server", serverID).Msg("[POOL] Reconnected")
		client.ResetReconnectAttempts()
		return
	}

	logging.Warn().Err(err).Str("server", serverID).Msg("[POOL] Reconnection attempt failed")
	p.scheduleRetry(serverID)
}
