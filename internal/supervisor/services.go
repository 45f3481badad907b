// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/railatlas/railatlas/internal/config"
	"github.com/railatlas/railatlas/internal/logging"
	"github.com/railatlas/railatlas/internal/models"
	railsync "github.com/railatlas/railatlas/internal/sync"
)

// HTTPServer matches *http.Server's lifecycle methods so the wrapper
// is testable without binding a port.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService adapts an HTTP server's blocking ListenAndServe
// to suture's context-aware Serve.
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPServerService wraps an HTTP server as a supervised service.
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service. http.ErrServerClosed is expected on
// shutdown and converted to nil.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		// The original context is already canceled; shutdown needs its own.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *HTTPServerService) String() string { return "http-server" }

// PoolService runs the connection pool's health-check loop.
type PoolService struct {
	pool *railsync.Pool
}

func NewPoolService(pool *railsync.Pool) *PoolService {
	return &PoolService{pool: pool}
}

func (s *PoolService) Serve(ctx context.Context) error {
	return s.pool.Run(ctx)
}

func (s *PoolService) String() string { return "beacon-pool" }

// MirrorService runs the periodic railway snapshot refresher.
type MirrorService struct {
	mirror  *railsync.Mirror
	servers []config.ServerSync
}

func NewMirrorService(mirror *railsync.Mirror, servers []config.ServerSync) *MirrorService {
	return &MirrorService{mirror: mirror, servers: servers}
}

func (s *MirrorService) Serve(ctx context.Context) error {
	return s.mirror.Run(ctx, s.servers)
}

func (s *MirrorService) String() string { return "railway-mirror" }

// LogSyncScheduler runs an incremental log sync for every enabled
// server on a fixed cadence. A server whose previous sync is still
// draining is skipped until the next tick.
type LogSyncScheduler struct {
	syncer   *railsync.LogSyncer
	pool     *railsync.Pool
	servers  []config.ServerSync
	interval time.Duration
}

// NewLogSyncScheduler creates the scheduler. Interval defaults to
// fifteen minutes.
func NewLogSyncScheduler(syncer *railsync.LogSyncer, pool *railsync.Pool, servers []config.ServerSync, interval time.Duration) *LogSyncScheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &LogSyncScheduler{
		syncer:   syncer,
		pool:     pool,
		servers:  servers,
		interval: interval,
	}
}

func (s *LogSyncScheduler) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *LogSyncScheduler) sweep(ctx context.Context) {
	for _, srv := range s.servers {
		if !srv.Usable() {
			continue
		}
		api, ok := s.pool.Beacon(srv.ID)
		if !ok {
			continue
		}
		_, err := s.syncer.Sync(ctx, api, srv.ID, models.RailwayMod(srv.RailwayMod), models.SyncIncremental)
		switch {
		case errors.Is(err, railsync.ErrSyncRunning):
			logging.Debug().Str("server", srv.ID).Msg("[SCHED] Sync still running, skipping tick")
		case err != nil:
			logging.Warn().Err(err).Str("server", srv.ID).Msg("[SCHED] Scheduled log sync failed")
		}
	}
}

func (s *LogSyncScheduler) String() string { return "logsync-scheduler" }
