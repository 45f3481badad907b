// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

// Package main is the entry point for the RailAtlas server.
//
// RailAtlas mirrors rail network telemetry from Minecraft servers
// running the Beacon companion mod: it keeps persistent websocket RPC
// connections to each server, normalizes MTR routes, stations,
// platforms and depots, reconstructs route geometry from the rail
// graph, and syncs the audit log into a local DuckDB cache.
//
// Startup order:
//
//  1. Configuration: koanf v2 layering of defaults, config.yaml and
//     RAILATLAS_* environment variables
//  2. Logging: global zerolog logger from the log section
//  3. Database: DuckDB open plus schema migrations; sync jobs left
//     RUNNING by a previous process are failed as orphaned
//  4. Beacon pool, railway mirror, geometry snapshot service and log
//     syncer, wired together
//  5. Supervisor tree: pool health check, mirror refresher, log sync
//     scheduler and the HTTP server under suture
//
// The server shuts down gracefully on SIGINT and SIGTERM.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/railatlas/railatlas/internal/api"
	"github.com/railatlas/railatlas/internal/config"
	"github.com/railatlas/railatlas/internal/database"
	"github.com/railatlas/railatlas/internal/logging"
	"github.com/railatlas/railatlas/internal/snapshot"
	"github.com/railatlas/railatlas/internal/supervisor"
	railsync "github.com/railatlas/railatlas/internal/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Caller: cfg.Log.Caller,
	})

	logging.Info().
		Int("servers", len(cfg.Servers)).
		Str("db_path", cfg.Database.Path).
		Msg("Starting RailAtlas")

	db, err := database.New(cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	// A previous process may have died mid-sync; those jobs will never
	// finish and would read as RUNNING forever.
	if err := db.FailOrphanedLogSyncJobs(context.Background()); err != nil {
		logging.Warn().Err(err).Msg("Failed to fail orphaned sync jobs")
	}

	pool := railsync.NewPool(cfg.Sync)
	mirror := railsync.NewMirror(pool, cfg.Sync)
	snapshots := snapshot.New(db, mirror)
	// The mirror feeds the snapshot service its graphs and the snapshot
	// service recomputes on deploy changes, so wiring is two-step.
	mirror.SetGeometryService(snapshots)
	syncer := railsync.NewLogSyncer(db, cfg.Sync)

	handler := api.NewHandler(db, pool, mirror, snapshots, syncer)
	router := api.NewRouter(handler, cfg.HTTP)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.HTTP.Timeout,
		WriteTimeout:      cfg.HTTP.Timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddSyncService(supervisor.NewPoolService(pool))
	tree.AddSyncService(supervisor.NewMirrorService(mirror, cfg.Servers))
	tree.AddSyncService(supervisor.NewLogSyncScheduler(syncer, pool, cfg.Servers, cfg.Sync.LogSyncInterval))
	tree.AddAPIService(supervisor.NewHTTPServerService(httpServer, 10*time.Second))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", httpServer.Addr).Msg("Supervisor tree starting")
	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Error().Err(err).Msg("Supervisor tree stopped")
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop in time")
		}
	}
	logging.Info().Msg("RailAtlas stopped")
}
