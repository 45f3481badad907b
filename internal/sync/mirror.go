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
	"github.com/railatlas/railatlas/internal/models/beacon"
	"github.com/railatlas/railatlas/internal/normalize"
)

// GeometryRecomputer is the slice of the snapshot service the mirror
// drives after a refresh.
type GeometryRecomputer interface {
	ComputeAndPersist(ctx context.Context, serverID string, mod models.RailwayMod, routeID int64, dimension string) (string, error)
	InvalidateRoute(serverID string, mod models.RailwayMod, routeID int64, dimension string)
}

// dimState is the mirrored railway of one dimension.
type dimState struct {
	dimension        string
	dimensionContext string

	entities  []models.NormalizedEntity
	platforms map[int64]map[string]any
	stations  map[int64]map[string]any

	segments []models.RailSegment

	// stops holds the resolved stop sequence per route id.
	stops map[int64][]models.Stop
}

// serverRailway is the mirrored railway of one server across dimensions.
type serverRailway struct {
	lastDeployed int64
	dimensions   map[string]*dimState
}

// Mirror holds the in-memory railway state of every connected server
// and keeps it fresh. On each refresh it pulls the railway snapshot,
// skips servers whose last_deployed stamp is unchanged, normalizes the
// payload and recomputes geometry for every route. It is the
// GraphSource the snapshot service reconstructs from.
type Mirror struct {
	pool *Pool
	cfg  config.SyncConfig

	mu    sync.RWMutex
	state map[string]*serverRailway

	// geom is injected after construction: the snapshot service needs
	// the mirror as its GraphSource, so the two are wired in two steps.
	geom GeometryRecomputer
}

func NewMirror(pool *Pool, cfg config.SyncConfig) *Mirror {
	return &Mirror{
		pool:  pool,
		cfg:   cfg,
		state: make(map[string]*serverRailway),
	}
}

// SetGeometryService completes wiring; must be called before Run.
func (m *Mirror) SetGeometryService(geom GeometryRecomputer) {
	m.geom = geom
}

// Run refreshes every usable server on the configured interval. The
// first sweep runs immediately so a restart does not wait a full period
// for state.
func (m *Mirror) Run(ctx context.Context, servers []config.ServerSync) error {
	interval := m.cfg.RailwayRefreshInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	m.refreshAll(ctx, servers)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.refreshAll(ctx, servers)
		}
	}
}

func (m *Mirror) refreshAll(ctx context.Context, servers []config.ServerSync) {
	for _, srv := range servers {
		if !srv.Usable() {
			continue
		}
		api, err := m.pool.GetOrCreate(ctx, srv)
		if err != nil {
			logging.Warn().Err(err).Str("server", srv.ID).Msg("[MIRROR] No connection for refresh")
			continue
		}
		if err := m.RefreshServer(ctx, srv.ID, models.RailwayMod(srv.RailwayMod), api); err != nil {
			logging.Warn().Err(err).Str("server", srv.ID).Msg("[MIRROR] Railway refresh failed")
		}
	}
}

// RefreshServer pulls one server's railway snapshot and rebuilds the
// mirrored state when it changed. Unchanged deploys are skipped: MTR
// only mutates the railway on deploy, so last_deployed is a reliable
// change stamp.
func (m *Mirror) RefreshServer(ctx context.Context, serverID string, mod models.RailwayMod, api BeaconAPI) error {
	snap, err := api.GetRailwaySnapshot(ctx, beacon.RailwaySnapshotRequest{})
	if err != nil {
		return fmt.Errorf("fetch railway snapshot: %w", err)
	}

	m.mu.RLock()
	prev, ok := m.state[serverID]
	unchanged := ok && prev.lastDeployed == snap.LastDeployed && snap.LastDeployed != 0
	m.mu.RUnlock()
	if unchanged {
		logging.Debug().
			Str("server", serverID).
			Int64("last_deployed", snap.LastDeployed).
			Msg("[MIRROR] Railway unchanged, skipping")
		return nil
	}

	now := time.Now().UTC()
	railway := &serverRailway{
		lastDeployed: snap.LastDeployed,
		dimensions:   make(map[string]*dimState, len(snap.Dimensions)),
	}
	for _, dim := range snap.Dimensions {
		railway.dimensions[dim.Dimension] = buildDimState(serverID, mod, dim, now)
	}

	var removed []struct {
		routeID   int64
		dimension string
	}
	m.mu.Lock()
	if prev != nil {
		// Routes that vanished from the deploy leave stale diagnostics
		// jobs behind; collect them for invalidation.
		for dimName, old := range prev.dimensions {
			fresh := railway.dimensions[dimName]
			for routeID := range old.stops {
				if fresh == nil || fresh.stops[routeID] == nil {
					removed = append(removed, struct {
						routeID   int64
						dimension string
					}{routeID, dimName})
				}
			}
		}
	}
	m.state[serverID] = railway
	m.mu.Unlock()

	if m.geom != nil {
		for _, r := range removed {
			m.geom.InvalidateRoute(serverID, mod, r.routeID, r.dimension)
		}
		m.recomputeAll(ctx, serverID, mod, railway)
	}

	logging.Info().
		Str("server", serverID).
		Int64("last_deployed", snap.LastDeployed).
		Int("dimensions", len(railway.dimensions)).
		Msg("[MIRROR] Railway state refreshed")
	return nil
}

func buildDimState(serverID string, mod models.RailwayMod, dim beacon.RailwayDimension, now time.Time) *dimState {
	meta := normalize.SnapshotMeta{
		ServerID:         serverID,
		RailwayMod:       mod,
		Dimension:        dim.Dimension,
		DimensionContext: dim.DimensionContext,
		UpdatedAt:        now,
	}
	if meta.DimensionContext == "" {
		meta.DimensionContext = dim.Dimension
	}

	ds := &dimState{
		dimension:        dim.Dimension,
		dimensionContext: meta.DimensionContext,
		entities:         normalize.Dimension(meta, dim),
		platforms:        indexByID(dim.Platforms),
		stations:         indexByID(dim.Stations),
		segments:         normalize.Segments(serverID, dim.Rails),
		stops:            make(map[int64][]models.Stop),
	}
	for _, routeRaw := range dim.Routes {
		routeID, ok := normalize.Int64Field(routeRaw, "id")
		if !ok {
			continue
		}
		ds.stops[routeID] = normalize.Stops(serverID, routeRaw, ds.platforms, ds.stations)
	}
	return ds
}

func indexByID(raws []map[string]any) map[int64]map[string]any {
	idx := make(map[int64]map[string]any, len(raws))
	for _, raw := range raws {
		if id, ok := normalize.Int64Field(raw, "id"); ok {
			idx[id] = raw
		}
	}
	return idx
}

func (m *Mirror) recomputeAll(ctx context.Context, serverID string, mod models.RailwayMod, railway *serverRailway) {
	dims := make([]string, 0, len(railway.dimensions))
	for name := range railway.dimensions {
		dims = append(dims, name)
	}
	sort.Strings(dims)

	for _, dimName := range dims {
		ds := railway.dimensions[dimName]
		routeIDs := make([]int64, 0, len(ds.stops))
		for id := range ds.stops {
			routeIDs = append(routeIDs, id)
		}
		sort.Slice(routeIDs, func(i, j int) bool { return routeIDs[i] < routeIDs[j] })

		for _, routeID := range routeIDs {
			if _, err := m.geom.ComputeAndPersist(ctx, serverID, mod, routeID, dimName); err != nil {
				logging.Warn().Err(err).
					Str("server", serverID).
					Int64("route", routeID).
					Str("dimension", dimName).
					Msg("[MIRROR] Geometry recomputation failed")
			}
		}
	}
}

// RouteGraph returns a route's stop sequence and the rail graph of its
// dimension. It is the snapshot service's GraphSource.
func (m *Mirror) RouteGraph(_ context.Context, serverID string, _ models.RailwayMod, routeID int64, dimension string) ([]models.Stop, []models.RailSegment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	railway, ok := m.state[serverID]
	if !ok {
		return nil, nil, fmt.Errorf("no railway state for server %q", serverID)
	}
	ds, ok := railway.dimensions[dimension]
	if !ok {
		return nil, nil, fmt.Errorf("no railway state for dimension %q on server %q", dimension, serverID)
	}
	stops, ok := ds.stops[routeID]
	if !ok {
		return nil, nil, fmt.Errorf("route %d not present in dimension %q on server %q", routeID, dimension, serverID)
	}
	return stops, ds.segments, nil
}

// Entities lists a server's normalized entities, optionally restricted
// to one kind. The result is sorted by dimension then id so repeated
// listings are stable.
func (m *Mirror) Entities(serverID string, kind models.EntityKind) []models.NormalizedEntity {
	m.mu.RLock()
	defer m.mu.RUnlock()

	railway, ok := m.state[serverID]
	if !ok {
		return nil
	}

	var out []models.NormalizedEntity
	for _, ds := range railway.dimensions {
		for _, e := range ds.entities {
			if kind != "" && e.Kind != kind {
				continue
			}
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Dimension != out[j].Dimension {
			return out[i].Dimension < out[j].Dimension
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// LastDeployed returns the deploy stamp of a server's mirrored railway,
// or 0 when nothing is mirrored yet.
func (m *Mirror) LastDeployed(serverID string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if railway, ok := m.state[serverID]; ok {
		return railway.lastDeployed
	}
	return 0
}
