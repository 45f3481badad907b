// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"github.com/railatlas/railatlas/internal/config"
	"github.com/railatlas/railatlas/internal/database"
	"github.com/railatlas/railatlas/internal/models"
	"github.com/railatlas/railatlas/internal/snapshot"
	railsync "github.com/railatlas/railatlas/internal/sync"
)

type fakeStore struct {
	pingErr error
	records []models.MtrLogRecord
	snaps   map[int64]*models.RouteGeometrySnapshot
	jobs    []models.LogSyncJob
}

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }

func (s *fakeStore) QueryLogRecords(_ context.Context, f database.LogRecordFilter) ([]models.MtrLogRecord, error) {
	out := make([]models.MtrLogRecord, 0, len(s.records))
	for _, rec := range s.records {
		if f.ServerID != "" && rec.ServerID != f.ServerID {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *fakeStore) CountLogRecords(context.Context, string) (int64, error) {
	return int64(len(s.records)), nil
}

func (s *fakeStore) GetRouteGeometrySnapshot(_ context.Context, _ string, _ models.RailwayMod, routeID int64, _ string) (*models.RouteGeometrySnapshot, error) {
	if snap, ok := s.snaps[routeID]; ok {
		return snap, nil
	}
	return nil, database.ErrSnapshotNotFound
}

func (s *fakeStore) ListRouteGeometrySnapshots(context.Context, string, models.RailwayMod) ([]models.RouteGeometrySnapshot, error) {
	out := make([]models.RouteGeometrySnapshot, 0, len(s.snaps))
	for _, snap := range s.snaps {
		out = append(out, *snap)
	}
	return out, nil
}

func (s *fakeStore) ListLogSyncJobs(context.Context, string, int) ([]models.LogSyncJob, error) {
	return s.jobs, nil
}

type fakePool struct {
	statuses    []models.ConnectionStatus
	known       map[string]bool
	connectErr error
	lastAction string
	lastServer string
}

func (p *fakePool) ListStatuses() []models.ConnectionStatus { return p.statuses }

func (p *fakePool) Connect(_ context.Context, serverID string) error {
	p.lastAction, p.lastServer = "connect", serverID
	return p.connectErr
}

func (p *fakePool) Reconnect(_ context.Context, serverID string) error {
	p.lastAction, p.lastServer = "reconnect", serverID
	return p.connectErr
}

func (p *fakePool) Disconnect(serverID string) error {
	p.lastAction, p.lastServer = "disconnect", serverID
	return nil
}

func (p *fakePool) Beacon(serverID string) (railsync.BeaconAPI, bool) {
	if !p.known[serverID] {
		return nil, false
	}
	return nil, true
}

type fakeMirror struct {
	entities map[models.EntityKind][]models.NormalizedEntity
}

func (m *fakeMirror) Entities(_ string, kind models.EntityKind) []models.NormalizedEntity {
	return m.entities[kind]
}

func (m *fakeMirror) LastDeployed(string) int64 { return 42 }

func (m *fakeMirror) RefreshServer(context.Context, string, models.RailwayMod, railsync.BeaconAPI) error {
	return nil
}

type fakeGeometry struct {
	jobID string
	page  *snapshot.DiagnosticsPage
}

func (g *fakeGeometry) ComputeAndPersist(context.Context, string, models.RailwayMod, int64, string) (string, error) {
	return g.jobID, nil
}

func (g *fakeGeometry) GetDiagnosticsPage(jobID string, routeID int64, _, _ int, _ string, _ bool) (*snapshot.DiagnosticsPage, error) {
	if g.page == nil || g.page.JobID != jobID || g.page.RouteID != routeID {
		return nil, snapshot.ErrJobNotFound
	}
	return g.page, nil
}

type fakeLogSync struct {
	running bool
}

func (s *fakeLogSync) Trigger(_ context.Context, _ railsync.BeaconAPI, serverID string, _ models.RailwayMod, mode models.SyncMode) (*models.LogSyncJob, error) {
	if s.running {
		return nil, railsync.ErrSyncRunning
	}
	return &models.LogSyncJob{ID: "job-1", ServerID: serverID, Mode: mode, Status: models.SyncPending}, nil
}

type testEnv struct {
	store   *fakeStore
	pool    *fakePool
	mirror  *fakeMirror
	geom    *fakeGeometry
	logsync *fakeLogSync
	router  http.Handler
}

func newTestEnv() *testEnv {
	env := &testEnv{
		store:   &fakeStore{snaps: map[int64]*models.RouteGeometrySnapshot{}},
		pool:    &fakePool{known: map[string]bool{"smp": true}},
		mirror:  &fakeMirror{entities: map[models.EntityKind][]models.NormalizedEntity{}},
		geom:    &fakeGeometry{jobID: "geom-job"},
		logsync: &fakeLogSync{},
	}
	handler := NewHandler(env.store, env.pool, env.mirror, env.geom, env.logsync)
	env.router = NewRouter(handler, config.HTTPConfig{
		CORSOrigins: []string{"*"},
	}).Setup()
	return env
}

func doRequest(t *testing.T, h http.Handler, method, path string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var envelope APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, envelope
}

func TestHealth(t *testing.T) {
	env := newTestEnv()

	rec, envelope := doRequest(t, env.router, http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !envelope.Success {
		t.Fatal("expected success envelope")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}

	env.store.pingErr = errors.New("closed")
	rec, envelope = doRequest(t, env.router, http.MethodGet, "/healthz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeServiceUnavailable {
		t.Fatalf("error = %+v, want SERVICE_UNAVAILABLE", envelope.Error)
	}
}

func TestConnectionActions(t *testing.T) {
	env := newTestEnv()

	tests := []struct {
		path       string
		wantAction string
	}{
		{"/api/v1/connections/smp/connect", "connect"},
		{"/api/v1/connections/smp/reconnect", "reconnect"},
		{"/api/v1/connections/smp/disconnect", "disconnect"},
	}
	for _, tc := range tests {
		rec, envelope := doRequest(t, env.router, http.MethodPost, tc.path)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, want 200", tc.path, rec.Code)
		}
		if !envelope.Success {
			t.Fatalf("%s: expected success", tc.path)
		}
		if env.pool.lastAction != tc.wantAction || env.pool.lastServer != "smp" {
			t.Fatalf("%s: recorded action %s/%s", tc.path, env.pool.lastAction, env.pool.lastServer)
		}
	}

	rec, envelope := doRequest(t, env.router, http.MethodPost, "/api/v1/connections/ghost/connect")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown server: status = %d, want 404", rec.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeNotFound {
		t.Fatalf("unknown server: error = %+v", envelope.Error)
	}
}

func TestEntitiesValidatesKind(t *testing.T) {
	env := newTestEnv()
	env.mirror.entities[models.KindRoute] = []models.NormalizedEntity{
		{ServerID: "smp", Kind: models.KindRoute, ID: 5},
	}

	rec, envelope := doRequest(t, env.router, http.MethodGet, "/api/v1/servers/smp/entities?kind=route")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if envelope.Meta == nil || envelope.Meta.Pagination == nil || envelope.Meta.Pagination.Count != 1 {
		t.Fatalf("meta = %+v, want pagination count 1", envelope.Meta)
	}

	rec, envelope = doRequest(t, env.router, http.MethodGet, "/api/v1/servers/smp/entities?kind=minecart")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad kind: status = %d, want 400", rec.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeBadRequest {
		t.Fatalf("bad kind: error = %+v", envelope.Error)
	}
}

func TestGeometryGetNotFound(t *testing.T) {
	env := newTestEnv()

	rec, _ := doRequest(t, env.router, http.MethodGet, "/api/v1/servers/smp/geometry/7?dimension=minecraft:overworld")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	env.store.snaps[7] = &models.RouteGeometrySnapshot{ServerID: "smp", RouteID: 7}
	rec, envelope := doRequest(t, env.router, http.MethodGet, "/api/v1/servers/smp/geometry/7?dimension=minecraft:overworld")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !envelope.Success {
		t.Fatal("expected success envelope")
	}

	rec, _ = doRequest(t, env.router, http.MethodGet, "/api/v1/servers/smp/geometry/7")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing dimension: status = %d, want 400", rec.Code)
	}
}

func TestDiagnosticsPage(t *testing.T) {
	env := newTestEnv()
	env.geom.page = &snapshot.DiagnosticsPage{JobID: "geom-job", RouteID: 7, Total: 2}

	rec, envelope := doRequest(t, env.router, http.MethodGet, "/api/v1/diagnostics/geom-job?route_id=7")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !envelope.Success {
		t.Fatal("expected success envelope")
	}

	rec, envelope = doRequest(t, env.router, http.MethodGet, "/api/v1/diagnostics/stale-job?route_id=7")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("stale job: status = %d, want 404", rec.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeNotFound {
		t.Fatalf("stale job: error = %+v", envelope.Error)
	}

	rec, _ = doRequest(t, env.router, http.MethodGet, "/api/v1/diagnostics/geom-job")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing route_id: status = %d, want 400", rec.Code)
	}
}

func TestLogSyncStart(t *testing.T) {
	env := newTestEnv()

	rec, envelope := doRequest(t, env.router, http.MethodPost, "/api/v1/servers/smp/logs/sync?mode=full")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	data, _ := envelope.Data.(map[string]interface{})
	if data["mode"] != "full" {
		t.Fatalf("job data = %+v, want mode full", envelope.Data)
	}

	env.logsync.running = true
	rec, envelope = doRequest(t, env.router, http.MethodPost, "/api/v1/servers/smp/logs/sync")
	if rec.Code != http.StatusConflict {
		t.Fatalf("running: status = %d, want 409", rec.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeConflict {
		t.Fatalf("running: error = %+v", envelope.Error)
	}

	rec, _ = doRequest(t, env.router, http.MethodPost, "/api/v1/servers/smp/logs/sync?mode=hourly")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad mode: status = %d, want 400", rec.Code)
	}
}
