// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/railatlas/railatlas/internal/database"
	"github.com/railatlas/railatlas/internal/logging"
	"github.com/railatlas/railatlas/internal/models"
	"github.com/railatlas/railatlas/internal/snapshot"
	railsync "github.com/railatlas/railatlas/internal/sync"
)

// Store is the slice of the database the handlers read.
type Store interface {
	Ping(ctx context.Context) error
	QueryLogRecords(ctx context.Context, f database.LogRecordFilter) ([]models.MtrLogRecord, error)
	CountLogRecords(ctx context.Context, serverID string) (int64, error)
	GetRouteGeometrySnapshot(ctx context.Context, serverID string, mod models.RailwayMod, routeID int64, dimension string) (*models.RouteGeometrySnapshot, error)
	ListRouteGeometrySnapshots(ctx context.Context, serverID string, mod models.RailwayMod) ([]models.RouteGeometrySnapshot, error)
	ListLogSyncJobs(ctx context.Context, serverID string, limit int) ([]models.LogSyncJob, error)
}

// ConnectionPool is the operator surface of the Beacon pool.
type ConnectionPool interface {
	ListStatuses() []models.ConnectionStatus
	Connect(ctx context.Context, serverID string) error
	Reconnect(ctx context.Context, serverID string) error
	Disconnect(serverID string) error
	Beacon(serverID string) (railsync.BeaconAPI, bool)
}

// RailwayMirror serves the in-memory railway state.
type RailwayMirror interface {
	Entities(serverID string, kind models.EntityKind) []models.NormalizedEntity
	LastDeployed(serverID string) int64
	RefreshServer(ctx context.Context, serverID string, mod models.RailwayMod, api railsync.BeaconAPI) error
}

// GeometryService regenerates route geometry and pages diagnostics.
type GeometryService interface {
	ComputeAndPersist(ctx context.Context, serverID string, mod models.RailwayMod, routeID int64, dimension string) (string, error)
	GetDiagnosticsPage(jobID string, routeID int64, page, pageSize int, search string, onlyErrors bool) (*snapshot.DiagnosticsPage, error)
}

// LogSyncService starts background log syncs.
type LogSyncService interface {
	Trigger(ctx context.Context, api railsync.BeaconAPI, serverID string, mod models.RailwayMod, mode models.SyncMode) (*models.LogSyncJob, error)
}

// Handler holds the services the HTTP endpoints are built from.
type Handler struct {
	store   Store
	pool    ConnectionPool
	mirror  RailwayMirror
	geom    GeometryService
	logsync LogSyncService
}

// NewHandler wires the endpoint set.
func NewHandler(store Store, pool ConnectionPool, mirror RailwayMirror, geom GeometryService, logsync LogSyncService) *Handler {
	return &Handler{
		store:   store,
		pool:    pool,
		mirror:  mirror,
		geom:    geom,
		logsync: logsync,
	}
}

// Health reports liveness and database reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		rw.ServiceUnavailable("database unreachable")
		return
	}
	rw.Success(map[string]string{"status": "ok"})
}

// Connections lists every pooled server's connection status.
func (h *Handler) Connections(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rw.Success(h.pool.ListStatuses())
}

// ConnectionConnect dials a server now, resetting its backoff.
func (h *Handler) ConnectionConnect(w http.ResponseWriter, r *http.Request) {
	h.connectionAction(w, r, h.pool.Connect)
}

// ConnectionReconnect tears down and redials a server.
func (h *Handler) ConnectionReconnect(w http.ResponseWriter, r *http.Request) {
	h.connectionAction(w, r, h.pool.Reconnect)
}

// ConnectionDisconnect hangs up a server without removing it from the
// pool.
func (h *Handler) ConnectionDisconnect(w http.ResponseWriter, r *http.Request) {
	h.connectionAction(w, r, func(_ context.Context, serverID string) error {
		return h.pool.Disconnect(serverID)
	})
}

func (h *Handler) connectionAction(w http.ResponseWriter, r *http.Request, action func(context.Context, string) error) {
	rw := NewResponseWriter(w, r)
	serverID := chi.URLParam(r, "serverID")

	if _, ok := h.pool.Beacon(serverID); !ok {
		rw.NotFound("unknown server")
		return
	}
	if err := action(r.Context(), serverID); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).
			Str("server", serverID).
			Msg("[API] Connection action failed")
		rw.UpstreamFailed(err.Error())
		return
	}
	rw.Success(map[string]string{"server_id": serverID, "status": "ok"})
}

// Entities lists normalized railway entities of one kind for a server.
func (h *Handler) Entities(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	serverID := chi.URLParam(r, "serverID")

	kind := models.EntityKind(r.URL.Query().Get("kind"))
	switch kind {
	case models.KindRoute, models.KindStation, models.KindPlatform, models.KindDepot:
	default:
		rw.BadRequest("kind must be one of route, station, platform, depot")
		return
	}

	entities := h.mirror.Entities(serverID, kind)
	rw.SuccessWithPagination(entities, &PaginationMeta{Count: len(entities)})
}

// MirrorRefresh pulls a fresh railway snapshot for a server now instead
// of waiting for the next sweep.
func (h *Handler) MirrorRefresh(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	serverID := chi.URLParam(r, "serverID")

	api, ok := h.pool.Beacon(serverID)
	if !ok {
		rw.NotFound("unknown server")
		return
	}
	if err := h.mirror.RefreshServer(r.Context(), serverID, railwayMod(r), api); err != nil {
		rw.UpstreamFailed(err.Error())
		return
	}
	rw.Success(map[string]any{
		"server_id":     serverID,
		"last_deployed": h.mirror.LastDeployed(serverID),
	})
}

// GeometryList lists the current geometry snapshot rows of a server.
func (h *Handler) GeometryList(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	serverID := chi.URLParam(r, "serverID")

	snaps, err := h.store.ListRouteGeometrySnapshots(r.Context(), serverID, railwayMod(r))
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("server", serverID).Msg("[API] Geometry list failed")
		rw.InternalError("failed to list geometry snapshots")
		return
	}
	rw.SuccessWithPagination(snaps, &PaginationMeta{Count: len(snaps)})
}

// GeometryGet returns the stored geometry snapshot of one route.
func (h *Handler) GeometryGet(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	serverID := chi.URLParam(r, "serverID")

	routeID, ok := routeIDParam(rw, r)
	if !ok {
		return
	}
	dimension := r.URL.Query().Get("dimension")
	if dimension == "" {
		rw.BadRequest("dimension query parameter is required")
		return
	}

	snap, err := h.store.GetRouteGeometrySnapshot(r.Context(), serverID, railwayMod(r), routeID, dimension)
	if err != nil {
		if errors.Is(err, database.ErrSnapshotNotFound) {
			rw.NotFound("no geometry snapshot for this route")
			return
		}
		logging.Ctx(r.Context()).Error().Err(err).Str("server", serverID).Msg("[API] Geometry get failed")
		rw.InternalError("failed to load geometry snapshot")
		return
	}
	rw.Success(snap)
}

// GeometryRegenerate recomputes a route's geometry from the mirrored
// graph and persists it, returning the diagnostics job id.
func (h *Handler) GeometryRegenerate(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	serverID := chi.URLParam(r, "serverID")

	routeID, ok := routeIDParam(rw, r)
	if !ok {
		return
	}
	dimension := r.URL.Query().Get("dimension")
	if dimension == "" {
		rw.BadRequest("dimension query parameter is required")
		return
	}

	jobID, err := h.geom.ComputeAndPersist(r.Context(), serverID, railwayMod(r), routeID, dimension)
	if err != nil {
		rw.ErrorWithDetails(http.StatusUnprocessableEntity, ErrCodeBadRequest,
			"geometry computation failed", err.Error())
		return
	}
	rw.Success(map[string]any{
		"job_id":   jobID,
		"route_id": routeID,
	})
}

// Diagnostics returns one page of a geometry job's per-segment rows.
// Query parameters: route_id (required), page, page_size, search,
// errors_only.
func (h *Handler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	jobID := chi.URLParam(r, "jobID")
	q := r.URL.Query()

	routeID, err := strconv.ParseInt(q.Get("route_id"), 10, 64)
	if err != nil {
		rw.BadRequest("route_id query parameter must be an integer")
		return
	}
	page := intParam(q.Get("page"), 1)
	pageSize := intParam(q.Get("page_size"), 0)
	onlyErrors := q.Get("errors_only") == "true"

	result, err := h.geom.GetDiagnosticsPage(jobID, routeID, page, pageSize, q.Get("search"), onlyErrors)
	if err != nil {
		if errors.Is(err, snapshot.ErrJobNotFound) {
			rw.NotFound("diagnostics job not found")
			return
		}
		rw.InternalError("failed to load diagnostics")
		return
	}
	rw.Success(result)
}

// Logs lists mirrored audit log rows, newest first. Filters: entry_id,
// dimension_context, player, from/to (epoch millis), limit, offset.
func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	serverID := chi.URLParam(r, "serverID")
	q := r.URL.Query()

	filter := database.LogRecordFilter{
		ServerID:         serverID,
		RailwayMod:       railwayMod(r),
		DimensionContext: q.Get("dimension_context"),
		PlayerUUID:       q.Get("player"),
		Limit:            intParam(q.Get("limit"), 100),
		Offset:           intParam(q.Get("offset"), 0),
	}
	if raw := q.Get("entry_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			rw.BadRequest("entry_id must be an integer")
			return
		}
		filter.EntryID = id
	}
	from, ok := timeParam(rw, q.Get("from"))
	if !ok {
		return
	}
	filter.From = from
	to, ok := timeParam(rw, q.Get("to"))
	if !ok {
		return
	}
	filter.To = to

	records, err := h.store.QueryLogRecords(r.Context(), filter)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("server", serverID).Msg("[API] Log query failed")
		rw.InternalError("failed to query log records")
		return
	}
	total, err := h.store.CountLogRecords(r.Context(), serverID)
	if err != nil {
		rw.InternalError("failed to count log records")
		return
	}

	rw.SuccessWithPagination(records, &PaginationMeta{
		Total:   total,
		Count:   len(records),
		Offset:  filter.Offset,
		Limit:   filter.Limit,
		HasMore: int64(filter.Offset+len(records)) < total,
	})
}

// LogSyncStart kicks off a background log sync for a server. Mode is
// "full" or "incremental" (default). Answers 202 with the pending job;
// 409 when a sync for the server is already running.
func (h *Handler) LogSyncStart(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	serverID := chi.URLParam(r, "serverID")

	mode := models.SyncIncremental
	switch r.URL.Query().Get("mode") {
	case "", string(models.SyncIncremental):
	case string(models.SyncFull):
		mode = models.SyncFull
	default:
		rw.BadRequest("mode must be full or incremental")
		return
	}

	api, ok := h.pool.Beacon(serverID)
	if !ok {
		rw.NotFound("unknown server")
		return
	}

	job, err := h.logsync.Trigger(r.Context(), api, serverID, railwayMod(r), mode)
	if err != nil {
		if errors.Is(err, railsync.ErrSyncRunning) {
			rw.Conflict("a sync job is already running for this server")
			return
		}
		rw.InternalError("failed to start log sync")
		return
	}
	rw.Accepted(job)
}

// SyncJobs lists a server's log sync job history, newest first.
func (h *Handler) SyncJobs(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	serverID := chi.URLParam(r, "serverID")

	jobs, err := h.store.ListLogSyncJobs(r.Context(), serverID, intParam(r.URL.Query().Get("limit"), 0))
	if err != nil {
		rw.InternalError("failed to list sync jobs")
		return
	}
	rw.SuccessWithPagination(jobs, &PaginationMeta{Count: len(jobs)})
}

// railwayMod reads the mod query parameter. Only MTR exists today, so
// anything else falls back to it.
func railwayMod(r *http.Request) models.RailwayMod {
	if mod := r.URL.Query().Get("mod"); mod != "" {
		return models.RailwayMod(mod)
	}
	return models.ModMTR
}

func routeIDParam(rw *ResponseWriter, r *http.Request) (int64, bool) {
	routeID, err := strconv.ParseInt(chi.URLParam(r, "routeID"), 10, 64)
	if err != nil {
		rw.BadRequest("route id must be an integer")
		return 0, false
	}
	return routeID, true
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// timeParam parses an epoch-milliseconds query value. Empty input is a
// zero time, meaning unbounded.
func timeParam(rw *ResponseWriter, raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, true
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		rw.BadRequest("from/to must be epoch milliseconds")
		return time.Time{}, false
	}
	return time.UnixMilli(millis).UTC(), true
}
