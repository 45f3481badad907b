// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

// Package snapshot persists reconstructed route geometry and serves the
// per-computation diagnostics rows to operators.
//
// Snapshots are durable (one current row per server+mod+route+dimension,
// replaced on every recomputation). Diagnostics jobs are held in memory
// only: they exist for operator review of the most recent computation,
// and recomputing a route replaces its job instead of accumulating.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/railatlas/railatlas/internal/geometry"
	"github.com/railatlas/railatlas/internal/logging"
	"github.com/railatlas/railatlas/internal/models"
)

// ErrJobNotFound is returned for unknown or stale diagnostics job ids,
// including ids whose route no longer matches the caller's.
var ErrJobNotFound = errors.New("snapshot: diagnostics job not found")

// Pagination limits for diagnostics pages.
const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Store is the persistence surface the service needs.
type Store interface {
	ReplaceRouteGeometrySnapshot(ctx context.Context, snap models.RouteGeometrySnapshot) error
}

// GraphSource supplies a route's stops and the dimension-restricted rail
// graph. The railway mirror implements this from its in-memory state.
type GraphSource interface {
	RouteGraph(ctx context.Context, serverID string, mod models.RailwayMod, routeID int64, dimension string) ([]models.Stop, []models.RailSegment, error)
}

type routeKey struct {
	serverID  string
	mod       models.RailwayMod
	routeID   int64
	dimension string
}

// Service computes, persists and serves route geometry.
type Service struct {
	store  Store
	source GraphSource

	mu         sync.Mutex
	jobs       map[string]*models.RailDiagnosticsJob
	jobByRoute map[routeKey]string
}

func New(store Store, source GraphSource) *Service {
	return &Service{
		store:      store,
		source:     source,
		jobs:       make(map[string]*models.RailDiagnosticsJob),
		jobByRoute: make(map[routeKey]string),
	}
}

// ComputeAndPersist reconstructs one route's geometry, replaces its
// stored snapshot and registers a fresh diagnostics job. Any prior job
// for the same route is invalidated, so operators holding an old job id
// get NotFound rather than rows describing geometry that no longer
// exists.
func (s *Service) ComputeAndPersist(ctx context.Context, serverID string, mod models.RailwayMod, routeID int64, dimension string) (string, error) {
	stops, segments, err := s.source.RouteGraph(ctx, serverID, mod, routeID, dimension)
	if err != nil {
		return "", fmt.Errorf("load route graph: %w", err)
	}

	res := geometry.Reconstruct(geometry.Input{
		ServerID:   serverID,
		RailwayMod: mod,
		RouteID:    routeID,
		Dimension:  dimension,
		Stops:      stops,
		Segments:   segments,
	})

	snap := models.RouteGeometrySnapshot{
		ServerID:          serverID,
		RailwayMod:        mod,
		RouteID:           routeID,
		Dimension:         dimension,
		Source:            res.Source,
		Paths:             res.Paths,
		Stops:             res.Stops,
		CenterOnFirstStop: res.CenterOnFirstStop,
		GeneratedAt:       time.Now().UTC(),
	}
	if err := s.store.ReplaceRouteGeometrySnapshot(ctx, snap); err != nil {
		return "", fmt.Errorf("persist geometry snapshot: %w", err)
	}

	job := &models.RailDiagnosticsJob{
		JobID:      uuid.New().String(),
		ServerID:   serverID,
		RailwayMod: mod,
		RouteID:    routeID,
		Dimension:  dimension,
		CreatedAt:  time.Now().UTC(),
		Rows:       res.Diagnostics,
	}

	key := routeKey{serverID: serverID, mod: mod, routeID: routeID, dimension: dimension}
	s.mu.Lock()
	if prev, ok := s.jobByRoute[key]; ok {
		delete(s.jobs, prev)
	}
	s.jobs[job.JobID] = job
	s.jobByRoute[key] = job.JobID
	s.mu.Unlock()

	logging.Info().
		Str("server", serverID).
		Int64("route", routeID).
		Str("dimension", dimension).
		Str("source", string(res.Source)).
		Int("paths", len(res.Paths)).
		Int("diagnostics", len(res.Diagnostics)).
		Str("job_id", job.JobID).
		Msg("[SNAPSHOT] Route geometry recomputed")
	return job.JobID, nil
}

// DiagnosticsPage is one page of a job's rows plus paging totals. Total
// counts rows after filtering; TotalErrors counts not-OK rows across the
// whole job regardless of filters.
type DiagnosticsPage struct {
	JobID       string                  `json:"job_id"`
	RouteID     int64                   `json:"route_id"`
	Page        int                     `json:"page"`
	PageSize    int                     `json:"page_size"`
	Total       int                     `json:"total"`
	TotalErrors int                     `json:"total_errors"`
	Rows        []models.RailDiagnostic `json:"rows"`
}

// GetDiagnosticsPage paginates a job's rows. routeID must match the
// job's route: a mismatch means the caller holds a stale job id from
// before a recomputation and gets ErrJobNotFound.
func (s *Service) GetDiagnosticsPage(jobID string, routeID int64, page, pageSize int, search string, onlyErrors bool) (*DiagnosticsPage, error) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	s.mu.Unlock()
	if !ok || job.RouteID != routeID {
		return nil, ErrJobNotFound
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	totalErrors := 0
	var filtered []models.RailDiagnostic
	needle := strings.ToLower(strings.TrimSpace(search))
	for _, row := range job.Rows {
		if !row.OK {
			totalErrors++
		}
		if onlyErrors && row.OK {
			continue
		}
		if needle != "" && !rowMatches(row, needle) {
			continue
		}
		filtered = append(filtered, row)
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(filtered) {
		start = len(filtered)
	}
	if end > len(filtered) {
		end = len(filtered)
	}

	return &DiagnosticsPage{
		JobID:       job.JobID,
		RouteID:     job.RouteID,
		Page:        page,
		PageSize:    pageSize,
		Total:       len(filtered),
		TotalErrors: totalErrors,
		Rows:        filtered[start:end],
	}, nil
}

func rowMatches(row models.RailDiagnostic, needle string) bool {
	if strings.Contains(strings.ToLower(row.Reason), needle) {
		return true
	}
	if row.Segment.Conn != nil && strings.Contains(strings.ToLower(row.Segment.Conn.RailType), needle) {
		return true
	}
	return strings.Contains(row.Segment.Start.String(), needle) ||
		strings.Contains(row.Segment.End.String(), needle)
}

// InvalidateRoute drops the diagnostics job of a route, if any. The
// mirror calls this when a route disappears from the railway snapshot.
func (s *Service) InvalidateRoute(serverID string, mod models.RailwayMod, routeID int64, dimension string) {
	key := routeKey{serverID: serverID, mod: mod, routeID: routeID, dimension: dimension}
	s.mu.Lock()
	if id, ok := s.jobByRoute[key]; ok {
		delete(s.jobs, id)
		delete(s.jobByRoute, key)
	}
	s.mu.Unlock()
}
