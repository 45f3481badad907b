// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/railatlas/railatlas/internal/config"
	"github.com/railatlas/railatlas/internal/logging"
	"github.com/railatlas/railatlas/internal/metrics"
	"github.com/railatlas/railatlas/internal/models"
	"github.com/railatlas/railatlas/internal/models/beacon"
	"github.com/railatlas/railatlas/internal/normalize"
)

// LogStore is the persistence surface of the log sync service.
type LogStore interface {
	UpsertLogRecords(ctx context.Context, records []models.MtrLogRecord) error
	InsertLogSyncJob(ctx context.Context, job models.LogSyncJob) error
	UpdateLogSyncJob(ctx context.Context, job models.LogSyncJob) error
	HasRunningLogSyncJob(ctx context.Context, serverID string) (bool, error)
}

// LogSyncer mirrors the remote MTR audit log into the local cache.
//
// Rows converge via upsert keyed by (server, beaconLogId): the remote
// stream may amend rows inside the trailing window, so incremental sync
// re-requests the whole window and overwrites rather than tracking a
// strict cursor. A server has at most one RUNNING job at a time.
type LogSyncer struct {
	store LogStore
	cfg   config.SyncConfig

	mu      sync.Mutex
	running map[string]bool
}

func NewLogSyncer(store LogStore, cfg config.SyncConfig) *LogSyncer {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 500
	}
	if cfg.LogWindow <= 0 {
		cfg.LogWindow = 48 * time.Hour
	}
	return &LogSyncer{
		store:   store,
		cfg:     cfg,
		running: make(map[string]bool),
	}
}

func (s *LogSyncer) acquire(serverID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[serverID] {
		return false
	}
	s.running[serverID] = true
	return true
}

func (s *LogSyncer) release(serverID string) {
	s.mu.Lock()
	delete(s.running, serverID)
	s.mu.Unlock()
}

func newLogSyncJob(serverID string, mode models.SyncMode) models.LogSyncJob {
	return models.LogSyncJob{
		ID:        uuid.New().String(),
		ServerID:  serverID,
		Mode:      mode,
		Status:    models.SyncPending,
		CreatedAt: time.Now().UTC(),
	}
}

// begin claims the server's single-flight slot and persists the pending
// job row. The job table is consulted as well: a PENDING or RUNNING row
// that survived a restart keeps blocking new syncs until it is resolved.
// Callers must release the slot when the sync finishes.
func (s *LogSyncer) begin(ctx context.Context, serverID string, mode models.SyncMode) (models.LogSyncJob, error) {
	if !s.acquire(serverID) {
		return models.LogSyncJob{}, ErrSyncRunning
	}
	busy, err := s.store.HasRunningLogSyncJob(ctx, serverID)
	if err != nil {
		s.release(serverID)
		return models.LogSyncJob{}, fmt.Errorf("check for running sync job: %w", err)
	}
	if busy {
		s.release(serverID)
		return models.LogSyncJob{}, ErrSyncRunning
	}

	job := newLogSyncJob(serverID, mode)
	if err := s.store.InsertLogSyncJob(ctx, job); err != nil {
		s.release(serverID)
		return models.LogSyncJob{}, fmt.Errorf("create sync job: %w", err)
	}
	return job, nil
}

// Sync runs one log sync for a server and blocks until it finishes.
// Returns ErrSyncRunning when a job for the same server is already in
// flight; other servers are unaffected.
func (s *LogSyncer) Sync(ctx context.Context, api BeaconAPI, serverID string, mod models.RailwayMod, mode models.SyncMode) (*models.LogSyncJob, error) {
	job, err := s.begin(ctx, serverID, mode)
	if err != nil {
		return nil, err
	}
	defer s.release(serverID)
	return s.run(ctx, api, serverID, mod, mode, job)
}

// triggerTimeout bounds a background sync started over the API.
const triggerTimeout = 30 * time.Minute

// Trigger starts a log sync in the background and returns the pending
// job immediately. Progress is observable through the job row. Returns
// ErrSyncRunning when a job for the same server is already in flight.
func (s *LogSyncer) Trigger(ctx context.Context, api BeaconAPI, serverID string, mod models.RailwayMod, mode models.SyncMode) (*models.LogSyncJob, error) {
	job, err := s.begin(ctx, serverID, mode)
	if err != nil {
		return nil, err
	}

	go func() {
		defer s.release(serverID)
		runCtx, cancel := context.WithTimeout(context.Background(), triggerTimeout)
		defer cancel()
		if _, err := s.run(runCtx, api, serverID, mod, mode, job); err != nil {
			logging.Error().Err(err).
				Str("server", serverID).
				Str("job_id", job.ID).
				Msg("[LOGSYNC] Triggered sync failed")
		}
	}()
	return &job, nil
}

// run drives an inserted job through RUNNING to its terminal status.
// The single-flight slot must already be held.
func (s *LogSyncer) run(ctx context.Context, api BeaconAPI, serverID string, mod models.RailwayMod, mode models.SyncMode, job models.LogSyncJob) (*models.LogSyncJob, error) {
	started := time.Now().UTC()
	job.Status = models.SyncRunning
	job.StartedAt = &started
	if err := s.store.UpdateLogSyncJob(ctx, job); err != nil {
		return nil, fmt.Errorf("mark sync job running: %w", err)
	}

	logging.Info().
		Str("server", serverID).
		Str("mode", string(mode)).
		Str("job_id", job.ID).
		Msg("[LOGSYNC] Starting log sync")

	count, err := s.drain(ctx, api, serverID, mod, mode)

	finished := time.Now().UTC()
	job.FinishedAt = &finished
	if err != nil {
		job.Status = models.SyncFailed
		job.Message = err.Error()
		logging.Error().Err(err).
			Str("server", serverID).
			Str("job_id", job.ID).
			Int("records", count).
			Msg("[LOGSYNC] Log sync failed")
	} else {
		job.Status = models.SyncSuccess
		job.Message = fmt.Sprintf("upserted %d records", count)
		logging.Info().
			Str("server", serverID).
			Str("job_id", job.ID).
			Int("records", count).
			Msg("[LOGSYNC] Log sync complete")
	}
	metrics.LogSyncJobs.WithLabelValues(serverID, string(mode), string(job.Status)).Inc()

	if uerr := s.store.UpdateLogSyncJob(ctx, job); uerr != nil {
		logging.Error().Err(uerr).Str("job_id", job.ID).Msg("[LOGSYNC] Failed to persist job status")
	}
	if err != nil {
		return &job, err
	}
	return &job, nil
}

// drain pages through the remote log and upserts every record. Full mode
// asks for the entire history; incremental mode bounds the request to
// the trailing LogWindow.
func (s *LogSyncer) drain(ctx context.Context, api BeaconAPI, serverID string, mod models.RailwayMod, mode models.SyncMode) (int, error) {
	req := beacon.PlayerLogsRequest{Limit: s.cfg.PageSize}
	if mode == models.SyncFull {
		req.All = true
	} else {
		now := time.Now().UTC()
		req.From = now.Add(-s.cfg.LogWindow).UnixMilli()
		req.To = now.UnixMilli()
	}

	total := 0
	for {
		page, err := api.GetPlayerLogs(ctx, req)
		if err != nil {
			return total, fmt.Errorf("fetch logs at offset %d: %w", req.Offset, err)
		}

		records := make([]models.MtrLogRecord, 0, len(page.Logs))
		for _, raw := range page.Logs {
			records = append(records, logRecord(serverID, mod, raw))
		}
		if len(records) > 0 {
			if err := s.store.UpsertLogRecords(ctx, records); err != nil {
				return total, fmt.Errorf("upsert %d records at offset %d: %w", len(records), req.Offset, err)
			}
			total += len(records)
			metrics.LogRecordsUpserted.WithLabelValues(serverID).Add(float64(len(records)))
		}

		if !page.HasMore || len(page.Logs) == 0 {
			return total, nil
		}
		req.Offset += len(page.Logs)
	}
}

// logRecord maps one raw wire row to the cache shape.
func logRecord(serverID string, mod models.RailwayMod, raw beacon.RawLogRecord) models.MtrLogRecord {
	rec := models.MtrLogRecord{
		ServerID:         serverID,
		RailwayMod:       mod,
		BeaconLogID:      raw.ID,
		Timestamp:        time.UnixMilli(raw.TimestampMs).UTC(),
		PlayerName:       raw.PlayerName,
		PlayerUUID:       raw.PlayerUUID,
		ChangeType:       raw.ChangeType,
		EntityClass:      raw.EntityClass,
		EntryID:          raw.EntityID,
		EntityName:       raw.EntityName,
		OldData:          string(raw.OldData),
		NewData:          string(raw.NewData),
		SourceFile:       raw.SourceFile,
		SourceLine:       raw.SourceLine,
		DimensionContext: raw.DimContext,
	}
	if len(raw.Pos) > 0 {
		if p, ok := normalize.PackedPos(raw.Pos); ok {
			rec.Position = &p
		}
	}
	return rec
}
