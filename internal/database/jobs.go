// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/railatlas/railatlas/internal/models"
)

// InsertLogSyncJob appends a new sync job row.
func (db *DB) InsertLogSyncJob(ctx context.Context, job models.LogSyncJob) (err error) {
	started := time.Now()
	defer func() { observe("insert", "log_sync_jobs", started, err) }()

	stmt, err := db.getStmt(ctx, `
INSERT INTO log_sync_jobs (id, server_id, mode, status, message, created_at, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx,
		job.ID, job.ServerID, string(job.Mode), string(job.Status),
		nullableString(job.Message), job.CreatedAt.UTC(),
		nullableTime(job.StartedAt), nullableTime(job.FinishedAt))
	return err
}

// UpdateLogSyncJob rewrites a job's mutable lifecycle fields.
func (db *DB) UpdateLogSyncJob(ctx context.Context, job models.LogSyncJob) (err error) {
	started := time.Now()
	defer func() { observe("update", "log_sync_jobs", started, err) }()

	stmt, err := db.getStmt(ctx, `
UPDATE log_sync_jobs
SET status = ?, message = ?, started_at = ?, finished_at = ?
WHERE id = ?`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx,
		string(job.Status), nullableString(job.Message),
		nullableTime(job.StartedAt), nullableTime(job.FinishedAt), job.ID)
	return err
}

// ListLogSyncJobs returns a server's sync history, newest first.
func (db *DB) ListLogSyncJobs(ctx context.Context, serverID string, limit int) (_ []models.LogSyncJob, err error) {
	started := time.Now()
	defer func() { observe("list", "log_sync_jobs", started, err) }()

	if limit <= 0 {
		limit = 50
	}
	stmt, err := db.getStmt(ctx, `
SELECT id, server_id, mode, status, message, created_at, started_at, finished_at
FROM log_sync_jobs
WHERE server_id = ?
ORDER BY created_at DESC
LIMIT ?`)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx, serverID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sync jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.LogSyncJob
	for rows.Next() {
		var (
			job        models.LogSyncJob
			mode       string
			status     string
			message    sql.NullString
			startedAt  sql.NullTime
			finishedAt sql.NullTime
		)
		if err = rows.Scan(&job.ID, &job.ServerID, &mode, &status, &message,
			&job.CreatedAt, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan sync job: %w", err)
		}
		job.Mode = models.SyncMode(mode)
		job.Status = models.SyncStatus(status)
		job.Message = message.String
		job.CreatedAt = job.CreatedAt.UTC()
		if startedAt.Valid {
			t := startedAt.Time.UTC()
			job.StartedAt = &t
		}
		if finishedAt.Valid {
			t := finishedAt.Time.UTC()
			job.FinishedAt = &t
		}
		out = append(out, job)
	}
	err = rows.Err()
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HasRunningLogSyncJob reports whether a server has a job still in
// PENDING or RUNNING state. The syncer consults it before creating a
// job: the in-memory guard covers the running process, while this check
// catches rows another process wrote or a crash left behind.
func (db *DB) HasRunningLogSyncJob(ctx context.Context, serverID string) (_ bool, err error) {
	started := time.Now()
	defer func() { observe("count", "log_sync_jobs", started, err) }()

	stmt, err := db.getStmt(ctx, `
SELECT COUNT(*) FROM log_sync_jobs
WHERE server_id = ? AND status IN ('PENDING', 'RUNNING')`)
	if err != nil {
		return false, err
	}
	var n int64
	err = stmt.QueryRowContext(ctx, serverID).Scan(&n)
	return n > 0, err
}

// FailOrphanedLogSyncJobs marks jobs left PENDING or RUNNING by a crash
// as FAILED so they do not block syncs forever.
func (db *DB) FailOrphanedLogSyncJobs(ctx context.Context) (err error) {
	started := time.Now()
	defer func() { observe("update", "log_sync_jobs", started, err) }()

	_, err = db.conn.ExecContext(ctx, `
UPDATE log_sync_jobs
SET status = 'FAILED', message = 'orphaned by process restart', finished_at = CURRENT_TIMESTAMP
WHERE status IN ('PENDING', 'RUNNING')`)
	return err
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
