// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

package database

import (
	"context"
	"fmt"

	"github.com/railatlas/railatlas/internal/logging"
)

// Migration is one versioned schema change. Migrations are append-only;
// never modify or remove an entry once released.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

const schemaMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

func migrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_mtr_log_records",
			SQL: `
CREATE TABLE IF NOT EXISTS mtr_log_records (
	server_id TEXT NOT NULL,
	railway_mod TEXT NOT NULL,
	beacon_log_id BIGINT NOT NULL,
	ts TIMESTAMP NOT NULL,
	player_name TEXT NOT NULL,
	player_uuid TEXT NOT NULL,
	change_type TEXT NOT NULL,
	entity_class TEXT NOT NULL,
	entry_id BIGINT NOT NULL,
	entity_name TEXT,
	pos_x BIGINT,
	pos_y BIGINT,
	pos_z BIGINT,
	old_data TEXT,
	new_data TEXT,
	source_file TEXT,
	source_line INTEGER,
	dimension_context TEXT,
	PRIMARY KEY (server_id, beacon_log_id)
);`,
		},
		{
			Version: 2,
			Name:    "index_mtr_log_records_entry",
			SQL:     `CREATE INDEX IF NOT EXISTS idx_log_records_entry ON mtr_log_records (server_id, railway_mod, entry_id);`,
		},
		{
			Version: 3,
			Name:    "index_mtr_log_records_dimension",
			SQL:     `CREATE INDEX IF NOT EXISTS idx_log_records_dimension ON mtr_log_records (server_id, railway_mod, dimension_context);`,
		},
		{
			Version: 4,
			Name:    "create_route_geometry_snapshots",
			SQL: `
CREATE TABLE IF NOT EXISTS route_geometry_snapshots (
	server_id TEXT NOT NULL,
	railway_mod TEXT NOT NULL,
	route_id BIGINT NOT NULL,
	dimension TEXT NOT NULL,
	source TEXT NOT NULL,
	paths TEXT NOT NULL,
	stops TEXT NOT NULL,
	center_on_first_stop BOOLEAN NOT NULL DEFAULT FALSE,
	generated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (server_id, railway_mod, route_id, dimension)
);`,
		},
		{
			Version: 5,
			Name:    "create_log_sync_jobs",
			SQL: `
CREATE TABLE IF NOT EXISTS log_sync_jobs (
	id TEXT PRIMARY KEY,
	server_id TEXT NOT NULL,
	mode TEXT NOT NULL,
	status TEXT NOT NULL,
	message TEXT,
	created_at TIMESTAMP NOT NULL,
	started_at TIMESTAMP,
	finished_at TIMESTAMP
);`,
		},
		{
			Version: 6,
			Name:    "index_log_sync_jobs_server_status",
			SQL:     `CREATE INDEX IF NOT EXISTS idx_log_sync_jobs_server_status ON log_sync_jobs (server_id, status);`,
		},
	}
}

// migrate applies any pending migrations inside a transaction each, so a
// failed migration leaves the schema at the previous version.
func (db *DB) migrate(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, schemaMigrationsTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := db.conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("read applied migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return err
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, m := range migrations() {
		if applied[m.Version] {
			continue
		}
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.Version, m.Name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
		logging.Info().Int("version", m.Version).Str("name", m.Name).Msg("[DATABASE] Applied migration")
	}
	return nil
}
