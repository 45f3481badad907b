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

	"github.com/railatlas/railatlas/internal/blockpos"
	"github.com/railatlas/railatlas/internal/models"
)

const upsertLogRecordSQL = `
INSERT INTO mtr_log_records (
	server_id, railway_mod, beacon_log_id, ts, player_name, player_uuid,
	change_type, entity_class, entry_id, entity_name,
	pos_x, pos_y, pos_z, old_data, new_data,
	source_file, source_line, dimension_context
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (server_id, beacon_log_id) DO UPDATE SET
	railway_mod = excluded.railway_mod,
	ts = excluded.ts,
	player_name = excluded.player_name,
	player_uuid = excluded.player_uuid,
	change_type = excluded.change_type,
	entity_class = excluded.entity_class,
	entry_id = excluded.entry_id,
	entity_name = excluded.entity_name,
	pos_x = excluded.pos_x,
	pos_y = excluded.pos_y,
	pos_z = excluded.pos_z,
	old_data = excluded.old_data,
	new_data = excluded.new_data,
	source_file = excluded.source_file,
	source_line = excluded.source_line,
	dimension_context = excluded.dimension_context
`

// UpsertLogRecords writes a batch of mirrored audit rows. Rows keyed by
// an already-present (server_id, beacon_log_id) are overwritten, which
// is how amended remote rows converge.
func (db *DB) UpsertLogRecords(ctx context.Context, records []models.MtrLogRecord) (err error) {
	started := time.Now()
	defer func() { observe("upsert", "mtr_log_records", started, err) }()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsertLogRecordSQL)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		var posX, posY, posZ any
		if r.Position != nil {
			posX, posY, posZ = r.Position.X, r.Position.Y, r.Position.Z
		}
		if _, err = stmt.ExecContext(ctx,
			r.ServerID, string(r.RailwayMod), r.BeaconLogID, r.Timestamp.UTC(),
			r.PlayerName, r.PlayerUUID, r.ChangeType, r.EntityClass, r.EntryID,
			r.EntityName, posX, posY, posZ,
			nullableString(r.OldData), nullableString(r.NewData),
			nullableString(r.SourceFile), r.SourceLine, nullableString(r.DimensionContext),
		); err != nil {
			return fmt.Errorf("upsert log record %d: %w", r.BeaconLogID, err)
		}
	}
	return tx.Commit()
}

// LogRecordFilter narrows a log record listing. Zero values mean no
// restriction on that axis.
type LogRecordFilter struct {
	ServerID         string
	RailwayMod       models.RailwayMod
	EntryID          int64
	DimensionContext string
	PlayerUUID       string
	From             time.Time
	To               time.Time
	Limit            int
	Offset           int
}

// QueryLogRecords lists mirrored rows newest first.
func (db *DB) QueryLogRecords(ctx context.Context, f LogRecordFilter) (_ []models.MtrLogRecord, err error) {
	started := time.Now()
	defer func() { observe("query", "mtr_log_records", started, err) }()

	query := `SELECT server_id, railway_mod, beacon_log_id, ts, player_name, player_uuid,
		change_type, entity_class, entry_id, entity_name,
		pos_x, pos_y, pos_z, old_data, new_data,
		source_file, source_line, dimension_context
	FROM mtr_log_records WHERE 1=1`
	var args []any

	if f.ServerID != "" {
		query += ` AND server_id = ?`
		args = append(args, f.ServerID)
	}
	if f.RailwayMod != "" {
		query += ` AND railway_mod = ?`
		args = append(args, string(f.RailwayMod))
	}
	if f.EntryID != 0 {
		query += ` AND entry_id = ?`
		args = append(args, f.EntryID)
	}
	if f.DimensionContext != "" {
		query += ` AND dimension_context = ?`
		args = append(args, f.DimensionContext)
	}
	if f.PlayerUUID != "" {
		query += ` AND player_uuid = ?`
		args = append(args, f.PlayerUUID)
	}
	if !f.From.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, f.To.UTC())
	}

	query += ` ORDER BY ts DESC, beacon_log_id DESC`
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query log records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.MtrLogRecord
	for rows.Next() {
		rec, scanErr := scanLogRecord(rows)
		if scanErr != nil {
			err = scanErr
			return nil, err
		}
		out = append(out, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CountLogRecords reports how many rows a server has mirrored.
func (db *DB) CountLogRecords(ctx context.Context, serverID string) (_ int64, err error) {
	started := time.Now()
	defer func() { observe("count", "mtr_log_records", started, err) }()

	stmt, err := db.getStmt(ctx, `SELECT COUNT(*) FROM mtr_log_records WHERE server_id = ?`)
	if err != nil {
		return 0, err
	}
	var n int64
	err = stmt.QueryRowContext(ctx, serverID).Scan(&n)
	return n, err
}

func scanLogRecord(rows *sql.Rows) (models.MtrLogRecord, error) {
	var (
		rec        models.MtrLogRecord
		mod        string
		entityName sql.NullString
		posX       sql.NullInt64
		posY       sql.NullInt64
		posZ       sql.NullInt64
		oldData    sql.NullString
		newData    sql.NullString
		sourceFile sql.NullString
		sourceLine sql.NullInt32
		dimContext sql.NullString
	)
	if err := rows.Scan(
		&rec.ServerID, &mod, &rec.BeaconLogID, &rec.Timestamp,
		&rec.PlayerName, &rec.PlayerUUID, &rec.ChangeType, &rec.EntityClass,
		&rec.EntryID, &entityName, &posX, &posY, &posZ,
		&oldData, &newData, &sourceFile, &sourceLine, &dimContext,
	); err != nil {
		return models.MtrLogRecord{}, fmt.Errorf("scan log record: %w", err)
	}

	rec.RailwayMod = models.RailwayMod(mod)
	rec.Timestamp = rec.Timestamp.UTC()
	if entityName.Valid {
		rec.EntityName = &entityName.String
	}
	if posX.Valid && posY.Valid && posZ.Valid {
		rec.Position = &blockpos.Pos{X: posX.Int64, Y: posY.Int64, Z: posZ.Int64}
	}
	rec.OldData = oldData.String
	rec.NewData = newData.String
	rec.SourceFile = sourceFile.String
	rec.SourceLine = int(sourceLine.Int32)
	rec.DimensionContext = dimContext.String
	return rec, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
