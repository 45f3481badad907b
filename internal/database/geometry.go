// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/railatlas/railatlas/internal/models"
)

// ErrSnapshotNotFound is returned when no geometry snapshot exists for
// the requested key.
var ErrSnapshotNotFound = errors.New("database: geometry snapshot not found")

// ReplaceRouteGeometrySnapshot stores the current geometry of a route,
// replacing any prior row for the same (server, mod, route, dimension).
// Paths and stops are stored as JSON documents; queries slice on the key
// columns, never the payload.
func (db *DB) ReplaceRouteGeometrySnapshot(ctx context.Context, snap models.RouteGeometrySnapshot) (err error) {
	started := time.Now()
	defer func() { observe("replace", "route_geometry_snapshots", started, err) }()

	paths, err := json.Marshal(snap.Paths)
	if err != nil {
		return fmt.Errorf("marshal paths: %w", err)
	}
	stops, err := json.Marshal(snap.Stops)
	if err != nil {
		return fmt.Errorf("marshal stops: %w", err)
	}

	stmt, err := db.getStmt(ctx, `
INSERT INTO route_geometry_snapshots (
	server_id, railway_mod, route_id, dimension,
	source, paths, stops, center_on_first_stop, generated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (server_id, railway_mod, route_id, dimension) DO UPDATE SET
	source = excluded.source,
	paths = excluded.paths,
	stops = excluded.stops,
	center_on_first_stop = excluded.center_on_first_stop,
	generated_at = excluded.generated_at`)
	if err != nil {
		return err
	}

	_, err = stmt.ExecContext(ctx,
		snap.ServerID, string(snap.RailwayMod), snap.RouteID, snap.Dimension,
		string(snap.Source), string(paths), string(stops),
		snap.CenterOnFirstStop, snap.GeneratedAt.UTC(),
	)
	return err
}

// GetRouteGeometrySnapshot loads the current snapshot of one route.
func (db *DB) GetRouteGeometrySnapshot(ctx context.Context, serverID string, mod models.RailwayMod, routeID int64, dimension string) (_ *models.RouteGeometrySnapshot, err error) {
	started := time.Now()
	defer func() { observe("get", "route_geometry_snapshots", started, err) }()

	stmt, err := db.getStmt(ctx, `
SELECT source, paths, stops, center_on_first_stop, generated_at
FROM route_geometry_snapshots
WHERE server_id = ? AND railway_mod = ? AND route_id = ? AND dimension = ?`)
	if err != nil {
		return nil, err
	}

	snap := models.RouteGeometrySnapshot{
		ServerID:   serverID,
		RailwayMod: mod,
		RouteID:    routeID,
		Dimension:  dimension,
	}
	var source, paths, stops string
	err = stmt.QueryRowContext(ctx, serverID, string(mod), routeID, dimension).
		Scan(&source, &paths, &stops, &snap.CenterOnFirstStop, &snap.GeneratedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load geometry snapshot: %w", err)
	}

	snap.Source = models.PathSource(source)
	snap.GeneratedAt = snap.GeneratedAt.UTC()
	if err = json.Unmarshal([]byte(paths), &snap.Paths); err != nil {
		return nil, fmt.Errorf("decode paths: %w", err)
	}
	if err = json.Unmarshal([]byte(stops), &snap.Stops); err != nil {
		return nil, fmt.Errorf("decode stops: %w", err)
	}
	return &snap, nil
}

// ListRouteGeometrySnapshots loads every current snapshot of a server,
// ordered by dimension then route id.
func (db *DB) ListRouteGeometrySnapshots(ctx context.Context, serverID string, mod models.RailwayMod) (_ []models.RouteGeometrySnapshot, err error) {
	started := time.Now()
	defer func() { observe("list", "route_geometry_snapshots", started, err) }()

	stmt, err := db.getStmt(ctx, `
SELECT route_id, dimension, source, paths, stops, center_on_first_stop, generated_at
FROM route_geometry_snapshots
WHERE server_id = ? AND railway_mod = ?
ORDER BY dimension, route_id`)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx, serverID, string(mod))
	if err != nil {
		return nil, fmt.Errorf("list geometry snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.RouteGeometrySnapshot
	for rows.Next() {
		snap := models.RouteGeometrySnapshot{ServerID: serverID, RailwayMod: mod}
		var source, paths, stops string
		if err = rows.Scan(&snap.RouteID, &snap.Dimension, &source, &paths, &stops,
			&snap.CenterOnFirstStop, &snap.GeneratedAt); err != nil {
			return nil, fmt.Errorf("scan geometry snapshot: %w", err)
		}
		snap.Source = models.PathSource(source)
		snap.GeneratedAt = snap.GeneratedAt.UTC()
		if err = json.Unmarshal([]byte(paths), &snap.Paths); err != nil {
			return nil, fmt.Errorf("decode paths: %w", err)
		}
		if err = json.Unmarshal([]byte(stops), &snap.Stops); err != nil {
			return nil, fmt.Errorf("decode stops: %w", err)
		}
		out = append(out, snap)
	}
	err = rows.Err()
	if err != nil {
		return nil, err
	}
	return out, nil
}
