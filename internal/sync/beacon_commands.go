// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

package sync

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/railatlas/railatlas/internal/models/beacon"
)

// BeaconAPI is the typed command surface of a Beacon connection. Both
// BeaconClient and BreakerClient implement it; the mirror and log sync
// services are written against the interface so tests can substitute a
// fake server.
type BeaconAPI interface {
	GetStatus(ctx context.Context) (*beacon.StatusData, error)
	GetServerTime(ctx context.Context) (*beacon.ServerTimeData, error)
	ListOnlinePlayers(ctx context.Context) (*beacon.OnlinePlayersData, error)
	QueryEntities(ctx context.Context, req beacon.EntityQueryRequest) (*beacon.EntityQueryData, error)
	GetRailwaySnapshot(ctx context.Context, req beacon.RailwaySnapshotRequest) (*beacon.RailwaySnapshotData, error)
	GetPlayerLogs(ctx context.Context, req beacon.PlayerLogsRequest) (*beacon.PlayerLogsData, error)
	GetLogDetail(ctx context.Context, logID int64) (*beacon.LogDetailData, error)
}

// callTyped performs a Call and decodes the reply payload into T.
// Loosely typed fields decode as json.Number, not float64: packed block
// positions use up to 64 significant bits and float64 carries 53, so a
// float64 detour would corrupt coordinates past |x| of a few thousand
// blocks.
func callTyped[T any](ctx context.Context, c *BeaconClient, event string, payload any) (*T, error) {
	resp, err := c.Call(ctx, event, payload, 0)
	if err != nil {
		return nil, err
	}

	var out T
	if len(resp.Data) > 0 {
		dec := json.NewDecoder(bytes.NewReader(resp.Data))
		dec.UseNumber()
		if err := dec.Decode(&out); err != nil {
			return nil, fmt.Errorf("decode %s reply: %w", event, err)
		}
	}
	return &out, nil
}

// GetStatus retrieves the Beacon plugin and server status.
func (c *BeaconClient) GetStatus(ctx context.Context) (*beacon.StatusData, error) {
	return callTyped[beacon.StatusData](ctx, c, beacon.EventGetStatus, nil)
}

// GetServerTime retrieves the server wall clock and game time.
func (c *BeaconClient) GetServerTime(ctx context.Context) (*beacon.ServerTimeData, error) {
	return callTyped[beacon.ServerTimeData](ctx, c, beacon.EventGetServerTime, nil)
}

// ListOnlinePlayers retrieves all currently connected players.
func (c *BeaconClient) ListOnlinePlayers(ctx context.Context) (*beacon.OnlinePlayersData, error) {
	return callTyped[beacon.OnlinePlayersData](ctx, c, beacon.EventOnlinePlayers, nil)
}

// QueryEntities runs a category-scoped row query with limit/offset paging.
func (c *BeaconClient) QueryEntities(ctx context.Context, req beacon.EntityQueryRequest) (*beacon.EntityQueryData, error) {
	return callTyped[beacon.EntityQueryData](ctx, c, beacon.EventQueryEntities, req)
}

// GetRailwaySnapshot retrieves the per-dimension railway state.
func (c *BeaconClient) GetRailwaySnapshot(ctx context.Context, req beacon.RailwaySnapshotRequest) (*beacon.RailwaySnapshotData, error) {
	return callTyped[beacon.RailwaySnapshotData](ctx, c, beacon.EventRailwaySnapshot, req)
}

// GetPlayerLogs retrieves one page of the remote audit log.
func (c *BeaconClient) GetPlayerLogs(ctx context.Context, req beacon.PlayerLogsRequest) (*beacon.PlayerLogsData, error) {
	return callTyped[beacon.PlayerLogsData](ctx, c, beacon.EventPlayerLogs, req)
}

// GetLogDetail retrieves one audit-log row by id.
func (c *BeaconClient) GetLogDetail(ctx context.Context, logID int64) (*beacon.LogDetailData, error) {
	return callTyped[beacon.LogDetailData](ctx, c, beacon.EventLogDetail, beacon.LogDetailRequest{LogID: logID})
}
