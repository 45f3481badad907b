// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

package sync

import (
	"context"
	"strconv"
	"testing"

	"github.com/goccy/go-json"

	"github.com/railatlas/railatlas/internal/blockpos"
	"github.com/railatlas/railatlas/internal/config"
	"github.com/railatlas/railatlas/internal/models"
	"github.com/railatlas/railatlas/internal/models/beacon"
)

type fakeRailwayAPI struct {
	fakeBeaconAPI
	snap  *beacon.RailwaySnapshotData
	calls int
}

func (f *fakeRailwayAPI) GetRailwaySnapshot(context.Context, beacon.RailwaySnapshotRequest) (*beacon.RailwaySnapshotData, error) {
	f.calls++
	return f.snap, nil
}

type recomputeCall struct {
	serverID  string
	routeID   int64
	dimension string
}

type fakeRecomputer struct {
	computed    []recomputeCall
	invalidated []recomputeCall
}

func (f *fakeRecomputer) ComputeAndPersist(_ context.Context, serverID string, _ models.RailwayMod, routeID int64, dimension string) (string, error) {
	f.computed = append(f.computed, recomputeCall{serverID, routeID, dimension})
	return "job-" + strconv.FormatInt(routeID, 10), nil
}

func (f *fakeRecomputer) InvalidateRoute(serverID string, _ models.RailwayMod, routeID int64, dimension string) {
	f.invalidated = append(f.invalidated, recomputeCall{serverID, routeID, dimension})
}

func packedField(p blockpos.Pos) string {
	return strconv.FormatInt(blockpos.Encode(p), 10)
}

func testRailwaySnapshot(lastDeployed int64, routeIDs ...int64) *beacon.RailwaySnapshotData {
	a := blockpos.Pos{X: 0, Y: 64, Z: 0}
	b := blockpos.Pos{X: 100, Y: 64, Z: 0}

	routes := make([]map[string]any, 0, len(routeIDs))
	for _, id := range routeIDs {
		routes = append(routes, map[string]any{
			"id":           float64(id),
			"name":         "Line " + strconv.FormatInt(id, 10),
			"platform_ids": []any{float64(1), float64(2)},
		})
	}

	return &beacon.RailwaySnapshotData{
		LastDeployed: lastDeployed,
		Dimensions: []beacon.RailwayDimension{
			{
				Dimension: "minecraft:overworld",
				Routes:    routes,
				Stations: []map[string]any{
					{"id": float64(10), "name": "West", "x_min": float64(-10), "z_min": float64(-10), "x_max": float64(10), "z_max": float64(10)},
					{"id": float64(20), "name": "East", "x_min": float64(90), "z_min": float64(-10), "x_max": float64(110), "z_max": float64(10)},
				},
				Platforms: []map[string]any{
					{"id": float64(1), "station_id": float64(10), "pos_1": packedField(a), "pos_2": packedField(a)},
					{"id": float64(2), "station_id": float64(20), "pos_1": packedField(b), "pos_2": packedField(b)},
				},
				Rails: []beacon.RawRailNode{
					{
						NodePos: json.RawMessage(packedField(a)),
						Connections: []beacon.RawRailConnection{
							{NodePos: json.RawMessage(packedField(b)), IsStraight1: true},
						},
					},
					{
						NodePos: json.RawMessage(packedField(b)),
						Connections: []beacon.RawRailConnection{
							{NodePos: json.RawMessage(packedField(a)), IsStraight1: true},
						},
					},
				},
			},
		},
	}
}

func TestMirrorRefreshBuildsState(t *testing.T) {
	m := NewMirror(NewPoolWithClock(config.SyncConfig{}, newFakeClock()), config.SyncConfig{})
	geom := &fakeRecomputer{}
	m.SetGeometryService(geom)

	api := &fakeRailwayAPI{snap: testRailwaySnapshot(1000, 5)}
	if err := m.RefreshServer(context.Background(), "smp", models.ModMTR, api); err != nil {
		t.Fatalf("RefreshServer: %v", err)
	}

	stops, segments, err := m.RouteGraph(context.Background(), "smp", models.ModMTR, 5, "minecraft:overworld")
	if err != nil {
		t.Fatalf("RouteGraph: %v", err)
	}
	if len(stops) != 2 {
		t.Errorf("stops = %d, want 2", len(stops))
	}
	if len(segments) != 2 {
		t.Errorf("segments = %d, want 2", len(segments))
	}

	if len(geom.computed) != 1 || geom.computed[0].routeID != 5 {
		t.Errorf("recomputed = %+v, want route 5 once", geom.computed)
	}

	routes := m.Entities("smp", models.KindRoute)
	if len(routes) != 1 || routes[0].ID != 5 {
		t.Errorf("route entities = %+v", routes)
	}
	if routes[0].Name == nil || *routes[0].Name != "Line 5" {
		t.Errorf("route name = %v", routes[0].Name)
	}
	if all := m.Entities("smp", ""); len(all) != 5 {
		t.Errorf("total entities = %d, want 5 (1 route + 2 stations + 2 platforms)", len(all))
	}

	if m.LastDeployed("smp") != 1000 {
		t.Errorf("LastDeployed = %d", m.LastDeployed("smp"))
	}
}

func TestMirrorSkipsUnchangedDeploy(t *testing.T) {
	m := NewMirror(NewPoolWithClock(config.SyncConfig{}, newFakeClock()), config.SyncConfig{})
	geom := &fakeRecomputer{}
	m.SetGeometryService(geom)

	api := &fakeRailwayAPI{snap: testRailwaySnapshot(1000, 5)}
	ctx := context.Background()

	if err := m.RefreshServer(ctx, "smp", models.ModMTR, api); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if err := m.RefreshServer(ctx, "smp", models.ModMTR, api); err != nil {
		t.Fatalf("second refresh: %v", err)
	}

	if len(geom.computed) != 1 {
		t.Errorf("unchanged deploy should not recompute, got %d computations", len(geom.computed))
	}

	// A new deploy stamp invalidates the skip.
	api.snap = testRailwaySnapshot(2000, 5)
	if err := m.RefreshServer(ctx, "smp", models.ModMTR, api); err != nil {
		t.Fatalf("third refresh: %v", err)
	}
	if len(geom.computed) != 2 {
		t.Errorf("new deploy should recompute, got %d computations", len(geom.computed))
	}
}

func TestMirrorInvalidatesRemovedRoutes(t *testing.T) {
	m := NewMirror(NewPoolWithClock(config.SyncConfig{}, newFakeClock()), config.SyncConfig{})
	geom := &fakeRecomputer{}
	m.SetGeometryService(geom)
	ctx := context.Background()

	api := &fakeRailwayAPI{snap: testRailwaySnapshot(1000, 5, 6)}
	if err := m.RefreshServer(ctx, "smp", models.ModMTR, api); err != nil {
		t.Fatalf("first refresh: %v", err)
	}

	// Route 6 is deleted in the next deploy.
	api.snap = testRailwaySnapshot(2000, 5)
	if err := m.RefreshServer(ctx, "smp", models.ModMTR, api); err != nil {
		t.Fatalf("second refresh: %v", err)
	}

	if len(geom.invalidated) != 1 || geom.invalidated[0].routeID != 6 {
		t.Errorf("invalidated = %+v, want route 6", geom.invalidated)
	}

	if _, _, err := m.RouteGraph(ctx, "smp", models.ModMTR, 6, "minecraft:overworld"); err == nil {
		t.Error("removed route should no longer resolve")
	}
}
