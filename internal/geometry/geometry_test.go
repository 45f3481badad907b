// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

package geometry

import (
	"reflect"
	"testing"

	"github.com/railatlas/railatlas/internal/blockpos"
	"github.com/railatlas/railatlas/internal/models"
)

func straightConn() *models.RailConnection {
	return &models.RailConnection{
		RailType: "iron",
		Mode:     models.ModeTrain,
		Primary:  &models.CurveParams{IsStraight: true},
	}
}

// biSegments links a and b in both directions, the way rail data arrives
// from the game.
func biSegments(a, b blockpos.Pos, conn *models.RailConnection) []models.RailSegment {
	return []models.RailSegment{
		{Start: a, End: b, Conn: conn},
		{Start: b, End: a, Conn: conn},
	}
}

func stopAt(order int, platformID int64, p blockpos.Pos) models.Stop {
	return models.Stop{Order: order, PlatformID: platformID, StationID: platformID * 10, Position: p}
}

func threeStopInput() Input {
	a := blockpos.Pos{X: 0, Y: 64, Z: 0}
	b := blockpos.Pos{X: 100, Y: 64, Z: 0}
	c := blockpos.Pos{X: 200, Y: 64, Z: 100}

	var segs []models.RailSegment
	segs = append(segs, biSegments(a, b, straightConn())...)
	segs = append(segs, biSegments(b, c, straightConn())...)

	return Input{
		ServerID:   "smp",
		RailwayMod: models.ModMTR,
		RouteID:    1,
		Dimension:  "minecraft:overworld",
		Stops: []models.Stop{
			stopAt(0, 7, a),
			stopAt(1, 8, b),
			stopAt(2, 9, c),
		},
		Segments: segs,
	}
}

func TestReconstructThreeStopRoute(t *testing.T) {
	res := Reconstruct(threeStopInput())

	if res.Source != models.SourceRails {
		t.Fatalf("source = %q, want rails", res.Source)
	}
	if len(res.Paths) != 1 {
		t.Fatalf("expected 1 path, got %d", len(res.Paths))
	}

	path := res.Paths[0]
	if !path.IsPrimary {
		t.Error("single path should be primary")
	}
	if len(path.Points) < 3 {
		t.Errorf("expected >= 3 points, got %d", len(path.Points))
	}

	for i, s := range res.Stops {
		if s.Order != i {
			t.Errorf("stop %d has order %d", i, s.Order)
		}
	}

	if len(res.Diagnostics) != len(threeStopInput().Segments) {
		t.Errorf("diagnostics rows = %d, want one per segment (%d)",
			len(res.Diagnostics), len(threeStopInput().Segments))
	}
}

func TestReconstructDeterminism(t *testing.T) {
	first := Reconstruct(threeStopInput())
	second := Reconstruct(threeStopInput())

	if !reflect.DeepEqual(first.Paths, second.Paths) {
		t.Error("recomputation produced different paths")
	}
	if !reflect.DeepEqual(first.Diagnostics, second.Diagnostics) {
		t.Error("recomputation produced different diagnostics")
	}
}

func TestReconstructUnsortedStops(t *testing.T) {
	in := threeStopInput()
	in.Stops[0], in.Stops[2] = in.Stops[2], in.Stops[0]

	res := Reconstruct(in)
	for i, s := range res.Stops {
		if s.Order != i {
			t.Fatalf("stops not re-sorted by order: %+v", res.Stops)
		}
	}
	if len(res.Paths) != 1 {
		t.Errorf("expected 1 path, got %d", len(res.Paths))
	}
}

func TestReconstructAmbiguousCurveFlagged(t *testing.T) {
	in := threeStopInput()
	ambiguous := &models.RailConnection{
		RailType:  "iron",
		Mode:      models.ModeTrain,
		Primary:   &models.CurveParams{IsStraight: true},
		Secondary: &models.CurveParams{IsStraight: true},
	}
	in.Segments[0].Conn = ambiguous

	res := Reconstruct(in)
	if res.Diagnostics[0].Reason != "ambiguous curve" {
		t.Errorf("diagnostic 0 reason = %q, want ambiguous curve", res.Diagnostics[0].Reason)
	}
	if !res.Diagnostics[0].OK {
		t.Error("ambiguous curve is informational, OK should stay true")
	}
}

func TestReconstructFallbackPlatformCenters(t *testing.T) {
	in := threeStopInput()
	in.Segments = nil

	res := Reconstruct(in)
	if res.Source != models.SourcePlatformCenters {
		t.Fatalf("source = %q, want platform-centers", res.Source)
	}
	if len(res.Paths) != 1 || !res.Paths[0].IsPrimary {
		t.Fatalf("expected one primary fallback path, got %+v", res.Paths)
	}
	want := []models.Point{{X: 0, Z: 0}, {X: 100, Z: 0}, {X: 200, Z: 100}}
	if !reflect.DeepEqual(res.Paths[0].Points, want) {
		t.Errorf("points = %v, want %v", res.Paths[0].Points, want)
	}
}

func TestReconstructFallbackStationBounds(t *testing.T) {
	// All platforms share one position, so the platform-center polyline
	// collapses to a single point and station bounds take over.
	in := Input{
		ServerID: "smp", RailwayMod: models.ModMTR, RouteID: 2, Dimension: "minecraft:overworld",
		Stops: []models.Stop{
			{Order: 0, PlatformID: 1, Bounds: &models.Bounds{MinX: 0, MinZ: 0, MaxX: 20, MaxZ: 20}},
			{Order: 1, PlatformID: 2, Bounds: &models.Bounds{MinX: 100, MinZ: 100, MaxX: 140, MaxZ: 140}},
		},
	}

	res := Reconstruct(in)
	if res.Source != models.SourceStationBounds {
		t.Fatalf("source = %q, want station-bounds", res.Source)
	}
	want := []models.Point{{X: 10, Z: 10}, {X: 120, Z: 120}}
	if !reflect.DeepEqual(res.Paths[0].Points, want) {
		t.Errorf("points = %v, want %v", res.Paths[0].Points, want)
	}
}

func TestReconstructBrokenGraphSplitsPaths(t *testing.T) {
	a := blockpos.Pos{X: 0, Y: 64, Z: 0}
	b := blockpos.Pos{X: 100, Y: 64, Z: 0}
	c := blockpos.Pos{X: 500, Y: 64, Z: 0}
	d := blockpos.Pos{X: 600, Y: 64, Z: 0}

	var segs []models.RailSegment
	segs = append(segs, biSegments(a, b, straightConn())...)
	// No connection between b and c: the route is severed mid-way.
	segs = append(segs, biSegments(c, d, straightConn())...)

	in := Input{
		ServerID: "smp", RailwayMod: models.ModMTR, RouteID: 3, Dimension: "minecraft:overworld",
		Stops: []models.Stop{
			stopAt(0, 1, a),
			stopAt(1, 2, b),
			stopAt(2, 3, c),
			stopAt(3, 4, d),
		},
		Segments: segs,
	}

	res := Reconstruct(in)
	if res.Source != models.SourceRails {
		t.Fatalf("source = %q, want rails", res.Source)
	}
	if len(res.Paths) != 2 {
		t.Fatalf("expected 2 paths for a severed graph, got %d", len(res.Paths))
	}

	primaries := 0
	for _, p := range res.Paths {
		if p.IsPrimary {
			primaries++
		}
	}
	if primaries != 1 {
		t.Errorf("expected exactly 1 primary path, got %d", primaries)
	}
}

func TestPickCurve(t *testing.T) {
	two := 2
	one := 1
	p := &models.CurveParams{R: 10}
	s := &models.CurveParams{R: 20}

	tests := []struct {
		name      string
		conn      *models.RailConnection
		want      *models.CurveParams
		ambiguous bool
	}{
		{"nil connection", nil, nil, false},
		{"primary only", &models.RailConnection{Primary: p}, p, false},
		{"hint primary", &models.RailConnection{Primary: p, Secondary: s, PreferredCurve: &one}, p, false},
		{"hint secondary", &models.RailConnection{Primary: p, Secondary: s, PreferredCurve: &two}, s, false},
		{"no hint", &models.RailConnection{Primary: p, Secondary: s}, p, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pickCurve(tt.conn)
			if got.curve != tt.want {
				t.Errorf("curve = %v, want %v", got.curve, tt.want)
			}
			if got.ambiguous != tt.ambiguous {
				t.Errorf("ambiguous = %v, want %v", got.ambiguous, tt.ambiguous)
			}
		})
	}
}

func TestCenterOnFirstStopFlag(t *testing.T) {
	// A route spanning 4 blocks cannot fit the minimum zoom.
	a := blockpos.Pos{X: 0, Y: 64, Z: 0}
	b := blockpos.Pos{X: 4, Y: 64, Z: 0}
	in := Input{
		ServerID: "smp", RailwayMod: models.ModMTR, RouteID: 4, Dimension: "minecraft:overworld",
		Stops:    []models.Stop{stopAt(0, 1, a), stopAt(1, 2, b)},
		Segments: biSegments(a, b, straightConn()),
	}
	if res := Reconstruct(in); !res.CenterOnFirstStop {
		t.Error("tiny route should be flagged center-on-first-stop")
	}

	if res := Reconstruct(threeStopInput()); res.CenterOnFirstStop {
		t.Error("large route should not be flagged center-on-first-stop")
	}
}
