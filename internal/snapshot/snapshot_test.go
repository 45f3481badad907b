// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

package snapshot

import (
	"context"
	"errors"
	"testing"

	"github.com/railatlas/railatlas/internal/blockpos"
	"github.com/railatlas/railatlas/internal/models"
)

type fakeStore struct {
	snaps []models.RouteGeometrySnapshot
	err   error
}

func (f *fakeStore) ReplaceRouteGeometrySnapshot(_ context.Context, snap models.RouteGeometrySnapshot) error {
	if f.err != nil {
		return f.err
	}
	f.snaps = append(f.snaps, snap)
	return nil
}

type fakeSource struct {
	stops    []models.Stop
	segments []models.RailSegment
	err      error
}

func (f *fakeSource) RouteGraph(context.Context, string, models.RailwayMod, int64, string) ([]models.Stop, []models.RailSegment, error) {
	return f.stops, f.segments, f.err
}

func testSource() *fakeSource {
	a := blockpos.Pos{X: 0, Y: 64, Z: 0}
	b := blockpos.Pos{X: 100, Y: 64, Z: 0}
	conn := &models.RailConnection{Primary: &models.CurveParams{IsStraight: true}}
	return &fakeSource{
		stops: []models.Stop{
			{Order: 0, PlatformID: 1, Position: a},
			{Order: 1, PlatformID: 2, Position: b},
		},
		segments: []models.RailSegment{
			{Start: a, End: b, Conn: conn},
			{Start: b, End: a, Conn: conn},
		},
	}
}

func TestComputeAndPersist(t *testing.T) {
	store := &fakeStore{}
	svc := New(store, testSource())

	jobID, err := svc.ComputeAndPersist(context.Background(), "smp", models.ModMTR, 1, "minecraft:overworld")
	if err != nil {
		t.Fatalf("ComputeAndPersist: %v", err)
	}
	if jobID == "" {
		t.Fatal("expected a job id")
	}

	if len(store.snaps) != 1 {
		t.Fatalf("expected 1 persisted snapshot, got %d", len(store.snaps))
	}
	snap := store.snaps[0]
	if snap.RouteID != 1 || snap.ServerID != "smp" {
		t.Errorf("snapshot key = %+v", snap)
	}
	if snap.Source != models.SourceRails || len(snap.Paths) != 1 {
		t.Errorf("snapshot geometry = source %q, %d paths", snap.Source, len(snap.Paths))
	}

	page, err := svc.GetDiagnosticsPage(jobID, 1, 1, 10, "", false)
	if err != nil {
		t.Fatalf("GetDiagnosticsPage: %v", err)
	}
	if page.Total != 2 || len(page.Rows) != 2 {
		t.Errorf("page = %+v", page)
	}
}

func TestRecomputeInvalidatesPriorJob(t *testing.T) {
	svc := New(&fakeStore{}, testSource())
	ctx := context.Background()

	first, err := svc.ComputeAndPersist(ctx, "smp", models.ModMTR, 1, "minecraft:overworld")
	if err != nil {
		t.Fatalf("first compute: %v", err)
	}
	second, err := svc.ComputeAndPersist(ctx, "smp", models.ModMTR, 1, "minecraft:overworld")
	if err != nil {
		t.Fatalf("second compute: %v", err)
	}
	if first == second {
		t.Fatal("recompute should mint a fresh job id")
	}

	if _, err := svc.GetDiagnosticsPage(first, 1, 1, 10, "", false); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("stale job id should return ErrJobNotFound, got %v", err)
	}
	if _, err := svc.GetDiagnosticsPage(second, 1, 1, 10, "", false); err != nil {
		t.Errorf("current job id should resolve: %v", err)
	}
}

func TestDiagnosticsPageRouteMismatch(t *testing.T) {
	svc := New(&fakeStore{}, testSource())

	jobID, err := svc.ComputeAndPersist(context.Background(), "smp", models.ModMTR, 1, "minecraft:overworld")
	if err != nil {
		t.Fatalf("ComputeAndPersist: %v", err)
	}

	if _, err := svc.GetDiagnosticsPage(jobID, 99, 1, 10, "", false); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("route mismatch should return ErrJobNotFound, got %v", err)
	}
}

func TestDiagnosticsPageFilters(t *testing.T) {
	source := testSource()
	// Add a stray one-directional stub so the job contains an error row.
	source.segments = append(source.segments, models.RailSegment{
		Start: blockpos.Pos{X: 900, Y: 64, Z: 900},
		End:   blockpos.Pos{X: 910, Y: 64, Z: 900},
	})
	svc := New(&fakeStore{}, source)

	jobID, err := svc.ComputeAndPersist(context.Background(), "smp", models.ModMTR, 1, "minecraft:overworld")
	if err != nil {
		t.Fatalf("ComputeAndPersist: %v", err)
	}

	all, err := svc.GetDiagnosticsPage(jobID, 1, 1, 100, "", false)
	if err != nil {
		t.Fatalf("unfiltered page: %v", err)
	}
	onlyErr, err := svc.GetDiagnosticsPage(jobID, 1, 1, 100, "", true)
	if err != nil {
		t.Fatalf("onlyErrors page: %v", err)
	}

	if onlyErr.Total == 0 {
		t.Fatal("expected at least one error row for the dangling stub")
	}
	if onlyErr.Total > all.Total {
		t.Errorf("onlyErrors total %d exceeds unfiltered total %d", onlyErr.Total, all.Total)
	}
	for _, row := range onlyErr.Rows {
		if row.OK {
			t.Errorf("onlyErrors returned an OK row: %+v", row)
		}
	}

	search, err := svc.GetDiagnosticsPage(jobID, 1, 1, 100, "dangling", false)
	if err != nil {
		t.Fatalf("search page: %v", err)
	}
	if search.Total != onlyErr.Total {
		t.Errorf("search for reason text found %d rows, want %d", search.Total, onlyErr.Total)
	}
}

func TestDiagnosticsPagePagination(t *testing.T) {
	svc := New(&fakeStore{}, testSource())

	jobID, err := svc.ComputeAndPersist(context.Background(), "smp", models.ModMTR, 1, "minecraft:overworld")
	if err != nil {
		t.Fatalf("ComputeAndPersist: %v", err)
	}

	page1, err := svc.GetDiagnosticsPage(jobID, 1, 1, 1, "", false)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	page2, err := svc.GetDiagnosticsPage(jobID, 1, 2, 1, "", false)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	page3, err := svc.GetDiagnosticsPage(jobID, 1, 3, 1, "", false)
	if err != nil {
		t.Fatalf("page 3: %v", err)
	}

	if len(page1.Rows) != 1 || len(page2.Rows) != 1 || len(page3.Rows) != 0 {
		t.Errorf("row counts = %d, %d, %d; want 1, 1, 0",
			len(page1.Rows), len(page2.Rows), len(page3.Rows))
	}
	if page1.Rows[0].Index == page2.Rows[0].Index {
		t.Error("pages returned the same row")
	}
}
