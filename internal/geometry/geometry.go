// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

// Package geometry reconstructs drawable route paths from a route's stop
// sequence and the dimension's rail-segment graph.
//
// The reconstruction is deterministic: identical stop and segment input
// always yields identical point sequences and the same primary-path
// selection, so snapshots can be diffed and recomputation is idempotent.
package geometry

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/railatlas/railatlas/internal/metrics"
	"github.com/railatlas/railatlas/internal/models"
)

// minFitSpan is the smallest bounding-box extent, in blocks, that map
// clients can fit-zoom to. Routes smaller than this are flagged for
// center-on-first-stop handling instead.
const minFitSpan = 16.0

// joinEpsilon deduplicates the shared joint point where two sampled
// segment runs meet.
const joinEpsilon = 1e-6

// Input is one route's reconstruction request. Segments must already be
// restricted to the route's dimension.
type Input struct {
	ServerID   string
	RailwayMod models.RailwayMod
	RouteID    int64
	Dimension  string
	Stops      []models.Stop
	Segments   []models.RailSegment
}

// Result is the reconstructed geometry plus the per-segment diagnostics
// rows describing what the computation saw.
type Result struct {
	Source            models.PathSource
	Paths             []models.GeometryPath
	Stops             []models.Stop
	CenterOnFirstStop bool
	Diagnostics       []models.RailDiagnostic
}

// Reconstruct builds the route's point paths. It walks the rail graph
// stop to stop where possible and degrades to platform-center and then
// station-bounds polylines when the graph cannot carry the route.
func Reconstruct(in Input) Result {
	started := time.Now()

	stops := make([]models.Stop, len(in.Stops))
	copy(stops, in.Stops)
	sort.SliceStable(stops, func(i, j int) bool { return stops[i].Order < stops[j].Order })

	g := buildGraph(in.Segments)
	diags := baseDiagnostics(g, in.Segments)

	res := Result{
		Source:      models.SourceRails,
		Stops:       stops,
		Diagnostics: diags,
	}

	if len(stops) >= 2 && len(g.nodes) > 0 {
		res.Paths = walkRoute(g, in, stops, diags)
	}

	if len(res.Paths) == 0 {
		if pts := platformCenterPoints(stops); len(pts) >= 2 {
			res.Source = models.SourcePlatformCenters
			res.Paths = []models.GeometryPath{singlePath(in.RouteID, models.SourcePlatformCenters, pts)}
		} else if pts := stationBoundsPoints(stops); len(pts) >= 2 {
			res.Source = models.SourceStationBounds
			res.Paths = []models.GeometryPath{singlePath(in.RouteID, models.SourceStationBounds, pts)}
		}
	}

	markPrimary(res.Paths)
	res.CenterOnFirstStop = centerOnFirstStop(res.Paths, stops)

	metrics.GeometryComputeDuration.
		WithLabelValues(in.ServerID, string(res.Source)).
		Observe(time.Since(started).Seconds())
	return res
}

// baseDiagnostics creates one row per input segment, flagging dangling
// endpoints and noting coincident-node merges. Merge notes keep OK true;
// a merged node is how epsilon equality is supposed to work, it is only
// surfaced because it often explains surprising walk results.
func baseDiagnostics(g *graph, segments []models.RailSegment) []models.RailDiagnostic {
	deg := g.degrees()
	diags := make([]models.RailDiagnostic, len(segments))
	for i, seg := range segments {
		d := models.RailDiagnostic{Index: i, Segment: seg, OK: true}
		from, to := g.segNodes[i][0], g.segNodes[i][1]
		if deg[from] <= 1 || deg[to] <= 1 {
			d.OK = false
			d.Reason = "dangling endpoint"
		} else if g.nodes[from].merged > 1 || g.nodes[to].merged > 1 {
			d.Reason = "coincident-node merge"
		}
		diags[i] = d
	}
	return diags
}

// walkRoute walks the graph between consecutive stop anchors, emitting
// one GeometryPath per contiguous run of reachable stop pairs.
func walkRoute(g *graph, in Input, stops []models.Stop, diags []models.RailDiagnostic) []models.GeometryPath {
	anchors := make([]int, len(stops))
	for i := range stops {
		anchors[i] = anchorNode(g, stops, i)
	}

	var paths []models.GeometryPath
	var points []models.Point
	var segs []models.RailSegment

	flush := func() {
		if len(points) >= 2 {
			id := fmt.Sprintf("route-%d-path-%d", in.RouteID, len(paths))
			paths = append(paths, models.GeometryPath{
				ID:       id,
				Source:   models.SourceRails,
				Points:   points,
				Segments: segs,
			})
		}
		points = nil
		segs = nil
	}

	for i := 0; i+1 < len(stops); i++ {
		a, b := anchors[i], anchors[i+1]
		if a < 0 || b < 0 {
			flush()
			continue
		}
		walked := g.walk(a, b)
		if walked == nil {
			flush()
			continue
		}

		curX, curZ := g.nodes[a].x, g.nodes[a].z
		if len(points) > 0 {
			curX, curZ = points[len(points)-1].X, points[len(points)-1].Z
		}
		for _, si := range walked {
			seg := in.Segments[si]
			choice := pickCurve(seg.Conn)
			if choice.ambiguous && diags[si].Reason == "" {
				diags[si].Reason = "ambiguous curve"
			}
			run := sampleSegment(seg, choice, curX, curZ)
			points = appendRun(points, run)
			segs = append(segs, seg)
			if len(points) > 0 {
				curX, curZ = points[len(points)-1].X, points[len(points)-1].Z
			}
		}
	}
	flush()
	return paths
}

// anchorNode locates the graph node a stop attaches to. Interior stops
// take the nearest node. Terminal stops prefer the closest node ahead of
// the stop along its direction of travel, because terminal platforms are
// frequently offset behind the rail ending; nearest-by-distance is the
// fallback when no node lies ahead or no neighbor stop exists to infer
// a direction from.
func anchorNode(g *graph, stops []models.Stop, i int) int {
	sx := float64(stops[i].Position.X)
	sz := float64(stops[i].Position.Z)

	terminal := i == 0 || i == len(stops)-1
	if terminal && len(stops) >= 2 {
		var dx, dz float64
		if i == 0 {
			dx = float64(stops[1].Position.X) - sx
			dz = float64(stops[1].Position.Z) - sz
		} else {
			dx = sx - float64(stops[i-1].Position.X)
			dz = sz - float64(stops[i-1].Position.Z)
		}
		if dx != 0 || dz != 0 {
			if n := g.nearestAhead(sx, sz, dx, dz); n >= 0 {
				return n
			}
		}
	}
	return g.nearest(sx, sz)
}

// appendRun joins a sampled segment run onto the path, dropping the
// duplicated joint point where runs meet.
func appendRun(points, run []models.Point) []models.Point {
	for _, p := range run {
		if n := len(points); n > 0 {
			last := points[n-1]
			if math.Abs(last.X-p.X) < joinEpsilon && math.Abs(last.Z-p.Z) < joinEpsilon {
				continue
			}
		}
		points = append(points, p)
	}
	return points
}

func platformCenterPoints(stops []models.Stop) []models.Point {
	var pts []models.Point
	for _, s := range stops {
		pts = append(pts, models.Point{X: float64(s.Position.X), Z: float64(s.Position.Z)})
	}
	return dedupePoints(pts)
}

func stationBoundsPoints(stops []models.Stop) []models.Point {
	var pts []models.Point
	for _, s := range stops {
		if s.Bounds == nil {
			continue
		}
		pts = append(pts, s.Bounds.Center())
	}
	return dedupePoints(pts)
}

func dedupePoints(pts []models.Point) []models.Point {
	var out []models.Point
	for _, p := range pts {
		if n := len(out); n > 0 && out[n-1] == p {
			continue
		}
		out = append(out, p)
	}
	return out
}

func singlePath(routeID int64, source models.PathSource, pts []models.Point) models.GeometryPath {
	return models.GeometryPath{
		ID:     fmt.Sprintf("route-%d-path-0", routeID),
		Source: source,
		Points: pts,
	}
}

// markPrimary flags the longest path. Ties keep the earliest path so the
// selection is deterministic.
func markPrimary(paths []models.GeometryPath) {
	best := -1
	bestLen := 0
	for i := range paths {
		if len(paths[i].Points) > bestLen {
			best = i
			bestLen = len(paths[i].Points)
		}
	}
	if best >= 0 {
		paths[best].IsPrimary = true
	}
}

// centerOnFirstStop reports whether the combined bounding box of all
// paths is too small for fit-to-bounds zooming.
func centerOnFirstStop(paths []models.GeometryPath, stops []models.Stop) bool {
	if len(stops) == 0 {
		return false
	}

	minX, minZ := math.MaxFloat64, math.MaxFloat64
	maxX, maxZ := -math.MaxFloat64, -math.MaxFloat64
	n := 0
	for _, p := range paths {
		for _, pt := range p.Points {
			minX = math.Min(minX, pt.X)
			minZ = math.Min(minZ, pt.Z)
			maxX = math.Max(maxX, pt.X)
			maxZ = math.Max(maxZ, pt.Z)
			n++
		}
	}
	if n == 0 {
		return true
	}
	return math.Max(maxX-minX, maxZ-minZ) < minFitSpan
}
