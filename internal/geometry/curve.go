// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

package geometry

import (
	"math"

	"github.com/railatlas/railatlas/internal/models"
)

// Arc sampling bounds. The step count scales with arc length so tight
// station curves stay smooth without oversampling long mainline sweeps.
const (
	minArcSamples = 2
	maxArcSamples = 64
	arcChordLen   = 4.0 // target chord length in blocks
)

// curveChoice is the outcome of picking between a connection's two
// curve candidates.
type curveChoice struct {
	curve     *models.CurveParams
	ambiguous bool // both curves present, no usable hint
}

// pickCurve selects the curve used to render a segment. The primary
// curve wins unless a preferred-curve hint says otherwise; a connection
// offering both curves without a hint is flagged so the diagnostics job
// can surface it instead of the choice being silent.
func pickCurve(conn *models.RailConnection) curveChoice {
	if conn == nil || conn.Primary == nil {
		return curveChoice{}
	}
	if conn.Secondary == nil {
		return curveChoice{curve: conn.Primary}
	}
	if conn.PreferredCurve != nil {
		if *conn.PreferredCurve == 2 {
			return curveChoice{curve: conn.Secondary}
		}
		return curveChoice{curve: conn.Primary}
	}
	return curveChoice{curve: conn.Primary, ambiguous: true}
}

// sampleSegment renders one segment as an ordered point run starting at
// the end nearer to (fromX, fromZ). Straight connections and segments
// without curve metadata become two-point lines.
func sampleSegment(seg models.RailSegment, choice curveChoice, fromX, fromZ float64) []models.Point {
	start := models.Point{X: float64(seg.Start.X), Z: float64(seg.Start.Z)}
	end := models.Point{X: float64(seg.End.X), Z: float64(seg.End.Z)}

	var pts []models.Point
	if c := choice.curve; c != nil && !c.IsStraight && c.R > 0 {
		pts = sampleArc(c)
	} else {
		pts = []models.Point{start, end}
	}

	// Orient the run so its head joins the walk's current position.
	if len(pts) >= 2 {
		head := pts[0]
		tail := pts[len(pts)-1]
		if dist2(tail.X, tail.Z, fromX, fromZ) < dist2(head.X, head.Z, fromX, fromZ) {
			reversePoints(pts)
		}
	}
	return pts
}

// sampleArc renders a circular-arc candidate as a polyline. The curve is
// a circle centered at (h, k) with radius r, swept from tStart to tEnd;
// the reverse flag flips the sweep direction.
func sampleArc(c *models.CurveParams) []models.Point {
	t0, t1 := c.TStart, c.TEnd
	if c.Reverse {
		t0, t1 = t1, t0
	}

	arcLen := math.Abs(t1-t0) * c.R
	steps := int(math.Ceil(arcLen / arcChordLen))
	if steps < minArcSamples {
		steps = minArcSamples
	}
	if steps > maxArcSamples {
		steps = maxArcSamples
	}

	pts := make([]models.Point, 0, steps+1)
	for i := 0; i <= steps; i++ {
		t := t0 + (t1-t0)*float64(i)/float64(steps)
		pts = append(pts, models.Point{
			X: c.H + c.R*math.Cos(t),
			Z: c.K + c.R*math.Sin(t),
		})
	}
	return pts
}

func dist2(x1, z1, x2, z2 float64) float64 {
	dx, dz := x1-x2, z1-z2
	return dx*dx + dz*dz
}

func reversePoints(pts []models.Point) {
	for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
		pts[i], pts[j] = pts[j], pts[i]
	}
}
