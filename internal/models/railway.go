// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

// Package models defines the normalized domain model shared across the
// RailAtlas core: railway entities, rail geometry, audit log records and
// sync job state. Raw Beacon wire payloads live in models/beacon; this
// package holds only the stable shapes the rest of the system works with.
package models

import (
	"time"

	"github.com/railatlas/railatlas/internal/blockpos"
)

// RailwayMod identifies the in-game railway mod an entity belongs to.
// MTR is the only mod currently mirrored, but the identifier is carried
// everywhere so additional mods can share the same tables.
type RailwayMod string

// ModMTR is the Minecraft Transit Railway mod.
const ModMTR RailwayMod = "mtr"

// TransportMode is the vehicle category of a route or rail.
type TransportMode string

// Transport modes used by MTR.
const (
	ModeTrain    TransportMode = "train"
	ModeBoat     TransportMode = "boat"
	ModeCableCar TransportMode = "cable_car"
	ModeAirplane TransportMode = "airplane"
)

// EntityKind is the category of a normalized railway entity.
type EntityKind string

// Entity kinds mirrored from Beacon railway snapshots.
const (
	KindRoute    EntityKind = "route"
	KindStation  EntityKind = "station"
	KindPlatform EntityKind = "platform"
	KindDepot    EntityKind = "depot"
)

// NormalizedEntity is the canonical shape of a railway entity from any
// server. ID is unique within (ServerID, RailwayMod, Kind).
type NormalizedEntity struct {
	ID   int64      `json:"id"`
	Kind EntityKind `json:"kind"`

	// Name is nil when the raw record carries no name. Never an empty
	// string: presentation layers decide how to render unnamed entities.
	Name *string `json:"name"`

	// Color is the raw integer color from the game. Hex rendering happens
	// at the presentation boundary, not here.
	Color int64 `json:"color"`

	Mode             TransportMode `json:"mode"`
	Dimension        string        `json:"dimension"`
	DimensionContext string        `json:"dimension_context"`
	UpdatedAt        time.Time     `json:"updated_at"`
	ServerID         string        `json:"server_id"`
	RailwayMod       RailwayMod    `json:"railway_mod"`

	// Raw preserves the original record for fields the normalizer does
	// not model.
	Raw map[string]any `json:"raw,omitempty"`
}

// CurveParams describes one circular-arc candidate for a rail connection.
// A connection between two nodes can be realized by either of two curves;
// IsStraight marks a degenerate arc rendered as a straight line.
type CurveParams struct {
	H          float64 `json:"h"`  // circle center, x
	K          float64 `json:"k"`  // circle center, z
	R          float64 `json:"r"`  // radius
	TStart     float64 `json:"t_start"`
	TEnd       float64 `json:"t_end"`
	Reverse    bool    `json:"reverse"`
	IsStraight bool    `json:"is_straight"`
}

// RailConnection carries the track metadata of one directed edge.
type RailConnection struct {
	RailType string        `json:"rail_type"`
	Mode     TransportMode `json:"mode"`

	Primary   *CurveParams `json:"primary,omitempty"`
	Secondary *CurveParams `json:"secondary,omitempty"`

	// PreferredCurve is 1 or 2 when the server hints which curve the
	// in-game renderer uses; nil when no hint is present.
	PreferredCurve *int `json:"preferred_curve,omitempty"`
}

// RailSegment is one directed edge of a route's track graph.
type RailSegment struct {
	Start blockpos.Pos    `json:"start"`
	End   blockpos.Pos    `json:"end"`
	Conn  *RailConnection `json:"conn,omitempty"`
}

// PathSource identifies how a geometry path was derived, in descending
// order of fidelity.
type PathSource string

// Path sources.
const (
	SourceRails           PathSource = "rails"
	SourcePlatformCenters PathSource = "platform-centers"
	SourceStationBounds   PathSource = "station-bounds"
)

// Point is a 2D map coordinate (block x/z).
type Point struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

// Bounds is an axis-aligned station bounding box on the x/z plane.
type Bounds struct {
	MinX float64 `json:"min_x"`
	MinZ float64 `json:"min_z"`
	MaxX float64 `json:"max_x"`
	MaxZ float64 `json:"max_z"`
}

// Center returns the midpoint of the bounds.
func (b Bounds) Center() Point {
	return Point{X: (b.MinX + b.MaxX) / 2, Z: (b.MinZ + b.MaxZ) / 2}
}

// GeometryPath is one continuous polyline of a route. A route with
// branches or a broken graph yields multiple paths; exactly one is
// marked primary.
type GeometryPath struct {
	ID        string        `json:"id"`
	Label     *string       `json:"label,omitempty"`
	IsPrimary bool          `json:"is_primary"`
	Source    PathSource    `json:"source"`
	Points    []Point       `json:"points"`
	Segments  []RailSegment `json:"segments,omitempty"`
}

// Stop is one platform call on a route, ordered by Order (0-based,
// strictly increasing). The first and last stops are termini.
type Stop struct {
	Order        int          `json:"order"`
	PlatformID   int64        `json:"platform_id"`
	PlatformName *string      `json:"platform_name,omitempty"`
	StationID    int64        `json:"station_id"`
	StationName  *string      `json:"station_name,omitempty"`
	DwellSeconds float64      `json:"dwell_seconds"`
	Position     blockpos.Pos `json:"position"`
	Bounds       *Bounds      `json:"bounds,omitempty"`
}

// RouteGeometrySnapshot is the persisted, current result of geometry
// reconstruction for one (server, mod, route, dimension). Recomputation
// replaces the row; snapshots are never deleted implicitly.
type RouteGeometrySnapshot struct {
	ServerID   string         `json:"server_id"`
	RailwayMod RailwayMod     `json:"railway_mod"`
	RouteID    int64          `json:"route_id"`
	Dimension  string         `json:"dimension"`
	Source     PathSource     `json:"source"`
	Paths      []GeometryPath `json:"paths"`
	Stops      []Stop         `json:"stops"`

	// CenterOnFirstStop tells map clients that the route's bounding box
	// is too small for fit-to-bounds zooming and they should center on
	// the first stop instead.
	CenterOnFirstStop bool `json:"center_on_first_stop"`

	GeneratedAt time.Time `json:"generated_at"`
}

// RailDiagnostic annotates one rail segment considered during a geometry
// computation. Reason is empty for a clean segment; informational notes
// (coincident-node merges) keep OK true.
type RailDiagnostic struct {
	Index   int         `json:"index"`
	Segment RailSegment `json:"segment"`
	OK      bool        `json:"ok"`
	Reason  string      `json:"reason,omitempty"`
}

// RailDiagnosticsJob holds the diagnostics rows of one geometry
// computation for paginated operator review. Jobs live in memory and are
// invalidated when the route's geometry is recomputed.
type RailDiagnosticsJob struct {
	JobID      string           `json:"job_id"`
	ServerID   string           `json:"server_id"`
	RailwayMod RailwayMod       `json:"railway_mod"`
	RouteID    int64            `json:"route_id"`
	Dimension  string           `json:"dimension"`
	CreatedAt  time.Time        `json:"created_at"`
	Rows       []RailDiagnostic `json:"rows"`
}
