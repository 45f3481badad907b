// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

// Package normalize maps raw Beacon railway payloads into the canonical
// model. Raw records are loosely typed maps with varying optional fields
// and nullable ids; everything downstream of this package works with
// models.NormalizedEntity and friends only.
package normalize

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/railatlas/railatlas/internal/blockpos"
	"github.com/railatlas/railatlas/internal/logging"
	"github.com/railatlas/railatlas/internal/metrics"
	"github.com/railatlas/railatlas/internal/models"
	"github.com/railatlas/railatlas/internal/models/beacon"
)

// SnapshotMeta carries the owning-snapshot attributes every normalized
// entity inherits. Dimension and context come from here rather than the
// individual records, which rarely carry them.
type SnapshotMeta struct {
	ServerID         string
	RailwayMod       models.RailwayMod
	Dimension        string
	DimensionContext string
	UpdatedAt        time.Time
}

// kindForCategory maps the wire categories of a railway snapshot.
var kindForCategory = map[string]models.EntityKind{
	"routes":    models.KindRoute,
	"stations":  models.KindStation,
	"platforms": models.KindPlatform,
	"depots":    models.KindDepot,
}

// Entities normalizes one category of raw records. Records with an
// unresolvable id are dropped with a warning rather than propagated as
// partially valid data.
func Entities(meta SnapshotMeta, kind models.EntityKind, raws []map[string]any) []models.NormalizedEntity {
	out := make([]models.NormalizedEntity, 0, len(raws))
	for _, raw := range raws {
		e, ok := Entity(meta, kind, raw)
		if !ok {
			logging.Warn().
				Str("server", meta.ServerID).
				Str("kind", string(kind)).
				Str("dimension", meta.Dimension).
				Msg("[NORMALIZE] Dropping entity with unresolvable id")
			metrics.EntitiesDropped.WithLabelValues(meta.ServerID, string(kind)).Inc()
			continue
		}
		out = append(out, e)
	}
	return out
}

// Entity normalizes a single raw record. The second return is false when
// the record has no usable id.
func Entity(meta SnapshotMeta, kind models.EntityKind, raw map[string]any) (models.NormalizedEntity, bool) {
	id, ok := Int64Field(raw, "id")
	if !ok {
		return models.NormalizedEntity{}, false
	}

	e := models.NormalizedEntity{
		ID:               id,
		Kind:             kind,
		Name:             nameField(raw),
		Mode:             TransportModeField(raw),
		Dimension:        meta.Dimension,
		DimensionContext: meta.DimensionContext,
		UpdatedAt:        meta.UpdatedAt,
		ServerID:         meta.ServerID,
		RailwayMod:       meta.RailwayMod,
		Raw:              raw,
	}
	if color, ok := Int64Field(raw, "color"); ok {
		e.Color = color
	}
	return e, true
}

// Dimension normalizes every entity category of one raw dimension.
func Dimension(meta SnapshotMeta, dim beacon.RailwayDimension) []models.NormalizedEntity {
	var out []models.NormalizedEntity
	out = append(out, Entities(meta, models.KindRoute, dim.Routes)...)
	out = append(out, Entities(meta, models.KindStation, dim.Stations)...)
	out = append(out, Entities(meta, models.KindPlatform, dim.Platforms)...)
	out = append(out, Entities(meta, models.KindDepot, dim.Depots)...)
	return out
}

// nameField returns the record's name, or nil when missing or empty.
// Normalized entities never carry an empty-string name.
func nameField(raw map[string]any) *string {
	s, ok := StringField(raw, "name")
	if !ok || s == "" {
		return nil
	}
	return &s
}

// TransportModeField reads the record's transport mode, defaulting to
// train, which is what MTR itself assumes for untagged rails.
func TransportModeField(raw map[string]any) models.TransportMode {
	s, ok := StringField(raw, "transport_mode")
	if !ok {
		return models.ModeTrain
	}
	switch models.TransportMode(s) {
	case models.ModeTrain, models.ModeBoat, models.ModeCableCar, models.ModeAirplane:
		return models.TransportMode(s)
	default:
		return models.ModeTrain
	}
}

// Int64Field reads an integer field that may arrive as a JSON number,
// an integer or a base-10 string.
func Int64Field(raw map[string]any, key string) (int64, bool) {
	v, ok := raw[key]
	if !ok || v == nil {
		return 0, false
	}
	p, ok := blockpos.Int64FromAny(v)
	return p, ok
}

// StringField reads a string field, tolerating absence.
func StringField(raw map[string]any, key string) (string, bool) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Float64Field reads a numeric field delivered as float64 or integer.
func Float64Field(raw map[string]any, key string) (float64, bool) {
	switch v := raw[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// PosField decodes a packed block position field.
func PosField(raw map[string]any, key string) (blockpos.Pos, bool) {
	v, ok := raw[key]
	if !ok || v == nil {
		return blockpos.Pos{}, false
	}
	return blockpos.FromAny(v)
}
