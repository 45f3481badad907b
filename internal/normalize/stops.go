// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

package normalize

import (
	"github.com/railatlas/railatlas/internal/blockpos"
	"github.com/railatlas/railatlas/internal/logging"
	"github.com/railatlas/railatlas/internal/models"
)

// Stops resolves a route's ordered platform_ids list against the
// dimension's platforms and stations. Unresolvable platform references
// are skipped with a warning; the surviving stops keep their original
// call order.
//
// Platform positions come from the midpoint of the platform's two packed
// end positions. Station bounds, when present, let terminal-stop
// anchoring and the station-bounds geometry fallback work.
func Stops(serverID string, routeRaw map[string]any, platformsByID, stationsByID map[int64]map[string]any) []models.Stop {
	ids, ok := routeRaw["platform_ids"].([]any)
	if !ok {
		return nil
	}

	stops := make([]models.Stop, 0, len(ids))
	for i, v := range ids {
		pid, ok := blockpos.Int64FromAny(v)
		if !ok {
			logging.Warn().
				Str("server", serverID).
				Int("order", i).
				Msg("[NORMALIZE] Dropping stop with unresolvable platform id")
			continue
		}
		praw, ok := platformsByID[pid]
		if !ok {
			logging.Warn().
				Str("server", serverID).
				Int64("platform_id", pid).
				Int("order", i).
				Msg("[NORMALIZE] Dropping stop whose platform is not in the snapshot")
			continue
		}

		stop := models.Stop{
			Order:      i,
			PlatformID: pid,
		}
		if name, ok := StringField(praw, "name"); ok && name != "" {
			stop.PlatformName = &name
		}
		if dwell, ok := Float64Field(praw, "dwell_seconds"); ok {
			stop.DwellSeconds = dwell
		}
		stop.Position = platformPosition(praw)

		if sid, ok := Int64Field(praw, "station_id"); ok {
			stop.StationID = sid
			if sraw, ok := stationsByID[sid]; ok {
				if name, ok := StringField(sraw, "name"); ok && name != "" {
					stop.StationName = &name
				}
				if b, ok := StationBounds(sraw); ok {
					stop.Bounds = &b
				}
			}
		}
		stops = append(stops, stop)
	}
	return stops
}

// platformPosition is the midpoint of the platform's two end blocks,
// falling back to pos_1 alone when pos_2 is absent.
func platformPosition(praw map[string]any) blockpos.Pos {
	p1, ok1 := PosField(praw, "pos_1")
	p2, ok2 := PosField(praw, "pos_2")
	switch {
	case ok1 && ok2:
		return blockpos.Pos{
			X: (p1.X + p2.X) / 2,
			Y: (p1.Y + p2.Y) / 2,
			Z: (p1.Z + p2.Z) / 2,
		}
	case ok1:
		return p1
	case ok2:
		return p2
	default:
		return blockpos.Pos{}
	}
}

// StationBounds reads a station's x/z bounding box.
func StationBounds(sraw map[string]any) (models.Bounds, bool) {
	minX, ok1 := Float64Field(sraw, "x_min")
	minZ, ok2 := Float64Field(sraw, "z_min")
	maxX, ok3 := Float64Field(sraw, "x_max")
	maxZ, ok4 := Float64Field(sraw, "z_max")
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return models.Bounds{}, false
	}
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	if minZ > maxZ {
		minZ, maxZ = maxZ, minZ
	}
	return models.Bounds{MinX: minX, MinZ: minZ, MaxX: maxX, MaxZ: maxZ}, true
}
