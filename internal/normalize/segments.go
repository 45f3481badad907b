// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

package normalize

import (
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/railatlas/railatlas/internal/blockpos"
	"github.com/railatlas/railatlas/internal/logging"
	"github.com/railatlas/railatlas/internal/models"
	"github.com/railatlas/railatlas/internal/models/beacon"
)

// Segments flattens a dimension's raw rail-node list into directed edges.
// Nodes or connections whose packed position cannot be parsed are dropped
// with a warning; a single bad node must not sink the whole graph.
func Segments(serverID string, nodes []beacon.RawRailNode) []models.RailSegment {
	var segs []models.RailSegment
	for _, node := range nodes {
		start, ok := PackedPos(node.NodePos)
		if !ok {
			logging.Warn().
				Str("server", serverID).
				Str("node_pos", string(node.NodePos)).
				Msg("[NORMALIZE] Dropping rail node with unparsable position")
			continue
		}
		for _, rc := range node.Connections {
			end, ok := PackedPos(rc.NodePos)
			if !ok {
				logging.Warn().
					Str("server", serverID).
					Str("node_pos", string(rc.NodePos)).
					Msg("[NORMALIZE] Dropping rail connection with unparsable position")
				continue
			}
			segs = append(segs, models.RailSegment{
				Start: start,
				End:   end,
				Conn:  connection(rc),
			})
		}
	}
	return segs
}

// PackedPos parses a packed position delivered as a JSON number or a
// quoted string. The raw bytes are parsed as text: routing through a
// float64 would mangle the high x bits of large packed values.
func PackedPos(raw json.RawMessage) (blockpos.Pos, bool) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return blockpos.Pos{}, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return blockpos.Pos{}, false
	}
	return blockpos.Decode(n), true
}

func connection(rc beacon.RawRailConnection) *models.RailConnection {
	conn := &models.RailConnection{
		RailType: rc.RailType,
		Mode:     modeFromString(rc.Mode),
		Primary: &models.CurveParams{
			H:          rc.H1,
			K:          rc.K1,
			R:          rc.R1,
			TStart:     rc.TStart1,
			TEnd:       rc.TEnd1,
			Reverse:    rc.ReverseT1,
			IsStraight: rc.IsStraight1,
		},
	}
	if rc.HasSecondary {
		conn.Secondary = &models.CurveParams{
			H:          rc.H2,
			K:          rc.K2,
			R:          rc.R2,
			TStart:     rc.TStart2,
			TEnd:       rc.TEnd2,
			Reverse:    rc.ReverseT2,
			IsStraight: rc.IsStraight2,
		}
	}
	if rc.PreferredCurve == 1 || rc.PreferredCurve == 2 {
		pc := rc.PreferredCurve
		conn.PreferredCurve = &pc
	}
	return conn
}

func modeFromString(s string) models.TransportMode {
	switch models.TransportMode(s) {
	case models.ModeTrain, models.ModeBoat, models.ModeCableCar, models.ModeAirplane:
		return models.TransportMode(s)
	default:
		return models.ModeTrain
	}
}
