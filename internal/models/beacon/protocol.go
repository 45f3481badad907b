// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

// Package beacon defines the wire types of the Beacon RPC protocol.
//
// Beacon is the telemetry plugin embedded in each Minecraft server. The
// protocol is request/response over one persistent websocket: every
// request carries a correlation id and the shared secret key; the reply
// echoes the id. There is no push channel - all data is pulled.
package beacon

import "github.com/goccy/go-json"

// Request kinds consumed by this core.
const (
	EventGetStatus       = "get_status"
	EventGetServerTime   = "get_server_time"
	EventOnlinePlayers   = "list_online_players"
	EventQueryEntities   = "query_mtr_entities"
	EventRailwaySnapshot = "get_mtr_railway_snapshot"
	EventPlayerLogs      = "get_player_mtr_logs"
	EventLogDetail       = "get_mtr_log_detail"
)

// Request is the envelope for every outbound frame.
type Request struct {
	ID    string          `json:"id"`
	Event string          `json:"event"`
	Key   string          `json:"key"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Response is the envelope for every inbound frame. ID matches the
// request it acknowledges.
type Response struct {
	ID      string          `json:"id"`
	Event   string          `json:"event"`
	Success bool            `json:"success"`
	Message *string         `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ErrorMessage returns the remote failure message, or a placeholder when
// the server reported failure without one.
func (r *Response) ErrorMessage() string {
	if r.Message != nil && *r.Message != "" {
		return *r.Message
	}
	return "unknown error"
}
