// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

package beacon

import "github.com/goccy/go-json"

// StatusData is the reply to get_status.
type StatusData struct {
	Version      string  `json:"version"`
	MinecraftVer string  `json:"minecraft_version"`
	MTRVersion   *string `json:"mtr_version,omitempty"`
	PlayerCount  int     `json:"player_count"`
	TPS          float64 `json:"tps"`
}

// ServerTimeData is the reply to get_server_time.
type ServerTimeData struct {
	// EpochMillis is the server wall clock.
	EpochMillis int64 `json:"epoch_millis"`

	// GameTicks is the in-game day time of the overworld.
	GameTicks int64 `json:"game_ticks"`
}

// OnlinePlayer is one entry of the list_online_players reply.
type OnlinePlayer struct {
	Name      string  `json:"name"`
	UUID      string  `json:"uuid"`
	Dimension string  `json:"dimension"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
}

// OnlinePlayersData is the reply to list_online_players.
type OnlinePlayersData struct {
	Players []OnlinePlayer `json:"players"`
}

// EntityQueryRequest scopes a query_mtr_entities call to one category of
// rows with limit/offset paging.
type EntityQueryRequest struct {
	Category string `json:"category"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// EntityQueryData is the reply to query_mtr_entities. Truncated is set
// when the server clipped the result to Limit.
type EntityQueryData struct {
	Category  string           `json:"category"`
	Rows      []map[string]any `json:"rows"`
	Limit     int              `json:"limit"`
	Offset    int              `json:"offset"`
	Truncated bool             `json:"truncated"`
}

// RailwaySnapshotRequest selects the dimensions of a
// get_mtr_railway_snapshot call. Empty means all dimensions.
type RailwaySnapshotRequest struct {
	Dimensions []string `json:"dimensions,omitempty"`
}

// RailwaySnapshotData is the reply to get_mtr_railway_snapshot: the full
// per-dimension railway state plus the mod's last deploy timestamp, used
// to skip recomputation when nothing changed.
type RailwaySnapshotData struct {
	LastDeployed int64              `json:"last_deployed"`
	Dimensions   []RailwayDimension `json:"dimensions"`
}

// RailwayDimension is the raw railway state of one dimension.
type RailwayDimension struct {
	Dimension string `json:"dimension"`

	// DimensionContext is the display context string for the dimension
	// (e.g. "minecraft:the_nether outer ring"); entities inherit it.
	DimensionContext string `json:"dimension_context,omitempty"`

	Routes    []map[string]any `json:"routes"`
	Stations  []map[string]any `json:"stations"`
	Platforms []map[string]any `json:"platforms"`
	Depots    []map[string]any `json:"depots"`
	Rails     []RawRailNode    `json:"rails"`
}

// RawRailNode is one node of the per-block track graph. NodePos is a
// packed position delivered as a JSON number or string.
type RawRailNode struct {
	NodePos     json.RawMessage     `json:"node_pos"`
	Connections []RawRailConnection `json:"connections"`
}

// RawRailConnection is one directed edge out of a rail node, carrying
// both curve candidates. The second curve's fields are zero when the
// connection has only one realization.
type RawRailConnection struct {
	NodePos  json.RawMessage `json:"node_pos"`
	RailType string          `json:"rail_type"`
	Mode     string          `json:"transport_mode"`

	H1          float64 `json:"h_1"`
	K1          float64 `json:"k_1"`
	R1          float64 `json:"r_1"`
	TStart1     float64 `json:"t_start_1"`
	TEnd1       float64 `json:"t_end_1"`
	ReverseT1   bool    `json:"reverse_t_1"`
	IsStraight1 bool    `json:"is_straight_1"`

	H2          float64 `json:"h_2"`
	K2          float64 `json:"k_2"`
	R2          float64 `json:"r_2"`
	TStart2     float64 `json:"t_start_2"`
	TEnd2       float64 `json:"t_end_2"`
	ReverseT2   bool    `json:"reverse_t_2"`
	IsStraight2 bool    `json:"is_straight_2"`

	// HasSecondary distinguishes an absent second curve from a zeroed one.
	HasSecondary bool `json:"has_secondary,omitempty"`

	// PreferredCurve is 1 or 2 when the server hints which curve the
	// in-game renderer uses; 0 when no hint is present.
	PreferredCurve int `json:"preferred_curve,omitempty"`
}

// PlayerLogsRequest pages through the remote audit log. All=true drains
// the entire history; otherwise From/To (epoch millis) bound the window.
type PlayerLogsRequest struct {
	All        bool   `json:"all,omitempty"`
	From       int64  `json:"from,omitempty"`
	To         int64  `json:"to,omitempty"`
	PlayerUUID string `json:"player_uuid,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

// RawLogRecord is one audit-log row as delivered by Beacon. Loosely typed
// fields (position, payload blobs) stay raw for the normalizer to decode.
type RawLogRecord struct {
	ID          int64           `json:"id"`
	TimestampMs int64           `json:"timestamp"`
	PlayerName  string          `json:"player_name"`
	PlayerUUID  string          `json:"player_uuid"`
	ChangeType  string          `json:"change_type"`
	EntityClass string          `json:"entity_class"`
	EntityID    int64           `json:"entity_id"`
	EntityName  *string         `json:"entity_name,omitempty"`
	Pos         json.RawMessage `json:"pos,omitempty"`
	OldData     json.RawMessage `json:"old_data,omitempty"`
	NewData     json.RawMessage `json:"new_data,omitempty"`
	SourceFile  string          `json:"source_file,omitempty"`
	SourceLine  int             `json:"source_line,omitempty"`
	DimContext  string          `json:"dimension_context,omitempty"`
}

// PlayerLogsData is the reply to get_player_mtr_logs.
type PlayerLogsData struct {
	Logs    []RawLogRecord `json:"logs"`
	Total   int64          `json:"total"`
	HasMore bool           `json:"has_more"`
}

// LogDetailRequest fetches one audit-log row by id.
type LogDetailRequest struct {
	LogID int64 `json:"log_id"`
}

// LogDetailData is the reply to get_mtr_log_detail.
type LogDetailData struct {
	Log RawLogRecord `json:"log"`
}
