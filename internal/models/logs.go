// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

package models

import (
	"time"

	"github.com/railatlas/railatlas/internal/blockpos"
)

// MtrLogRecord is one mirrored row of the remote MTR audit log.
// (ServerID, BeaconLogID) is the idempotency key: upserting the same key
// twice overwrites mutable fields but never duplicates the row.
type MtrLogRecord struct {
	ServerID    string     `json:"server_id"`
	RailwayMod  RailwayMod `json:"railway_mod"`
	BeaconLogID int64      `json:"beacon_log_id"`

	Timestamp  time.Time `json:"timestamp"`
	PlayerName string    `json:"player_name"`
	PlayerUUID string    `json:"player_uuid"`

	// ChangeType is the audit verb reported by the mod (create, update,
	// delete and friends); stored verbatim.
	ChangeType  string        `json:"change_type"`
	EntityClass string        `json:"entity_class"`
	EntryID     int64         `json:"entry_id"`
	EntityName  *string       `json:"entity_name,omitempty"`
	Position    *blockpos.Pos `json:"position,omitempty"`

	// OldData and NewData are opaque JSON payloads from the log stream.
	OldData string `json:"old_data,omitempty"`
	NewData string `json:"new_data,omitempty"`

	SourceFile       string `json:"source_file,omitempty"`
	SourceLine       int    `json:"source_line,omitempty"`
	DimensionContext string `json:"dimension_context,omitempty"`
}

// SyncMode selects how much remote history a log sync drains.
type SyncMode string

// Sync modes.
const (
	// SyncFull drains the entire remote log history. Used once per server
	// on first sync, or on operator-triggered re-sync.
	SyncFull SyncMode = "full"

	// SyncIncremental requests only the trailing window (last 2 days by
	// default) and converges via upsert.
	SyncIncremental SyncMode = "incremental"
)

// SyncStatus is the lifecycle state of a LogSyncJob.
type SyncStatus string

// Sync job statuses. SUCCESS and FAILED are terminal.
const (
	SyncPending SyncStatus = "PENDING"
	SyncRunning SyncStatus = "RUNNING"
	SyncSuccess SyncStatus = "SUCCESS"
	SyncFailed  SyncStatus = "FAILED"
)

// LogSyncJob tracks one log sync invocation. A server has at most one
// RUNNING job at a time; failures stay FAILED with Message set for
// operator-triggered retry.
type LogSyncJob struct {
	ID       string     `json:"id"`
	ServerID string     `json:"server_id"`
	Mode     SyncMode   `json:"mode"`
	Status   SyncStatus `json:"status"`
	Message  string     `json:"message,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
