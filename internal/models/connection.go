// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

package models

import "time"

// ConnectionStatus is the operator-visible state of one Beacon connection.
type ConnectionStatus struct {
	ServerID  string `json:"server_id"`
	Endpoint  string `json:"endpoint"`
	Connected bool   `json:"connected"`

	// Connecting is true while a dial attempt is in flight.
	Connecting bool `json:"connecting"`

	LastConnectedAt    *time.Time `json:"last_connected_at,omitempty"`
	LastDisconnectedAt *time.Time `json:"last_disconnected_at,omitempty"`
	LastError          string     `json:"last_error,omitempty"`
	ReconnectAttempts  int        `json:"reconnect_attempts"`
}
