// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

package sync

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotConnected is returned by Call when the client knows its
	// transport is down. The call fails fast instead of queuing on a
	// dead socket; reconnection is the pool's job.
	ErrNotConnected = errors.New("beacon: not connected")

	// ErrConnectionClosed is returned for calls that were in flight when
	// the transport dropped.
	ErrConnectionClosed = errors.New("beacon: connection closed")

	// ErrSyncRunning is returned when a log sync is requested for a
	// server that already has a RUNNING job.
	ErrSyncRunning = errors.New("logsync: a sync job is already running for this server")
)

// TimeoutError is returned when no acknowledgement arrives within the
// call's timeout. Treated like a connectivity error for retry purposes.
type TimeoutError struct {
	Event   string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("beacon: %s timed out after %s", e.Event, e.Timeout)
}

// RemoteError is a failure reported by the Beacon service itself, as
// opposed to a transport problem.
type RemoteError struct {
	Event   string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("beacon: %s failed: %s", e.Event, e.Message)
}
