// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

package sync

import (
	"context"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/railatlas/railatlas/internal/logging"
	"github.com/railatlas/railatlas/internal/metrics"
	"github.com/railatlas/railatlas/internal/models/beacon"
)

// BreakerClient wraps a BeaconClient with circuit breaker protection so a
// Minecraft server that is up but misbehaving (slow plugin, overloaded tick
// loop) does not have every RPC wait out its full timeout.
//
// The breaker uses real time for its interval and timeout calculations.
// Tests exercise the wrapped client directly; the breaker only decides when
// to stop issuing calls, never what the calls return.
type BreakerClient struct {
	client *BeaconClient
	cb     *gobreaker.CircuitBreaker[any]
}

// NewBreakerClient wraps client with a circuit breaker named after the
// server id. The circuit opens after a 60% failure rate across at least 10
// requests, allows 3 probes in half-open state, and waits 2 minutes before
// attempting recovery.
func NewBreakerClient(client *BeaconClient) *BreakerClient {
	name := client.ServerID()

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			if failureRatio >= 0.6 {
				logging.Warn().
					Str("server", name).
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[BREAKER] Opening circuit")
				return true
			}
			return false
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("server", name).
				Str("from", breakerStateString(from)).
				Str("to", breakerStateString(to)).
				Msg("[BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateFloat(to))
		},
	})

	return &BreakerClient{client: client, cb: cb}
}

// Client returns the wrapped BeaconClient for connection management.
func (bc *BreakerClient) Client() *BeaconClient { return bc.client }

// breakerCall runs fn through the circuit breaker and type-asserts the
// result back to *T.
func breakerCall[T any](bc *BreakerClient, fn func() (*T, error)) (*T, error) {
	result, err := bc.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		return nil, err
	}
	typed, ok := result.(*T)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

func (bc *BreakerClient) GetStatus(ctx context.Context) (*beacon.StatusData, error) {
	return breakerCall(bc, func() (*beacon.StatusData, error) {
		return bc.client.GetStatus(ctx)
	})
}

func (bc *BreakerClient) GetServerTime(ctx context.Context) (*beacon.ServerTimeData, error) {
	return breakerCall(bc, func() (*beacon.ServerTimeData, error) {
		return bc.client.GetServerTime(ctx)
	})
}

func (bc *BreakerClient) ListOnlinePlayers(ctx context.Context) (*beacon.OnlinePlayersData, error) {
	return breakerCall(bc, func() (*beacon.OnlinePlayersData, error) {
		return bc.client.ListOnlinePlayers(ctx)
	})
}

func (bc *BreakerClient) QueryEntities(ctx context.Context, req beacon.EntityQueryRequest) (*beacon.EntityQueryData, error) {
	return breakerCall(bc, func() (*beacon.EntityQueryData, error) {
		return bc.client.QueryEntities(ctx, req)
	})
}

func (bc *BreakerClient) GetRailwaySnapshot(ctx context.Context, req beacon.RailwaySnapshotRequest) (*beacon.RailwaySnapshotData, error) {
	return breakerCall(bc, func() (*beacon.RailwaySnapshotData, error) {
		return bc.client.GetRailwaySnapshot(ctx, req)
	})
}

func (bc *BreakerClient) GetPlayerLogs(ctx context.Context, req beacon.PlayerLogsRequest) (*beacon.PlayerLogsData, error) {
	return breakerCall(bc, func() (*beacon.PlayerLogsData, error) {
		return bc.client.GetPlayerLogs(ctx, req)
	})
}

func (bc *BreakerClient) GetLogDetail(ctx context.Context, logID int64) (*beacon.LogDetailData, error) {
	return breakerCall(bc, func() (*beacon.LogDetailData, error) {
		return bc.client.GetLogDetail(ctx, logID)
	})
}

func breakerStateFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func breakerStateString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
