// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

// Package metrics exposes Prometheus instrumentation for the RailAtlas
// core: Beacon RPC latency and errors, connection pool state, log sync
// throughput, geometry computation timing and DuckDB query performance.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Beacon RPC metrics

	RPCCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "beacon_rpc_call_duration_seconds",
			Help:    "Duration of Beacon RPC calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"server", "event"},
	)

	RPCCallErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_rpc_call_errors_total",
			Help: "Total number of failed Beacon RPC calls",
		},
		[]string{"server", "event", "error_type"}, // "timeout", "disconnected", "remote", "transport"
	)

	// Connection pool metrics

	ConnectionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "beacon_connection_state",
			Help: "Connection state per server (0=disconnected, 1=connecting, 2=connected)",
		},
		[]string{"server"},
	)

	ReconnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_reconnect_attempts_total",
			Help: "Total number of scheduled reconnection attempts per server",
		},
		[]string{"server"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "beacon_circuit_breaker_state",
			Help: "Circuit breaker state per server (0=closed, 1=half-open, 2=open)",
		},
		[]string{"server"},
	)

	// Log sync metrics

	LogSyncJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "log_sync_jobs_total",
			Help: "Total number of log sync jobs by mode and outcome",
		},
		[]string{"server", "mode", "status"},
	)

	LogRecordsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "log_records_upserted_total",
			Help: "Total number of audit log records upserted into the local cache",
		},
		[]string{"server"},
	)

	// Geometry metrics

	GeometryComputeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geometry_compute_duration_seconds",
			Help:    "Duration of route geometry reconstruction in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"server", "source"},
	)

	EntitiesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "normalizer_entities_dropped_total",
			Help: "Total number of raw entities dropped for unresolvable identifiers",
		},
		[]string{"server", "kind"},
	)

	// Database metrics

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// HTTP metrics

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
