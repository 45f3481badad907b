// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/railatlas/railatlas/internal/config"
)

// Router assembles the chi handler tree for the admin surface.
type Router struct {
	handler *Handler
	cfg     config.HTTPConfig
}

// NewRouter creates a router serving the given handler set.
func NewRouter(handler *Handler, cfg config.HTTPConfig) *Router {
	return &Router{handler: handler, cfg: cfg}
}

// Setup builds the route tree. Health and metrics sit outside the rate
// limiter so scrapers and probes are never throttled.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(corsHandler(router.cfg))
	r.Use(requestMetrics())

	r.Get("/healthz", router.handler.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rateLimiter(router.cfg))

		r.Route("/connections", func(r chi.Router) {
			r.Get("/", router.handler.Connections)
			r.Post("/{serverID}/connect", router.handler.ConnectionConnect)
			r.Post("/{serverID}/reconnect", router.handler.ConnectionReconnect)
			r.Post("/{serverID}/disconnect", router.handler.ConnectionDisconnect)
		})

		r.Route("/servers/{serverID}", func(r chi.Router) {
			r.Get("/entities", router.handler.Entities)
			r.Post("/refresh", router.handler.MirrorRefresh)

			r.Get("/geometry", router.handler.GeometryList)
			r.Get("/geometry/{routeID}", router.handler.GeometryGet)
			r.Post("/geometry/{routeID}/regenerate", router.handler.GeometryRegenerate)

			r.Get("/logs", router.handler.Logs)
			r.Post("/logs/sync", router.handler.LogSyncStart)
			r.Get("/sync-jobs", router.handler.SyncJobs)
		})

		r.Get("/diagnostics/{jobID}", router.handler.Diagnostics)
	})

	return r
}
