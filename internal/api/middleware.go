// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/railatlas/railatlas/internal/config"
	"github.com/railatlas/railatlas/internal/logging"
	"github.com/railatlas/railatlas/internal/metrics"
)

// corsHandler builds the CORS middleware from the HTTP config. The
// admin surface is read-mostly, so methods stay narrow.
func corsHandler(cfg config.HTTPConfig) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		MaxAge:         86400,
	})
}

// rateLimiter limits by client IP using the configured window. A zero
// request budget disables limiting.
func rateLimiter(cfg config.HTTPConfig) func(http.Handler) http.Handler {
	if cfg.RateLimitReqs <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	window := cfg.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}
	return httprate.LimitByIP(cfg.RateLimitReqs, window)
}

// requestID attaches an X-Request-ID to the response and the logging
// context. An inbound header is honored so upstream proxies can trace
// through.
func requestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = logging.GenerateRequestID()
			}
			w.Header().Set("X-Request-ID", id)
			ctx := logging.ContextWithRequestID(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requestMetrics observes request duration per method, route pattern
// and status. Uses the chi route pattern rather than the raw path so
// label cardinality stays bounded.
func requestMetrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			next.ServeHTTP(ww, r)

			pattern := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				pattern = rctx.RoutePattern()
			}
			metrics.HTTPRequestDuration.WithLabelValues(
				r.Method,
				pattern,
				strconv.Itoa(ww.Status()),
			).Observe(time.Since(started).Seconds())
		})
	}
}
