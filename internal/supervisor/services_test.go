// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/railatlas/railatlas/internal/logging"
)

type mockHTTPServer struct {
	listenErr   error
	listenGate  chan struct{}
	shutdownErr error
	shutdowns   int
}

func (m *mockHTTPServer) ListenAndServe() error {
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.listenGate
	return nil
}

func (m *mockHTTPServer) Shutdown(context.Context) error {
	m.shutdowns++
	if m.listenGate != nil {
		close(m.listenGate)
	}
	return m.shutdownErr
}

func TestHTTPServerServiceGracefulShutdown(t *testing.T) {
	srv := &mockHTTPServer{listenGate: make(chan struct{})}
	svc := NewHTTPServerService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if srv.shutdowns != 1 {
		t.Fatalf("shutdowns = %d, want 1", srv.shutdowns)
	}
}

func TestHTTPServerServiceStartFailure(t *testing.T) {
	srv := &mockHTTPServer{listenErr: errors.New("bind: address already in use")}
	svc := NewHTTPServerService(srv, time.Second)

	err := svc.Serve(context.Background())
	if err == nil {
		t.Fatal("expected error from failed listen")
	}
	if srv.shutdowns != 0 {
		t.Fatalf("shutdowns = %d, want 0", srv.shutdowns)
	}
}

func TestTreeServesAndStops(t *testing.T) {
	tree := NewTree(logging.NewSlogLogger(), DefaultTreeConfig())

	srv := &mockHTTPServer{listenGate: make(chan struct{})}
	tree.AddAPIService(NewHTTPServerService(srv, time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("tree stopped with %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("tree did not stop after cancel")
	}
}
