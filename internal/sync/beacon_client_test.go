// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/railatlas/railatlas/internal/blockpos"
	"github.com/railatlas/railatlas/internal/models/beacon"
	"github.com/railatlas/railatlas/internal/normalize"
)

// newBeaconTestServer runs a minimal Beacon endpoint. The handler maps
// each request to a reply; returning nil swallows the request, which is
// how the timeout tests starve a call.
func newBeaconTestServer(t *testing.T, handler func(req beacon.Request) *beacon.Response) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req beacon.Request
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if resp := handler(req); resp != nil {
				if err := conn.WriteJSON(resp); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestBeaconClientCall(t *testing.T) {
	var gotKey string
	endpoint := newBeaconTestServer(t, func(req beacon.Request) *beacon.Response {
		gotKey = req.Key
		return &beacon.Response{
			ID:      req.ID,
			Event:   req.Event,
			Success: true,
			Data:    json.RawMessage(`{"version":"1.3.0","minecraft_version":"1.20.4","player_count":7,"tps":19.8}`),
		}
	})

	c := NewBeaconClient("smp", endpoint, "test-secret", 5*time.Second)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	if !c.IsConnected() {
		t.Fatal("expected client to report connected")
	}

	status, err := c.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.Version != "1.3.0" || status.PlayerCount != 7 {
		t.Errorf("unexpected status decode: %+v", status)
	}
	if gotKey != "test-secret" {
		t.Errorf("request key = %q, want %q", gotKey, "test-secret")
	}
}

func TestBeaconClientSnapshotKeepsPackedPrecision(t *testing.T) {
	// A packed position at x=z=100000 needs more significant bits than
	// float64 carries; loose maps in the reply must round-trip it exactly.
	far := blockpos.Pos{X: 100000, Y: 65, Z: 100000}
	packed := blockpos.Encode(far)

	endpoint := newBeaconTestServer(t, func(req beacon.Request) *beacon.Response {
		data := fmt.Sprintf(`{"last_deployed":1,"dimensions":[{"dimension":"minecraft:overworld","routes":[],"stations":[],"platforms":[{"id":7,"pos_1":%d,"pos_2":%d}],"depots":[],"rails":[]}]}`, packed, packed)
		return &beacon.Response{
			ID:      req.ID,
			Event:   req.Event,
			Success: true,
			Data:    json.RawMessage(data),
		}
	})

	c := NewBeaconClient("smp", endpoint, "test-secret", 5*time.Second)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	snap, err := c.GetRailwaySnapshot(context.Background(), beacon.RailwaySnapshotRequest{})
	if err != nil {
		t.Fatalf("GetRailwaySnapshot: %v", err)
	}
	if len(snap.Dimensions) != 1 || len(snap.Dimensions[0].Platforms) != 1 {
		t.Fatalf("unexpected snapshot shape: %+v", snap)
	}
	got, ok := normalize.PosField(snap.Dimensions[0].Platforms[0], "pos_1")
	if !ok {
		t.Fatal("pos_1 did not decode to a position")
	}
	if got != far {
		t.Errorf("pos_1 = %v, want %v", got, far)
	}
}

func TestBeaconClientRemoteError(t *testing.T) {
	msg := "invalid beacon key"
	endpoint := newBeaconTestServer(t, func(req beacon.Request) *beacon.Response {
		return &beacon.Response{ID: req.ID, Event: req.Event, Success: false, Message: &msg}
	})

	c := NewBeaconClient("smp", endpoint, "wrong-secret", 5*time.Second)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	_, err := c.GetStatus(context.Background())
	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if remoteErr.Message != msg {
		t.Errorf("RemoteError message = %q, want %q", remoteErr.Message, msg)
	}
}

func TestBeaconClientCallTimeout(t *testing.T) {
	endpoint := newBeaconTestServer(t, func(req beacon.Request) *beacon.Response {
		return nil // never reply
	})

	c := NewBeaconClient("smp", endpoint, "test-secret", 5*time.Second)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	_, err := c.Call(context.Background(), beacon.EventGetStatus, nil, 100*time.Millisecond)
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if timeoutErr.Event != beacon.EventGetStatus {
		t.Errorf("TimeoutError event = %q, want %q", timeoutErr.Event, beacon.EventGetStatus)
	}
}

func TestBeaconClientCallWhileDisconnected(t *testing.T) {
	c := NewBeaconClient("smp", "ws://127.0.0.1:1/beacon", "test-secret", time.Second)
	if _, err := c.Call(context.Background(), beacon.EventGetStatus, nil, 0); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestBeaconClientDisconnectFailsPending(t *testing.T) {
	endpoint := newBeaconTestServer(t, func(req beacon.Request) *beacon.Response {
		return nil // never reply
	})

	c := NewBeaconClient("smp", endpoint, "test-secret", 30*time.Second)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Call(context.Background(), beacon.EventGetStatus, nil, 0)
		errCh <- err
	}()

	// Give the call time to register before hanging up.
	time.Sleep(100 * time.Millisecond)
	c.Disconnect()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrConnectionClosed) {
			t.Fatalf("expected ErrConnectionClosed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pending call was not failed by Disconnect")
	}
}

func TestBeaconClientStatusTransitions(t *testing.T) {
	endpoint := newBeaconTestServer(t, func(req beacon.Request) *beacon.Response {
		return &beacon.Response{ID: req.ID, Event: req.Event, Success: true}
	})

	c := NewBeaconClient("smp", endpoint, "test-secret", 5*time.Second)

	st := c.Status()
	if st.Connected || st.Connecting {
		t.Fatalf("fresh client should be disconnected: %+v", st)
	}

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	st = c.Status()
	if !st.Connected || st.LastConnectedAt == nil {
		t.Fatalf("connected client status: %+v", st)
	}

	c.Disconnect()
	st = c.Status()
	if st.Connected || st.LastDisconnectedAt == nil {
		t.Fatalf("disconnected client status: %+v", st)
	}
}
