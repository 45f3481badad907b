// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/railatlas/railatlas/internal/logging"
	"github.com/railatlas/railatlas/internal/metrics"
	"github.com/railatlas/railatlas/internal/models"
	"github.com/railatlas/railatlas/internal/models/beacon"
)

// BeaconClient is the RPC client for one server's Beacon websocket.
//
// The protocol is request/response over a single persistent connection:
// every request carries a correlation id and the shared secret key, and
// the reply echoes the id. Call registers a reply channel per id and
// races it against a timer, so the caller never blocks the read loop.
//
// The client does NOT reconnect itself. When the transport drops it fails
// all in-flight calls, marks itself disconnected and stays that way until
// Connect is called again - retry policy lives in the Pool so it stays
// centralized and testable independent of transport.
type BeaconClient struct {
	serverID string
	endpoint string
	key      string
	timeout  time.Duration

	mu                 sync.RWMutex
	conn               *websocket.Conn
	connDone           chan struct{} // closed when the current connection's read loop exits
	connecting         bool
	lastConnectedAt    *time.Time
	lastDisconnectedAt *time.Time
	lastErr            error
	reconnectAttempts  int

	pendingMu sync.Mutex
	pending   map[string]chan *beacon.Response

	// writeMu serializes frame writes; gorilla/websocket allows at most
	// one concurrent writer.
	writeMu sync.Mutex

	limiter *rate.Limiter
}

// beaconCallsPerSecond caps outgoing call rate per server so full log
// drains cannot hammer the game server's tick thread.
const beaconCallsPerSecond = 20

// NewBeaconClient creates a client for one server. The client starts
// disconnected; call Connect (or let the Pool do it).
func NewBeaconClient(serverID, endpoint, key string, timeout time.Duration) *BeaconClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BeaconClient{
		serverID: serverID,
		endpoint: endpoint,
		key:      key,
		timeout:  timeout,
		pending:  make(map[string]chan *beacon.Response),
		limiter:  rate.NewLimiter(beaconCallsPerSecond, beaconCallsPerSecond),
	}
}

// ServerID returns the server this client belongs to.
func (c *BeaconClient) ServerID() string { return c.serverID }

// Endpoint returns the Beacon websocket URL.
func (c *BeaconClient) Endpoint() string { return c.endpoint }

// Connect lazily opens the websocket. It is a no-op when a connection is
// already open or a dial is in flight.
func (c *BeaconClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil || c.connecting {
		c.mu.Unlock()
		return nil
	}
	c.connecting = true
	c.mu.Unlock()

	metrics.ConnectionState.WithLabelValues(c.serverID).Set(1)

	dialer := websocket.Dialer{
		HandshakeTimeout:  10 * time.Second,
		EnableCompression: true,
	}
	conn, resp, err := dialer.DialContext(ctx, c.endpoint, nil)
	if resp != nil {
		defer resp.Body.Close()
	}

	c.mu.Lock()
	c.connecting = false
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("beacon dial failed (HTTP %d): %w", resp.StatusCode, err)
		} else {
			err = fmt.Errorf("beacon dial: %w", err)
		}
		c.lastErr = err
		c.mu.Unlock()
		metrics.ConnectionState.WithLabelValues(c.serverID).Set(0)
		return err
	}

	now := time.Now()
	c.conn = conn
	c.connDone = make(chan struct{})
	c.lastConnectedAt = &now
	c.lastErr = nil
	done := c.connDone
	c.mu.Unlock()

	metrics.ConnectionState.WithLabelValues(c.serverID).Set(2)
	logging.Info().Str("server", c.serverID).Str("endpoint", c.endpoint).Msg("Beacon connected")

	go c.readLoop(conn, done)
	go c.pingLoop(conn, done)

	return nil
}

// Call sends a request and waits for its acknowledgement. timeout <= 0
// uses the client's configured default. It fails immediately with
// ErrNotConnected when the transport is down.
func (c *BeaconClient) Call(ctx context.Context, event string, payload any, timeout time.Duration) (*beacon.Response, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		metrics.RPCCallErrors.WithLabelValues(c.serverID, event, "disconnected").Inc()
		return nil, ErrNotConnected
	}

	if timeout <= 0 {
		timeout = c.timeout
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		data = raw
	}

	id := uuid.NewString()
	frame, err := json.Marshal(beacon.Request{ID: id, Event: event, Key: c.key, Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", event, err)
	}

	replyCh := make(chan *beacon.Response, 1)
	c.pendingMu.Lock()
	c.pending[id] = replyCh
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	start := time.Now()

	c.writeMu.Lock()
	if err := conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		logging.Warn().Err(err).Str("server", c.serverID).Msg("Beacon: failed to set write deadline")
	}
	err = conn.WriteMessage(websocket.TextMessage, frame)
	c.writeMu.Unlock()
	if err != nil {
		metrics.RPCCallErrors.WithLabelValues(c.serverID, event, "transport").Inc()
		return nil, fmt.Errorf("beacon write %s: %w", event, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-replyCh:
		if resp == nil {
			metrics.RPCCallErrors.WithLabelValues(c.serverID, event, "transport").Inc()
			return nil, ErrConnectionClosed
		}
		metrics.RPCCallDuration.WithLabelValues(c.serverID, event).Observe(time.Since(start).Seconds())
		if !resp.Success {
			metrics.RPCCallErrors.WithLabelValues(c.serverID, event, "remote").Inc()
			return nil, &RemoteError{Event: event, Message: resp.ErrorMessage()}
		}
		return resp, nil

	case <-timer.C:
		metrics.RPCCallErrors.WithLabelValues(c.serverID, event, "timeout").Inc()
		return nil, &TimeoutError{Event: event, Timeout: timeout}

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// readLoop consumes frames until the connection drops, routing replies to
// the pending call that registered the id. Unmatched ids happen after a
// call timed out and deregistered; they are dropped at trace level.
func (c *BeaconClient) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(90 * time.Second)); err != nil {
			logging.Warn().Err(err).Str("server", c.serverID).Msg("Beacon: failed to set read deadline")
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(conn, err)
			return
		}

		var resp beacon.Response
		if err := json.Unmarshal(message, &resp); err != nil {
			logging.Error().Err(err).Str("server", c.serverID).Msg("Beacon: failed to parse frame")
			continue
		}

		c.pendingMu.Lock()
		replyCh, found := c.pending[resp.ID]
		c.pendingMu.Unlock()

		if !found {
			logging.Trace().Str("server", c.serverID).Str("id", resp.ID).Str("event", resp.Event).Msg("Beacon: unmatched reply")
			continue
		}
		// Non-blocking: the channel is buffered and receives at most one
		// reply; a second frame with the same id is a protocol violation
		// and is dropped.
		select {
		case replyCh <- &resp:
		default:
		}
	}
}

// pingLoop keeps the connection alive with a control ping every 30s.
// The 90s read deadline in readLoop detects dead peers.
func (c *BeaconClient) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				logging.Debug().Err(err).Str("server", c.serverID).Msg("Beacon ping failed")
				// The read loop will observe the broken connection.
				return
			}
		}
	}
}

// handleDisconnect tears down state for a dropped connection. Only acts
// when conn is still the current connection, so a stale read loop cannot
// clobber a replacement.
func (c *BeaconClient) handleDisconnect(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	now := time.Now()
	c.conn = nil
	c.lastDisconnectedAt = &now
	c.lastErr = cause
	c.mu.Unlock()

	_ = conn.Close()
	metrics.ConnectionState.WithLabelValues(c.serverID).Set(0)
	logging.Warn().Err(cause).Str("server", c.serverID).Msg("Beacon disconnected")

	c.failPending()
}

// failPending delivers a nil reply to every in-flight call so callers
// return ErrConnectionClosed instead of waiting out their timeouts.
// A nil sentinel is used rather than closing the channel because the
// read loop may be racing a real reply onto the same channel.
func (c *BeaconClient) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, replyCh := range c.pending {
		select {
		case replyCh <- nil:
		default:
		}
		delete(c.pending, id)
	}
}

// Disconnect closes the transport. In-flight calls fail with
// ErrConnectionClosed.
func (c *BeaconClient) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	if conn != nil {
		now := time.Now()
		c.conn = nil
		c.lastDisconnectedAt = &now
	}
	c.mu.Unlock()

	if conn == nil {
		return
	}

	if err := conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	); err != nil {
		logging.Debug().Err(err).Str("server", c.serverID).Msg("Beacon: failed to send close frame")
	}
	_ = conn.Close()

	metrics.ConnectionState.WithLabelValues(c.serverID).Set(0)
	c.failPending()
	logging.Info().Str("server", c.serverID).Msg("Beacon connection closed")
}

// ForceReconnect tears the transport down and dials again.
func (c *BeaconClient) ForceReconnect(ctx context.Context) error {
	c.Disconnect()
	return c.Connect(ctx)
}

// IsConnected reports whether the transport is currently open.
func (c *BeaconClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Status returns the operator-visible connection state.
func (c *BeaconClient) Status() models.ConnectionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := models.ConnectionStatus{
		ServerID:           c.serverID,
		Endpoint:           c.endpoint,
		Connected:          c.conn != nil,
		Connecting:         c.connecting,
		LastConnectedAt:    c.lastConnectedAt,
		LastDisconnectedAt: c.lastDisconnectedAt,
		ReconnectAttempts:  c.reconnectAttempts,
	}
	if c.lastErr != nil {
		status.LastError = c.lastErr.Error()
	}
	return status
}

// RecordReconnectAttempt increments the attempt counter shown in Status.
// Called by the pool's backoff loop.
func (c *BeaconClient) RecordReconnectAttempt() {
	c.mu.Lock()
	c.reconnectAttempts++
	c.mu.Unlock()
	metrics.ReconnectAttempts.WithLabelValues(c.serverID).Inc()
}

// ResetReconnectAttempts zeroes the attempt counter. Called on successful
// connection and on explicit operator actions.
func (c *BeaconClient) ResetReconnectAttempts() {
	c.mu.Lock()
	c.reconnectAttempts = 0
	c.mu.Unlock()
}
