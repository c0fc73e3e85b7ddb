// Package client is the client side of live collaboration: the websocket
// transport, update batching, the local-first cache and comment threads.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"collabsync/internal/domain"
	"collabsync/internal/protocol"

	"github.com/gorilla/websocket"
)

// ErrDisconnected is returned for requests made while the transport is down
// or when the connection drops before the acknowledgement arrives.
var ErrDisconnected = errors.New("transport disconnected")

// AckError is a negative acknowledgement from the server.
type AckError struct {
	Event   string
	Message string
}

func (e *AckError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Event, e.Message)
}

// State is the connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnected
)

func (s State) String() string {
	if s == StateConnected {
		return "connected"
	}
	return "disconnected"
}

// TransportConfig configures a Transport.
type TransportConfig struct {
	URL            string        // websocket URL, see WebsocketURL
	Token          string        // bearer token
	RequestTimeout time.Duration // per acknowledged request
	ReconnectDelay time.Duration // fixed delay between dial attempts
	WriteTimeout   time.Duration
}

func (c *TransportConfig) withDefaults() TransportConfig {
	out := *c
	if out.RequestTimeout <= 0 {
		out.RequestTimeout = 10 * time.Second
	}
	if out.ReconnectDelay <= 0 {
		out.ReconnectDelay = 2 * time.Second
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 10 * time.Second
	}
	return out
}

// WebsocketURL derives the collaboration endpoint from the server's HTTP base URL.
func WebsocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.JoinPath("api", "collab", "ws").String(), nil
}

// Transport is one persistent, authenticated connection to the server. It
// reconnects on failure and replays OnConnect hooks so rooms are rejoined.
//
// Inbound events are dispatched on the reader goroutine in arrival order.
type Transport struct {
	cfg    TransportConfig
	dialer *websocket.Dialer
	logger *slog.Logger

	nextID  atomic.Uint64
	writeMu sync.Mutex

	mu        sync.Mutex
	conn      *websocket.Conn
	up        chan struct{} // closed while connected
	pending   map[uint64]chan protocol.AckData
	handlers  map[string][]func(protocol.Envelope)
	onConnect []func(context.Context)
}

// NewTransport creates a disconnected transport. Call Run to connect.
func NewTransport(cfg TransportConfig, logger *slog.Logger) *Transport {
	return &Transport{
		cfg:      cfg.withDefaults(),
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:   logger,
		up:       make(chan struct{}),
		pending:  make(map[uint64]chan protocol.AckData),
		handlers: make(map[string][]func(protocol.Envelope)),
	}
}

// On registers fn for an inbound event. Register before Run.
func (t *Transport) On(event string, fn func(protocol.Envelope)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[event] = append(t.handlers[event], fn)
}

// OnConnect registers a hook run after every successful (re)connect.
func (t *Transport) OnConnect(fn func(context.Context)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onConnect = append(t.onConnect, fn)
}

// State reports the current connection state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return StateConnected
	}
	return StateDisconnected
}

// WaitConnected blocks until the transport is connected or ctx ends.
func (t *Transport) WaitConnected(ctx context.Context) error {
	t.mu.Lock()
	up := t.up
	t.mu.Unlock()
	select {
	case <-up:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run dials and serves the connection until ctx is cancelled, reconnecting
// after a fixed delay whenever the connection is lost.
func (t *Transport) Run(ctx context.Context) error {
	header := http.Header{}
	if t.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+t.cfg.Token)
	}

	for {
		conn, resp, err := t.dialer.DialContext(ctx, t.cfg.URL, header)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			t.logger.Warn("connect failed", "url", t.cfg.URL, "status", status, "error", err)
		} else {
			t.serve(ctx, conn)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.cfg.ReconnectDelay):
		}
	}
}

func (t *Transport) serve(ctx context.Context, conn *websocket.Conn) {
	t.mu.Lock()
	t.conn = conn
	close(t.up)
	hooks := append([]func(context.Context){}, t.onConnect...)
	t.mu.Unlock()
	t.logger.Info("connected", "url", t.cfg.URL)

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Closing the conn is the only way to unblock the reader
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	// hooks issue requests, which need the reader running
	for _, hook := range hooks {
		go hook(connCtx)
	}

	err := t.readLoop(conn)

	t.mu.Lock()
	t.conn = nil
	t.up = make(chan struct{})
	for id, ch := range t.pending {
		close(ch)
		delete(t.pending, id)
	}
	t.mu.Unlock()

	if ctx.Err() == nil {
		t.logger.Warn("disconnected", "error", err)
	}
}

func (t *Transport) readLoop(conn *websocket.Conn) error {
	for {
		var env protocol.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return err
		}

		if env.Event == protocol.EventAck {
			t.deliver(env)
			continue
		}

		t.mu.Lock()
		handlers := t.handlers[env.Event]
		t.mu.Unlock()
		for _, fn := range handlers {
			t.dispatch(fn, env)
		}
	}
}

// dispatch keeps a panicking handler from killing the reader
func (t *Transport) dispatch(fn func(protocol.Envelope), env protocol.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("event handler panicked", "event", env.Event, "panic", r)
		}
	}()
	fn(env)
}

func (t *Transport) deliver(env protocol.Envelope) {
	var ack protocol.AckData
	if err := env.Decode(&ack); err != nil {
		t.logger.Warn("malformed ack", "ack_id", env.AckID, "error", err)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if ch, ok := t.pending[env.AckID]; ok {
		delete(t.pending, env.AckID)
		ch <- ack
	}
}

// Request sends event and waits for its acknowledgement. It fails fast with
// ErrDisconnected while offline and with domain.ErrTimeout when no ack
// arrives within the request timeout. A negative ack is an *AckError.
func (t *Transport) Request(ctx context.Context, event string, payload any) (protocol.AckData, error) {
	id := t.nextID.Add(1)
	env, err := protocol.NewEnvelope(event, id, payload)
	if err != nil {
		return protocol.AckData{}, err
	}

	ch := make(chan protocol.AckData, 1)
	t.mu.Lock()
	conn := t.conn
	if conn == nil {
		t.mu.Unlock()
		return protocol.AckData{}, fmt.Errorf("%s: %w", event, ErrDisconnected)
	}
	t.pending[id] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
	}()

	if err := t.write(conn, env); err != nil {
		conn.Close()
		return protocol.AckData{}, fmt.Errorf("%s: %w", event, ErrDisconnected)
	}

	timer := time.NewTimer(t.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case ack, ok := <-ch:
		if !ok {
			return protocol.AckData{}, fmt.Errorf("%s: %w", event, ErrDisconnected)
		}
		if !ack.Success {
			return ack, &AckError{Event: event, Message: ack.Error}
		}
		return ack, nil
	case <-timer.C:
		return protocol.AckData{}, fmt.Errorf("%s: %w", event, domain.ErrTimeout)
	case <-ctx.Done():
		return protocol.AckData{}, ctx.Err()
	}
}

func (t *Transport) write(conn *websocket.Conn, env protocol.Envelope) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	return conn.WriteJSON(env)
}

// IsRejected reports whether err is a negative acknowledgement whose message
// contains substr.
func IsRejected(err error, substr string) bool {
	var ackErr *AckError
	return errors.As(err, &ackErr) && strings.Contains(ackErr.Message, substr)
}
