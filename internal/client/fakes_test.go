package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	models "collabsync/internal/domain/models/collab"
	"collabsync/internal/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sentRequest struct {
	event   string
	payload any
}

// fakeChannel records requests and answers them with respond.
type fakeChannel struct {
	mu       sync.Mutex
	state    State
	requests []sentRequest
	respond  func(event string, payload any) (protocol.AckData, error)
	handlers map[string][]func(protocol.Envelope)
	hooks    []func(context.Context)
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		state:    StateConnected,
		handlers: make(map[string][]func(protocol.Envelope)),
		respond: func(string, any) (protocol.AckData, error) {
			return protocol.AckData{Success: true}, nil
		},
	}
}

func (c *fakeChannel) Request(ctx context.Context, event string, payload any) (protocol.AckData, error) {
	c.mu.Lock()
	c.requests = append(c.requests, sentRequest{event: event, payload: payload})
	respond := c.respond
	state := c.state
	c.mu.Unlock()

	if state != StateConnected {
		return protocol.AckData{}, ErrDisconnected
	}
	return respond(event, payload)
}

func (c *fakeChannel) On(event string, fn func(protocol.Envelope)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], fn)
}

func (c *fakeChannel) OnConnect(fn func(context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, fn)
}

func (c *fakeChannel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeChannel) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *fakeChannel) setRespond(fn func(event string, payload any) (protocol.AckData, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.respond = fn
}

// emit simulates a broadcast from the server.
func (c *fakeChannel) emit(t *testing.T, event string, payload any) {
	t.Helper()
	env, err := protocol.NewEnvelope(event, 0, payload)
	if err != nil {
		t.Fatalf("NewEnvelope() error = %v", err)
	}
	c.mu.Lock()
	handlers := c.handlers[event]
	c.mu.Unlock()
	for _, fn := range handlers {
		fn(env)
	}
}

func (c *fakeChannel) sent(event string) []sentRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []sentRequest
	for _, r := range c.requests {
		if r.event == event {
			out = append(out, r)
		}
	}
	return out
}

// fakeAPI serves one document from memory.
type fakeAPI struct {
	mu         sync.Mutex
	doc        models.Document
	comments   []models.Comment
	draftSaves []models.SaveDraftRequest
	getErr     error
}

func (a *fakeAPI) GetDocument(ctx context.Context, documentID string) (*models.Document, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.getErr != nil {
		return nil, a.getErr
	}
	doc := a.doc
	return &doc, nil
}

func (a *fakeAPI) SaveDraft(ctx context.Context, documentID string, req *models.SaveDraftRequest) (*models.Document, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.draftSaves = append(a.draftSaves, *req)
	draft := models.DraftNumber(a.doc.MajorVersion)
	a.doc.Content = req.Content
	a.doc.DraftVersion = &draft
	a.doc.UpdatedAt = time.Now().UTC()
	doc := a.doc
	return &doc, nil
}

func (a *fakeAPI) ListComments(ctx context.Context, documentID string) ([]models.Comment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.Comment(nil), a.comments...), nil
}

// recordingSender captures batched updates.
type recordingSender struct {
	mu   sync.Mutex
	sent []PendingUpdate
	fail bool
	// during, when set, runs inside SendUpdate before it returns
	during func()
}

var errSendFailed = errors.New("send failed")

func (s *recordingSender) SendUpdate(ctx context.Context, u PendingUpdate) error {
	s.mu.Lock()
	fail := s.fail
	during := s.during
	s.mu.Unlock()

	if during != nil {
		during()
	}
	if fail {
		return errSendFailed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, u)
	return nil
}

func (s *recordingSender) updates() []PendingUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PendingUpdate(nil), s.sent...)
}

func content(text string) json.RawMessage {
	data, _ := json.Marshal(map[string]string{"text": text})
	return data
}
