package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"collabsync/internal/domain"
	models "collabsync/internal/domain/models/collab"
	"collabsync/internal/httputil"
	"collabsync/internal/protocol"
)

func TestHandleError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: fmt.Errorf("bad: %w", domain.ErrValidation), want: http.StatusBadRequest},
		{name: "not found", err: fmt.Errorf("doc: %w", domain.ErrNotFound), want: http.StatusNotFound},
		{name: "unauthorized", err: domain.ErrUnauthorized, want: http.StatusUnauthorized},
		{name: "forbidden action", err: fmt.Errorf("x: %w", &domain.ForbiddenActionError{Action: "promote", Role: "editor"}), want: http.StatusForbidden},
		{name: "no draft", err: fmt.Errorf("discard: %w", domain.ErrNoDraft), want: http.StatusConflict},
		{name: "conflict", err: &domain.ConflictError{Message: "dup"}, want: http.StatusConflict},
		{name: "deadline", err: fmt.Errorf("db: %w", context.DeadlineExceeded), want: http.StatusGatewayTimeout},
		{name: "unknown", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleError(rec, tt.err)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
				t.Errorf("Content-Type = %q", ct)
			}
		})
	}
}

type mockDocumentService struct {
	docs map[string]*models.Document
}

func (m *mockDocumentService) CreateDocument(ctx context.Context, userID string, req *models.CreateDocumentRequest) (*models.Document, error) {
	doc := &models.Document{ID: "doc-new", MajorVersion: 1, Content: req.Content, CreatedBy: userID}
	return doc, nil
}

func (m *mockDocumentService) GetDocument(ctx context.Context, userID, documentID string) (*models.Document, error) {
	doc, ok := m.docs[documentID]
	if !ok {
		return nil, fmt.Errorf("document: %w", domain.ErrNotFound)
	}
	if userID != doc.CreatedBy {
		return nil, &domain.ForbiddenActionError{}
	}
	return doc, nil
}

func (m *mockDocumentService) GetDraft(ctx context.Context, userID, documentID string) (*models.Version, error) {
	return nil, fmt.Errorf("draft: %w", domain.ErrNotFound)
}

func (m *mockDocumentService) SaveDraft(ctx context.Context, userID, documentID string, req *models.SaveDraftRequest) (*models.Document, error) {
	draft := 1.1
	return &models.Document{ID: documentID, MajorVersion: 1, DraftVersion: &draft, Content: req.Content}, nil
}

func (m *mockDocumentService) DiscardDraft(ctx context.Context, userID, documentID string) (*models.Document, error) {
	doc, ok := m.docs[documentID]
	if !ok || doc.DraftVersion == nil {
		return nil, fmt.Errorf("discard: %w", domain.ErrNoDraft)
	}
	return &models.Document{ID: documentID, MajorVersion: doc.MajorVersion, Content: json.RawMessage(`{"text":"major"}`)}, nil
}

func (m *mockDocumentService) PromoteDraft(ctx context.Context, userID, documentID string, req *models.PromoteRequest) (*models.Version, *models.Document, error) {
	return &models.Version{DocumentID: documentID, Major: 2, CommitMessage: req.CommitMessage}, &models.Document{ID: documentID, MajorVersion: 2}, nil
}

func (m *mockDocumentService) ListVersions(ctx context.Context, userID, documentID string) ([]models.Version, error) {
	return nil, nil
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (b *recordingBroadcaster) Broadcast(ctx context.Context, documentID, excludeSession string, env protocol.Envelope) error {
	b.record(env.Event)
	return nil
}

func (b *recordingBroadcaster) DraftDiscarded(ctx context.Context, doc *models.Document, by models.UserRef) error {
	b.record(protocol.EventDraftDiscarded + ":" + doc.ID + ":" + by.ID)
	return nil
}

func (b *recordingBroadcaster) VersionPromoted(ctx context.Context, version *models.Version, doc *models.Document, by models.UserRef) error {
	b.record(fmt.Sprintf("%s:%s:%d", protocol.EventVersionCreated, doc.ID, version.Major))
	return nil
}

func (b *recordingBroadcaster) record(event string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBroadcaster) recorded() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}

type stubCommentService struct{}

func (stubCommentService) CreateComment(ctx context.Context, author models.UserRef, req *models.CreateCommentRequest) (*models.Comment, error) {
	return &models.Comment{ID: "c1", DocumentID: req.DocumentID, AuthorID: author.ID, AuthorName: author.Name, Content: req.Content}, nil
}

func (stubCommentService) AddReply(ctx context.Context, author models.UserRef, req *models.ReplyRequest) (*models.Reply, error) {
	return &models.Reply{ID: "r1", CommentID: req.CommentID, AuthorID: author.ID, Content: req.Content}, nil
}

func (stubCommentService) ResolveComment(ctx context.Context, userID, documentID, commentID string) (*models.Comment, bool, error) {
	return &models.Comment{ID: commentID, Resolved: true}, false, nil
}

func (stubCommentService) ListComments(ctx context.Context, userID, documentID string) ([]models.Comment, error) {
	return nil, nil
}

func newTestMux(docs *mockDocumentService, rooms *recordingBroadcaster) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	docHandler := NewDocumentHandler(docs, rooms, logger)
	commentHandler := NewCommentHandler(stubCommentService{}, rooms, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/documents", docHandler.CreateDocument)
	mux.HandleFunc("GET /api/documents/{id}", docHandler.GetDocument)
	mux.HandleFunc("PUT /api/documents/{id}/draft", docHandler.SaveDraft)
	mux.HandleFunc("DELETE /api/documents/{id}/draft", docHandler.DiscardDraft)
	mux.HandleFunc("GET /api/documents/{id}/versions", docHandler.ListVersions)
	mux.HandleFunc("POST /api/documents/{id}/versions", docHandler.PromoteDraft)
	mux.HandleFunc("GET /api/documents/{id}/comments", commentHandler.ListComments)
	mux.HandleFunc("POST /api/documents/{id}/comments", commentHandler.CreateComment)
	mux.HandleFunc("POST /api/documents/{id}/comments/{commentId}/resolve", commentHandler.ResolveComment)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, httputil.WithUserID(r, "owner"))
	})
}

func TestDocumentHandler_Routes(t *testing.T) {
	docs := &mockDocumentService{docs: map[string]*models.Document{
		"d1": {ID: "d1", MajorVersion: 1, CreatedBy: "owner"},
		"d2": {ID: "d2", MajorVersion: 1, CreatedBy: "someone-else"},
	}}
	h := newTestMux(docs, &recordingBroadcaster{})

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{name: "create", method: http.MethodPost, path: "/api/documents", body: `{"content":{"a":1}}`, wantStatus: http.StatusCreated, wantBody: `"createdBy":"owner"`},
		{name: "create bad json", method: http.MethodPost, path: "/api/documents", body: `{`, wantStatus: http.StatusBadRequest},
		{name: "get", method: http.MethodGet, path: "/api/documents/d1", wantStatus: http.StatusOK, wantBody: `"majorVersion":1`},
		{name: "get missing", method: http.MethodGet, path: "/api/documents/nope", wantStatus: http.StatusNotFound},
		{name: "get forbidden", method: http.MethodGet, path: "/api/documents/d2", wantStatus: http.StatusForbidden},
		{name: "save draft", method: http.MethodPut, path: "/api/documents/d1/draft", body: `{"content":{"b":2}}`, wantStatus: http.StatusOK, wantBody: `"draftVersion":1.1`},
		{name: "discard without draft", method: http.MethodDelete, path: "/api/documents/d1/draft", wantStatus: http.StatusConflict},
		{name: "empty history", method: http.MethodGet, path: "/api/documents/d1/versions", wantStatus: http.StatusOK, wantBody: `[]`},
		{name: "promote", method: http.MethodPost, path: "/api/documents/d1/versions", body: `{"commitMessage":"go"}`, wantStatus: http.StatusCreated, wantBody: `"label":"2"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body = %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantBody != "" && !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %s, want it to contain %s", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestCommentHandler_BroadcastsChanges(t *testing.T) {
	rooms := &recordingBroadcaster{}
	h := newTestMux(&mockDocumentService{}, rooms)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/documents/d1/comments", strings.NewReader(`{"content":"hi"}`)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	var comment models.Comment
	if err := json.Unmarshal(rec.Body.Bytes(), &comment); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if comment.DocumentID != "d1" || comment.AuthorID != "owner" {
		t.Errorf("comment = %+v", comment)
	}

	// resolving an already resolved comment does not broadcast
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/documents/d1/comments/c1/resolve", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d", rec.Code)
	}

	rooms.mu.Lock()
	defer rooms.mu.Unlock()
	if len(rooms.events) != 1 || rooms.events[0] != protocol.EventNewComment {
		t.Errorf("broadcast events = %v, want [new-comment]", rooms.events)
	}
}

func TestDocumentHandler_LifecycleChangesReachRoom(t *testing.T) {
	draft := 1.2
	rooms := &recordingBroadcaster{}
	h := newTestMux(&mockDocumentService{docs: map[string]*models.Document{
		"d1": {ID: "d1", MajorVersion: 1, CreatedBy: "owner"},
		"d3": {ID: "d3", MajorVersion: 1, DraftVersion: &draft, CreatedBy: "owner"},
	}}, rooms)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/documents/d3/draft", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("discard status = %d; body = %s", rec.Code, rec.Body.String())
	}

	// a failed discard leaves the room alone
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/documents/d1/draft", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("discard without draft status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/documents/d1/versions", strings.NewReader(`{"commitMessage":"go"}`)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("promote status = %d", rec.Code)
	}

	want := []string{"draft-discarded:d3:owner", "version-created:d1:2"}
	got := rooms.recorded()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("room notifications = %v, want %v", got, want)
	}
}
