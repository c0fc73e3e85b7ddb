package collab

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"collabsync/internal/capabilities"
	"collabsync/internal/domain"
	models "collabsync/internal/domain/models/collab"
	"collabsync/internal/domain/repositories"
	"collabsync/internal/metrics"
	"collabsync/internal/protocol"
	"collabsync/internal/service/auth"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// memDB backs the in-memory repositories. One mutex guards everything.
type memDB struct {
	mu            sync.Mutex
	documents     map[string]models.Document
	drafts        map[string]models.Version
	majors        map[string][]models.Version
	comments      map[string]models.Comment
	collaborators map[string]models.Collaborator // documentID/userID
	draftWrites   int
}

func newMemDB() *memDB {
	return &memDB{
		documents:     make(map[string]models.Document),
		drafts:        make(map[string]models.Version),
		majors:        make(map[string][]models.Version),
		comments:      make(map[string]models.Comment),
		collaborators: make(map[string]models.Collaborator),
	}
}

func (db *memDB) grant(documentID, userID string, role models.Role) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.collaborators[documentID+"/"+userID] = models.Collaborator{DocumentID: documentID, UserID: userID, Role: role}
}

func (db *memDB) draftWriteCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.draftWrites
}

type memDocumentRepo struct{ db *memDB }

func (r memDocumentRepo) Create(ctx context.Context, doc *models.Document) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	doc.ID = uuid.NewString()
	r.db.documents[doc.ID] = *doc
	return nil
}

func (r memDocumentRepo) GetByID(ctx context.Context, id string) (*models.Document, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	doc, ok := r.db.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return &doc, nil
}

func (r memDocumentRepo) GetForUpdate(ctx context.Context, id string) (*models.Document, error) {
	return r.GetByID(ctx, id)
}

func (r memDocumentRepo) UpdateMajor(ctx context.Context, doc *models.Document) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stored := *doc
	stored.DraftVersion = nil
	r.db.documents[doc.ID] = stored
	return nil
}

type memVersionRepo struct{ db *memDB }

func (r memVersionRepo) GetDraft(ctx context.Context, documentID string) (*models.Version, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	draft, ok := r.db.drafts[documentID]
	if !ok {
		return nil, fmt.Errorf("draft: %w", domain.ErrNotFound)
	}
	return &draft, nil
}

func (r memVersionRepo) UpsertDraft(ctx context.Context, draft *models.Version) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if existing, ok := r.db.drafts[draft.DocumentID]; ok {
		draft.ID = existing.ID
	} else {
		draft.ID = uuid.NewString()
	}
	r.db.drafts[draft.DocumentID] = *draft
	r.db.draftWrites++
	return nil
}

func (r memVersionRepo) DeleteDraft(ctx context.Context, documentID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.drafts[documentID]; !ok {
		return fmt.Errorf("draft: %w", domain.ErrNotFound)
	}
	delete(r.db.drafts, documentID)
	return nil
}

func (r memVersionRepo) CreateMajor(ctx context.Context, version *models.Version) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, v := range r.db.majors[version.DocumentID] {
		if v.Major == version.Major {
			return &domain.ConflictError{ResourceType: "version", Message: "major already exists"}
		}
	}
	version.ID = uuid.NewString()
	r.db.majors[version.DocumentID] = append(r.db.majors[version.DocumentID], *version)
	return nil
}

func (r memVersionRepo) ListMajors(ctx context.Context, documentID string) ([]models.Version, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	list := append([]models.Version(nil), r.db.majors[documentID]...)
	sort.Slice(list, func(i, j int) bool { return list[i].Major > list[j].Major })
	return list, nil
}

type memCommentRepo struct{ db *memDB }

func (r memCommentRepo) Create(ctx context.Context, c *models.Comment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c.ID = uuid.NewString()
	r.db.comments[c.ID] = c.Clone()
	return nil
}

func (r memCommentRepo) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.comments[id]
	if !ok {
		return nil, fmt.Errorf("comment %s: %w", id, domain.ErrNotFound)
	}
	clone := c.Clone()
	return &clone, nil
}

func (r memCommentRepo) ListByDocument(ctx context.Context, documentID string) ([]models.Comment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var list []models.Comment
	for _, c := range r.db.comments {
		if c.DocumentID == documentID {
			list = append(list, c.Clone())
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}

func (r memCommentRepo) AddReply(ctx context.Context, reply *models.Reply) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.comments[reply.CommentID]
	if !ok {
		return fmt.Errorf("comment %s: %w", reply.CommentID, domain.ErrNotFound)
	}
	reply.ID = uuid.NewString()
	c.Replies = append(c.Replies, *reply)
	r.db.comments[c.ID] = c
	return nil
}

func (r memCommentRepo) MarkResolved(ctx context.Context, id, resolvedBy string, at time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.comments[id]
	if !ok {
		return false, fmt.Errorf("comment %s: %w", id, domain.ErrNotFound)
	}
	changed := c.Resolve(resolvedBy, at)
	r.db.comments[id] = c
	return changed, nil
}

type memCollaboratorRepo struct{ db *memDB }

func (r memCollaboratorRepo) GetRole(ctx context.Context, documentID, userID string) (models.Role, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.collaborators[documentID+"/"+userID]
	if !ok {
		return "", fmt.Errorf("collaborator: %w", domain.ErrNotFound)
	}
	return c.Role, nil
}

func (r memCollaboratorRepo) Upsert(ctx context.Context, c *models.Collaborator) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.collaborators[c.DocumentID+"/"+c.UserID] = *c
	return nil
}

func (r memCollaboratorRepo) ListByDocument(ctx context.Context, documentID string) ([]models.Collaborator, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var list []models.Collaborator
	for _, c := range r.db.collaborators {
		if c.DocumentID == documentID {
			list = append(list, c)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UserID < list[j].UserID })
	return list, nil
}

// passthroughTx runs fn directly; memDB has no rollback
type passthroughTx struct{}

func (passthroughTx) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	return fn(ctx)
}

type testEnv struct {
	db        *memDB
	documents *DocumentService
	comments  *commentService
	authz     *auth.RoleBasedAuthorizer
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	reg, err := capabilities.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	db := newMemDB()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	authz := auth.NewRoleBasedAuthorizer(memCollaboratorRepo{db}, reg)

	return &testEnv{
		db:        db,
		documents: NewDocumentService(memDocumentRepo{db}, memVersionRepo{db}, memCollaboratorRepo{db}, passthroughTx{}, authz, NewContentAnalyzer(), logger),
		comments:  NewCommentService(memCommentRepo{db}, authz, logger).(*commentService),
		authz:     authz,
		metrics:   metrics.New(prometheus.NewRegistry()),
		logger:    logger,
	}
}

// createDocument stores a document owned by owner
func (e *testEnv) createDocument(t *testing.T, owner string) *models.Document {
	t.Helper()
	doc, err := e.documents.CreateDocument(context.Background(), owner, &models.CreateDocumentRequest{
		Content:  []byte(`{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"hello world"}]}]}`),
		Metadata: models.ProposalMetadata{Title: "Bridge repair"},
	})
	if err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	return doc
}

func (e *testEnv) newManager(t *testing.T, grace time.Duration) *RoomManager {
	t.Helper()
	mgr := NewRoomManager(e.documents, e.authz, e.metrics, RoomManagerConfig{EvictionGrace: grace, FlushTimeout: time.Second}, e.logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = mgr.Shutdown(ctx)
	})
	return mgr
}

// fakeMember records what it is sent. capacity < 0 means unbounded.
type fakeMember struct {
	id       string
	mu       sync.Mutex
	received []protocol.Envelope
	capacity int
}

func newFakeMember(id string) *fakeMember {
	return &fakeMember{id: id, capacity: -1}
}

func (m *fakeMember) SessionID() string { return m.id }

func (m *fakeMember) Send(env protocol.Envelope) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.capacity >= 0 && len(m.received) >= m.capacity {
		return false
	}
	m.received = append(m.received, env)
	return true
}

func (m *fakeMember) events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.received))
	for i, env := range m.received {
		names[i] = env.Event
	}
	return names
}

func (m *fakeMember) last(event string) (protocol.Envelope, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.received) - 1; i >= 0; i-- {
		if m.received[i].Event == event {
			return m.received[i], true
		}
	}
	return protocol.Envelope{}, false
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
