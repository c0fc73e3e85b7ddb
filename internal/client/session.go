package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"collabsync/internal/capabilities"
	models "collabsync/internal/domain/models/collab"
	"collabsync/internal/protocol"
)

// Channel is the transport as seen by a session. *Transport implements it.
type Channel interface {
	Requester
	EventSource
	OnConnect(fn func(context.Context))
	State() State
}

// DocumentAPI is the subset of the REST API a session needs.
type DocumentAPI interface {
	GetDocument(ctx context.Context, documentID string) (*models.Document, error)
	SaveDraft(ctx context.Context, documentID string, req *models.SaveDraftRequest) (*models.Document, error)
	ListComments(ctx context.Context, documentID string) ([]models.Comment, error)
}

// SessionConfig configures a Session.
type SessionConfig struct {
	DocumentID       string
	FormID           string
	User             models.UserRef
	BatchInterval    time.Duration
	AutosaveInterval time.Duration

	// Notify, when set, is called with the event name after remote changes
	// are applied. It runs on the transport reader and must not block.
	Notify func(event string)
}

// Session is one open document: it joins the room, applies remote changes,
// batches local edits and keeps the local cache current.
type Session struct {
	cfg         SessionConfig
	channel     Channel
	api         DocumentAPI
	registry    *capabilities.Registry
	persistence *Persistence
	batcher     *Batcher
	comments    *CommentManager
	logger      *slog.Logger

	joined     chan struct{}
	joinedOnce sync.Once

	mu           sync.Mutex
	state        Snapshot
	participants []models.Participant
	role         models.Role

	// localEditAt is when the newest edit the room has not acknowledged was
	// made here; zero when the room holds everything typed locally.
	// localEditSeq is the batcher sequence carrying that edit.
	localEditAt  time.Time
	localEditSeq uint64
}

// NewSession wires a session. Call Open before editing.
func NewSession(cfg SessionConfig, channel Channel, api DocumentAPI, persistence *Persistence, registry *capabilities.Registry, logger *slog.Logger) *Session {
	logger = logger.With("document_id", cfg.DocumentID)
	s := &Session{
		cfg:         cfg,
		channel:     channel,
		api:         api,
		registry:    registry,
		persistence: persistence,
		logger:      logger,
		joined:      make(chan struct{}),
	}
	s.batcher = NewBatcher(cfg.DocumentID, cfg.FormID, cfg.BatchInterval, s, logger)
	s.comments = NewCommentManager(cfg.DocumentID, cfg.User, false, channel, logger)

	s.comments.Subscribe(channel)
	channel.On(protocol.EventContentUpdated, s.handleContentUpdated)
	channel.On(protocol.EventParticipantJoined, s.handleParticipants)
	channel.On(protocol.EventParticipantLeft, s.handleParticipants)
	channel.On(protocol.EventVersionCreated, s.handleVersionCreated)
	channel.On(protocol.EventDraftDiscarded, s.handleDraftDiscarded)
	channel.OnConnect(s.rejoin)
	return s
}

// Open loads the document, reconciles it with the local cache, loads the
// comment threads and joins the room when connected. Fetch and
// authorization failures are returned to the caller.
func (s *Session) Open(ctx context.Context) error {
	doc, err := s.api.GetDocument(ctx, s.cfg.DocumentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	server := SnapshotFromDocument(doc)

	if _, err := s.persistence.Initialize(ctx, s.cfg.DocumentID, server); err != nil {
		return err
	}
	state, err := s.persistence.SyncWithServer(ctx, server)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.state = state
	if s.persistence.HasUnsavedChanges() {
		// the cache held work newer than the server copy
		s.localEditAt = s.persistence.LastSavedAt()
	}
	s.mu.Unlock()

	comments, err := s.api.ListComments(ctx, s.cfg.DocumentID)
	if err != nil {
		return fmt.Errorf("load comments: %w", err)
	}
	s.comments.Load(comments)

	if s.channel.State() == StateConnected {
		return s.join(ctx)
	}
	return nil
}

// Run drives the batching and autosave loops until ctx ends.
func (s *Session) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.batcher.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		s.persistence.Run(ctx, s.Snapshot)
	}()
	wg.Wait()
}

// Edit applies a local edit and queues it for the next batch.
func (s *Session) Edit(content []byte, wordCount, charCount int) {
	s.mu.Lock()
	s.state.Content = append([]byte(nil), content...)
	s.state.WordCount = wordCount
	s.state.CharCount = charCount
	s.localEditAt = time.Now().UTC()
	s.localEditSeq = s.batcher.QueueUpdate(content, wordCount, charCount)
	s.mu.Unlock()

	s.persistence.MarkDirty()
}

// Save flushes pending edits and asks the server to persist the room as the draft.
func (s *Session) Save(ctx context.Context) (Snapshot, error) {
	if err := s.batcher.FlushNow(ctx); err != nil {
		return s.Snapshot(), err
	}
	ack, err := s.channel.Request(ctx, protocol.EventSaveDocument, protocol.DocumentRef{DocumentID: s.cfg.DocumentID})
	if err != nil {
		return s.Snapshot(), err
	}
	return s.confirmed(ctx, ack.RoomState)
}

// Promote flushes pending edits and creates the next major version.
func (s *Session) Promote(ctx context.Context, commitMessage string) (Snapshot, error) {
	if err := s.batcher.FlushNow(ctx); err != nil {
		return s.Snapshot(), err
	}
	ack, err := s.channel.Request(ctx, protocol.EventCreateMajorVersion, protocol.CreateMajorVersion{
		DocumentID:    s.cfg.DocumentID,
		CommitMessage: commitMessage,
	})
	if err != nil {
		return s.Snapshot(), err
	}
	return s.confirmed(ctx, ack.RoomState)
}

// Close force-flushes: pending edits go to the room, the state goes to the
// local cache and to the server as a draft, then the room is left. The
// draft save falls back to REST while disconnected.
func (s *Session) Close(ctx context.Context) error {
	var errs []error

	if err := s.batcher.FlushNow(ctx); err != nil {
		errs = append(errs, err)
	}

	snap := s.Snapshot()
	if err := s.persistence.Save(ctx, snap, false); err != nil {
		errs = append(errs, err)
	}

	if s.persistence.HasUnsavedChanges() {
		if err := s.saveToServer(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}

	if s.channel.State() == StateConnected {
		if _, err := s.channel.Request(ctx, protocol.EventLeaveRoom, protocol.DocumentRef{DocumentID: s.cfg.DocumentID}); err != nil {
			s.logger.Debug("leave failed", "error", err)
		}
	}
	return errors.Join(errs...)
}

func (s *Session) saveToServer(ctx context.Context, snap Snapshot) error {
	if s.channel.State() == StateConnected {
		_, err := s.Save(ctx)
		if err == nil {
			return nil
		}
		s.logger.Warn("room save failed, falling back to REST", "error", err)
	}

	doc, err := s.api.SaveDraft(ctx, s.cfg.DocumentID, &models.SaveDraftRequest{
		Content:   snap.Content,
		Metadata:  snap.Metadata,
		WordCount: snap.WordCount,
		CharCount: snap.CharCount,
	})
	if err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	confirmed := SnapshotFromDocument(doc)
	s.mu.Lock()
	s.state = confirmed
	s.localEditAt = time.Time{}
	s.mu.Unlock()
	return s.persistence.Confirm(ctx, confirmed)
}

// SendUpdate transmits one batched update. It lets the session act as the
// batcher's sender.
func (s *Session) SendUpdate(ctx context.Context, u PendingUpdate) error {
	_, err := s.channel.Request(ctx, protocol.EventUpdateContent, models.ContentUpdate{
		DocumentID: u.DocumentID,
		FormID:     u.FormID,
		Content:    u.Content,
		WordCount:  u.WordCount,
		CharCount:  u.CharCount,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.localEditSeq == u.Seq {
		s.localEditAt = time.Time{}
	}
	s.mu.Unlock()
	return nil
}

// Snapshot returns the current in-memory state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Participants returns the last known presence list.
func (s *Session) Participants() []models.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Participant(nil), s.participants...)
}

// Role is the user's role as reported on join.
func (s *Session) Role() models.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// Comments exposes the comment threads.
func (s *Session) Comments() *CommentManager {
	return s.comments
}

// HasUnsavedChanges reports whether local state is ahead of the last confirmed server save.
func (s *Session) HasUnsavedChanges() bool {
	return s.persistence.HasUnsavedChanges()
}

// WaitJoined blocks until the session has joined its room at least once.
func (s *Session) WaitJoined(ctx context.Context) error {
	select {
	case <-s.joined:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) rejoin(ctx context.Context) {
	if err := s.join(ctx); err != nil {
		s.logger.Warn("rejoin failed", "error", err)
	}
}

// join enters the room. Local edits strictly newer than the room state are
// pushed to the room; otherwise the room's state is adopted and older local
// edits still waiting in the batcher are dropped.
func (s *Session) join(ctx context.Context) error {
	ack, err := s.channel.Request(ctx, protocol.EventJoinRoom, protocol.DocumentRef{DocumentID: s.cfg.DocumentID})
	if err != nil {
		return fmt.Errorf("join room: %w", err)
	}

	s.mu.Lock()
	s.participants = ack.ActiveParticipants
	for _, p := range ack.ActiveParticipants {
		if p.UserID == s.cfg.User.ID {
			s.role = p.Role
		}
	}
	role := s.role
	s.mu.Unlock()

	if s.registry != nil {
		s.comments.SetCanResolve(s.registry.Allows(string(role), capabilities.CapabilityResolve))
	}
	s.joinedOnce.Do(func() { close(s.joined) })

	s.mu.Lock()
	push := !s.localEditAt.IsZero() && (ack.RoomState == nil || s.localEditAt.After(ack.RoomState.UpdatedAt))
	if push {
		snap := s.state
		s.localEditSeq = s.batcher.QueueUpdate(snap.Content, snap.WordCount, snap.CharCount)
		s.mu.Unlock()
		return s.batcher.FlushNow(ctx)
	}
	if ack.RoomState != nil {
		if !s.localEditAt.IsZero() {
			s.logger.Info("room state is newer than local edits, adopting it",
				"local_edit_at", s.localEditAt,
				"room_updated_at", ack.RoomState.UpdatedAt,
			)
		}
		s.batcher.Discard()
		s.state = SnapshotFromRoom(*ack.RoomState)
		s.localEditAt = time.Time{}
	}
	s.mu.Unlock()
	return nil
}

// confirmed adopts a server-acknowledged room state and clears dirty. Edits
// queued while the save was in flight stay in memory and keep the state dirty.
func (s *Session) confirmed(ctx context.Context, state *models.RoomState) (Snapshot, error) {
	if state == nil {
		return s.Snapshot(), nil
	}
	snap := SnapshotFromRoom(*state)

	if pending, ok := s.batcher.Pending(); ok {
		s.mu.Lock()
		snap.Content = pending.Content
		snap.WordCount = pending.WordCount
		snap.CharCount = pending.CharCount
		s.state = snap
		s.mu.Unlock()
		return snap, s.persistence.Save(ctx, snap, false)
	}

	s.mu.Lock()
	s.state = snap
	s.localEditAt = time.Time{}
	s.mu.Unlock()
	return snap, s.persistence.Confirm(ctx, snap)
}

func (s *Session) handleContentUpdated(env protocol.Envelope) {
	var ev protocol.ContentUpdated
	if err := env.Decode(&ev); err != nil || ev.DocumentID != s.cfg.DocumentID {
		return
	}

	s.mu.Lock()
	s.state.Content = ev.Content
	s.state.WordCount = ev.WordCount
	s.state.CharCount = ev.CharCount
	s.state.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()

	s.persistence.MarkDirty()
	s.notify(env.Event)
}

func (s *Session) handleParticipants(env protocol.Envelope) {
	var ev protocol.ParticipantsChanged
	if err := env.Decode(&ev); err != nil || ev.DocumentID != s.cfg.DocumentID {
		return
	}
	s.mu.Lock()
	s.participants = ev.ActiveParticipants
	s.mu.Unlock()
	s.notify(env.Event)
}

func (s *Session) handleVersionCreated(env protocol.Envelope) {
	var ev protocol.VersionCreated
	if err := env.Decode(&ev); err != nil || ev.DocumentID != s.cfg.DocumentID {
		return
	}
	s.mu.Lock()
	s.state.MajorVersion = ev.MajorVersion
	s.state.DraftVersion = nil
	s.mu.Unlock()
	s.notify(env.Event)
}

// handleDraftDiscarded falls back to the major version. Local edits made on
// top of the discarded draft are dropped with it.
func (s *Session) handleDraftDiscarded(env protocol.Envelope) {
	var ev protocol.DraftDiscarded
	if err := env.Decode(&ev); err != nil || ev.DocumentID != s.cfg.DocumentID {
		return
	}

	s.mu.Lock()
	s.batcher.Discard()
	s.localEditAt = time.Time{}
	s.state.MajorVersion = ev.MajorVersion
	s.state.DraftVersion = nil
	s.state.Content = ev.Content
	s.state.WordCount = ev.WordCount
	s.state.CharCount = ev.CharCount
	s.state.UpdatedAt = ev.UpdatedAt
	snap := s.state
	s.mu.Unlock()

	if err := s.persistence.Confirm(context.Background(), snap); err != nil {
		s.logger.Warn("failed to cache discarded draft", "error", err)
	}
	s.notify(env.Event)
}

func (s *Session) notify(event string) {
	if s.cfg.Notify != nil {
		s.cfg.Notify(event)
	}
}
