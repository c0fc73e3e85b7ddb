package collab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"collabsync/internal/capabilities"
	"collabsync/internal/domain"
	models "collabsync/internal/domain/models/collab"
	"collabsync/internal/domain/services"
	"collabsync/internal/metrics"
	"collabsync/internal/protocol"
)

// ErrManagerClosed is returned once Shutdown has started.
var ErrManagerClosed = errors.New("room manager closed")

// RoomManagerConfig tunes room lifetime.
type RoomManagerConfig struct {
	// EvictionGrace is how long an empty room stays in memory. Zero evicts immediately.
	EvictionGrace time.Duration

	// FlushTimeout bounds the autosave performed on eviction
	FlushTimeout time.Duration
}

// JoinResult is what a joining session receives.
type JoinResult struct {
	ActiveParticipants []models.Participant
	RoomState          models.RoomState
}

type roomEntry struct {
	room       *room
	leases     int
	generation uint64
	timer      *time.Timer
}

// RoomManager owns every active room. A supervisor goroutine holds the room
// table; each room runs its own goroutine and serializes the operations on
// its document.
//
// A lease is held per joined session plus one per in-flight call, so a room
// is never evicted while something is using it.
type RoomManager struct {
	store        RoomStore
	authorizer   services.ResourceAuthorizer
	logger       *slog.Logger
	metrics      *metrics.Metrics
	grace        time.Duration
	flushTimeout time.Duration

	cmds     chan func()
	quit     chan struct{}
	done     chan struct{}
	stopping atomic.Bool

	// supervisor state
	rooms   map[string]*roomEntry
	closing map[string]<-chan struct{}
	closed  bool
}

// NewRoomManager starts the supervisor. Call Shutdown to flush and stop.
func NewRoomManager(store RoomStore, authorizer services.ResourceAuthorizer, m *metrics.Metrics, cfg RoomManagerConfig, logger *slog.Logger) *RoomManager {
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 10 * time.Second
	}
	mgr := &RoomManager{
		store:        store,
		authorizer:   authorizer,
		logger:       logger,
		metrics:      m,
		grace:        cfg.EvictionGrace,
		flushTimeout: cfg.FlushTimeout,
		cmds:         make(chan func()),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		rooms:        make(map[string]*roomEntry),
		closing:      make(map[string]<-chan struct{}),
	}
	go mgr.loop()
	return mgr
}

// Join adds the session to the document's room, creating and loading the
// room if needed. Other members receive participant-joined. Joining twice
// with the same session is a no-op that returns the current state.
func (m *RoomManager) Join(ctx context.Context, documentID string, p models.Participant, member Member) (*JoinResult, error) {
	if err := validateDocumentID(documentID); err != nil {
		return nil, err
	}
	role, err := m.authorizer.RoleFor(ctx, p.UserID, documentID)
	if err != nil {
		return nil, err
	}
	p.Role = role
	p.SessionID = member.SessionID()
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now().UTC()
	}

	r, err := m.acquire(ctx, documentID, true)
	if err != nil {
		return nil, err
	}

	result, already, err := r.join(ctx, p, member)
	if err != nil {
		m.release(documentID)
		return nil, err
	}
	if already {
		m.release(documentID)
		return result, nil
	}

	m.logger.Info("participant joined",
		"document_id", documentID,
		"session_id", p.SessionID,
		"user_id", p.UserID,
		"role", p.Role,
		"participants", len(result.ActiveParticipants),
	)
	return result, nil
}

// Leave removes the session from the room. Leaving a room the session never
// joined, or one that no longer exists, succeeds.
func (m *RoomManager) Leave(ctx context.Context, documentID, sessionID string) error {
	r, err := m.acquire(ctx, documentID, false)
	if err != nil {
		return err
	}
	if r == nil {
		return nil
	}
	defer m.release(documentID)

	removed, err := r.leave(ctx, sessionID)
	if err != nil {
		if errors.Is(err, errRoomClosed) {
			return nil
		}
		return err
	}
	if removed {
		m.release(documentID)
		m.logger.Info("participant left", "document_id", documentID, "session_id", sessionID)
	}
	return nil
}

// ApplyUpdate makes update the room's authoritative content and sends
// content-updated to every other member. The role checked is the one the
// session joined with.
func (m *RoomManager) ApplyUpdate(ctx context.Context, sessionID string, update *models.ContentUpdate) error {
	if err := validateContentUpdate(update); err != nil {
		return err
	}
	r, err := m.joinedRoom(ctx, update.DocumentID)
	if err != nil {
		return err
	}
	defer m.release(update.DocumentID)

	return r.apply(ctx, sessionID, *update, m.allow(capabilities.CapabilityEdit))
}

// Save writes the room content to the document's draft, creating the draft
// if none exists, and clears the dirty flag.
func (m *RoomManager) Save(ctx context.Context, sessionID, documentID string) (*models.RoomState, error) {
	r, err := m.joinedRoom(ctx, documentID)
	if err != nil {
		return nil, err
	}
	defer m.release(documentID)

	state, err := r.save(ctx, sessionID, m.allow(capabilities.CapabilityEdit))
	if err != nil {
		return nil, err
	}
	m.logger.Info("room saved to draft", "document_id", documentID, "session_id", sessionID, "draft_version", state.DraftVersion)
	return state, nil
}

// Promote turns the room content into the next major version. The promote
// capability is re-checked against the store since it is the one
// irreversible operation.
func (m *RoomManager) Promote(ctx context.Context, sessionID string, user models.UserRef, documentID, commitMessage string) (*models.RoomState, *models.Version, error) {
	if err := validatePromote(&models.PromoteRequest{CommitMessage: commitMessage}); err != nil {
		return nil, nil, err
	}
	if _, err := m.authorizer.Require(ctx, user.ID, documentID, capabilities.CapabilityPromote); err != nil {
		return nil, nil, err
	}
	r, err := m.joinedRoom(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}
	defer m.release(documentID)

	state, version, err := r.promote(ctx, sessionID, commitMessage, m.allow(capabilities.CapabilityPromote))
	if err != nil {
		return nil, nil, err
	}
	m.logger.Info("major version created", "document_id", documentID, "major", version.Major, "user_id", user.ID)
	return state, version, nil
}

// Broadcast sends env to every member of the document's room except
// excludeSession. No room means nobody is listening.
func (m *RoomManager) Broadcast(ctx context.Context, documentID, excludeSession string, env protocol.Envelope) error {
	r, err := m.acquire(ctx, documentID, false)
	if err != nil || r == nil {
		return err
	}
	defer m.release(documentID)

	if err := r.publish(ctx, excludeSession, env); err != nil && !errors.Is(err, errRoomClosed) {
		return err
	}
	return nil
}

// DraftDiscarded resets a live room to the major version left after a draft
// was discarded outside it, and tells every member.
func (m *RoomManager) DraftDiscarded(ctx context.Context, doc *models.Document, by models.UserRef) error {
	env, err := protocol.NewEnvelope(protocol.EventDraftDiscarded, 0, protocol.DraftDiscarded{
		DocumentID:   doc.ID,
		MajorVersion: doc.MajorVersion,
		Content:      doc.Content,
		WordCount:    doc.WordCount,
		CharCount:    doc.CharCount,
		UpdatedAt:    doc.UpdatedAt,
		DiscardedBy:  by,
	})
	if err != nil {
		return err
	}
	return m.adopt(ctx, doc.ID, func(s *models.RoomState) { s.Reset(doc) }, env)
}

// VersionPromoted moves a live room onto a major version created outside
// it, and tells every member.
func (m *RoomManager) VersionPromoted(ctx context.Context, version *models.Version, doc *models.Document, by models.UserRef) error {
	env, err := protocol.NewEnvelope(protocol.EventVersionCreated, 0, protocol.VersionCreated{
		DocumentID:    doc.ID,
		MajorVersion:  version.Major,
		CommitMessage: version.CommitMessage,
		CreatedBy:     by,
	})
	if err != nil {
		return err
	}
	return m.adopt(ctx, doc.ID, func(s *models.RoomState) { s.AdoptVersion(doc) }, env)
}

func (m *RoomManager) adopt(ctx context.Context, documentID string, change func(*models.RoomState), env protocol.Envelope) error {
	r, err := m.acquire(ctx, documentID, false)
	if err != nil || r == nil {
		return err
	}
	defer m.release(documentID)

	if err := r.adopt(ctx, change, env); err != nil && !errors.Is(err, errRoomClosed) {
		return err
	}
	m.logger.Info("room adopted external change", "document_id", documentID, "event", env.Event)
	return nil
}

// ActiveRooms returns the number of rooms held in memory.
func (m *RoomManager) ActiveRooms(ctx context.Context) (int, error) {
	var n int
	err := m.call(ctx, func() { n = len(m.rooms) })
	return n, err
}

// Shutdown stops accepting work, flushes every dirty room and stops the
// supervisor.
func (m *RoomManager) Shutdown(ctx context.Context) error {
	if !m.stopping.CompareAndSwap(false, true) {
		return nil
	}

	var pending []<-chan struct{}
	err := m.call(ctx, func() {
		m.closed = true
		for id, e := range m.rooms {
			if e.timer != nil {
				e.timer.Stop()
			}
			e.room.stop()
			pending = append(pending, e.room.done)
			delete(m.rooms, id)
			m.metrics.ActiveRooms.Dec()
		}
		for _, done := range m.closing {
			pending = append(pending, done)
		}
	})
	if err != nil {
		return err
	}

	defer close(m.quit)
	for _, done := range pending {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.logger.Info("room manager stopped", "rooms", len(pending))
	return nil
}

func (m *RoomManager) allow(capability capabilities.Capability) func(models.Role) error {
	return func(role models.Role) error {
		if !m.authorizer.Allows(role, capability) {
			return &domain.ForbiddenActionError{Action: string(capability), Role: string(role)}
		}
		return nil
	}
}

// joinedRoom leases an existing room; operations other than join never create one
func (m *RoomManager) joinedRoom(ctx context.Context, documentID string) (*room, error) {
	r, err := m.acquire(ctx, documentID, false)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("document %s has no active room: %w", documentID, domain.ErrForbidden)
	}
	return r, nil
}

// acquire takes a lease on the room. With create unset a missing room
// yields nil.
func (m *RoomManager) acquire(ctx context.Context, documentID string, create bool) (*room, error) {
	var (
		r      *room
		closed bool
	)
	err := m.call(ctx, func() {
		if m.closed {
			closed = true
			return
		}
		e, ok := m.rooms[documentID]
		if !ok {
			if !create {
				return
			}
			nr := newRoom(documentID, m.store, m.logger, m.metrics, m.flushTimeout, m.closing[documentID], func(string) {
				m.release(documentID)
			})
			go nr.run()
			e = &roomEntry{room: nr}
			m.rooms[documentID] = e
			m.metrics.ActiveRooms.Inc()
			m.logger.Debug("room created", "document_id", documentID)
		}
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		e.generation++
		e.leases++
		r = e.room
	})
	if err != nil {
		return nil, err
	}
	if closed {
		return nil, ErrManagerClosed
	}
	return r, nil
}

// release drops a lease. The last lease starts the eviction grace period.
func (m *RoomManager) release(documentID string) {
	m.send(func() {
		e, ok := m.rooms[documentID]
		if !ok {
			return
		}
		e.leases--
		if e.leases > 0 {
			return
		}
		e.generation++
		gen := e.generation
		if m.grace <= 0 {
			m.evict(documentID, gen)
			return
		}
		e.timer = time.AfterFunc(m.grace, func() {
			m.send(func() { m.evict(documentID, gen) })
		})
	})
}

// evict runs on the supervisor. A lease taken after the timer was armed
// bumps the generation and cancels it.
func (m *RoomManager) evict(documentID string, gen uint64) {
	e, ok := m.rooms[documentID]
	if !ok || e.leases > 0 || e.generation != gen {
		return
	}
	delete(m.rooms, documentID)
	m.metrics.ActiveRooms.Dec()

	done := e.room.done
	m.closing[documentID] = done
	e.room.stop()
	m.logger.Debug("room evicted", "document_id", documentID)

	go func() {
		<-done
		m.send(func() {
			if m.closing[documentID] == done {
				delete(m.closing, documentID)
			}
		})
	}()
}

func (m *RoomManager) loop() {
	defer close(m.done)
	for {
		select {
		case fn := <-m.cmds:
			fn()
		case <-m.quit:
			return
		}
	}
}

// send queues fn on the supervisor without waiting for it to run
func (m *RoomManager) send(fn func()) {
	select {
	case m.cmds <- fn:
	case <-m.done:
	}
}

// call runs fn on the supervisor and waits for it
func (m *RoomManager) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	op := func() {
		defer close(finished)
		fn()
	}

	select {
	case m.cmds <- op:
	case <-m.done:
		return ErrManagerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}
