package collab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"collabsync/internal/domain"
	models "collabsync/internal/domain/models/collab"
	"collabsync/internal/metrics"
	"collabsync/internal/protocol"
)

var errRoomClosed = errors.New("room closed")

// Member is a connection joined to a room.
type Member interface {
	// SessionID identifies the connection
	SessionID() string

	// Send queues env without blocking. false means the outbound queue is
	// full; the room drops the member.
	Send(env protocol.Envelope) bool
}

// RoomStore is the persistence a room needs. Authorization has already
// happened by the time a room calls it.
type RoomStore interface {
	LoadWorkingCopy(ctx context.Context, documentID string) (*models.Document, error)
	StoreDraft(ctx context.Context, userID, documentID string, req *models.SaveDraftRequest) (*models.Document, error)
	StorePromotion(ctx context.Context, userID, documentID string, req *models.PromoteRequest) (*models.Version, *models.Document, error)
}

type roomMember struct {
	member      Member
	participant models.Participant
}

// room is the actor owning one document's live state. Every field below
// ops is touched only by the run goroutine.
type room struct {
	documentID   string
	store        RoomStore
	logger       *slog.Logger
	metrics      *metrics.Metrics
	flushTimeout time.Duration
	onDrop       func(sessionID string)
	prev         <-chan struct{} // previous room for this document, still flushing

	ops      chan func()
	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}

	state   models.RoomState
	loaded  bool
	members map[string]*roomMember
}

func newRoom(documentID string, store RoomStore, logger *slog.Logger, m *metrics.Metrics, flushTimeout time.Duration, prev <-chan struct{}, onDrop func(string)) *room {
	return &room{
		documentID:   documentID,
		store:        store,
		logger:       logger.With("document_id", documentID),
		metrics:      m,
		flushTimeout: flushTimeout,
		onDrop:       onDrop,
		prev:         prev,
		ops:          make(chan func()),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		members:      make(map[string]*roomMember),
	}
}

func (r *room) run() {
	defer close(r.done)

	if r.prev != nil {
		select {
		case <-r.prev:
		case <-r.quit:
			return
		}
	}

	for {
		select {
		case op := <-r.ops:
			op()
		case <-r.quit:
			r.shutdown()
			return
		}
	}
}

// stop asks the room to flush and exit. Safe to call more than once.
func (r *room) stop() {
	r.quitOnce.Do(func() { close(r.quit) })
}

// do runs fn on the room goroutine and waits for it. The ops channel is
// unbuffered, so an accepted op always runs.
func (r *room) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	op := func() {
		defer close(finished)
		fn()
	}

	select {
	case r.ops <- op:
	case <-r.done:
		return errRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

func (r *room) join(ctx context.Context, p models.Participant, m Member) (*JoinResult, bool, error) {
	var (
		result  *JoinResult
		already bool
		opErr   error
	)
	err := r.do(ctx, func() {
		if opErr = ctx.Err(); opErr != nil {
			return
		}
		if opErr = r.ensureLoaded(ctx); opErr != nil {
			return
		}

		if _, ok := r.members[p.SessionID]; ok {
			already = true
		} else {
			r.members[p.SessionID] = &roomMember{member: m, participant: p}
			r.metrics.ActiveParticipants.Inc()
			r.broadcastPresence(protocol.EventParticipantJoined, p.SessionID)
		}

		result = &JoinResult{
			ActiveParticipants: r.participants(),
			RoomState:          r.state,
		}
	})
	if err != nil {
		return nil, false, err
	}
	return result, already, opErr
}

// leave removes the session. removed is false when it was not a member.
func (r *room) leave(ctx context.Context, sessionID string) (bool, error) {
	var removed bool
	err := r.do(ctx, func() {
		if _, ok := r.members[sessionID]; !ok {
			return
		}
		delete(r.members, sessionID)
		r.metrics.ActiveParticipants.Dec()
		removed = true
		r.broadcastPresence(protocol.EventParticipantLeft, "")
	})
	return removed, err
}

// apply stores an update as the authoritative state and fans it out to
// every other member. Last write wins.
func (r *room) apply(ctx context.Context, sessionID string, update models.ContentUpdate, allowed func(models.Role) error) error {
	var opErr error
	err := r.do(ctx, func() {
		rm, err := r.member(sessionID, allowed)
		if err != nil {
			opErr = err
			return
		}

		by := models.UserRef{ID: rm.participant.UserID, Name: rm.participant.Name}
		r.state.Apply(update, by, time.Now().UTC())

		env, err := protocol.NewEnvelope(protocol.EventContentUpdated, 0, protocol.ContentUpdated{
			DocumentID: r.documentID,
			Content:    update.Content,
			FormID:     update.FormID,
			WordCount:  update.WordCount,
			CharCount:  update.CharCount,
			UpdatedBy:  by,
		})
		if err != nil {
			opErr = err
			return
		}
		r.broadcast(sessionID, env)
	})
	if err != nil {
		return err
	}
	return opErr
}

// save persists the room content as the draft and clears the dirty flag
func (r *room) save(ctx context.Context, sessionID string, allowed func(models.Role) error) (*models.RoomState, error) {
	var (
		state *models.RoomState
		opErr error
	)
	err := r.do(ctx, func() {
		rm, err := r.member(sessionID, allowed)
		if err != nil {
			opErr = err
			return
		}

		doc, err := r.store.StoreDraft(ctx, rm.participant.UserID, r.documentID, r.state.DraftRequest())
		if err != nil {
			opErr = err
			return
		}
		r.state.Reset(doc)
		snapshot := r.state
		state = &snapshot
	})
	if err != nil {
		return nil, err
	}
	return state, opErr
}

// promote persists the room content as the next major and tells the others
func (r *room) promote(ctx context.Context, sessionID, commitMessage string, allowed func(models.Role) error) (*models.RoomState, *models.Version, error) {
	var (
		state   *models.RoomState
		version *models.Version
		opErr   error
	)
	err := r.do(ctx, func() {
		rm, err := r.member(sessionID, allowed)
		if err != nil {
			opErr = err
			return
		}

		metadata := r.state.Metadata
		v, doc, err := r.store.StorePromotion(ctx, rm.participant.UserID, r.documentID, &models.PromoteRequest{
			CommitMessage: commitMessage,
			Content:       r.state.Content,
			Metadata:      &metadata,
			WordCount:     r.state.WordCount,
			CharCount:     r.state.CharCount,
		})
		if err != nil {
			opErr = err
			return
		}
		r.state.Reset(doc)
		snapshot := r.state
		state = &snapshot
		version = v

		env, err := protocol.NewEnvelope(protocol.EventVersionCreated, 0, protocol.VersionCreated{
			DocumentID:    r.documentID,
			MajorVersion:  v.Major,
			CommitMessage: v.CommitMessage,
			CreatedBy:     models.UserRef{ID: rm.participant.UserID, Name: rm.participant.Name},
		})
		if err == nil {
			r.broadcast(sessionID, env)
		}
	})
	if err != nil {
		return nil, nil, err
	}
	return state, version, opErr
}

// adopt applies a lifecycle change persisted outside the room and tells
// every member
func (r *room) adopt(ctx context.Context, change func(*models.RoomState), env protocol.Envelope) error {
	return r.do(ctx, func() {
		if r.loaded {
			change(&r.state)
		}
		r.broadcast("", env)
	})
}

// publish sends env to every member except excludeSession
func (r *room) publish(ctx context.Context, excludeSession string, env protocol.Envelope) error {
	return r.do(ctx, func() {
		r.broadcast(excludeSession, env)
	})
}

// member returns the joined session after checking its role
func (r *room) member(sessionID string, allowed func(models.Role) error) (*roomMember, error) {
	rm, ok := r.members[sessionID]
	if !ok {
		return nil, fmt.Errorf("session has not joined document %s: %w", r.documentID, domain.ErrForbidden)
	}
	if allowed != nil {
		if err := allowed(rm.participant.Role); err != nil {
			return nil, err
		}
	}
	return rm, nil
}

func (r *room) ensureLoaded(ctx context.Context) error {
	if r.loaded {
		return nil
	}
	doc, err := r.store.LoadWorkingCopy(ctx, r.documentID)
	if err != nil {
		return fmt.Errorf("load room: %w", err)
	}
	r.state = models.NewRoomState(doc)
	r.loaded = true
	return nil
}

// participants returns the active set ordered by join time
func (r *room) participants() []models.Participant {
	list := make([]models.Participant, 0, len(r.members))
	for _, rm := range r.members {
		list = append(list, rm.participant)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].JoinedAt.Equal(list[j].JoinedAt) {
			return list[i].SessionID < list[j].SessionID
		}
		return list[i].JoinedAt.Before(list[j].JoinedAt)
	})
	return list
}

func (r *room) broadcastPresence(event, excludeSession string) {
	env, err := protocol.NewEnvelope(event, 0, protocol.ParticipantsChanged{
		DocumentID:         r.documentID,
		ActiveParticipants: r.participants(),
	})
	if err != nil {
		r.logger.Error("encode presence", "error", err)
		return
	}
	r.broadcast(excludeSession, env)
}

// broadcast never blocks: a member whose queue is full is dropped, and the
// rest are told it left.
func (r *room) broadcast(excludeSession string, env protocol.Envelope) {
	var dropped []string
	for id, rm := range r.members {
		if id == excludeSession {
			continue
		}
		if !rm.member.Send(env) {
			dropped = append(dropped, id)
		}
	}
	if len(dropped) == 0 {
		return
	}

	for _, id := range dropped {
		delete(r.members, id)
		r.metrics.ActiveParticipants.Dec()
		r.metrics.DroppedClients.Inc()
		r.logger.Warn("dropped slow participant", "session_id", id, "event", env.Event)
	}
	r.broadcastPresence(protocol.EventParticipantLeft, "")
	for _, id := range dropped {
		r.onDrop(id)
	}
}

// shutdown autosaves dirty state as a draft before the room goes away
func (r *room) shutdown() {
	r.metrics.ActiveParticipants.Sub(float64(len(r.members)))
	r.members = nil

	flushed := false
	if r.loaded && r.state.Dirty && r.state.UpdatedBy != nil {
		ctx, cancel := context.WithTimeout(context.Background(), r.flushTimeout)
		defer cancel()

		if _, err := r.store.StoreDraft(ctx, r.state.UpdatedBy.ID, r.documentID, r.state.DraftRequest()); err != nil {
			r.logger.Error("failed to flush room on eviction", "error", err)
		} else {
			flushed = true
			r.logger.Info("room flushed to draft on eviction", "updated_by", r.state.UpdatedBy.ID)
		}
	}
	r.metrics.RoomEvictions.WithLabelValues(strconv.FormatBool(flushed)).Inc()
}
