// Package ws serves the collaboration protocol over websockets.
package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"collabsync/internal/domain"
	models "collabsync/internal/domain/models/collab"
	collabSvc "collabsync/internal/domain/services/collab"
	"collabsync/internal/httputil"
	"collabsync/internal/metrics"
	"collabsync/internal/protocol"
	"collabsync/internal/service/collab"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

var errRateLimited = errors.New("rate limit exceeded")

// Rooms is the room manager as seen by a connection
type Rooms interface {
	Join(ctx context.Context, documentID string, p models.Participant, member collab.Member) (*collab.JoinResult, error)
	Leave(ctx context.Context, documentID, sessionID string) error
	ApplyUpdate(ctx context.Context, sessionID string, update *models.ContentUpdate) error
	Save(ctx context.Context, sessionID, documentID string) (*models.RoomState, error)
	Promote(ctx context.Context, sessionID string, user models.UserRef, documentID, commitMessage string) (*models.RoomState, *models.Version, error)
	Broadcast(ctx context.Context, documentID, excludeSession string, env protocol.Envelope) error
}

// Handler upgrades authenticated requests and runs one session per connection
type Handler struct {
	rooms    Rooms
	comments collabSvc.CommentService
	cfg      *Config
	metrics  *metrics.Metrics
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a websocket handler. cfg may be nil for defaults.
func NewHandler(rooms Rooms, comments collabSvc.CommentService, cfg *Config, m *metrics.Metrics, logger *slog.Logger) *Handler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	h := &Handler{
		rooms:    rooms,
		comments: comments,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// ServeWS upgrades the request
// GET /api/collab/ws
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	user := models.UserRef{ID: httputil.GetUserID(r), Name: httputil.GetUserName(r)}
	if user.ID == "" {
		httputil.RespondError(w, http.StatusUnauthorized, "missing user")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		h.logger.Warn("websocket upgrade failed", "error", err, "user_id", user.ID)
		return
	}

	s := newSession(uuid.NewString(), user, conn, h.cfg, h.logger)
	h.metrics.Connections.Inc()
	defer h.metrics.Connections.Dec()
	s.logger.Info("websocket connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop()
	}()

	h.readLoop(s)

	s.close()
	<-writerDone
	h.leaveAll(s)
	s.logger.Info("websocket disconnected")
}

// readLoop handles inbound events in order until the connection fails.
// Sequential handling keeps a client's updates in the order it sent them.
func (h *Handler) readLoop(s *Session) {
	conn := s.conn
	conn.SetReadLimit(h.cfg.MaxMessageBytes)
	conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	})

	limiter := rate.NewLimiter(rate.Limit(h.cfg.EventsPerSecond), h.cfg.EventBurst)

	for {
		var env protocol.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("read failed", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))

		if !limiter.Allow() {
			h.metrics.ObserveEvent(env.Event, errRateLimited, time.Now())
			h.ack(s, env, protocol.Failure(errRateLimited))
			continue
		}

		h.dispatch(s, env)
	}
}

func (h *Handler) dispatch(s *Session, env protocol.Envelope) {
	started := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.RequestTimeout)
	defer cancel()

	ack, err := h.handle(ctx, s, env)
	h.metrics.ObserveEvent(env.Event, err, started)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%s: %w", env.Event, domain.ErrTimeout)
		}
		level := slog.LevelDebug
		if !isClientError(err) {
			level = slog.LevelError
		}
		s.logger.Log(ctx, level, "event failed", "event", env.Event, "error", err)
		h.ack(s, env, protocol.Failure(err))
		return
	}
	ack.Success = true
	h.ack(s, env, ack)
}

// ack replies only when the client asked for one
func (h *Handler) ack(s *Session, env protocol.Envelope, data protocol.AckData) {
	if env.ID == 0 {
		return
	}
	s.Send(protocol.NewAck(env.ID, data))
}

func (h *Handler) handle(ctx context.Context, s *Session, env protocol.Envelope) (protocol.AckData, error) {
	switch env.Event {
	case protocol.EventJoinRoom:
		var req protocol.DocumentRef
		if err := decode(env, &req); err != nil {
			return protocol.AckData{}, err
		}
		res, err := h.rooms.Join(ctx, req.DocumentID, models.Participant{UserID: s.user.ID, Name: s.user.Name}, s)
		if err != nil {
			return protocol.AckData{}, err
		}
		s.track(req.DocumentID)
		state := res.RoomState
		return protocol.AckData{ActiveParticipants: res.ActiveParticipants, RoomState: &state}, nil

	case protocol.EventLeaveRoom:
		var req protocol.DocumentRef
		if err := decode(env, &req); err != nil {
			return protocol.AckData{}, err
		}
		s.untrack(req.DocumentID)
		return protocol.AckData{}, h.rooms.Leave(ctx, req.DocumentID, s.id)

	case protocol.EventUpdateContent:
		var update models.ContentUpdate
		if err := decode(env, &update); err != nil {
			return protocol.AckData{}, err
		}
		return protocol.AckData{}, h.rooms.ApplyUpdate(ctx, s.id, &update)

	case protocol.EventSaveDocument:
		var req protocol.DocumentRef
		if err := decode(env, &req); err != nil {
			return protocol.AckData{}, err
		}
		state, err := h.rooms.Save(ctx, s.id, req.DocumentID)
		if err != nil {
			return protocol.AckData{}, err
		}
		return protocol.AckData{RoomState: state}, nil

	case protocol.EventCreateMajorVersion:
		var req protocol.CreateMajorVersion
		if err := decode(env, &req); err != nil {
			return protocol.AckData{}, err
		}
		state, version, err := h.rooms.Promote(ctx, s.id, s.user, req.DocumentID, req.CommitMessage)
		if err != nil {
			return protocol.AckData{}, err
		}
		return protocol.AckData{RoomState: state, Version: version}, nil

	case protocol.EventAddComment:
		return h.addComment(ctx, s, env)
	case protocol.EventReplyComment:
		return h.replyComment(ctx, s, env)
	case protocol.EventResolveComment:
		return h.resolveComment(ctx, s, env)
	}

	return protocol.AckData{}, fmt.Errorf("unknown event %q: %w", env.Event, domain.ErrValidation)
}

func (h *Handler) addComment(ctx context.Context, s *Session, env protocol.Envelope) (protocol.AckData, error) {
	var req protocol.AddComment
	if err := decode(env, &req); err != nil {
		return protocol.AckData{}, err
	}
	comment, err := h.comments.CreateComment(ctx, s.user, &models.CreateCommentRequest{
		DocumentID: req.DocumentID,
		Content:    req.Comment.Content,
	})
	if err != nil {
		return protocol.AckData{}, err
	}

	h.publish(ctx, s, req.DocumentID, protocol.EventNewComment, protocol.NewComment{DocumentID: req.DocumentID, Comment: *comment})
	return protocol.AckData{Comment: comment}, nil
}

func (h *Handler) replyComment(ctx context.Context, s *Session, env protocol.Envelope) (protocol.AckData, error) {
	var req protocol.ReplyComment
	if err := decode(env, &req); err != nil {
		return protocol.AckData{}, err
	}
	reply, err := h.comments.AddReply(ctx, s.user, &models.ReplyRequest{
		DocumentID: req.DocumentID,
		CommentID:  req.CommentID,
		Content:    req.Content,
	})
	if err != nil {
		return protocol.AckData{}, err
	}

	h.publish(ctx, s, req.DocumentID, protocol.EventCommentReplyAdded, protocol.CommentReplyAdded{
		DocumentID: req.DocumentID,
		CommentID:  req.CommentID,
		Reply:      *reply,
	})
	return protocol.AckData{Reply: reply}, nil
}

func (h *Handler) resolveComment(ctx context.Context, s *Session, env protocol.Envelope) (protocol.AckData, error) {
	var req protocol.ResolveComment
	if err := decode(env, &req); err != nil {
		return protocol.AckData{}, err
	}
	comment, changed, err := h.comments.ResolveComment(ctx, s.user.ID, req.DocumentID, req.CommentID)
	if err != nil {
		return protocol.AckData{}, err
	}

	if changed {
		h.publish(ctx, s, req.DocumentID, protocol.EventCommentResolved, protocol.CommentResolved{
			DocumentID: req.DocumentID,
			CommentID:  req.CommentID,
			ResolvedBy: s.user,
		})
	}
	return protocol.AckData{Comment: comment}, nil
}

// publish tells everyone else in the room. The sender learns the outcome from its ack.
func (h *Handler) publish(ctx context.Context, s *Session, documentID, event string, payload any) {
	env, err := protocol.NewEnvelope(event, 0, payload)
	if err == nil {
		err = h.rooms.Broadcast(ctx, documentID, s.id, env)
	}
	if err != nil {
		s.logger.Warn("failed to broadcast", "event", event, "document_id", documentID, "error", err)
	}
}

// leaveAll runs after disconnect so the other participants see us go
func (h *Handler) leaveAll(s *Session) {
	for _, documentID := range s.joined() {
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.RequestTimeout)
		if err := h.rooms.Leave(ctx, documentID, s.id); err != nil && !errors.Is(err, collab.ErrManagerClosed) {
			s.logger.Warn("failed to leave room on disconnect", "document_id", documentID, "error", err)
		}
		cancel()
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func decode(env protocol.Envelope, dst any) error {
	if err := env.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

func isClientError(err error) bool {
	for _, target := range []error{
		domain.ErrValidation,
		domain.ErrNotFound,
		domain.ErrForbidden,
		domain.ErrUnauthorized,
		domain.ErrNoDraft,
		domain.ErrConflict,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
