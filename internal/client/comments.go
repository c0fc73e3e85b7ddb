package client

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"collabsync/internal/domain"
	models "collabsync/internal/domain/models/collab"
	"collabsync/internal/protocol"

	"github.com/google/uuid"
)

const tempIDPrefix = "temp-"

// Requester sends an acknowledged event. *Transport implements it.
type Requester interface {
	Request(ctx context.Context, event string, payload any) (protocol.AckData, error)
}

// EventSource delivers inbound events. *Transport implements it.
type EventSource interface {
	On(event string, fn func(protocol.Envelope))
}

// CommentManager keeps the local view of a document's comment threads in
// step with the server and with other participants.
type CommentManager struct {
	documentID string
	user       models.UserRef
	req        Requester
	logger     *slog.Logger
	now        func() time.Time

	mu         sync.Mutex
	canResolve bool
	comments   []models.Comment
}

// NewCommentManager creates a manager for one document. canResolve is true
// when the user's role may resolve other people's comments.
func NewCommentManager(documentID string, user models.UserRef, canResolve bool, req Requester, logger *slog.Logger) *CommentManager {
	return &CommentManager{
		documentID: documentID,
		user:       user,
		req:        req,
		canResolve: canResolve,
		logger:     logger.With("document_id", documentID),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe applies other participants' comment events as they arrive.
func (m *CommentManager) Subscribe(src EventSource) {
	src.On(protocol.EventNewComment, m.handleNewComment)
	src.On(protocol.EventCommentReplyAdded, m.handleReplyAdded)
	src.On(protocol.EventCommentResolved, m.handleResolved)
}

// SetCanResolve updates the privilege once the user's role is known.
func (m *CommentManager) SetCanResolve(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.canResolve = v
}

// Load replaces the list with the server's threads. Local-only comments
// that never reached the server are kept.
func (m *CommentManager) Load(comments []models.Comment) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make([]models.Comment, 0, len(comments))
	next = append(next, comments...)
	for _, c := range m.comments {
		if c.Temporary {
			next = append(next, c)
		}
	}
	m.comments = next
}

// Comments returns a copy of the current threads.
func (m *CommentManager) Comments() []models.Comment {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Comment, len(m.comments))
	for i, c := range m.comments {
		c.Replies = append([]models.Reply(nil), c.Replies...)
		out[i] = c
	}
	return out
}

// AddComment stores a comment on the server. When the call fails the
// comment is kept locally under a temporary id and returned with the error.
func (m *CommentManager) AddComment(ctx context.Context, content string) (models.Comment, error) {
	if strings.TrimSpace(content) == "" {
		return models.Comment{}, fmt.Errorf("comment content: %w", domain.ErrValidation)
	}

	payload := protocol.AddComment{DocumentID: m.documentID}
	payload.Comment.Content = content

	ack, err := m.req.Request(ctx, protocol.EventAddComment, payload)
	if err == nil && ack.Comment != nil {
		m.mu.Lock()
		m.insertLocked(*ack.Comment)
		m.mu.Unlock()
		return *ack.Comment, nil
	}
	if err == nil {
		err = fmt.Errorf("%s: acknowledgement carried no comment", protocol.EventAddComment)
	}

	temp := models.Comment{
		ID:         tempIDPrefix + uuid.NewString(),
		DocumentID: m.documentID,
		AuthorID:   m.user.ID,
		AuthorName: m.user.Name,
		Content:    content,
		Replies:    []models.Reply{},
		Temporary:  true,
		CreatedAt:  m.now(),
	}
	m.mu.Lock()
	m.insertLocked(temp)
	m.mu.Unlock()

	m.logger.Warn("comment kept locally", "temp_id", temp.ID, "error", err)
	return temp, err
}

// Reply appends a reply locally, then reconciles it with the stored reply.
// On failure the local reply stays, marked temporary.
func (m *CommentManager) Reply(ctx context.Context, commentID, content string) (models.Reply, error) {
	if strings.TrimSpace(content) == "" {
		return models.Reply{}, fmt.Errorf("reply content: %w", domain.ErrValidation)
	}

	temp := models.Reply{
		ID:         tempIDPrefix + uuid.NewString(),
		CommentID:  commentID,
		AuthorID:   m.user.ID,
		AuthorName: m.user.Name,
		Content:    content,
		Temporary:  true,
		CreatedAt:  m.now(),
	}

	m.mu.Lock()
	c := m.findLocked(commentID)
	if c == nil {
		m.mu.Unlock()
		return models.Reply{}, fmt.Errorf("comment %s: %w", commentID, domain.ErrNotFound)
	}
	c.Replies = append(c.Replies, temp)
	m.mu.Unlock()

	ack, err := m.req.Request(ctx, protocol.EventReplyComment, protocol.ReplyComment{
		DocumentID: m.documentID,
		CommentID:  commentID,
		Content:    content,
	})
	if err == nil && ack.Reply == nil {
		err = fmt.Errorf("%s: acknowledgement carried no reply", protocol.EventReplyComment)
	}
	if err != nil {
		m.logger.Warn("reply kept locally", "comment_id", commentID, "temp_id", temp.ID, "error", err)
		return temp, err
	}

	stored := *ack.Reply
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.findLocked(commentID); c != nil {
		c.Replies = reconcileReply(c.Replies, temp.ID, stored)
	}
	return stored, nil
}

// Resolve marks a comment resolved. Only the author or a privileged role may
// resolve; resolving an already resolved comment is a no-op.
func (m *CommentManager) Resolve(ctx context.Context, commentID string) error {
	m.mu.Lock()
	c := m.findLocked(commentID)
	if c == nil {
		m.mu.Unlock()
		return fmt.Errorf("comment %s: %w", commentID, domain.ErrNotFound)
	}
	if c.AuthorID != m.user.ID && !m.canResolve {
		m.mu.Unlock()
		return fmt.Errorf("resolve comment: %w", domain.ErrForbidden)
	}
	if c.Resolved {
		m.mu.Unlock()
		return nil
	}
	m.markResolvedLocked(c, m.user.ID)
	temporary := c.Temporary
	m.mu.Unlock()

	if temporary {
		return nil
	}

	_, err := m.req.Request(ctx, protocol.EventResolveComment, protocol.ResolveComment{
		DocumentID: m.documentID,
		CommentID:  commentID,
	})
	if err != nil {
		m.logger.Warn("resolve not confirmed", "comment_id", commentID, "error", err)
	}
	return err
}

func (m *CommentManager) handleNewComment(env protocol.Envelope) {
	var ev protocol.NewComment
	if err := env.Decode(&ev); err != nil || ev.DocumentID != m.documentID {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertLocked(ev.Comment)
}

func (m *CommentManager) handleReplyAdded(env protocol.Envelope) {
	var ev protocol.CommentReplyAdded
	if err := env.Decode(&ev); err != nil || ev.DocumentID != m.documentID {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.findLocked(ev.CommentID)
	if c == nil {
		return
	}
	for _, r := range c.Replies {
		if r.ID == ev.Reply.ID {
			return
		}
	}
	c.Replies = append(c.Replies, ev.Reply)
}

func (m *CommentManager) handleResolved(env protocol.Envelope) {
	var ev protocol.CommentResolved
	if err := env.Decode(&ev); err != nil || ev.DocumentID != m.documentID {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.findLocked(ev.CommentID); c != nil && !c.Resolved {
		m.markResolvedLocked(c, ev.ResolvedBy.ID)
	}
}

// insertLocked adds c unless a comment with its id is already present
func (m *CommentManager) insertLocked(c models.Comment) {
	if m.findLocked(c.ID) != nil {
		return
	}
	if c.Replies == nil {
		c.Replies = []models.Reply{}
	}
	m.comments = append(m.comments, c)
}

func (m *CommentManager) findLocked(id string) *models.Comment {
	for i := range m.comments {
		if m.comments[i].ID == id {
			return &m.comments[i]
		}
	}
	return nil
}

func (m *CommentManager) markResolvedLocked(c *models.Comment, by string) {
	at := m.now()
	c.Resolved = true
	c.ResolvedBy = &by
	c.ResolvedAt = &at
}

// reconcileReply swaps the temporary reply for the stored one, or drops the
// temporary one if the stored reply is already present.
func reconcileReply(replies []models.Reply, tempID string, stored models.Reply) []models.Reply {
	for _, r := range replies {
		if r.ID == stored.ID {
			out := replies[:0]
			for _, r := range replies {
				if r.ID != tempID {
					out = append(out, r)
				}
			}
			return out
		}
	}
	for i := range replies {
		if replies[i].ID == tempID {
			replies[i] = stored
			return replies
		}
	}
	return append(replies, stored)
}
