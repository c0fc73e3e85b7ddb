package handler

import (
	"context"
	"log/slog"
	"net/http"

	models "collabsync/internal/domain/models/collab"
	collabSvc "collabsync/internal/domain/services/collab"
	"collabsync/internal/httputil"
	"collabsync/internal/protocol"
)

// Broadcaster fans an event out to the members of a document's room
type Broadcaster interface {
	Broadcast(ctx context.Context, documentID, excludeSession string, env protocol.Envelope) error
}

// CommentHandler serves comment threads over REST. Changes made here reach
// live participants the same way websocket comments do.
type CommentHandler struct {
	commentService collabSvc.CommentService
	rooms          Broadcaster
	logger         *slog.Logger
}

// NewCommentHandler creates a new comment handler
func NewCommentHandler(commentService collabSvc.CommentService, rooms Broadcaster, logger *slog.Logger) *CommentHandler {
	return &CommentHandler{
		commentService: commentService,
		rooms:          rooms,
		logger:         logger,
	}
}

// ListComments returns every thread on a document
// GET /api/documents/{id}/comments
func (h *CommentHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	id, ok := PathParam(w, r, "id", "Document ID")
	if !ok {
		return
	}

	comments, err := h.commentService.ListComments(r.Context(), httputil.GetUserID(r), id)
	if err != nil {
		handleError(w, err)
		return
	}
	if comments == nil {
		comments = []models.Comment{}
	}

	httputil.RespondJSON(w, http.StatusOK, comments)
}

// CreateComment starts a thread
// POST /api/documents/{id}/comments
func (h *CommentHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	id, ok := PathParam(w, r, "id", "Document ID")
	if !ok {
		return
	}

	var req models.CreateCommentRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		respondBadBody(w, err)
		return
	}
	req.DocumentID = id

	comment, err := h.commentService.CreateComment(r.Context(), currentUser(r), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	h.publish(r.Context(), id, protocol.EventNewComment, protocol.NewComment{DocumentID: id, Comment: *comment})
	httputil.RespondJSON(w, http.StatusCreated, comment)
}

// AddReply appends to a thread
// POST /api/documents/{id}/comments/{commentId}/replies
func (h *CommentHandler) AddReply(w http.ResponseWriter, r *http.Request) {
	id, ok := PathParam(w, r, "id", "Document ID")
	if !ok {
		return
	}
	commentID, ok := PathParam(w, r, "commentId", "Comment ID")
	if !ok {
		return
	}

	var req models.ReplyRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		respondBadBody(w, err)
		return
	}
	req.DocumentID = id
	req.CommentID = commentID

	reply, err := h.commentService.AddReply(r.Context(), currentUser(r), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	h.publish(r.Context(), id, protocol.EventCommentReplyAdded, protocol.CommentReplyAdded{DocumentID: id, CommentID: commentID, Reply: *reply})
	httputil.RespondJSON(w, http.StatusCreated, reply)
}

// ResolveComment marks a thread resolved. Resolving twice returns the
// already-resolved thread.
// POST /api/documents/{id}/comments/{commentId}/resolve
func (h *CommentHandler) ResolveComment(w http.ResponseWriter, r *http.Request) {
	id, ok := PathParam(w, r, "id", "Document ID")
	if !ok {
		return
	}
	commentID, ok := PathParam(w, r, "commentId", "Comment ID")
	if !ok {
		return
	}

	user := currentUser(r)
	comment, changed, err := h.commentService.ResolveComment(r.Context(), user.ID, id, commentID)
	if err != nil {
		handleError(w, err)
		return
	}

	if changed {
		h.publish(r.Context(), id, protocol.EventCommentResolved, protocol.CommentResolved{DocumentID: id, CommentID: commentID, ResolvedBy: user})
	}
	httputil.RespondJSON(w, http.StatusOK, comment)
}

// publish is best effort: the write already succeeded
func (h *CommentHandler) publish(ctx context.Context, documentID, event string, payload any) {
	env, err := protocol.NewEnvelope(event, 0, payload)
	if err == nil {
		err = h.rooms.Broadcast(ctx, documentID, "", env)
	}
	if err != nil {
		h.logger.Warn("failed to broadcast comment event", "document_id", documentID, "event", event, "error", err)
	}
}

func currentUser(r *http.Request) models.UserRef {
	return models.UserRef{ID: httputil.GetUserID(r), Name: httputil.GetUserName(r)}
}
