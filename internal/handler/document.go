package handler

import (
	"context"
	"log/slog"
	"net/http"

	models "collabsync/internal/domain/models/collab"
	collabSvc "collabsync/internal/domain/services/collab"
	"collabsync/internal/httputil"
)

// RoomNotifier brings a document's live room in line with lifecycle
// changes made over REST
type RoomNotifier interface {
	DraftDiscarded(ctx context.Context, doc *models.Document, by models.UserRef) error
	VersionPromoted(ctx context.Context, version *models.Version, doc *models.Document, by models.UserRef) error
}

// DocumentHandler serves the draft/version lifecycle over REST
type DocumentHandler struct {
	docService collabSvc.DocumentService
	rooms      RoomNotifier
	logger     *slog.Logger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(docService collabSvc.DocumentService, rooms RoomNotifier, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{
		docService: docService,
		rooms:      rooms,
		logger:     logger,
	}
}

// CreateDocument creates a proposal at major version 1
// POST /api/documents
func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req models.CreateDocumentRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		respondBadBody(w, err)
		return
	}

	doc, err := h.docService.CreateDocument(r.Context(), httputil.GetUserID(r), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, doc)
}

// GetDocument returns the working copy
// GET /api/documents/{id}
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := PathParam(w, r, "id", "Document ID")
	if !ok {
		return
	}

	doc, err := h.docService.GetDocument(r.Context(), httputil.GetUserID(r), id)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, doc)
}

// GetDraft returns the current draft
// GET /api/documents/{id}/draft
func (h *DocumentHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := PathParam(w, r, "id", "Document ID")
	if !ok {
		return
	}

	draft, err := h.docService.GetDraft(r.Context(), httputil.GetUserID(r), id)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, draft)
}

// SaveDraft creates or overwrites the draft
// PUT /api/documents/{id}/draft
func (h *DocumentHandler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := PathParam(w, r, "id", "Document ID")
	if !ok {
		return
	}

	var req models.SaveDraftRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		respondBadBody(w, err)
		return
	}

	doc, err := h.docService.SaveDraft(r.Context(), httputil.GetUserID(r), id, &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, doc)
}

// DiscardDraft drops the draft. A live room falls back to the major version.
// DELETE /api/documents/{id}/draft
func (h *DocumentHandler) DiscardDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := PathParam(w, r, "id", "Document ID")
	if !ok {
		return
	}

	user := currentUser(r)
	doc, err := h.docService.DiscardDraft(r.Context(), user.ID, id)
	if err != nil {
		handleError(w, err)
		return
	}

	if err := h.rooms.DraftDiscarded(r.Context(), doc, user); err != nil {
		h.logger.Warn("failed to update room after discard", "document_id", id, "error", err)
	}

	httputil.RespondJSON(w, http.StatusOK, doc)
}

// ListVersions returns the major history, newest first
// GET /api/documents/{id}/versions
func (h *DocumentHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	id, ok := PathParam(w, r, "id", "Document ID")
	if !ok {
		return
	}

	versions, err := h.docService.ListVersions(r.Context(), httputil.GetUserID(r), id)
	if err != nil {
		handleError(w, err)
		return
	}
	if versions == nil {
		versions = []models.Version{}
	}

	httputil.RespondJSON(w, http.StatusOK, versions)
}

// PromoteDraft creates the next major version
// POST /api/documents/{id}/versions
func (h *DocumentHandler) PromoteDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := PathParam(w, r, "id", "Document ID")
	if !ok {
		return
	}

	var req models.PromoteRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		respondBadBody(w, err)
		return
	}

	user := currentUser(r)
	version, doc, err := h.docService.PromoteDraft(r.Context(), user.ID, id, &req)
	if err != nil {
		handleError(w, err)
		return
	}

	if err := h.rooms.VersionPromoted(r.Context(), version, doc, user); err != nil {
		h.logger.Warn("failed to update room after promotion", "document_id", id, "error", err)
	}

	httputil.RespondJSON(w, http.StatusCreated, version)
}
