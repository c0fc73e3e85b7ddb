package handler

import (
	"log/slog"
	"net/http"

	models "collabsync/internal/domain/models/collab"
	collabSvc "collabsync/internal/domain/services/collab"
	"collabsync/internal/httputil"
)

// CollaboratorHandler manages role grants
type CollaboratorHandler struct {
	collaboratorService collabSvc.CollaboratorService
	logger              *slog.Logger
}

// NewCollaboratorHandler creates a new collaborator handler
func NewCollaboratorHandler(collaboratorService collabSvc.CollaboratorService, logger *slog.Logger) *CollaboratorHandler {
	return &CollaboratorHandler{
		collaboratorService: collaboratorService,
		logger:              logger,
	}
}

// ListCollaborators returns every grant on a document
// GET /api/documents/{id}/collaborators
func (h *CollaboratorHandler) ListCollaborators(w http.ResponseWriter, r *http.Request) {
	id, ok := PathParam(w, r, "id", "Document ID")
	if !ok {
		return
	}

	list, err := h.collaboratorService.ListCollaborators(r.Context(), httputil.GetUserID(r), id)
	if err != nil {
		handleError(w, err)
		return
	}
	if list == nil {
		list = []models.Collaborator{}
	}

	httputil.RespondJSON(w, http.StatusOK, list)
}

// Invite grants a role on a document
// POST /api/documents/{id}/collaborators
func (h *CollaboratorHandler) Invite(w http.ResponseWriter, r *http.Request) {
	id, ok := PathParam(w, r, "id", "Document ID")
	if !ok {
		return
	}

	var req models.InviteRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		respondBadBody(w, err)
		return
	}

	c, err := h.collaboratorService.Invite(r.Context(), httputil.GetUserID(r), id, &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, c)
}
