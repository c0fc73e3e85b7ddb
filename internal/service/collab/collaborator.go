package collab

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"collabsync/internal/capabilities"
	models "collabsync/internal/domain/models/collab"
	collabRepo "collabsync/internal/domain/repositories/collab"
	"collabsync/internal/domain/services"
	collabSvc "collabsync/internal/domain/services/collab"
)

// collaboratorService implements the CollaboratorService interface
type collaboratorService struct {
	collaboratorRepo collabRepo.CollaboratorRepository
	authorizer       services.ResourceAuthorizer
	logger           *slog.Logger
}

// NewCollaboratorService creates a new collaborator service
func NewCollaboratorService(
	collaboratorRepo collabRepo.CollaboratorRepository,
	authorizer services.ResourceAuthorizer,
	logger *slog.Logger,
) collabSvc.CollaboratorService {
	return &collaboratorService{
		collaboratorRepo: collaboratorRepo,
		authorizer:       authorizer,
		logger:           logger,
	}
}

// ListCollaborators returns every grant on the document
func (s *collaboratorService) ListCollaborators(ctx context.Context, userID, documentID string) ([]models.Collaborator, error) {
	if _, err := s.authorizer.Require(ctx, userID, documentID, capabilities.CapabilityView); err != nil {
		return nil, err
	}
	return s.collaboratorRepo.ListByDocument(ctx, documentID)
}

// Invite grants a role on the document
func (s *collaboratorService) Invite(ctx context.Context, userID, documentID string, req *models.InviteRequest) (*models.Collaborator, error) {
	if err := validateInvite(req); err != nil {
		return nil, err
	}
	if _, err := s.authorizer.Require(ctx, userID, documentID, capabilities.CapabilityInvite); err != nil {
		return nil, err
	}

	c := &models.Collaborator{
		DocumentID: documentID,
		UserID:     req.UserID,
		Role:       req.Role,
		InvitedBy:  userID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.collaboratorRepo.Upsert(ctx, c); err != nil {
		return nil, fmt.Errorf("invite collaborator: %w", err)
	}

	s.logger.Info("collaborator invited",
		"document_id", documentID,
		"user_id", req.UserID,
		"role", req.Role,
		"invited_by", userID,
	)
	return c, nil
}
