package collab

import (
	"context"

	"collabsync/internal/domain/models/collab"
)

// CollaboratorService manages role grants on documents.
type CollaboratorService interface {
	ListCollaborators(ctx context.Context, userID, documentID string) ([]collab.Collaborator, error)

	// Invite grants a role; the caller needs the invite capability
	Invite(ctx context.Context, userID, documentID string, req *collab.InviteRequest) (*collab.Collaborator, error)
}
