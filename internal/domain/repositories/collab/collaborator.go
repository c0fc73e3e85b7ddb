package collab

import (
	"context"

	"collabsync/internal/domain/models/collab"
)

// CollaboratorRepository stores role grants per document.
type CollaboratorRepository interface {
	// GetRole returns the user's role or domain.ErrNotFound
	GetRole(ctx context.Context, documentID, userID string) (collab.Role, error)

	// Upsert grants or changes a role
	Upsert(ctx context.Context, c *collab.Collaborator) error

	ListByDocument(ctx context.Context, documentID string) ([]collab.Collaborator, error)
}
