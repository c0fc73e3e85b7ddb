package collab

import (
	"context"

	"collabsync/internal/domain/models/collab"
)

// VersionRepository stores the single draft per document and the immutable
// major history.
type VersionRepository interface {
	// GetDraft returns the document's draft or domain.ErrNotFound
	GetDraft(ctx context.Context, documentID string) (*collab.Version, error)

	// UpsertDraft creates the draft or overwrites the existing one
	UpsertDraft(ctx context.Context, draft *collab.Version) error

	// DeleteDraft removes the draft; domain.ErrNotFound when there is none
	DeleteDraft(ctx context.Context, documentID string) error

	// CreateMajor appends an immutable history entry; a duplicate major is a conflict
	CreateMajor(ctx context.Context, version *collab.Version) error

	// ListMajors returns history entries, newest first
	ListMajors(ctx context.Context, documentID string) ([]collab.Version, error)
}
