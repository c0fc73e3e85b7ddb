package collab

import (
	"context"

	"collabsync/internal/domain/models/collab"
)

// DocumentRepository persists the latest major of each document.
// Drafts and history live in VersionRepository.
type DocumentRepository interface {
	// Create inserts a document and fills in ID and timestamps
	Create(ctx context.Context, doc *collab.Document) error

	// GetByID returns the document at its latest major (no draft overlay)
	GetByID(ctx context.Context, id string) (*collab.Document, error)

	// GetForUpdate locks the document row for the surrounding transaction
	GetForUpdate(ctx context.Context, id string) (*collab.Document, error)

	// UpdateMajor stores a promoted major as the document's current content
	UpdateMajor(ctx context.Context, doc *collab.Document) error
}
