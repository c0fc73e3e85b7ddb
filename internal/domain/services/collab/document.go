package collab

import (
	"context"

	"collabsync/internal/domain/models/collab"
)

// DocumentService owns the draft/version lifecycle.
type DocumentService interface {
	// CreateDocument stores a new proposal at major 1 and grants the creator the owner role
	CreateDocument(ctx context.Context, userID string, req *collab.CreateDocumentRequest) (*collab.Document, error)

	// GetDocument returns the working copy: the draft when one exists, the latest major otherwise
	GetDocument(ctx context.Context, userID, documentID string) (*collab.Document, error)

	// GetDraft returns the current draft or domain.ErrNotFound
	GetDraft(ctx context.Context, userID, documentID string) (*collab.Version, error)

	// SaveDraft creates or overwrites the draft (NoDraft -> DraftActive)
	SaveDraft(ctx context.Context, userID, documentID string, req *collab.SaveDraftRequest) (*collab.Document, error)

	// DiscardDraft drops the draft (DraftActive -> NoDraft)
	DiscardDraft(ctx context.Context, userID, documentID string) (*collab.Document, error)

	// PromoteDraft writes major+1 from the draft, or from explicit content, and clears the draft
	PromoteDraft(ctx context.Context, userID, documentID string, req *collab.PromoteRequest) (*collab.Version, *collab.Document, error)

	// ListVersions returns the immutable major history, newest first
	ListVersions(ctx context.Context, userID, documentID string) ([]collab.Version, error)
}

// ContentAnalyzer derives counts from opaque document content.
type ContentAnalyzer interface {
	// Analyze returns word and character counts of the text inside content
	Analyze(content []byte) (words, chars int)
}
