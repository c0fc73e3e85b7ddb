package collab

import (
	"context"
	"time"

	"collabsync/internal/domain/models/collab"
)

// CommentRepository stores comment threads.
type CommentRepository interface {
	Create(ctx context.Context, comment *collab.Comment) error

	// GetByID returns the comment with its replies in creation order
	GetByID(ctx context.Context, id string) (*collab.Comment, error)

	// ListByDocument returns all threads on a document, oldest first
	ListByDocument(ctx context.Context, documentID string) ([]collab.Comment, error)

	AddReply(ctx context.Context, reply *collab.Reply) error

	// MarkResolved flips resolved to true. Returns false when it already was.
	MarkResolved(ctx context.Context, id, resolvedBy string, at time.Time) (bool, error)
}
