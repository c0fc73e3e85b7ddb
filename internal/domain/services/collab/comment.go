package collab

import (
	"context"

	"collabsync/internal/domain/models/collab"
)

// CommentService stores comment threads. Callers broadcast the results.
type CommentService interface {
	CreateComment(ctx context.Context, author collab.UserRef, req *collab.CreateCommentRequest) (*collab.Comment, error)

	AddReply(ctx context.Context, author collab.UserRef, req *collab.ReplyRequest) (*collab.Reply, error)

	// ResolveComment is allowed for the author or a role with the resolve capability.
	// changed is false when the comment was already resolved.
	ResolveComment(ctx context.Context, userID, documentID, commentID string) (comment *collab.Comment, changed bool, err error)

	ListComments(ctx context.Context, userID, documentID string) ([]collab.Comment, error)
}
