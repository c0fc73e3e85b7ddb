package collab

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"collabsync/internal/capabilities"
	"collabsync/internal/domain"
	models "collabsync/internal/domain/models/collab"
	collabRepo "collabsync/internal/domain/repositories/collab"
	"collabsync/internal/domain/services"
	collabSvc "collabsync/internal/domain/services/collab"
)

// commentService implements the CommentService interface
type commentService struct {
	commentRepo collabRepo.CommentRepository
	authorizer  services.ResourceAuthorizer
	logger      *slog.Logger
	now         func() time.Time
}

// NewCommentService creates a new comment service
func NewCommentService(
	commentRepo collabRepo.CommentRepository,
	authorizer services.ResourceAuthorizer,
	logger *slog.Logger,
) collabSvc.CommentService {
	return &commentService{
		commentRepo: commentRepo,
		authorizer:  authorizer,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreateComment stores a top-level comment
func (s *commentService) CreateComment(ctx context.Context, author models.UserRef, req *models.CreateCommentRequest) (*models.Comment, error) {
	if err := validateCommentRequest(req); err != nil {
		return nil, err
	}
	if _, err := s.authorizer.Require(ctx, author.ID, req.DocumentID, capabilities.CapabilityComment); err != nil {
		return nil, err
	}

	comment := &models.Comment{
		DocumentID: req.DocumentID,
		AuthorID:   author.ID,
		AuthorName: author.Name,
		Content:    req.Content,
		Replies:    []models.Reply{},
		CreatedAt:  s.now(),
	}
	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}

	s.logger.Debug("comment created", "id", comment.ID, "document_id", req.DocumentID, "author_id", author.ID)
	return comment, nil
}

// AddReply appends a reply to an existing thread on the same document
func (s *commentService) AddReply(ctx context.Context, author models.UserRef, req *models.ReplyRequest) (*models.Reply, error) {
	if err := validateReplyRequest(req); err != nil {
		return nil, err
	}
	if _, err := s.authorizer.Require(ctx, author.ID, req.DocumentID, capabilities.CapabilityComment); err != nil {
		return nil, err
	}
	if _, err := s.getOnDocument(ctx, req.DocumentID, req.CommentID); err != nil {
		return nil, err
	}

	reply := &models.Reply{
		CommentID:  req.CommentID,
		AuthorID:   author.ID,
		AuthorName: author.Name,
		Content:    req.Content,
		CreatedAt:  s.now(),
	}
	if err := s.commentRepo.AddReply(ctx, reply); err != nil {
		return nil, fmt.Errorf("add reply: %w", err)
	}

	return reply, nil
}

// ResolveComment marks a thread resolved. The author may always resolve;
// anyone else needs a role with the resolve capability.
func (s *commentService) ResolveComment(ctx context.Context, userID, documentID, commentID string) (*models.Comment, bool, error) {
	role, err := s.authorizer.RoleFor(ctx, userID, documentID)
	if err != nil {
		return nil, false, err
	}
	comment, err := s.getOnDocument(ctx, documentID, commentID)
	if err != nil {
		return nil, false, err
	}
	if comment.AuthorID != userID && !s.authorizer.Allows(role, capabilities.CapabilityResolve) {
		return nil, false, fmt.Errorf("resolve comment %s: %w", commentID, &domain.ForbiddenActionError{
			Action: string(capabilities.CapabilityResolve),
			Role:   string(role),
		})
	}
	if comment.Resolved {
		return comment, false, nil
	}

	now := s.now()
	changed, err := s.commentRepo.MarkResolved(ctx, commentID, userID, now)
	if err != nil {
		return nil, false, fmt.Errorf("resolve comment: %w", err)
	}
	if changed {
		comment.Resolve(userID, now)
		s.logger.Debug("comment resolved", "id", commentID, "document_id", documentID, "resolved_by", userID)
		return comment, true, nil
	}

	// Lost a race with another resolver; report the stored state
	comment, err = s.commentRepo.GetByID(ctx, commentID)
	if err != nil {
		return nil, false, err
	}
	return comment, false, nil
}

// ListComments returns every thread on the document
func (s *commentService) ListComments(ctx context.Context, userID, documentID string) ([]models.Comment, error) {
	if _, err := s.authorizer.Require(ctx, userID, documentID, capabilities.CapabilityView); err != nil {
		return nil, err
	}
	return s.commentRepo.ListByDocument(ctx, documentID)
}

// getOnDocument loads a comment and checks it belongs to documentID
func (s *commentService) getOnDocument(ctx context.Context, documentID, commentID string) (*models.Comment, error) {
	comment, err := s.commentRepo.GetByID(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if comment.DocumentID != documentID {
		return nil, fmt.Errorf("comment %s on document %s: %w", commentID, documentID, domain.ErrNotFound)
	}
	return comment, nil
}
