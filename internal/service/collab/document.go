package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"collabsync/internal/capabilities"
	"collabsync/internal/domain"
	models "collabsync/internal/domain/models/collab"
	"collabsync/internal/domain/repositories"
	collabRepo "collabsync/internal/domain/repositories/collab"
	"collabsync/internal/domain/services"
	collabSvc "collabsync/internal/domain/services/collab"
)

const initialCommitMessage = "Initial version"

var (
	_ collabSvc.DocumentService = (*DocumentService)(nil)
	_ RoomStore                = (*DocumentService)(nil)
)

// DocumentService implements collabSvc.DocumentService and RoomStore
type DocumentService struct {
	docRepo          collabRepo.DocumentRepository
	versionRepo      collabRepo.VersionRepository
	collaboratorRepo collabRepo.CollaboratorRepository
	txManager        repositories.TransactionManager
	authorizer       services.ResourceAuthorizer
	analyzer         collabSvc.ContentAnalyzer
	logger           *slog.Logger
	now              func() time.Time
}

// NewDocumentService creates a new document service
func NewDocumentService(
	docRepo collabRepo.DocumentRepository,
	versionRepo collabRepo.VersionRepository,
	collaboratorRepo collabRepo.CollaboratorRepository,
	txManager repositories.TransactionManager,
	authorizer services.ResourceAuthorizer,
	analyzer collabSvc.ContentAnalyzer,
	logger *slog.Logger,
) *DocumentService {
	return &DocumentService{
		docRepo:          docRepo,
		versionRepo:      versionRepo,
		collaboratorRepo: collaboratorRepo,
		txManager:        txManager,
		authorizer:       authorizer,
		analyzer:         analyzer,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// CreateDocument stores a new proposal at major 1 and makes the creator its owner
func (s *DocumentService) CreateDocument(ctx context.Context, userID string, req *models.CreateDocumentRequest) (*models.Document, error) {
	if userID == "" {
		return nil, fmt.Errorf("create document: %w", domain.ErrUnauthorized)
	}
	if err := validateCreateDocument(req); err != nil {
		return nil, err
	}

	content := req.Content
	if len(content) == 0 {
		content = json.RawMessage(`{}`)
	}
	words, chars := s.analyzer.Analyze(content)
	now := s.now()

	doc := &models.Document{
		MajorVersion: 1,
		Content:      content,
		Metadata:     req.Metadata,
		WordCount:    words,
		CharCount:    chars,
		CreatedBy:    userID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if err := s.docRepo.Create(txCtx, doc); err != nil {
			return err
		}
		initial := &models.Version{
			DocumentID:    doc.ID,
			Major:         1,
			Content:       doc.Content,
			Metadata:      doc.Metadata,
			WordCount:     doc.WordCount,
			CharCount:     doc.CharCount,
			CommitMessage: initialCommitMessage,
			CreatedBy:     userID,
			CreatedAt:     now,
		}
		if err := s.versionRepo.CreateMajor(txCtx, initial); err != nil {
			return err
		}
		return s.collaboratorRepo.Upsert(txCtx, &models.Collaborator{
			DocumentID: doc.ID,
			UserID:     userID,
			Role:       models.RoleOwner,
			InvitedBy:  userID,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	s.logger.Info("document created",
		"id", doc.ID,
		"created_by", userID,
		"word_count", doc.WordCount,
	)

	return doc, nil
}

// GetDocument returns the working copy
func (s *DocumentService) GetDocument(ctx context.Context, userID, documentID string) (*models.Document, error) {
	if err := validateDocumentID(documentID); err != nil {
		return nil, err
	}
	if _, err := s.authorizer.Require(ctx, userID, documentID, capabilities.CapabilityView); err != nil {
		return nil, err
	}
	return s.LoadWorkingCopy(ctx, documentID)
}

// GetDraft returns the current draft
func (s *DocumentService) GetDraft(ctx context.Context, userID, documentID string) (*models.Version, error) {
	if err := validateDocumentID(documentID); err != nil {
		return nil, err
	}
	if _, err := s.authorizer.Require(ctx, userID, documentID, capabilities.CapabilityView); err != nil {
		return nil, err
	}
	return s.versionRepo.GetDraft(ctx, documentID)
}

// SaveDraft creates or overwrites the draft
func (s *DocumentService) SaveDraft(ctx context.Context, userID, documentID string, req *models.SaveDraftRequest) (*models.Document, error) {
	if err := validateDocumentID(documentID); err != nil {
		return nil, err
	}
	if _, err := s.authorizer.Require(ctx, userID, documentID, capabilities.CapabilityEdit); err != nil {
		return nil, err
	}
	return s.StoreDraft(ctx, userID, documentID, req)
}

// DiscardDraft drops the draft
func (s *DocumentService) DiscardDraft(ctx context.Context, userID, documentID string) (*models.Document, error) {
	if err := validateDocumentID(documentID); err != nil {
		return nil, err
	}
	if _, err := s.authorizer.Require(ctx, userID, documentID, capabilities.CapabilityDiscard); err != nil {
		return nil, err
	}

	var doc *models.Document
	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		var err error
		doc, err = s.docRepo.GetForUpdate(txCtx, documentID)
		if err != nil {
			return err
		}
		draft, err := s.findDraft(txCtx, documentID)
		if err != nil {
			return err
		}

		state := models.NewVersionState(doc.MajorVersion, draft != nil)
		if err := state.Discard(); err != nil {
			return err
		}
		if err := s.versionRepo.DeleteDraft(txCtx, documentID); err != nil {
			return err
		}
		overlayDraft(doc, nil)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discard draft: %w", err)
	}

	s.logger.Info("draft discarded", "document_id", documentID, "user_id", userID)
	return doc, nil
}

// PromoteDraft writes the next major version
func (s *DocumentService) PromoteDraft(ctx context.Context, userID, documentID string, req *models.PromoteRequest) (*models.Version, *models.Document, error) {
	if err := validateDocumentID(documentID); err != nil {
		return nil, nil, err
	}
	if _, err := s.authorizer.Require(ctx, userID, documentID, capabilities.CapabilityPromote); err != nil {
		return nil, nil, err
	}
	return s.StorePromotion(ctx, userID, documentID, req)
}

// ListVersions returns the major history
func (s *DocumentService) ListVersions(ctx context.Context, userID, documentID string) ([]models.Version, error) {
	if err := validateDocumentID(documentID); err != nil {
		return nil, err
	}
	if _, err := s.authorizer.Require(ctx, userID, documentID, capabilities.CapabilityView); err != nil {
		return nil, err
	}
	return s.versionRepo.ListMajors(ctx, documentID)
}

// LoadWorkingCopy returns the document with its draft overlaid, without an
// authorization check. Callers have already authorized the user.
func (s *DocumentService) LoadWorkingCopy(ctx context.Context, documentID string) (*models.Document, error) {
	doc, err := s.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	draft, err := s.findDraft(ctx, documentID)
	if err != nil {
		return nil, err
	}
	overlayDraft(doc, draft)
	return doc, nil
}

// StoreDraft creates or overwrites the draft without an authorization check.
// The document row is locked so a concurrent promotion cannot leave a draft
// numbered against a stale major.
func (s *DocumentService) StoreDraft(ctx context.Context, userID, documentID string, req *models.SaveDraftRequest) (*models.Document, error) {
	if err := validateSaveDraft(req); err != nil {
		return nil, err
	}
	words, chars := s.counts(req.Content, req.WordCount, req.CharCount)

	var doc *models.Document
	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		var err error
		doc, err = s.docRepo.GetForUpdate(txCtx, documentID)
		if err != nil {
			return err
		}

		state := doc.VersionState()
		state.EnsureDraft()

		draft := &models.Version{
			DocumentID: documentID,
			Major:      state.Major,
			IsDraft:    true,
			Content:    req.Content,
			Metadata:   req.Metadata,
			WordCount:  words,
			CharCount:  chars,
			CreatedBy:  userID,
			UpdatedAt:  s.now(),
		}
		if err := s.versionRepo.UpsertDraft(txCtx, draft); err != nil {
			return err
		}
		overlayDraft(doc, draft)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("save draft: %w", err)
	}

	s.logger.Debug("draft saved",
		"document_id", documentID,
		"user_id", userID,
		"draft_version", *doc.DraftVersion,
	)
	return doc, nil
}

// StorePromotion promotes without an authorization check. Explicit content
// in req wins over the draft; with neither there is nothing to promote.
func (s *DocumentService) StorePromotion(ctx context.Context, userID, documentID string, req *models.PromoteRequest) (*models.Version, *models.Document, error) {
	if err := validatePromote(req); err != nil {
		return nil, nil, err
	}

	var version *models.Version
	var doc *models.Document
	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		var err error
		doc, err = s.docRepo.GetForUpdate(txCtx, documentID)
		if err != nil {
			return err
		}
		draft, err := s.findDraft(txCtx, documentID)
		if err != nil {
			return err
		}

		version = &models.Version{
			DocumentID:    documentID,
			CommitMessage: req.CommitMessage,
			CreatedBy:     userID,
			CreatedAt:     s.now(),
		}
		switch {
		case len(req.Content) > 0:
			version.Content = req.Content
			version.WordCount, version.CharCount = s.counts(req.Content, req.WordCount, req.CharCount)
			if req.Metadata != nil {
				version.Metadata = *req.Metadata
			} else if draft != nil {
				version.Metadata = draft.Metadata
			} else {
				version.Metadata = doc.Metadata
			}
		case draft != nil:
			version.Content = draft.Content
			version.Metadata = draft.Metadata
			version.WordCount = draft.WordCount
			version.CharCount = draft.CharCount
		default:
			return fmt.Errorf("nothing to promote: %w", domain.ErrNoDraft)
		}

		state := models.NewVersionState(doc.MajorVersion, draft != nil)
		version.Major = state.Promote()

		if err := s.versionRepo.CreateMajor(txCtx, version); err != nil {
			return err
		}
		if draft != nil {
			if err := s.versionRepo.DeleteDraft(txCtx, documentID); err != nil {
				return err
			}
		}

		doc.MajorVersion = version.Major
		doc.DraftVersion = nil
		doc.Content = version.Content
		doc.Metadata = version.Metadata
		doc.WordCount = version.WordCount
		doc.CharCount = version.CharCount
		doc.UpdatedAt = version.CreatedAt
		return s.docRepo.UpdateMajor(txCtx, doc)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("promote draft: %w", err)
	}

	s.logger.Info("major version promoted",
		"document_id", documentID,
		"major", version.Major,
		"user_id", userID,
	)
	return version, doc, nil
}

// findDraft returns the draft or nil when the document has none
func (s *DocumentService) findDraft(ctx context.Context, documentID string) (*models.Version, error) {
	draft, err := s.versionRepo.GetDraft(ctx, documentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return draft, nil
}

// counts trusts client-supplied counts and derives them when both are zero
func (s *DocumentService) counts(content json.RawMessage, words, chars int) (int, int) {
	if words == 0 && chars == 0 {
		return s.analyzer.Analyze(content)
	}
	return words, chars
}

func overlayDraft(doc *models.Document, draft *models.Version) {
	if draft == nil {
		doc.DraftVersion = nil
		return
	}
	n := models.DraftNumber(doc.MajorVersion)
	doc.DraftVersion = &n
	doc.Content = draft.Content
	doc.Metadata = draft.Metadata
	doc.WordCount = draft.WordCount
	doc.CharCount = draft.CharCount
	doc.UpdatedAt = draft.UpdatedAt
}
