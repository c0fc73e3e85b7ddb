package collab

import (
	"encoding/json"
	"errors"
	"fmt"

	"collabsync/internal/config"
	"collabsync/internal/domain"
	models "collabsync/internal/domain/models/collab"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// validationError wraps an ozzo error so handlers map it to 400
func validationError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", domain.ErrValidation, err)
}

// validContent accepts absent content or any JSON value below the size cap
func validContent(value interface{}) error {
	raw, _ := value.(json.RawMessage)
	if len(raw) == 0 {
		return nil
	}
	if len(raw) > config.MaxContentBytes {
		return fmt.Errorf("content exceeds %d bytes", config.MaxContentBytes)
	}
	if !json.Valid(raw) {
		return errors.New("content must be valid JSON")
	}
	return nil
}

func validateDocumentID(id string) error {
	return validationError(validation.Validate(id, validation.Required, is.UUID))
}

func validateSaveDraft(req *models.SaveDraftRequest) error {
	return validationError(validation.ValidateStruct(req,
		validation.Field(&req.Content, validation.Required, validation.By(validContent)),
		validation.Field(&req.WordCount, validation.Min(0)),
		validation.Field(&req.CharCount, validation.Min(0)),
	))
}

func validatePromote(req *models.PromoteRequest) error {
	return validationError(validation.ValidateStruct(req,
		validation.Field(&req.CommitMessage, validation.Length(0, config.MaxCommitMessageLength)),
		validation.Field(&req.Content, validation.By(validContent)),
		validation.Field(&req.WordCount, validation.Min(0)),
		validation.Field(&req.CharCount, validation.Min(0)),
	))
}

func validateCreateDocument(req *models.CreateDocumentRequest) error {
	return validationError(validation.ValidateStruct(req,
		validation.Field(&req.Content, validation.By(validContent)),
	))
}

func validateContentUpdate(u *models.ContentUpdate) error {
	return validationError(validation.ValidateStruct(u,
		validation.Field(&u.DocumentID, validation.Required),
		validation.Field(&u.FormID, validation.Length(0, config.MaxFormIDLength)),
		validation.Field(&u.Content, validation.Required, validation.By(validContent)),
		validation.Field(&u.WordCount, validation.Min(0)),
		validation.Field(&u.CharCount, validation.Min(0)),
	))
}

func validateCommentRequest(req *models.CreateCommentRequest) error {
	return validationError(validation.ValidateStruct(req,
		validation.Field(&req.DocumentID, validation.Required),
		validation.Field(&req.Content, validation.Required, validation.Length(1, config.MaxCommentLength)),
	))
}

func validateReplyRequest(req *models.ReplyRequest) error {
	return validationError(validation.ValidateStruct(req,
		validation.Field(&req.DocumentID, validation.Required),
		validation.Field(&req.CommentID, validation.Required),
		validation.Field(&req.Content, validation.Required, validation.Length(1, config.MaxCommentLength)),
	))
}

func validateInvite(req *models.InviteRequest) error {
	return validationError(validation.ValidateStruct(req,
		validation.Field(&req.UserID, validation.Required),
		validation.Field(&req.Role, validation.Required, validation.By(func(value interface{}) error {
			if role, _ := value.(models.Role); !role.Valid() {
				return errors.New("must be owner, editor, reviewer or viewer")
			}
			return nil
		})),
	))
}
