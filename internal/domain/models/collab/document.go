package collab

import (
	"encoding/json"
	"time"
)

// ProposalMetadata holds the structured proposal fields edited alongside the
// rich-text body. Unknown form fields survive in Extra.
type ProposalMetadata struct {
	Title         string         `json:"title,omitempty"`
	FundingMethod string         `json:"fundingMethod,omitempty"`
	Agency        string         `json:"agency,omitempty"`
	Duration      string         `json:"duration,omitempty"`
	Outlay        float64        `json:"outlay,omitempty"`
	Extra         map[string]any `json:"extra,omitempty"`
}

// Document is a collaboratively edited proposal. Content is opaque JSON.
//
// When a draft exists, Content/Metadata/UpdatedAt describe the draft (the
// working copy) and DraftVersion carries its number. Otherwise they describe
// the latest major version.
type Document struct {
	ID           string           `json:"id"`
	MajorVersion int              `json:"majorVersion"`
	DraftVersion *float64         `json:"draftVersion,omitempty"`
	Content      json.RawMessage  `json:"content"`
	Metadata     ProposalMetadata `json:"metadata"`
	WordCount    int              `json:"wordCount"`
	CharCount    int              `json:"charCount"`
	CreatedBy    string           `json:"createdBy"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// HasDraft reports whether the document currently carries a draft.
func (d *Document) HasDraft() bool {
	return d.DraftVersion != nil
}

// VersionState returns the lifecycle state derived from the document.
func (d *Document) VersionState() VersionState {
	return NewVersionState(d.MajorVersion, d.HasDraft())
}

// CreateDocumentRequest seeds a new proposal at major version 1.
type CreateDocumentRequest struct {
	Content  json.RawMessage  `json:"content"`
	Metadata ProposalMetadata `json:"metadata"`
}

// SaveDraftRequest is the body of PUT /api/documents/{id}/draft.
type SaveDraftRequest struct {
	Content   json.RawMessage  `json:"content"`
	Metadata  ProposalMetadata `json:"metadata"`
	WordCount int              `json:"wordCount"`
	CharCount int              `json:"charCount"`
}

// PromoteRequest is the body of POST /api/documents/{id}/versions.
// Content is optional; without it the current draft is promoted.
type PromoteRequest struct {
	CommitMessage string            `json:"commitMessage"`
	Content       json.RawMessage   `json:"content,omitempty"`
	Metadata      *ProposalMetadata `json:"metadata,omitempty"`
	WordCount     int               `json:"wordCount,omitempty"`
	CharCount     int               `json:"charCount,omitempty"`
}
