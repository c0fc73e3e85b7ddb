package collab

import (
	"encoding/json"
	"time"
)

// RoomState is the server's authoritative in-memory view of an active
// document. It exists from first join until eviction.
type RoomState struct {
	DocumentID   string           `json:"documentId"`
	Content      json.RawMessage  `json:"content"`
	FormID       string           `json:"formId,omitempty"`
	WordCount    int              `json:"wordCount"`
	CharCount    int              `json:"charCount"`
	Metadata     ProposalMetadata `json:"metadata"`
	MajorVersion int              `json:"majorVersion"`
	DraftVersion *float64         `json:"draftVersion,omitempty"`
	Dirty        bool             `json:"dirty"`
	UpdatedAt    time.Time        `json:"updatedAt"`
	UpdatedBy    *UserRef         `json:"updatedBy,omitempty"`
}

// NewRoomState seeds a room from the stored working copy.
func NewRoomState(doc *Document) RoomState {
	return RoomState{
		DocumentID:   doc.ID,
		Content:      doc.Content,
		WordCount:    doc.WordCount,
		CharCount:    doc.CharCount,
		Metadata:     doc.Metadata,
		MajorVersion: doc.MajorVersion,
		DraftVersion: doc.DraftVersion,
		UpdatedAt:    doc.UpdatedAt,
	}
}

// ContentUpdate is a batched edit as received from a client.
type ContentUpdate struct {
	DocumentID string          `json:"documentId"`
	FormID     string          `json:"formId"`
	Content    json.RawMessage `json:"content"`
	WordCount  int             `json:"wordCount"`
	CharCount  int             `json:"charCount"`
}

// Apply replaces the room content with the update (last write wins).
func (s *RoomState) Apply(u ContentUpdate, by UserRef, at time.Time) {
	s.Content = u.Content
	s.FormID = u.FormID
	s.WordCount = u.WordCount
	s.CharCount = u.CharCount
	s.Dirty = true
	s.UpdatedAt = at
	s.UpdatedBy = &by
}

// DraftRequest converts the room state into a draft save.
func (s *RoomState) DraftRequest() *SaveDraftRequest {
	return &SaveDraftRequest{
		Content:   s.Content,
		Metadata:  s.Metadata,
		WordCount: s.WordCount,
		CharCount: s.CharCount,
	}
}

// AdoptVersion moves the room onto a major version created outside it.
// Unsaved room edits stay on top of the new major; a clean room takes the
// promoted content.
func (s *RoomState) AdoptVersion(doc *Document) {
	if !s.Dirty {
		s.Reset(doc)
		return
	}
	s.MajorVersion = doc.MajorVersion
	s.DraftVersion = nil
}

// Reset adopts a freshly persisted document and clears the dirty flag.
func (s *RoomState) Reset(doc *Document) {
	s.MajorVersion = doc.MajorVersion
	s.DraftVersion = doc.DraftVersion
	s.Content = doc.Content
	s.Metadata = doc.Metadata
	s.WordCount = doc.WordCount
	s.CharCount = doc.CharCount
	s.UpdatedAt = doc.UpdatedAt
	s.Dirty = false
}
