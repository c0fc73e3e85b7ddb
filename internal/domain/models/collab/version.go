package collab

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"collabsync/internal/domain"
)

// Version is one entry in a document's history. Majors are immutable; a
// document has at most one draft, numbered floor(major)+0.1.
type Version struct {
	ID            string           `json:"id"`
	DocumentID    string           `json:"documentId"`
	Major         int              `json:"major"`
	IsDraft       bool             `json:"isDraft"`
	Content       json.RawMessage  `json:"content"`
	Metadata      ProposalMetadata `json:"metadata"`
	WordCount     int              `json:"wordCount"`
	CharCount     int              `json:"charCount"`
	CommitMessage string           `json:"commitMessage,omitempty"`
	CreatedBy     string           `json:"createdBy"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// Number is the numeric label: 3 for a major, 2.1 for a draft on top of 2.
func (v Version) Number() float64 {
	if v.IsDraft {
		return DraftNumber(v.Major)
	}
	return float64(v.Major)
}

// Label formats Number for display ("3", "2.1").
func (v Version) Label() string {
	return strconv.FormatFloat(v.Number(), 'f', -1, 64)
}

// MarshalJSON adds the computed number and label.
func (v Version) MarshalJSON() ([]byte, error) {
	type alias Version
	return json.Marshal(struct {
		alias
		Number float64 `json:"number"`
		Label  string  `json:"label"`
	}{alias(v), v.Number(), v.Label()})
}

// DraftNumber is the number a draft takes on top of major.
func DraftNumber(major int) float64 {
	return math.Floor(float64(major)) + 0.1
}

// Phase of the draft/version lifecycle.
type Phase string

const (
	PhaseNoDraft     Phase = "no_draft"
	PhaseDraftActive Phase = "draft_active"
)

// VersionState is the per-document lifecycle state machine.
//
//	NoDraft     --EnsureDraft--> DraftActive
//	DraftActive --EnsureDraft--> DraftActive (overwrite)
//	DraftActive --Promote-->     NoDraft (major+1)
//	NoDraft     --Promote-->     NoDraft (major+1, explicit content)
//	DraftActive --Discard-->     NoDraft
type VersionState struct {
	Major    int
	HasDraft bool
}

// NewVersionState clamps major to at least 1.
func NewVersionState(major int, hasDraft bool) VersionState {
	if major < 1 {
		major = 1
	}
	return VersionState{Major: major, HasDraft: hasDraft}
}

func (s VersionState) Phase() Phase {
	if s.HasDraft {
		return PhaseDraftActive
	}
	return PhaseNoDraft
}

// DraftVersion returns the draft number, or nil when there is no draft.
func (s VersionState) DraftVersion() *float64 {
	if !s.HasDraft {
		return nil
	}
	n := DraftNumber(s.Major)
	return &n
}

// EnsureDraft enters (or stays in) DraftActive and returns the draft number.
func (s *VersionState) EnsureDraft() float64 {
	s.HasDraft = true
	return DraftNumber(s.Major)
}

// Promote advances to the next integer major and clears any draft.
func (s *VersionState) Promote() int {
	s.Major++
	s.HasDraft = false
	return s.Major
}

// Discard drops the draft without touching the major.
func (s *VersionState) Discard() error {
	if !s.HasDraft {
		return fmt.Errorf("discard draft: %w", domain.ErrNoDraft)
	}
	s.HasDraft = false
	return nil
}
