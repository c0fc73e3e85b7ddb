// Package protocol defines the websocket wire format shared by the
// collaboration server and its clients.
//
// Every frame is a JSON Envelope. A frame with a non-zero ID expects an
// acknowledgement: an "ack" envelope whose AckID echoes that ID and whose
// Data is an AckData.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"collabsync/internal/domain/models/collab"
)

// Client -> server events
const (
	EventJoinRoom           = "join-room"
	EventLeaveRoom          = "leave-room"
	EventUpdateContent      = "update-content"
	EventAddComment         = "add-comment"
	EventReplyComment       = "reply-comment"
	EventResolveComment     = "resolve-comment"
	EventSaveDocument       = "save-document"
	EventCreateMajorVersion = "create-major-version"
)

// Server -> client events
const (
	EventAck               = "ack"
	EventContentUpdated    = "content-updated"
	EventParticipantJoined = "participant-joined"
	EventParticipantLeft   = "participant-left"
	EventNewComment        = "new-comment"
	EventCommentReplyAdded = "comment-reply-added"
	EventCommentResolved   = "comment-resolved"
	EventVersionCreated    = "version-created"
	EventDraftDiscarded    = "draft-discarded"
)

// Envelope is one websocket frame.
type Envelope struct {
	Event string          `json:"event"`
	ID    uint64          `json:"id,omitempty"`
	AckID uint64          `json:"ackId,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into an envelope. id is zero for fire-and-forget frames.
func NewEnvelope(event string, id uint64, payload any) (Envelope, error) {
	env := Envelope{Event: event, ID: id}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("encode %s: %w", event, err)
		}
		env.Data = data
	}
	return env, nil
}

// NewAck builds the acknowledgement for request id.
func NewAck(id uint64, ack AckData) Envelope {
	data, _ := json.Marshal(ack) // AckData only holds JSON-safe fields
	return Envelope{Event: EventAck, AckID: id, Data: data}
}

// Decode unmarshals the envelope payload into dst.
func (e Envelope) Decode(dst any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s: missing data", e.Event)
	}
	if err := json.Unmarshal(e.Data, dst); err != nil {
		return fmt.Errorf("%s: invalid data: %w", e.Event, err)
	}
	return nil
}

// AckData is the payload of every acknowledgement. Only the fields relevant
// to the acknowledged event are set.
type AckData struct {
	Success            bool                 `json:"success"`
	Error              string               `json:"error,omitempty"`
	ActiveParticipants []collab.Participant `json:"activeParticipants,omitempty"`
	RoomState          *collab.RoomState    `json:"roomState,omitempty"`
	Comment            *collab.Comment      `json:"comment,omitempty"`
	Reply              *collab.Reply        `json:"reply,omitempty"`
	Version            *collab.Version      `json:"version,omitempty"`
}

// Failure builds a negative acknowledgement.
func Failure(err error) AckData {
	return AckData{Success: false, Error: err.Error()}
}

// DocumentRef is the payload of join-room, leave-room and save-document.
type DocumentRef struct {
	DocumentID string `json:"documentId"`
}

// AddComment is the payload of add-comment.
type AddComment struct {
	DocumentID string `json:"documentId"`
	Comment    struct {
		Content string `json:"content"`
	} `json:"comment"`
}

// ReplyComment is the payload of reply-comment.
type ReplyComment struct {
	DocumentID string `json:"documentId"`
	CommentID  string `json:"commentId"`
	Content    string `json:"content"`
}

// ResolveComment is the payload of resolve-comment.
type ResolveComment struct {
	DocumentID string `json:"documentId"`
	CommentID  string `json:"commentId"`
}

// CreateMajorVersion is the payload of create-major-version.
type CreateMajorVersion struct {
	DocumentID    string `json:"documentId"`
	CommitMessage string `json:"commitMessage"`
}

// ContentUpdated is broadcast after an accepted update-content.
type ContentUpdated struct {
	DocumentID string          `json:"documentId"`
	Content    json.RawMessage `json:"content"`
	FormID     string          `json:"formId,omitempty"`
	WordCount  int             `json:"wordCount"`
	CharCount  int             `json:"charCount"`
	UpdatedBy  collab.UserRef  `json:"updatedBy"`
}

// ParticipantsChanged is the payload of participant-joined and participant-left.
type ParticipantsChanged struct {
	DocumentID         string               `json:"documentId"`
	ActiveParticipants []collab.Participant `json:"activeParticipants"`
}

// NewComment is broadcast after add-comment.
type NewComment struct {
	DocumentID string         `json:"documentId"`
	Comment    collab.Comment `json:"comment"`
}

// CommentReplyAdded is broadcast after reply-comment.
type CommentReplyAdded struct {
	DocumentID string       `json:"documentId"`
	CommentID  string       `json:"commentId"`
	Reply      collab.Reply `json:"reply"`
}

// CommentResolved is broadcast after resolve-comment.
type CommentResolved struct {
	DocumentID string         `json:"documentId"`
	CommentID  string         `json:"commentId"`
	ResolvedBy collab.UserRef `json:"resolvedBy"`
}

// DraftDiscarded is broadcast when the draft is dropped over REST. It
// carries the major version the document fell back to.
type DraftDiscarded struct {
	DocumentID   string          `json:"documentId"`
	MajorVersion int             `json:"majorVersion"`
	Content      json.RawMessage `json:"content"`
	WordCount    int             `json:"wordCount"`
	CharCount    int             `json:"charCount"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	DiscardedBy  collab.UserRef  `json:"discardedBy"`
}

// VersionCreated is broadcast after create-major-version or a REST promotion.
type VersionCreated struct {
	DocumentID    string         `json:"documentId"`
	MajorVersion  int            `json:"majorVersion"`
	CommitMessage string         `json:"commitMessage,omitempty"`
	CreatedBy     collab.UserRef `json:"createdBy"`
}
