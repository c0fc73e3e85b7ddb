package collab

import (
	"strings"
	"time"
)

// TempIDPrefix marks identifiers minted locally for comments or replies the
// server never acknowledged.
const TempIDPrefix = "temp-"

// IsTemporaryID reports whether id was minted locally.
func IsTemporaryID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

type Comment struct {
	ID         string     `json:"id"`
	DocumentID string     `json:"documentId"`
	AuthorID   string     `json:"authorId"`
	AuthorName string     `json:"authorName"`
	Content    string     `json:"content"`
	Resolved   bool       `json:"resolved"`
	ResolvedBy *string    `json:"resolvedBy,omitempty"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
	Replies    []Reply    `json:"replies"`
	Temporary  bool       `json:"temporary,omitempty"` // client-only: never reached the server
	CreatedAt  time.Time  `json:"createdAt"`
}

type Reply struct {
	ID         string    `json:"id"`
	CommentID  string    `json:"commentId"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	Content    string    `json:"content"`
	Temporary  bool      `json:"temporary,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Resolve flips the comment to resolved. Resolution is monotonic; a second
// call changes nothing and returns false.
func (c *Comment) Resolve(by string, at time.Time) bool {
	if c.Resolved {
		return false
	}
	c.Resolved = true
	c.ResolvedBy = &by
	c.ResolvedAt = &at
	return true
}

// ReplyIndex returns the position of the reply with id, or -1.
func (c *Comment) ReplyIndex(id string) int {
	for i := range c.Replies {
		if c.Replies[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy safe to hand to other goroutines.
func (c Comment) Clone() Comment {
	if c.Replies != nil {
		c.Replies = append([]Reply(nil), c.Replies...)
	}
	if c.ResolvedBy != nil {
		by := *c.ResolvedBy
		c.ResolvedBy = &by
	}
	if c.ResolvedAt != nil {
		at := *c.ResolvedAt
		c.ResolvedAt = &at
	}
	return c
}

// CreateCommentRequest is the payload for a new top-level comment.
type CreateCommentRequest struct {
	DocumentID string `json:"documentId"`
	Content    string `json:"content"`
}

// ReplyRequest is the payload for a reply on an existing comment.
type ReplyRequest struct {
	DocumentID string `json:"documentId"`
	CommentID  string `json:"commentId"`
	Content    string `json:"content"`
}
