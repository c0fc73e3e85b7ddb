// Package cache is the durable client-side document cache. One record is
// kept per document id; the record is advisory and is reconciled against the
// server by the persistence engine.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	models "collabsync/internal/domain/models/collab"
)

// ErrNotFound is returned when no record exists for a document.
var ErrNotFound = errors.New("cache: record not found")

// Record is the cached state of one document.
type Record struct {
	DocumentID   string                  `json:"documentId"`
	Content      json.RawMessage         `json:"content"`
	Metadata     models.ProposalMetadata `json:"metadata"`
	LastSavedAt  time.Time               `json:"lastSavedAt"`
	SavedVersion float64                 `json:"savedVersion"`
}

// Store persists records keyed by document id.
type Store interface {
	Get(ctx context.Context, documentID string) (*Record, error)
	Put(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, documentID string) error
	Close() error
}
