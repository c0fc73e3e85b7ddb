package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"collabsync/internal/client/cache"
	models "collabsync/internal/domain/models/collab"
	"collabsync/internal/utils"
)

// Snapshot is a client's in-memory view of a document.
type Snapshot struct {
	DocumentID   string
	MajorVersion int
	DraftVersion *float64
	UpdatedAt    time.Time
	Content      json.RawMessage
	Metadata     models.ProposalMetadata
	WordCount    int
	CharCount    int
}

// SnapshotFromDocument converts a fetched document.
func SnapshotFromDocument(doc *models.Document) Snapshot {
	return Snapshot{
		DocumentID:   doc.ID,
		MajorVersion: doc.MajorVersion,
		DraftVersion: doc.DraftVersion,
		UpdatedAt:    doc.UpdatedAt,
		Content:      doc.Content,
		Metadata:     doc.Metadata,
		WordCount:    doc.WordCount,
		CharCount:    doc.CharCount,
	}
}

// SnapshotFromRoom converts the room state received on join.
func SnapshotFromRoom(state models.RoomState) Snapshot {
	return Snapshot{
		DocumentID:   state.DocumentID,
		MajorVersion: state.MajorVersion,
		DraftVersion: state.DraftVersion,
		UpdatedAt:    state.UpdatedAt,
		Content:      state.Content,
		Metadata:     state.Metadata,
		WordCount:    state.WordCount,
		CharCount:    state.CharCount,
	}
}

// Version is the numeric label of the snapshot: the draft number when a
// draft exists, the major otherwise.
func (s Snapshot) Version() float64 {
	if s.DraftVersion != nil {
		return *s.DraftVersion
	}
	return float64(s.MajorVersion)
}

func snapshotFromRecord(rec *cache.Record) Snapshot {
	snap := Snapshot{
		DocumentID:   rec.DocumentID,
		MajorVersion: int(math.Floor(rec.SavedVersion)),
		UpdatedAt:    rec.LastSavedAt,
		Content:      rec.Content,
		Metadata:     rec.Metadata,
	}
	if rec.SavedVersion != float64(snap.MajorVersion) {
		draft := rec.SavedVersion
		snap.DraftVersion = &draft
	}
	return snap
}

// Persistence is the local-first cache for one document. It tracks whether
// the in-memory state has diverged from the last confirmed server save.
type Persistence struct {
	store    cache.Store
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu          sync.Mutex
	dirty       bool
	lastSavedAt time.Time
}

// NewPersistence creates a persistence engine over store.
func NewPersistence(store cache.Store, autosaveInterval time.Duration, logger *slog.Logger) *Persistence {
	if autosaveInterval <= 0 {
		autosaveInterval = 30 * time.Second
	}
	return &Persistence{
		store:    store,
		interval: autosaveInterval,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Initialize seeds the cache with snapshot when it holds nothing for the
// document, and returns the cached state otherwise.
func (p *Persistence) Initialize(ctx context.Context, documentID string, snapshot Snapshot) (Snapshot, error) {
	rec, err := p.store.Get(ctx, documentID)
	switch {
	case err == nil:
		p.mu.Lock()
		p.lastSavedAt = rec.LastSavedAt
		p.mu.Unlock()
		return snapshotFromRecord(rec), nil
	case errors.Is(err, cache.ErrNotFound):
		snapshot.DocumentID = documentID
		if err := p.write(ctx, snapshot, p.stampFor(snapshot), false); err != nil {
			return Snapshot{}, err
		}
		return snapshot, nil
	default:
		return Snapshot{}, fmt.Errorf("initialize cache: %w", err)
	}
}

// Save writes snapshot stamped with the current time. Only a confirmed
// server save passes clearDirty.
func (p *Persistence) Save(ctx context.Context, snapshot Snapshot, clearDirty bool) error {
	return p.write(ctx, snapshot, p.now(), clearDirty)
}

// Confirm records a server-acknowledged save: the cache takes the server's
// timestamp and the dirty flag is cleared.
func (p *Persistence) Confirm(ctx context.Context, snapshot Snapshot) error {
	return p.write(ctx, snapshot, p.stampFor(snapshot), true)
}

// stampFor dates a copy of server state with the server's own timestamp so
// that a later sync against the same server state is not mistaken for a
// newer local edit.
func (p *Persistence) stampFor(server Snapshot) time.Time {
	if server.UpdatedAt.IsZero() {
		return p.now()
	}
	return server.UpdatedAt
}

func (p *Persistence) write(ctx context.Context, snapshot Snapshot, stamp time.Time, clearDirty bool) error {
	rec := &cache.Record{
		DocumentID:   snapshot.DocumentID,
		Content:      snapshot.Content,
		Metadata:     snapshot.Metadata,
		LastSavedAt:  stamp,
		SavedVersion: snapshot.Version(),
	}
	if err := p.store.Put(ctx, rec); err != nil {
		return fmt.Errorf("save cache: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastSavedAt = stamp
	if clearDirty {
		p.dirty = false
	}
	return nil
}

// MarkDirty records that the in-memory state diverges from the last confirmed save.
func (p *Persistence) MarkDirty() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dirty = true
}

// HasUnsavedChanges reports the dirty flag.
func (p *Persistence) HasUnsavedChanges() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dirty
}

// LastSavedAt is the stamp of the most recent cache write.
func (p *Persistence) LastSavedAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSavedAt
}

// SyncWithServer reconciles the cache with a freshly fetched server state.
// A server copy at least as new as the cache replaces it outright. A
// strictly newer cache keeps its content and metadata on top of the
// server's identity and version fields, with counts derived from the kept
// content. The merge keeps the cache's timestamp and is left dirty.
func (p *Persistence) SyncWithServer(ctx context.Context, server Snapshot) (Snapshot, error) {
	rec, err := p.store.Get(ctx, server.DocumentID)
	if err != nil && !errors.Is(err, cache.ErrNotFound) {
		return Snapshot{}, fmt.Errorf("sync: %w", err)
	}

	if rec == nil || !server.UpdatedAt.Before(rec.LastSavedAt) {
		if err := p.Confirm(ctx, server); err != nil {
			return Snapshot{}, err
		}
		return server, nil
	}

	merged := server
	merged.Content = rec.Content
	merged.Metadata = rec.Metadata
	merged.WordCount, merged.CharCount = utils.CountContent(rec.Content)
	if err := p.write(ctx, merged, rec.LastSavedAt, false); err != nil {
		return Snapshot{}, err
	}
	p.MarkDirty()

	p.logger.Info("kept newer local content over server copy",
		"document_id", server.DocumentID,
		"server_updated_at", server.UpdatedAt,
		"cache_saved_at", rec.LastSavedAt,
	)
	return merged, nil
}

// Run autosaves current() to the cache every interval while dirty. Autosave
// never clears the dirty flag.
func (p *Persistence) Run(ctx context.Context, current func() Snapshot) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.HasUnsavedChanges() {
				continue
			}
			if err := p.Save(ctx, current(), false); err != nil {
				p.logger.Warn("autosave failed", "error", err)
			}
		}
	}
}
