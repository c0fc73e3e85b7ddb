package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// PendingUpdate is the one outstanding local edit for a document. A newer
// edit replaces it; Seq tells the two apart.
type PendingUpdate struct {
	DocumentID string
	FormID     string
	Content    json.RawMessage
	WordCount  int
	CharCount  int
	Seq        uint64
}

// UpdateSender transmits an update and returns once it is acknowledged.
type UpdateSender interface {
	SendUpdate(ctx context.Context, u PendingUpdate) error
}

// Batcher coalesces local edits into at most one transmission per interval.
type Batcher struct {
	documentID string
	formID     string
	interval   time.Duration
	sender     UpdateSender
	logger     *slog.Logger

	mu      sync.Mutex
	pending *PendingUpdate
	seq     uint64

	// sendMu serializes transmissions so updates leave in order
	sendMu sync.Mutex
}

// NewBatcher creates a batcher for one document.
func NewBatcher(documentID, formID string, interval time.Duration, sender UpdateSender, logger *slog.Logger) *Batcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Batcher{
		documentID: documentID,
		formID:     formID,
		interval:   interval,
		sender:     sender,
		logger:     logger.With("document_id", documentID),
	}
}

// QueueUpdate replaces the pending update and returns its sequence number.
// It never transmits.
func (b *Batcher) QueueUpdate(content json.RawMessage, wordCount, charCount int) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	b.pending = &PendingUpdate{
		DocumentID: b.documentID,
		FormID:     b.formID,
		Content:    content,
		WordCount:  wordCount,
		CharCount:  charCount,
		Seq:        b.seq,
	}
	return b.seq
}

// Discard drops the pending update without sending it.
func (b *Batcher) Discard() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
}

// Pending returns the outstanding update, if any.
func (b *Batcher) Pending() (PendingUpdate, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == nil {
		return PendingUpdate{}, false
	}
	return *b.pending, true
}

// Run flushes on every tick until ctx ends. Failed sends stay pending for
// the next tick.
func (b *Batcher) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = b.flush(ctx)
		}
	}
}

// FlushNow transmits the pending update immediately. Used before close or
// navigation.
func (b *Batcher) FlushNow(ctx context.Context) error {
	return b.flush(ctx)
}

func (b *Batcher) flush(ctx context.Context) error {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()

	b.mu.Lock()
	if b.pending == nil {
		b.mu.Unlock()
		return nil
	}
	update := *b.pending
	b.mu.Unlock()

	if err := b.sender.SendUpdate(ctx, update); err != nil {
		b.logger.Warn("update not sent, will retry", "seq", update.Seq, "error", err)
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	// a newer edit queued during the send must survive
	if b.pending != nil && b.pending.Seq == update.Seq {
		b.pending = nil
	}
	return nil
}
