package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	models "collabsync/internal/domain/models/collab"
	"collabsync/internal/repository/postgres"
)

func normalizeSQL(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

func TestUpsertDraftQuery_TargetsSingleDraftIndex(t *testing.T) {
	query := normalizeSQL(upsertDraftQuery(postgres.NewTableNames("prod_")))

	tests := []struct {
		name string
		want string
	}{
		{"inserts into versions", "INSERT INTO prod_document_versions"},
		{"always a draft row", "VALUES ($1, $2, true,"},
		{"conflict target is the partial draft index", "ON CONFLICT (document_id) WHERE is_draft DO UPDATE"},
		{"overwrites content", "content = EXCLUDED.content"},
		{"renumbers against the current major", "major = EXCLUDED.major"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(query, tt.want) {
				t.Errorf("query %q does not contain %q", query, tt.want)
			}
		})
	}

	// the author and creation time of the first save are kept
	if strings.Contains(query, "created_by = EXCLUDED") || strings.Contains(query, "created_at = EXCLUDED") {
		t.Errorf("upsert overwrites creation fields: %s", query)
	}
}

func TestMarkResolvedQuery_OnlyMatchesOpenThreads(t *testing.T) {
	query := normalizeSQL(markResolvedQuery(postgres.NewTableNames("prod_")))

	if !strings.HasPrefix(query, "UPDATE prod_comments SET resolved = true") {
		t.Errorf("query = %q", query)
	}
	if !strings.HasSuffix(query, "WHERE id = $1 AND NOT resolved") {
		t.Errorf("resolution must not match resolved rows: %q", query)
	}
	if strings.Contains(query, "resolved = false") {
		t.Errorf("resolution must never revert: %q", query)
	}
}

// TestRepositories_Postgres runs against a real database when
// COLLAB_TEST_DATABASE_URL is set. Tables get a throwaway prefix.
func TestRepositories_Postgres(t *testing.T) {
	dsn := os.Getenv("COLLAB_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("COLLAB_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, dsn)
	if err != nil {
		t.Fatalf("CreateConnectionPool() error = %v", err)
	}
	t.Cleanup(pool.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tables := postgres.NewTableNames(fmt.Sprintf("it%d_", time.Now().UnixNano()))
	if err := postgres.EnsureSchema(ctx, pool, tables, logger); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	t.Cleanup(func() { _ = postgres.DropSchema(context.Background(), pool, tables) })

	cfg := &postgres.RepositoryConfig{Pool: pool, Tables: tables, Logger: logger}
	docs := NewDocumentRepository(cfg)
	versions := NewVersionRepository(cfg)
	comments := NewCommentRepository(cfg)

	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := &models.Document{MajorVersion: 1, Content: json.RawMessage(`{"text":"v1"}`), CreatedBy: "alice", CreatedAt: now, UpdatedAt: now}
	if err := docs.Create(ctx, doc); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("second draft save overwrites the first", func(t *testing.T) {
		for i, text := range []string{"first", "second"} {
			draft := &models.Version{
				DocumentID: doc.ID,
				Major:      1,
				Content:    json.RawMessage(fmt.Sprintf(`{"text":%q}`, text)),
				CreatedBy:  "alice",
				UpdatedAt:  now.Add(time.Duration(i) * time.Second),
			}
			if err := versions.UpsertDraft(ctx, draft); err != nil {
				t.Fatalf("UpsertDraft(%s) error = %v", text, err)
			}
		}

		var drafts int
		query := fmt.Sprintf(`SELECT count(*) FROM %s WHERE document_id = $1 AND is_draft`, tables.Versions)
		if err := pool.QueryRow(ctx, query, doc.ID).Scan(&drafts); err != nil {
			t.Fatalf("count drafts: %v", err)
		}
		if drafts != 1 {
			t.Errorf("drafts = %d, want 1", drafts)
		}

		got, err := versions.GetDraft(ctx, doc.ID)
		if err != nil {
			t.Fatalf("GetDraft() error = %v", err)
		}
		if !strings.Contains(string(got.Content), "second") {
			t.Errorf("draft content = %s, want the second save", got.Content)
		}
	})

	t.Run("resolution is monotonic", func(t *testing.T) {
		c := &models.Comment{DocumentID: doc.ID, AuthorID: "bob", AuthorName: "Bob", Content: "typo", CreatedAt: now}
		if err := comments.Create(ctx, c); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		changed, err := comments.MarkResolved(ctx, c.ID, "alice", now)
		if err != nil || !changed {
			t.Fatalf("first MarkResolved() = %v, %v; want true", changed, err)
		}
		changed, err = comments.MarkResolved(ctx, c.ID, "carol", now.Add(time.Minute))
		if err != nil || changed {
			t.Fatalf("second MarkResolved() = %v, %v; want false", changed, err)
		}

		got, err := comments.GetByID(ctx, c.ID)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if !got.Resolved || got.ResolvedBy == nil || *got.ResolvedBy != "alice" {
			t.Errorf("comment after two resolves = %+v, want resolved by alice", got)
		}
	})
}
