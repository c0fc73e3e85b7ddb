package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements returns the DDL for every collaboration table.
// One draft per document is enforced by a partial unique index.
func schemaStatements(t *TableNames) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			major_version INTEGER NOT NULL DEFAULT 1 CHECK (major_version >= 1),
			content       JSONB NOT NULL DEFAULT '{}'::jsonb,
			metadata      JSONB NOT NULL DEFAULT '{}'::jsonb,
			word_count    INTEGER NOT NULL DEFAULT 0,
			char_count    INTEGER NOT NULL DEFAULT 0,
			created_by    TEXT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, t.Documents),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			document_id    UUID NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
			major          INTEGER NOT NULL,
			is_draft       BOOLEAN NOT NULL DEFAULT false,
			content        JSONB NOT NULL,
			metadata       JSONB NOT NULL DEFAULT '{}'::jsonb,
			word_count     INTEGER NOT NULL DEFAULT 0,
			char_count     INTEGER NOT NULL DEFAULT 0,
			commit_message TEXT NOT NULL DEFAULT '',
			created_by     TEXT NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, t.Versions, t.Documents),

		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s_one_draft
			ON %s (document_id) WHERE is_draft`, t.Versions, t.Versions),

		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s_major
			ON %s (document_id, major) WHERE NOT is_draft`, t.Versions, t.Versions),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			document_id UUID NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
			author_id   TEXT NOT NULL,
			author_name TEXT NOT NULL DEFAULT '',
			content     TEXT NOT NULL,
			resolved    BOOLEAN NOT NULL DEFAULT false,
			resolved_by TEXT,
			resolved_at TIMESTAMPTZ,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, t.Comments, t.Documents),

		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_document
			ON %s (document_id, created_at)`, t.Comments, t.Comments),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			comment_id  UUID NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
			author_id   TEXT NOT NULL,
			author_name TEXT NOT NULL DEFAULT '',
			content     TEXT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, t.CommentReplies, t.Comments),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			document_id UUID NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
			user_id     TEXT NOT NULL,
			role        TEXT NOT NULL,
			invited_by  TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (document_id, user_id)
		)`, t.Collaborators, t.Documents),
	}
}

// EnsureSchema creates any missing collaboration tables. Safe to run on every start.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, tables *TableNames, logger *slog.Logger) error {
	for _, stmt := range schemaStatements(tables) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	logger.Info("schema ready", "documents_table", tables.Documents)
	return nil
}

// DropSchema drops every collaboration table for the prefix.
func DropSchema(ctx context.Context, pool *pgxpool.Pool, tables *TableNames) error {
	for _, table := range tables.All() {
		if _, err := pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table)); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}
	return nil
}
