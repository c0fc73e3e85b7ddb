package collab

import (
	"context"
	"fmt"
	"log/slog"

	"collabsync/internal/domain"
	models "collabsync/internal/domain/models/collab"
	collabRepo "collabsync/internal/domain/repositories/collab"
	"collabsync/internal/repository/postgres"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const versionColumns = `id, document_id, major, is_draft, content, metadata, word_count, char_count,
	commit_message, created_by, created_at, updated_at`

// PostgresVersionRepository implements the VersionRepository interface
type PostgresVersionRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewVersionRepository creates a new version repository
func NewVersionRepository(config *postgres.RepositoryConfig) collabRepo.VersionRepository {
	return &PostgresVersionRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// GetDraft retrieves the document's draft
func (r *PostgresVersionRepository) GetDraft(ctx context.Context, documentID string) (*models.Version, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE document_id = $1 AND is_draft
	`, versionColumns, r.tables.Versions)

	executor := postgres.GetExecutor(ctx, r.pool)
	v, err := scanVersion(executor.QueryRow(ctx, query, documentID))
	if err != nil {
		if postgres.IsPgNoRowsError(err) || postgres.IsPgInvalidInputError(err) {
			return nil, fmt.Errorf("draft for document %s: %w", documentID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get draft: %w", err)
	}
	return v, nil
}

// upsertDraftQuery targets the partial unique index on drafts, so a second
// save overwrites the one draft row instead of adding another
func upsertDraftQuery(tables *postgres.TableNames) string {
	return fmt.Sprintf(`
		INSERT INTO %s (document_id, major, is_draft, content, metadata, word_count, char_count, created_by, created_at, updated_at)
		VALUES ($1, $2, true, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (document_id) WHERE is_draft DO UPDATE
		SET major = EXCLUDED.major,
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			word_count = EXCLUDED.word_count,
			char_count = EXCLUDED.char_count,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_by, created_at, updated_at
	`, tables.Versions)
}

// UpsertDraft inserts the draft or overwrites the existing one in place
func (r *PostgresVersionRepository) UpsertDraft(ctx context.Context, draft *models.Version) error {
	query := upsertDraftQuery(r.tables)

	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		draft.DocumentID,
		draft.Major,
		draft.Content,
		draft.Metadata,
		draft.WordCount,
		draft.CharCount,
		draft.CreatedBy,
		draft.UpdatedAt,
	).Scan(&draft.ID, &draft.CreatedBy, &draft.CreatedAt, &draft.UpdatedAt)
	if err != nil {
		if postgres.IsPgForeignKeyError(err) {
			return fmt.Errorf("document %s: %w", draft.DocumentID, domain.ErrNotFound)
		}
		return fmt.Errorf("upsert draft: %w", err)
	}
	draft.IsDraft = true

	return nil
}

// DeleteDraft removes the document's draft
func (r *PostgresVersionRepository) DeleteDraft(ctx context.Context, documentID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1 AND is_draft`, r.tables.Versions)

	executor := postgres.GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, documentID)
	if err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("draft for document %s: %w", documentID, domain.ErrNotFound)
	}
	return nil
}

// CreateMajor appends an immutable major version
func (r *PostgresVersionRepository) CreateMajor(ctx context.Context, v *models.Version) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (document_id, major, is_draft, content, metadata, word_count, char_count, commit_message, created_by, created_at, updated_at)
		VALUES ($1, $2, false, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING id, created_at, updated_at
	`, r.tables.Versions)

	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		v.DocumentID,
		v.Major,
		v.Content,
		v.Metadata,
		v.WordCount,
		v.CharCount,
		v.CommitMessage,
		v.CreatedBy,
		v.CreatedAt,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if postgres.IsPgDuplicateError(err) {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("version %d already exists", v.Major),
				ResourceType: "version",
				ResourceID:   v.DocumentID,
			}
		}
		return fmt.Errorf("create version: %w", err)
	}

	r.logger.Info("major version created", "document_id", v.DocumentID, "major", v.Major)
	return nil
}

// ListMajors returns the document's history, newest first
func (r *PostgresVersionRepository) ListMajors(ctx context.Context, documentID string) ([]models.Version, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE document_id = $1 AND NOT is_draft
		ORDER BY major DESC
	`, versionColumns, r.tables.Versions)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	versions := []models.Version{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}

	return versions, nil
}

func scanVersion(row pgx.Row) (*models.Version, error) {
	var v models.Version
	err := row.Scan(
		&v.ID,
		&v.DocumentID,
		&v.Major,
		&v.IsDraft,
		&v.Content,
		&v.Metadata,
		&v.WordCount,
		&v.CharCount,
		&v.CommitMessage,
		&v.CreatedBy,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
