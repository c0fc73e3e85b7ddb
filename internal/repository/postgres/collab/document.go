package collab

import (
	"context"
	"fmt"
	"log/slog"

	"collabsync/internal/domain"
	models "collabsync/internal/domain/models/collab"
	collabRepo "collabsync/internal/domain/repositories/collab"
	"collabsync/internal/repository/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDocumentRepository implements the DocumentRepository interface
type PostgresDocumentRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(config *postgres.RepositoryConfig) collabRepo.DocumentRepository {
	return &PostgresDocumentRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Create creates a new document
func (r *PostgresDocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (major_version, content, metadata, word_count, char_count, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`, r.tables.Documents)

	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		doc.MajorVersion,
		doc.Content,
		doc.Metadata,
		doc.WordCount,
		doc.CharCount,
		doc.CreatedBy,
		doc.CreatedAt,
		doc.UpdatedAt,
	).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}

	return nil
}

// GetByID retrieves a document by ID
func (r *PostgresDocumentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	return r.get(ctx, id, "")
}

// GetForUpdate retrieves a document and locks its row until the transaction ends
func (r *PostgresDocumentRepository) GetForUpdate(ctx context.Context, id string) (*models.Document, error) {
	return r.get(ctx, id, "FOR UPDATE")
}

func (r *PostgresDocumentRepository) get(ctx context.Context, id, lock string) (*models.Document, error) {
	query := fmt.Sprintf(`
		SELECT id, major_version, content, metadata, word_count, char_count, created_by, created_at, updated_at
		FROM %s
		WHERE id = $1
		%s
	`, r.tables.Documents, lock)

	var doc models.Document
	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, id).Scan(
		&doc.ID,
		&doc.MajorVersion,
		&doc.Content,
		&doc.Metadata,
		&doc.WordCount,
		&doc.CharCount,
		&doc.CreatedBy,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		if postgres.IsPgNoRowsError(err) || postgres.IsPgInvalidInputError(err) {
			return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get document: %w", err)
	}

	return &doc, nil
}

// UpdateMajor stores promoted content as the document's current major
func (r *PostgresDocumentRepository) UpdateMajor(ctx context.Context, doc *models.Document) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET major_version = $1, content = $2, metadata = $3, word_count = $4, char_count = $5, updated_at = $6
		WHERE id = $7
	`, r.tables.Documents)

	executor := postgres.GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query,
		doc.MajorVersion,
		doc.Content,
		doc.Metadata,
		doc.WordCount,
		doc.CharCount,
		doc.UpdatedAt,
		doc.ID,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", doc.ID, domain.ErrNotFound)
	}

	r.logger.Debug("document major updated", "id", doc.ID, "major", doc.MajorVersion)
	return nil
}
