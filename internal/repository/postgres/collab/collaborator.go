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

// PostgresCollaboratorRepository implements the CollaboratorRepository interface
type PostgresCollaboratorRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewCollaboratorRepository creates a new collaborator repository
func NewCollaboratorRepository(config *postgres.RepositoryConfig) collabRepo.CollaboratorRepository {
	return &PostgresCollaboratorRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// GetRole returns the user's role on the document
func (r *PostgresCollaboratorRepository) GetRole(ctx context.Context, documentID, userID string) (models.Role, error) {
	query := fmt.Sprintf(`
		SELECT role FROM %s WHERE document_id = $1 AND user_id = $2
	`, r.tables.Collaborators)

	var role string
	executor := postgres.GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, documentID, userID).Scan(&role); err != nil {
		if postgres.IsPgNoRowsError(err) || postgres.IsPgInvalidInputError(err) {
			return "", fmt.Errorf("collaborator %s on %s: %w", userID, documentID, domain.ErrNotFound)
		}
		return "", fmt.Errorf("get role: %w", err)
	}
	return models.Role(role), nil
}

// Upsert grants a role, replacing any previous grant
func (r *PostgresCollaboratorRepository) Upsert(ctx context.Context, c *models.Collaborator) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (document_id, user_id, role, invited_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (document_id, user_id) DO UPDATE
		SET role = EXCLUDED.role, invited_by = EXCLUDED.invited_by
		RETURNING created_at
	`, r.tables.Collaborators)

	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		c.DocumentID,
		c.UserID,
		string(c.Role),
		c.InvitedBy,
		c.CreatedAt,
	).Scan(&c.CreatedAt)
	if err != nil {
		if postgres.IsPgForeignKeyError(err) {
			return fmt.Errorf("document %s: %w", c.DocumentID, domain.ErrNotFound)
		}
		return fmt.Errorf("upsert collaborator: %w", err)
	}

	r.logger.Info("collaborator granted", "document_id", c.DocumentID, "user_id", c.UserID, "role", c.Role)
	return nil
}

// ListByDocument returns the document's collaborators in grant order
func (r *PostgresCollaboratorRepository) ListByDocument(ctx context.Context, documentID string) ([]models.Collaborator, error) {
	query := fmt.Sprintf(`
		SELECT document_id, user_id, role, invited_by, created_at
		FROM %s
		WHERE document_id = $1
		ORDER BY created_at ASC
	`, r.tables.Collaborators)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("list collaborators: %w", err)
	}
	defer rows.Close()

	collaborators := []models.Collaborator{}
	for rows.Next() {
		var c models.Collaborator
		var role string
		if err := rows.Scan(&c.DocumentID, &c.UserID, &role, &c.InvitedBy, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan collaborator: %w", err)
		}
		c.Role = models.Role(role)
		collaborators = append(collaborators, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collaborators: %w", err)
	}

	return collaborators, nil
}
