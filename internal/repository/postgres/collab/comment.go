package collab

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"collabsync/internal/domain"
	models "collabsync/internal/domain/models/collab"
	collabRepo "collabsync/internal/domain/repositories/collab"
	"collabsync/internal/repository/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresCommentRepository implements the CommentRepository interface
type PostgresCommentRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewCommentRepository creates a new comment repository
func NewCommentRepository(config *postgres.RepositoryConfig) collabRepo.CommentRepository {
	return &PostgresCommentRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Create inserts a top-level comment
func (r *PostgresCommentRepository) Create(ctx context.Context, c *models.Comment) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (document_id, author_id, author_name, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, r.tables.Comments)

	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		c.DocumentID,
		c.AuthorID,
		c.AuthorName,
		c.Content,
		c.CreatedAt,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if postgres.IsPgForeignKeyError(err) {
			return fmt.Errorf("document %s: %w", c.DocumentID, domain.ErrNotFound)
		}
		return fmt.Errorf("create comment: %w", err)
	}
	if c.Replies == nil {
		c.Replies = []models.Reply{}
	}

	return nil
}

// GetByID retrieves a comment with its replies
func (r *PostgresCommentRepository) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	query := fmt.Sprintf(`
		SELECT id, document_id, author_id, author_name, content, resolved, resolved_by, resolved_at, created_at
		FROM %s
		WHERE id = $1
	`, r.tables.Comments)

	var c models.Comment
	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.DocumentID,
		&c.AuthorID,
		&c.AuthorName,
		&c.Content,
		&c.Resolved,
		&c.ResolvedBy,
		&c.ResolvedAt,
		&c.CreatedAt,
	)
	if err != nil {
		if postgres.IsPgNoRowsError(err) || postgres.IsPgInvalidInputError(err) {
			return nil, fmt.Errorf("comment %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get comment: %w", err)
	}

	replies, err := r.listReplies(ctx, "comment_id = $1", id)
	if err != nil {
		return nil, err
	}
	c.Replies = replies[c.ID]
	if c.Replies == nil {
		c.Replies = []models.Reply{}
	}

	return &c, nil
}

// ListByDocument returns every thread on the document, oldest first
func (r *PostgresCommentRepository) ListByDocument(ctx context.Context, documentID string) ([]models.Comment, error) {
	query := fmt.Sprintf(`
		SELECT id, document_id, author_id, author_name, content, resolved, resolved_by, resolved_at, created_at
		FROM %s
		WHERE document_id = $1
		ORDER BY created_at ASC, id ASC
	`, r.tables.Comments)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(
			&c.ID,
			&c.DocumentID,
			&c.AuthorID,
			&c.AuthorName,
			&c.Content,
			&c.Resolved,
			&c.ResolvedBy,
			&c.ResolvedAt,
			&c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}

	replies, err := r.listReplies(ctx, fmt.Sprintf(
		"comment_id IN (SELECT id FROM %s WHERE document_id = $1)", r.tables.Comments), documentID)
	if err != nil {
		return nil, err
	}
	for i := range comments {
		comments[i].Replies = replies[comments[i].ID]
		if comments[i].Replies == nil {
			comments[i].Replies = []models.Reply{}
		}
	}

	return comments, nil
}

// listReplies returns replies grouped by comment ID, in creation order
func (r *PostgresCommentRepository) listReplies(ctx context.Context, where string, arg string) (map[string][]models.Reply, error) {
	query := fmt.Sprintf(`
		SELECT id, comment_id, author_id, author_name, content, created_at
		FROM %s
		WHERE %s
		ORDER BY created_at ASC, id ASC
	`, r.tables.CommentReplies, where)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	defer rows.Close()

	grouped := make(map[string][]models.Reply)
	for rows.Next() {
		var reply models.Reply
		if err := rows.Scan(
			&reply.ID,
			&reply.CommentID,
			&reply.AuthorID,
			&reply.AuthorName,
			&reply.Content,
			&reply.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan reply: %w", err)
		}
		grouped[reply.CommentID] = append(grouped[reply.CommentID], reply)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate replies: %w", err)
	}

	return grouped, nil
}

// AddReply appends a reply to a comment
func (r *PostgresCommentRepository) AddReply(ctx context.Context, reply *models.Reply) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (comment_id, author_id, author_name, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, r.tables.CommentReplies)

	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		reply.CommentID,
		reply.AuthorID,
		reply.AuthorName,
		reply.Content,
		reply.CreatedAt,
	).Scan(&reply.ID, &reply.CreatedAt)
	if err != nil {
		if postgres.IsPgForeignKeyError(err) {
			return fmt.Errorf("comment %s: %w", reply.CommentID, domain.ErrNotFound)
		}
		return fmt.Errorf("add reply: %w", err)
	}

	return nil
}

// markResolvedQuery only matches unresolved rows, so the first resolver's
// name and time are never overwritten
func markResolvedQuery(tables *postgres.TableNames) string {
	return fmt.Sprintf(`
		UPDATE %s
		SET resolved = true, resolved_by = $2, resolved_at = $3
		WHERE id = $1 AND NOT resolved
	`, tables.Comments)
}

// MarkResolved flips resolved to true; resolution never reverts
func (r *PostgresCommentRepository) MarkResolved(ctx context.Context, id, resolvedBy string, at time.Time) (bool, error) {
	query := markResolvedQuery(r.tables)

	executor := postgres.GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, id, resolvedBy, at)
	if err != nil {
		return false, fmt.Errorf("resolve comment: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
