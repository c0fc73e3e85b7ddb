package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"collabsync/internal/domain/repositories"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryConfig holds configuration for repository implementations
type RepositoryConfig struct {
	Pool   *pgxpool.Pool
	Tables *TableNames
	Logger *slog.Logger
}

// TableNames holds dynamically prefixed table names
type TableNames struct {
	Documents      string
	Versions       string
	Comments       string
	CommentReplies string
	Collaborators  string
}

// NewTableNames creates table names with the given prefix
func NewTableNames(prefix string) *TableNames {
	return &TableNames{
		Documents:      fmt.Sprintf("%sdocuments", prefix),
		Versions:       fmt.Sprintf("%sdocument_versions", prefix),
		Comments:       fmt.Sprintf("%scomments", prefix),
		CommentReplies: fmt.Sprintf("%scomment_replies", prefix),
		Collaborators:  fmt.Sprintf("%sdocument_collaborators", prefix),
	}
}

// All returns every table in drop order (children first).
func (t *TableNames) All() []string {
	return []string{t.CommentReplies, t.Comments, t.Collaborators, t.Versions, t.Documents}
}

// CreateConnectionPool creates a new pgx connection pool with automatic PgBouncer compatibility.
//
// PgBouncer in transaction pooling mode (port 6543 on Supabase) does not support
// prepared statements, so that port switches to QueryExecModeCacheDescribe. An explicit
// ?default_query_exec_mode= in the connection string takes precedence.
//
// Dynamic table prefixes (dev_, test_, prod_) are interpolated with fmt.Sprintf before
// the statement is sent, so each environment gets its own cached statements.
func CreateConnectionPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	// Configure pool size
	config.MaxConns = 25
	config.MinConns = 5

	// QueryExecModeCacheDescribe keeps the extended protocol (needed to encode
	// map[string]any into JSONB) without creating server-side prepared statements.
	if config.ConnConfig.Port == 6543 && config.ConnConfig.DefaultQueryExecMode == pgx.QueryExecModeCacheStatement {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
		slog.Debug("auto-configured cache_describe mode for PgBouncer compatibility", "port", 6543)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// GetExecutor returns the transaction carried by ctx, or pool outside one.
func GetExecutor(ctx context.Context, pool *pgxpool.Pool) repositories.DBTX {
	if tx := repositories.TxFrom(ctx); tx != nil {
		return tx
	}
	return pool
}
