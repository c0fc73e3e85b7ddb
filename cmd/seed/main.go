package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	models "collabsync/internal/domain/models/collab"
	"collabsync/internal/capabilities"
	"collabsync/internal/config"
	"collabsync/internal/repository/postgres"
	postgresCollab "collabsync/internal/repository/postgres/collab"
	serviceAuth "collabsync/internal/service/auth"
	serviceCollab "collabsync/internal/service/collab"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	// Parse command-line flags
	dropTables := flag.Bool("drop-tables", false, "Drop all tables before seeding (fresh start)")
	schemaOnly := flag.Bool("schema-only", false, "Only set up schema, don't seed documents")
	clearData := flag.Bool("clear-data", false, "Clear all documents, comments and grants (keep schema)")
	owner := flag.String("owner", "", "User ID that owns the seeded proposals (required when seeding)")
	editor := flag.String("editor", "", "Optional user ID granted the editor role on every proposal")
	flag.Parse()

	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// SAFETY: Prevent destructive operations in production
	if cfg.Environment == "prod" && (*dropTables || *clearData) {
		log.Fatalf("BLOCKED: Cannot run destructive operations (--drop-tables or --clear-data) in production environment")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.SupabaseDBURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	tables := postgres.NewTableNames(cfg.TablePrefix)

	if *dropTables {
		log.Println("Dropping all tables...")
		if err := postgres.DropSchema(ctx, pool, tables); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
	}

	if err := postgres.EnsureSchema(ctx, pool, tables, logger); err != nil {
		log.Fatalf("Failed to run schema: %v", err)
	}

	if *schemaOnly {
		log.Println("Schema setup complete (schema-only mode)")
		return
	}

	if *clearData {
		if err := clearAll(ctx, pool, tables); err != nil {
			log.Fatalf("Failed to clear data: %v", err)
		}
		log.Println("Data cleared successfully")
		return
	}

	if _, err := uuid.Parse(*owner); err != nil {
		log.Fatalf("--owner must be a user UUID: %v", err)
	}

	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	collaboratorRepo := postgresCollab.NewCollaboratorRepository(repoConfig)
	registry, err := capabilities.NewRegistry()
	if err != nil {
		log.Fatalf("Failed to load capabilities: %v", err)
	}
	authorizer := serviceAuth.NewRoleBasedAuthorizer(collaboratorRepo, registry)

	docService := serviceCollab.NewDocumentService(
		postgresCollab.NewDocumentRepository(repoConfig),
		postgresCollab.NewVersionRepository(repoConfig),
		collaboratorRepo,
		postgres.NewTransactionManager(pool, logger),
		authorizer,
		serviceCollab.NewContentAnalyzer(),
		logger,
	)
	commentService := serviceCollab.NewCommentService(postgresCollab.NewCommentRepository(repoConfig), authorizer, logger)
	collaboratorService := serviceCollab.NewCollaboratorService(collaboratorRepo, authorizer, logger)

	for i, seed := range seedProposals() {
		doc, err := docService.CreateDocument(ctx, *owner, &models.CreateDocumentRequest{
			Content:  seed.content,
			Metadata: seed.metadata,
		})
		if err != nil {
			log.Printf("Failed to create proposal %q: %v", seed.metadata.Title, err)
			continue
		}

		if seed.draft != nil {
			if _, err := docService.SaveDraft(ctx, *owner, doc.ID, &models.SaveDraftRequest{
				Content:  seed.draft,
				Metadata: seed.metadata,
			}); err != nil {
				log.Printf("Failed to save draft for %s: %v", doc.ID, err)
			}
		}

		author := models.UserRef{ID: *owner, Name: "Seed"}
		for _, text := range seed.comments {
			if _, err := commentService.CreateComment(ctx, author, &models.CreateCommentRequest{DocumentID: doc.ID, Content: text}); err != nil {
				log.Printf("Failed to add comment to %s: %v", doc.ID, err)
			}
		}

		if *editor != "" {
			if _, err := collaboratorService.Invite(ctx, *owner, doc.ID, &models.InviteRequest{UserID: *editor, Role: models.RoleEditor}); err != nil {
				log.Printf("Failed to invite editor to %s: %v", doc.ID, err)
			}
		}

		log.Printf("Created proposal %d: %s (ID: %s, Words: %d)", i+1, seed.metadata.Title, doc.ID, doc.WordCount)
	}

	log.Println("Seeding complete")
}

type seedProposal struct {
	metadata models.ProposalMetadata
	content  json.RawMessage
	draft    json.RawMessage
	comments []string
}

func seedProposals() []seedProposal {
	return []seedProposal{
		{
			metadata: models.ProposalMetadata{
				Title:         "River crossing rehabilitation",
				FundingMethod: "grant",
				Agency:        "Department of Transportation",
				Duration:      "18 months",
				Outlay:        2400000,
			},
			content: doc("Scope", "Replace the deck and reinforce the piers of the county river crossing."),
			draft:   doc("Scope", "Replace the deck, reinforce the piers and add a pedestrian lane."),
			comments: []string{
				"Confirm the pier survey date before submission.",
				"Budget table still references last year's rates.",
			},
		},
		{
			metadata: models.ProposalMetadata{
				Title:         "Rural broadband expansion",
				FundingMethod: "loan",
				Agency:        "Rural Utilities Service",
				Duration:      "36 months",
				Outlay:        9100000,
			},
			content:  doc("Summary", "Extend fiber service to 4,200 unserved households."),
			comments: []string{"Add the coverage map as an attachment."},
		},
	}
}

// doc builds a minimal rich-text document with a heading and one paragraph
func doc(heading, body string) json.RawMessage {
	content, _ := json.Marshal(map[string]any{
		"type": "doc",
		"content": []any{
			map[string]any{
				"type":    "heading",
				"attrs":   map[string]any{"level": 2},
				"content": []any{map[string]any{"type": "text", "text": heading}},
			},
			map[string]any{
				"type":    "paragraph",
				"content": []any{map[string]any{"type": "text", "text": body}},
			},
		},
	})
	return content
}

// clearAll removes every row but keeps the tables
func clearAll(ctx context.Context, pool *pgxpool.Pool, tables *postgres.TableNames) error {
	for _, table := range tables.All() {
		if _, err := pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}
