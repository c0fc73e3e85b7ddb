package main

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"collabsync/internal/auth"
	"collabsync/internal/capabilities"
	"collabsync/internal/config"
	"collabsync/internal/handler"
	"collabsync/internal/handler/ws"
	"collabsync/internal/metrics"
	"collabsync/internal/middleware"
	"collabsync/internal/repository/postgres"
	postgresCollab "collabsync/internal/repository/postgres/collab"
	serviceAuth "collabsync/internal/service/auth"
	serviceCollab "collabsync/internal/service/collab"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}

	var logOut io.Writer = os.Stdout
	if cfg.LogDir != "" {
		logFile, err := config.SetupLogFile(cfg.LogDir, "collab-server", cfg.LogMaxFiles)
		if err != nil {
			log.Fatalf("Failed to setup log file: %v", err)
		}
		defer logFile.Close()
		logOut = io.MultiWriter(os.Stdout, logFile)
	}

	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	ctx := context.Background()

	// Local HS256 secret wins; otherwise verify against the Supabase JWKS
	var jwtVerifier auth.JWTVerifier
	var err error
	if cfg.JWTSecret != "" {
		jwtVerifier, err = auth.NewHMACVerifier(cfg.JWTSecret, logger)
	} else {
		jwtVerifier, err = auth.NewJWTVerifier(ctx, cfg.SupabaseJWKSURL, logger)
	}
	if err != nil {
		log.Fatalf("Failed to create JWT verifier: %v", err)
	}
	defer jwtVerifier.Close()

	// Create pgx connection pool
	pool, err := postgres.CreateConnectionPool(ctx, cfg.SupabaseDBURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	// Create table names
	tables := postgres.NewTableNames(cfg.TablePrefix)

	if cfg.AutoMigrate {
		if err := postgres.EnsureSchema(ctx, pool, tables, logger); err != nil {
			log.Fatalf("Failed to ensure schema: %v", err)
		}
	}

	logger.Info("database connected")

	// Create repositories
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	docRepo := postgresCollab.NewDocumentRepository(repoConfig)
	versionRepo := postgresCollab.NewVersionRepository(repoConfig)
	commentRepo := postgresCollab.NewCommentRepository(repoConfig)
	collaboratorRepo := postgresCollab.NewCollaboratorRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool, logger)

	// Initialize capability registry
	capabilityRegistry, err := capabilities.NewRegistry()
	if err != nil {
		log.Fatalf("Failed to initialize capability registry: %v", err)
	}
	authorizer := serviceAuth.NewRoleBasedAuthorizer(collaboratorRepo, capabilityRegistry)
	logger.Info("capability registry initialized", "roles", capabilityRegistry.ListRoles())

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(registry)

	// Create services
	docService := serviceCollab.NewDocumentService(
		docRepo,
		versionRepo,
		collaboratorRepo,
		txManager,
		authorizer,
		serviceCollab.NewContentAnalyzer(),
		logger,
	)
	commentService := serviceCollab.NewCommentService(commentRepo, authorizer, logger)
	collaboratorService := serviceCollab.NewCollaboratorService(collaboratorRepo, authorizer, logger)

	rooms := serviceCollab.NewRoomManager(docService, authorizer, appMetrics, serviceCollab.RoomManagerConfig{
		EvictionGrace: cfg.RoomEvictionGrace,
		FlushTimeout:  cfg.RequestTimeout,
	}, logger)

	// Create handlers
	healthHandler := handler.NewHealthHandler(rooms)
	docHandler := handler.NewDocumentHandler(docService, rooms, logger)
	commentHandler := handler.NewCommentHandler(commentService, rooms, logger)
	collaboratorHandler := handler.NewCollaboratorHandler(collaboratorService, logger)

	wsConfig := ws.DefaultConfig()
	wsConfig.KeepAliveInterval = cfg.WSKeepAliveInterval
	wsConfig.PongTimeout = 3 * cfg.WSKeepAliveInterval
	wsConfig.RequestTimeout = cfg.RequestTimeout
	wsConfig.SendQueue = cfg.WSSendQueue
	wsConfig.EventsPerSecond = cfg.WSEventsPerSecond
	wsConfig.EventBurst = cfg.WSEventBurst
	wsConfig.AllowedOrigins = strings.Split(cfg.CORSOrigins, ",")
	wsHandler := ws.NewHandler(rooms, commentService, wsConfig, appMetrics, logger)

	logger.Info("services initialized")

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	// Health check and metrics
	mux.HandleFunc("GET /health", healthHandler.HealthCheck)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Live collaboration
	mux.HandleFunc("GET /api/collab/ws", wsHandler.ServeWS)

	// Document lifecycle routes
	mux.HandleFunc("POST /api/documents", docHandler.CreateDocument)
	mux.HandleFunc("GET /api/documents/{id}", docHandler.GetDocument)
	mux.HandleFunc("GET /api/documents/{id}/draft", docHandler.GetDraft)
	mux.HandleFunc("PUT /api/documents/{id}/draft", docHandler.SaveDraft)
	mux.HandleFunc("DELETE /api/documents/{id}/draft", docHandler.DiscardDraft)
	mux.HandleFunc("GET /api/documents/{id}/versions", docHandler.ListVersions)
	mux.HandleFunc("POST /api/documents/{id}/versions", docHandler.PromoteDraft)

	// Comment routes
	mux.HandleFunc("GET /api/documents/{id}/comments", commentHandler.ListComments)
	mux.HandleFunc("POST /api/documents/{id}/comments", commentHandler.CreateComment)
	mux.HandleFunc("POST /api/documents/{id}/comments/{commentId}/replies", commentHandler.AddReply)
	mux.HandleFunc("POST /api/documents/{id}/comments/{commentId}/resolve", commentHandler.ResolveComment)

	// Collaborator routes
	mux.HandleFunc("GET /api/documents/{id}/collaborators", collaboratorHandler.ListCollaborators)
	mux.HandleFunc("POST /api/documents/{id}/collaborators", collaboratorHandler.Invite)

	// Build middleware chain
	var h http.Handler = mux

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → RequestLogger → Recovery → Auth → Routes
	h = middleware.AuthMiddleware(jwtVerifier, logger)(h)
	h = middleware.Recovery(logger)(h)
	h = middleware.RequestLogger(logger)(h)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
	})
	h = corsHandler.Handler(h)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled for long-lived websocket connections
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		logger.Error("server failed", "error", err)
	case sig := <-stop:
		logger.Info("shutdown requested", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown; the room
	// manager flushes every dirty room and the process exit closes the sockets.
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	if err := rooms.Shutdown(shutdownCtx); err != nil {
		logger.Error("room shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}
