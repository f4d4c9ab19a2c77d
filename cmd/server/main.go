package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"vinpix/internal/auth"
	"vinpix/internal/capabilities"
	"vinpix/internal/config"
	"vinpix/internal/handler"
	"vinpix/internal/middleware"
	"vinpix/internal/provider/gemini"
	"vinpix/internal/repository/postgres"
	serviceChat "vinpix/internal/service/chat"
	"vinpix/internal/storage"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Debug {
		logLevel = slog.LevelDebug
	}

	var logOut io.Writer = os.Stdout
	if cfg.LogDir != "" {
		f, err := config.OpenLogFile(cfg.LogDir, cfg.LogMaxFiles)
		if err != nil {
			log.Fatalf("Failed to set up log file: %v", err)
		}
		defer f.Close()
		logOut = io.MultiWriter(os.Stdout, f)
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

	// JWT verifier
	jwtVerifier, err := auth.NewJWTVerifier(cfg.JWKSURL, logger)
	if err != nil {
		log.Fatalf("Failed to create JWT verifier: %v", err)
	}
	defer jwtVerifier.Close()

	// Database
	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	logger.Info("database connected",
		"max_conns", 25,
		"min_conns", 5,
	)

	tables := postgres.NewTableNames(cfg.TablePrefix)
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	sessionRepo := postgres.NewSessionRepository(repoConfig)

	// Object store
	objectStore, err := storage.NewGCSObjectStore(ctx, cfg.GCSBucket, cfg.GCSCredentials, cfg.SignedURLTTL, logger)
	if err != nil {
		log.Fatalf("Failed to create object store: %v", err)
	}

	// Generation backends
	textProvider, err := gemini.NewTextProvider(ctx, cfg.GeminiAPIKey, logger)
	if err != nil {
		log.Fatalf("Failed to create text provider: %v", err)
	}
	defer textProvider.Close()

	imageProvider, err := gemini.NewImageProvider(cfg.GeminiAPIKey, objectStore, logger)
	if err != nil {
		log.Fatalf("Failed to create image provider: %v", err)
	}

	// Capability registry
	capabilityRegistry, err := capabilities.NewRegistry()
	if err != nil {
		log.Fatalf("Failed to initialize capability registry: %v", err)
	}
	logger.Info("capability registry initialized")

	// Services
	treeGateway := serviceChat.NewTreeGateway(objectStore, sessionRepo, logger)
	orchestrator := serviceChat.NewOrchestrator(
		treeGateway,
		textProvider,
		imageProvider,
		objectStore,
		capabilityRegistry,
		serviceChat.OrchestratorConfig{
			DefaultChatModel:    cfg.DefaultChatModel,
			DefaultImageModel:   cfg.DefaultImageModel,
			MaxImagesPerTurn:    cfg.MaxImagesPerTurn,
			MaxConcurrentImages: cfg.MaxConcurrentImages,
			MaxThinkingSteps:    cfg.MaxThinkingSteps,
			TextTimeout:         cfg.TextTimeout,
			ImageTimeout:        cfg.ImageTimeout,
		},
		logger,
	)
	sessionService := serviceChat.NewSessionManager(sessionRepo, objectStore, capabilityRegistry, cfg.DefaultChatModel, logger)
	moodboardService := serviceChat.NewMoodboardManager(sessionRepo, objectStore, textProvider, cfg.DefaultChatModel, logger)
	orchestrator.SetStyleResolver(moodboardService)
	queueRunner := serviceChat.NewQueueRunner(orchestrator, logger)
	bulkParser := serviceChat.NewBulkPromptParser(textProvider, cfg.DefaultChatModel, logger)

	// Handlers
	sessionHandler := handler.NewSessionHandler(sessionService, logger)
	turnHandler := handler.NewTurnHandler(orchestrator, logger)
	queueHandler := handler.NewQueueHandler(queueRunner, bulkParser, logger)
	moodboardHandler := handler.NewMoodboardHandler(moodboardService, logger)
	modelsHandler := handler.NewModelsHandler(capabilityRegistry, logger)

	logger.Info("services initialized")

	// HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", sessionHandler.HealthCheck)

	// Model capabilities
	mux.HandleFunc("GET /api/models/capabilities", modelsHandler.GetCapabilities)

	// Session routes
	mux.HandleFunc("POST /api/sessions", sessionHandler.CreateSession)
	mux.HandleFunc("GET /api/sessions", sessionHandler.ListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", sessionHandler.GetSession)
	mux.HandleFunc("PATCH /api/sessions/{id}", sessionHandler.RenameSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", sessionHandler.DeleteSession)
	mux.HandleFunc("PATCH /api/sessions/{id}/folder", sessionHandler.MoveToFolder)

	// Folder routes
	mux.HandleFunc("POST /api/folders", sessionHandler.CreateFolder)
	mux.HandleFunc("DELETE /api/folders/{id}", sessionHandler.DeleteFolder)

	// Moodboard routes (deletion shares DELETE /api/sessions/{id})
	mux.HandleFunc("POST /api/moodboards", moodboardHandler.Create)
	mux.HandleFunc("GET /api/moodboards/{id}", moodboardHandler.Get)
	mux.HandleFunc("PATCH /api/moodboards/{id}", moodboardHandler.Update)
	mux.HandleFunc("POST /api/moodboards/{id}/images", moodboardHandler.AddImage)
	mux.HandleFunc("POST /api/moodboards/{id}/analyze", moodboardHandler.Analyze)

	// Attachment access
	mux.HandleFunc("GET /api/attachments/url", sessionHandler.AttachmentURL)

	// Turn routes
	mux.HandleFunc("POST /api/sessions/{id}/turns", turnHandler.SendTurn)
	mux.HandleFunc("POST /api/sessions/{id}/nodes/{nodeId}/regenerate", turnHandler.RegenerateNode)
	mux.HandleFunc("POST /api/sessions/{id}/nodes/{nodeId}/attachments/{attachmentId}/regenerate", turnHandler.RegenerateImage)
	mux.HandleFunc("POST /api/sessions/{id}/nodes/{nodeId}/edit-branch", turnHandler.EditAndBranch)
	mux.HandleFunc("POST /api/sessions/{id}/nodes/{nodeId}/edit", turnHandler.DirectEdit)
	mux.HandleFunc("POST /api/sessions/{id}/nodes/{nodeId}/switch-branch", turnHandler.SwitchBranch)
	mux.HandleFunc("DELETE /api/sessions/{id}/nodes/{nodeId}", turnHandler.DeleteNode)

	// Bulk queue routes
	mux.HandleFunc("POST /api/sessions/{id}/queue", queueHandler.Start)
	mux.HandleFunc("GET /api/sessions/{id}/queue", queueHandler.Status)
	mux.HandleFunc("DELETE /api/sessions/{id}/queue", queueHandler.Cancel)
	mux.HandleFunc("POST /api/bulk/parse", queueHandler.ParsePrompts)

	// Build middleware chain
	var root http.Handler = mux

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → Recovery → Auth → Routes
	root = middleware.AuthMiddleware(jwtVerifier)(root)
	root = middleware.Recovery(logger)(root)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
	})
	root = corsHandler.Handler(root)

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     root,
		ReadTimeout: 15 * time.Second,
		// Turns block until every image settles, so the write timeout must
		// cover the slowest full turn.
		WriteTimeout: cfg.TextTimeout + cfg.ImageTimeout,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("server listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}
