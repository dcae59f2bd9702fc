package main

import (
	"context"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"

	"github.com/uestcbean/phoebe-service/internal/config"
	"github.com/uestcbean/phoebe-service/internal/gateway"
	"github.com/uestcbean/phoebe-service/internal/http"
	"github.com/uestcbean/phoebe-service/internal/kbclient"
	"github.com/uestcbean/phoebe-service/internal/pool"
	"github.com/uestcbean/phoebe-service/internal/scheduler"
	"github.com/uestcbean/phoebe-service/internal/storage"
)

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	// Initialize database
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	// Create repository instances
	slotRepo := storage.NewSlotRepo(db)
	bindingRepo := storage.NewBindingRepo(db)
	noteRepo := storage.NewNoteRepo(db)
	syncRepo := storage.NewSyncRecordRepo(db)

	// Index pool allocator
	indexPool := pool.New(slotRepo, bindingRepo, cfg.KBWorkspaceID, cfg.KBDefaultCategory)

	// Remote knowledge base client, created once at startup
	kbClient := kbclient.NewHTTPClient(cfg.KBEndpoint, cfg.KBAPIKey, cfg.KBWorkspaceID)
	slog.Info("Knowledge base client initialized", "endpoint", cfg.KBEndpoint, "workspace", cfg.KBWorkspaceID)

	// Knowledge base gateway
	kbGateway := gateway.New(kbClient, bindingRepo, slotRepo, syncRepo, indexPool, gateway.Config{
		WorkspaceID:      cfg.KBWorkspaceID,
		DefaultIndexID:   cfg.KBDefaultIndexID,
		EmbeddingModel:   cfg.KBEmbeddingModel,
		RetrieveTopK:     cfg.RetrieveTopK,
		RetrieveMinScore: cfg.RetrieveMinScore,
	})

	// Note sync scheduler
	syncScheduler := scheduler.New(noteRepo, syncRepo, kbGateway, scheduler.Config{
		Enabled:    cfg.SyncEnabled,
		Delay:      cfg.SyncDelay,
		OwnerDelay: cfg.SyncOwnerDelay,
	})

	// Create router with dependencies
	deps := &http.Deps{
		DB:        db,
		Pool:      indexPool,
		Scheduler: syncScheduler,
		Ledger:    syncRepo,
		Notes:     noteRepo,
		Updater:   kbGateway,
		Retriever: kbGateway,
	}
	router := http.NewRouter(deps)

	// Run the recurring note sync in background: one run at startup,
	// then one per configured interval
	if cfg.SyncEnabled {
		go func() {
			slog.Info("Starting periodic note sync", "interval", cfg.SyncInterval)
			syncScheduler.RunPeriodic(context.Background(), cfg.SyncInterval)
		}()
	}

	// Start API server
	addr := ":" + cfg.APIPort
	slog.Info("Starting API server", "addr", addr)
	if err := nethttp.ListenAndServe(addr, router); err != nil {
		log.Fatalf("API server failed to start: %v", err)
	}
}
