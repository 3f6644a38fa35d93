package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	wbhttp "github.com/tracefold/workbench/internal/adapter/http"
	"github.com/tracefold/workbench/internal/adapter/jsonl"
	"github.com/tracefold/workbench/internal/adapter/localfs"
	"github.com/tracefold/workbench/internal/adapter/mcp"
	"github.com/tracefold/workbench/internal/adapter/otel"
	"github.com/tracefold/workbench/internal/adapter/postgres"
	"github.com/tracefold/workbench/internal/adapter/ristretto"
	"github.com/tracefold/workbench/internal/adapter/ws"
	"github.com/tracefold/workbench/internal/config"
	"github.com/tracefold/workbench/internal/logger"
	"github.com/tracefold/workbench/internal/port/factstore"
	"github.com/tracefold/workbench/internal/service"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	workspace, err := filepath.Abs(cfg.Workspace.Root)
	if err != nil {
		return fmt.Errorf("workspace root: %w", err)
	}

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"workspace", workspace,
	)

	ctx := context.Background()

	// --- Observability ---
	otelShutdown, err := otel.Setup(ctx, cfg.Logging.Service, cfg.Otel.Endpoint)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			slog.Error("otel shutdown failed", "error", err)
		}
	}()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	// Facts log: PostgreSQL when a DSN is configured, JSONL otherwise.
	var facts factstore.Store
	if cfg.Facts.DSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.Facts)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if err := postgres.RunMigrations(ctx, cfg.Facts.DSN); err != nil {
			pool.Close()
			return fmt.Errorf("migrations: %w", err)
		}
		facts = postgres.NewFactStore(pool)
		slog.Info("facts store ready", "backend", "postgres")
	} else {
		path := cfg.Facts.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(workspace, path)
		}
		store, err := jsonl.NewFactStore(path)
		if err != nil {
			return fmt.Errorf("facts log: %w", err)
		}
		facts = store
		slog.Info("facts store ready", "backend", "jsonl", "path", path)
	}
	defer func() {
		if err := facts.Close(); err != nil {
			slog.Error("facts store close failed", "error", err)
		}
	}()

	// File read cache
	fileCache, err := ristretto.New(cfg.Cache.MaxSizeMB * 1024 * 1024)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer fileCache.Close()

	files, err := localfs.New(workspace, fileCache, cfg.Cache.TTL)
	if err != nil {
		return fmt.Errorf("workspace store: %w", err)
	}

	// --- Services ---
	hub := ws.NewHub()
	lspSvc := service.NewLSPService(&cfg.LSP, files, hub)
	fileSvc := service.NewFileService(files, facts, hub, lspSvc)
	execSvc := service.NewExecService(cfg.Exec, workspace, facts)

	mcpServer := mcp.NewServer(
		mcp.ServerConfig{
			Addr:    cfg.MCP.Addr,
			Name:    cfg.MCP.Name,
			Version: cfg.MCP.Version,
			APIKey:  cfg.MCP.APIKey,
		},
		mcp.ServerDeps{
			Files:   fileSvc,
			Exec:    execSvc,
			LSP:     lspSvc,
			Metrics: metrics,
		},
	)

	// --- HTTP ---
	handlers := &wbhttp.Handlers{
		Files: fileSvc,
		LSP:   lspSvc,
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(wbhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(wbhttp.Logger)
	r.Use(wbhttp.SecurityHeaders)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(otel.HTTPMiddleware(cfg.Logging.Service))

	r.Get("/health", healthHandler(cfg, lspSvc))

	// WebSocket event stream
	r.Get("/ws", hub.HandleWS)

	// MCP tool surface
	r.Mount("/mcp", mcpServer.Handler())

	// Observation API
	wbhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Dedicated MCP listener, in addition to the /mcp mount.
	if cfg.MCP.Addr != "" {
		if err := mcpServer.Start(); err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		slog.Info("mcp listener started", "addr", cfg.MCP.Addr)
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
	if err := mcpServer.Stop(shutdownCtx); err != nil {
		slog.Error("mcp shutdown failed", "error", err)
	}
	if err := lspSvc.ShutdownAll(shutdownCtx); err != nil {
		slog.Error("lsp shutdown failed", "error", err)
	}
	hub.CloseAll()

	return nil
}

// healthHandler reports service health and the state of every language server.
func healthHandler(cfg *config.Config, lspSvc *service.LSPService) http.HandlerFunc {
	type healthStatus struct {
		Status    string `json:"status"`
		Workspace string `json:"workspace"`
		Servers   int    `json:"servers"`
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		status := healthStatus{
			Status:    "ok",
			Workspace: cfg.Workspace.Root,
			Servers:   len(lspSvc.Status()),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	}
}
