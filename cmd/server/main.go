package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/joho/godotenv"
	"github.com/shiftline/marketplace/api"
	dbfiles "github.com/shiftline/marketplace/db"
	"github.com/shiftline/marketplace/internal/config"
	"github.com/shiftline/marketplace/internal/db"
	"github.com/shiftline/marketplace/internal/notify"
	"github.com/shiftline/marketplace/internal/repository/sqlite"
	"github.com/shiftline/marketplace/internal/tasks"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var configPath = flag.String("config", "", "Path to config YAML file")
	flag.Parse()

	// .env is optional; environment wins over defaults either way
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger.Info("starting marketplace server", "version", version, "build_time", buildTime)

	ctx := context.Background()

	// Open database connection and apply pending migrations
	conn, err := db.New(ctx, cfg.DatabasePath, cfg.StoreTimeout, logger)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	if err := db.Migrate(ctx, conn, dbfiles.Migrations); err != nil {
		log.Fatalf("Failed to migrate DB: %v", err)
	}

	repo := sqlite.New(conn, logger)

	// Notification delivery runs on the task queue so a slow webhook never
	// holds up a lifecycle transition.
	var sender notify.Sender
	if cfg.Notify.WebhookURL != "" {
		sender = notify.NewWebhookSender(cfg.Notify.WebhookURL, cfg.Notify.Timeout)
	} else {
		logger.Warn("no notification webhook configured, pushes are recorded only")
		sender = notify.NewMemorySender()
	}
	pool := tasks.NewWorkerPool(repo, notify.Handlers(sender, logger), logger, cfg.WorkerCount)
	pool.Start(ctx)
	notifier := notify.NewNotifier(pool, logger)

	handler := api.SetupRoutes(cfg, version, buildTime, conn, notifier, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.APITimeout,
		WriteTimeout: cfg.APITimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	pool.Stop()

	// Close database connection
	if err := conn.Close(); err != nil {
		logger.Error("closing db", "err", err)
	}

	logger.Info("server exited")
}
