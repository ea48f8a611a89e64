package main

import (
	"context"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram/bot"

	backend "github.com/planmate-app/backend"
	"github.com/planmate-app/backend/internal/api"
	"github.com/planmate-app/backend/internal/api/handlers"
	"github.com/planmate-app/backend/internal/cache"
	"github.com/planmate-app/backend/internal/config"
	"github.com/planmate-app/backend/internal/database"
)

// noopAnswerer stands in for the bot API when no token is configured.
// Pre-checkout queries cannot arrive without a registered webhook, so it
// only ever logs.
type noopAnswerer struct{}

func (noopAnswerer) AnswerPreCheckoutQuery(ctx context.Context, params *bot.AnswerPreCheckoutQueryParams) (bool, error) {
	log.Printf("[main] Dropping pre-checkout answer %s: no bot token configured", params.PreCheckoutQueryID)
	return false, nil
}

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("[main] Starting PlanMate API (env=%s)", cfg.Env)
	if cfg.IsDevelopment() {
		log.Println("[main] Development mode: error responses carry full detail")
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Apply schema migrations
	migrations, err := fs.Sub(backend.MigrationsFS, "migrations")
	if err != nil {
		log.Fatalf("[main] Failed to open embedded migrations: %v", err)
	}
	if err := database.Migrate(cfg.DatabaseURL, migrations); err != nil {
		log.Fatalf("[main] Failed to apply migrations: %v", err)
	}

	// Connect to database
	dbCfg := database.DefaultConfig(cfg.DatabaseURL)
	db, err := database.New(ctx, dbCfg)
	if err != nil {
		log.Fatalf("[main] Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Connect to Redis
	redisCache, err := cache.NewRedisFromURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("[main] Failed to connect to Redis: %v", err)
	}
	defer redisCache.Close()

	// Bot client for answering pre-checkout queries
	var answerer handlers.PreCheckoutAnswerer = noopAnswerer{}
	if cfg.BotToken != "" {
		// Webhook mode: no polling, no getMe on startup
		b, err := bot.New(cfg.BotToken, bot.WithSkipGetMe())
		if err != nil {
			log.Fatalf("[main] Failed to create bot client: %v", err)
		}
		answerer = b
	} else {
		log.Println("[main] TELEGRAM_BOT_TOKEN not set, payment webhook disabled")
	}

	// Create router
	router := api.NewRouter(cfg, db, redisCache, answerer)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("[main] Server listening on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[main] Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[main] Shutting down server...")

	// Give outstanding requests time to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] Server forced to shutdown: %v", err)
	}

	log.Println("[main] Server stopped")
}
