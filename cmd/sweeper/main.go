package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/planmate-app/backend/internal/config"
	"github.com/planmate-app/backend/internal/database"
	"github.com/planmate-app/backend/internal/quota"
	"github.com/planmate-app/backend/internal/repository"
	"github.com/planmate-app/backend/internal/sweeper"
)

func main() {
	// Set up logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting PlanMate Quota Sweeper Worker...")

	// Load configuration
	cfg := config.Load()
	log.Printf("Environment: %s", cfg.Env)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	dbCfg := database.DefaultConfig(cfg.DatabaseURL)
	db, err := database.New(ctx, dbCfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to PostgreSQL")

	// Create sweeper
	userRepo := repository.NewUserRepository(db)
	quotaService := quota.NewService(userRepo, cfg)
	sw := sweeper.NewSweeper(userRepo, quotaService, cfg.SweepBatch)
	log.Printf("Sweeper config: interval=%v, batch=%d", cfg.SweepInterval, cfg.SweepBatch)

	// Create scheduler
	scheduler := sweeper.NewScheduler(sw, cfg.SweepInterval)

	// Set up graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Start scheduler in goroutine
	go func() {
		scheduler.Start(ctx)
	}()

	log.Println("Sweeper worker started successfully")
	log.Printf("Resetting due quotas every %v", cfg.SweepInterval)

	// Wait for shutdown signal
	sig := <-shutdown
	log.Printf("Received signal: %v", sig)

	// Initiate graceful shutdown
	log.Println("Initiating graceful shutdown...")

	// Stop the scheduler
	scheduler.Stop()

	stats := scheduler.GetStats()
	log.Printf("Completed %d sweeps (%d failed), last pass reset %d users",
		stats.SweepCount, stats.ErrorCount, stats.LastReset)

	// Cancel context to stop any in-flight operations
	cancel()

	// Give some time for cleanup
	time.Sleep(2 * time.Second)

	log.Println("Sweeper worker stopped")
}
