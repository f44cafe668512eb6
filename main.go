package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"futuresync/internal/calendar"
	"futuresync/internal/config"
	"futuresync/internal/fetch"
	"futuresync/internal/logging"
	"futuresync/internal/pipeline"
	"futuresync/internal/ratelimit"
	"futuresync/internal/retry"
	"futuresync/internal/store"
	"futuresync/internal/tushare"
)

func main() {
	// Load .env if present, then configuration
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFile)

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	// Destination store
	db, err := store.Open(ctx, cfg.DatabaseURL, logging.Component(logger, "store"))
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer db.Close()

	// Vendor client
	src := tushare.NewClient(cfg.TushareToken, cfg.TushareBaseURL, cfg.TransportRate,
		logging.Component(logger, "tushare"))
	defer src.Close()

	// Admission control, retries, fan-out
	limiter, err := ratelimit.New(cfg.Rate, cfg.Burst)
	if err != nil {
		log.Fatalf("Failed to build rate limiter: %v", err)
	}
	policy := retry.Policy{
		MaxAttempts:   cfg.MaxAttempts,
		BackoffFactor: cfg.BackoffFactor,
	}
	cache := calendar.NewCache()
	orch := fetch.New(limiter, policy, cfg.MaxConcurrent, src.TradingDays, cache,
		logging.Component(logger, "fetch"))

	pipe := pipeline.New(src, db, orch, cache, logging.Component(logger, "pipeline"))

	query := fetch.Query{
		Exchanges: cfg.Exchanges,
		Symbols:   cfg.Symbols,
		Date:      cfg.Date,
		StartDate: cfg.StartDate,
		EndDate:   cfg.EndDate,
	}

	fmt.Println("Syncing futures reference data...")
	fmt.Println("=================================")
	results := pipe.SaveAll(ctx, query)

	categories := []string{"calendar", "contracts", "daily", "holdings"}
	failed := false
	for _, name := range categories {
		res, ok := results[name]
		if !ok {
			fmt.Printf("%-10s FAILED\n", name)
			failed = true
			continue
		}
		fmt.Printf("%-10s success=%v inserted=%d modified=%d errors=%d duration=%s\n",
			name, res.Success, res.Inserted, res.Modified, res.ErrorCount, res.Duration())
		if !res.Success {
			failed = true
		}
	}
	fmt.Println("=================================")

	if failed {
		os.Exit(1)
	}
	fmt.Println("All categories synced!")
}
