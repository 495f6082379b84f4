// Riskd - Payment fraud risk scoring for Verdant Goods.
// Copyright (c) 2026 Verdant Goods
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/verdantgoods/riskd/internal/api"
	"github.com/verdantgoods/riskd/internal/bus"
	"github.com/verdantgoods/riskd/internal/cache"
	"github.com/verdantgoods/riskd/internal/chargeback"
	"github.com/verdantgoods/riskd/internal/domain"
	"github.com/verdantgoods/riskd/internal/repository"
	"github.com/verdantgoods/riskd/internal/rules"
	"github.com/verdantgoods/riskd/internal/scoring"
	"github.com/verdantgoods/riskd/internal/seed"
	"github.com/verdantgoods/riskd/internal/velocity"
	"github.com/verdantgoods/riskd/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load .env if present. Variables already set in the environment win.
	_ = godotenv.Load()

	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("RISKD_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting riskd",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("RISKD_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	applyEnvOverrides(cfg)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"seed", cfg.Seed.Enabled,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Velocity Service
	velocitySvc := velocity.NewService(repo)
	slog.Info("velocity service initialized")

	// Initialize Rule Engine. Conditions on velocity_24h resolve through
	// the velocity service at evaluation time.
	engine := rules.NewEngine(velocitySvc.EmailCount)

	// Rule Store with read-through cache; creation invalidates the cached
	// set so the next scoring call sees the new rule.
	ruleStore := rules.NewStore(repo, cacheImpl, cfg.Cache.RuleSetTTL)
	slog.Info("rule store initialized", "ruleset_ttl", cfg.Cache.RuleSetTTL.String())

	// Initialize Scorer
	scorer := scoring.NewScorer(repo, velocitySvc, ruleStore, engine, busImpl)
	slog.Info("scorer initialized")

	// Initialize Chargeback Analyzer
	analyzer := chargeback.NewAnalyzer(repo)
	slog.Info("chargeback analyzer initialized")

	// Seed demo dataset (standalone tier, empty store only)
	if err := seed.New(repo, ruleStore).Run(ctx, cfg.Seed); err != nil {
		slog.Error("failed to seed demo dataset", "error", err)
		os.Exit(1)
	}

	// Initialize async chargeback ingest worker
	ingestWorker := worker.NewWorker(busImpl, analyzer)
	if err := ingestWorker.Start(); err != nil {
		slog.Error("failed to start ingest worker", "error", err)
	} else {
		slog.Info("ingest worker started", "topic", domain.TopicChargebackReceived)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, scorer, analyzer, ruleStore, repo, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("riskd is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop ingest worker first so in-flight chargebacks land in the ledger
	if err := ingestWorker.Stop(); err != nil {
		slog.Error("failed to stop ingest worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("riskd shutdown complete")
}

// applyEnvOverrides adjusts the tier defaults from RISKD_* environment
// variables so containers can point at their own backing services without
// a config file.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("RISKD_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("RISKD_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		} else {
			slog.Warn("ignoring invalid RISKD_PORT", "value", v)
		}
	}
	if v := os.Getenv("RISKD_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("RISKD_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("RISKD_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Repository.PostgresPort = port
		}
	}
	if v := os.Getenv("RISKD_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("RISKD_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("RISKD_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}
	if v := os.Getenv("RISKD_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("RISKD_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("RISKD_SEED"); v != "" {
		cfg.Seed.Enabled = v == "true"
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🛡  RISKD                    ║")
	fmt.Println("  ║    Payment Fraud Risk Scoring Engine      ║")
	fmt.Println("  ║    Every order scored before it ships.    ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /api/v1/transactions/score       - Score a transaction")
	fmt.Println("    POST /api/v1/transactions/batch-score - Score up to 500 transactions")
	fmt.Println("    GET  /api/v1/transactions/{id}        - Get a scored transaction")
	fmt.Println("    GET  /api/v1/rules                    - List scoring rules")
	fmt.Println("    POST /api/v1/rules                    - Create a scoring rule")
	fmt.Println("    GET  /api/v1/rules/{id}               - Get a rule by ID")
	fmt.Println("    GET  /api/v1/chargebacks/analysis     - Chargeback analysis report")
	fmt.Println("    POST /api/v1/chargebacks              - Record a chargeback")
	fmt.Println("    GET  /health                          - Health check")
	fmt.Println("    GET  /ready                           - Readiness check")
	fmt.Println("    GET  /metrics                         - Prometheus metrics")
	fmt.Println()
}
