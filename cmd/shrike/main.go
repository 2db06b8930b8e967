// Shrike - Recognition abuse detection for peer-kudos platforms.
// Copyright (c) 2025 kudoshq
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kudoshq/shrike/internal/activity"
	"github.com/kudoshq/shrike/internal/api"
	"github.com/kudoshq/shrike/internal/audit"
	"github.com/kudoshq/shrike/internal/bus"
	"github.com/kudoshq/shrike/internal/cache"
	"github.com/kudoshq/shrike/internal/detect"
	"github.com/kudoshq/shrike/internal/domain"
	"github.com/kudoshq/shrike/internal/repository"
	"github.com/kudoshq/shrike/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("SHRIKE_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting shrike",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("SHRIKE_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}
	cfg.AuditHashKey = os.Getenv("SHRIKE_AUDIT_HASH_KEY")

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
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

	// Initialize Activity Service (windowed counts over repo + cache)
	activitySvc := activity.NewService(repo, cacheImpl, cfg.Detection)
	slog.Info("activity service initialized")

	// Initialize custom Rule Set
	ruleSet, err := detect.NewRuleSet()
	if err != nil {
		slog.Error("failed to initialize rule set", "error", err)
		os.Exit(1)
	}

	// Load rules from database (no hardcoded defaults - configure via API)
	if err := loadRulesFromDatabase(ctx, repo, ruleSet); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule set initialized", "rules_count", ruleSet.Len())

	// Initialize audit Sink
	hasher := audit.NewHasher(cfg.AuditHashKey)
	sink := audit.NewSink(repo, busImpl, hasher)
	slog.Info("audit sink initialized", "keyed_hashing", cfg.AuditHashKey != "")

	// Initialize Detection Engine
	engine := detect.NewEngine(cfg.Detection, activitySvc, sink, ruleSet)
	slog.Info("detection engine initialized",
		"daily_limit", cfg.Detection.DailyLimit,
		"weekly_limit", cfg.Detection.WeeklyLimit,
		"reciprocity_threshold", cfg.Detection.ReciprocityThreshold,
	)

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("SHRIKE_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, engine, activitySvc)

		// Get tenant IDs to process (from environment or default)
		tenantIDs := []string{}
		if envTenants := os.Getenv("SHRIKE_TENANTS"); envTenants != "" {
			for _, t := range strings.Split(envTenants, ",") {
				if t = strings.TrimSpace(t); t != "" {
					tenantIDs = append(tenantIDs, t)
				}
			}
		}

		workerCfg := worker.Config{
			TenantIDs: tenantIDs,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, ruleSet, activitySvc, sink, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("shrike is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Let in-flight flag and audit writes land before closing the stores.
	engine.Drain()

	slog.Info("shrike shutdown complete")
}

// loadRulesFromDatabase loads custom rules from the database into the rule set.
// All rules must be configured via POST /rules API - no hardcoded defaults.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, ruleSet *detect.RuleSet) error {
	dbRules, err := repo.ListRules(ctx, api.GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading rules from database", "count", len(dbRules))
		return ruleSet.Reload(dbRules)
	}

	slog.Info("no rules in database - configure via POST /rules API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               SHRIKE                      ║")
	fmt.Println("  ║    Recognition Abuse Detection Engine     ║")
	fmt.Println("  ║      Keep kudos worth something.          ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST  /recognitions            - Submit a recognition for evaluation")
	fmt.Println("    GET   /recognitions/{id}       - Get recognition by ID")
	fmt.Println("    GET   /recognitions/{id}/flags - Get flags for a recognition")
	fmt.Println("    GET   /flags                   - Moderation queue by status")
	fmt.Println("    PATCH /flags/{id}              - Update flag status")
	fmt.Println("    GET   /leaderboard             - Recipient ranking")
	fmt.Println("    GET   /audit                   - Recent audit entries")
	fmt.Println("    GET   /rules                   - List custom rules")
	fmt.Println("    POST  /rules                   - Create a custom rule")
	fmt.Println("    POST  /rules/reload            - Hot-reload rules from database")
	fmt.Println("    GET   /health                  - Health check")
	fmt.Println()
}
