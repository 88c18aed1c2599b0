// Package main runs the pawmatch API: merchant rule authoring and storefront
// product matching for pet profiles.
//
// It is the composition root: configuration, infrastructure (PostgreSQL,
// Redis), caches, billing, the rule engine and both HTTP servers are wired
// here, and torn down in reverse order on shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rafaeljc/pawmatch/internal/api"
	"github.com/rafaeljc/pawmatch/internal/async"
	"github.com/rafaeljc/pawmatch/internal/billing"
	"github.com/rafaeljc/pawmatch/internal/cache"
	"github.com/rafaeljc/pawmatch/internal/config"
	"github.com/rafaeljc/pawmatch/internal/database"
	"github.com/rafaeljc/pawmatch/internal/logger"
	"github.com/rafaeljc/pawmatch/internal/observability"
	"github.com/rafaeljc/pawmatch/internal/ruleengine"
	"github.com/rafaeljc/pawmatch/internal/settings"
	"github.com/rafaeljc/pawmatch/internal/store"
)

const (
	poolMonitorInterval = 15 * time.Second
	shutdownTimeout     = 20 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// -------------------------------------------------------------------------
	// 1. Configuration & logging
	// -------------------------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(&cfg.App)
	slog.SetDefault(log)
	log.Info("starting service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	// -------------------------------------------------------------------------
	// 2. Infrastructure
	// -------------------------------------------------------------------------
	if cfg.Database.MigrateOnStart {
		if err := database.Migrate(cfg.Database.MigrationURL()); err != nil {
			return err
		}
		log.Info("database migrations applied")
	}

	dbPool, err := database.NewPostgresPool(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer dbPool.Close()

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	go database.RunPoolMonitor(monitorCtx, dbPool, poolMonitorInterval)

	redisClient, err := cache.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return err
	}
	sharedCache := cache.NewRedisCache(redisClient, cfg.Cache.KeyPrefix)
	defer sharedCache.Close()

	localSettings, err := cache.NewMemoryCache[settings.Settings](cfg.Cache.L1Capacity, cfg.Cache.L1TTL)
	if err != nil {
		return err
	}
	defer localSettings.Close()

	// -------------------------------------------------------------------------
	// 3. Wiring
	// -------------------------------------------------------------------------
	repo := store.NewPostgresStore(dbPool, cfg.Database.QueryTimeout)

	catalog := billing.NewCatalog(map[billing.Tier]billing.Limits{
		billing.TierFree:       billingLimits(cfg.Billing.Free()),
		billing.TierPro:        billingLimits(cfg.Billing.Pro()),
		billing.TierEnterprise: billingLimits(cfg.Billing.Enterprise()),
	})
	gate := billing.NewGate(log, repo, catalog)
	guard := billing.NewRuleLimitGuard(repo, gate)

	dispatcher := async.NewPool(log, cfg.Dispatch.MaxInFlight, cfg.Dispatch.TaskTimeout)
	engine := ruleengine.New(log, gate, repo, dispatcher)

	settingsSvc := settings.NewService(log, localSettings, sharedCache, repo, cfg.Cache.L2TTL)

	handler := api.NewAPI(log, &cfg.Server, api.Deps{
		Rules:         repo,
		Profiles:      repo,
		Engine:        engine,
		Guard:         guard,
		Usage:         gate,
		Settings:      settingsSvc,
		SettingsStore: repo,
		Shops:         repo,
	})

	// -------------------------------------------------------------------------
	// 4. Servers
	// -------------------------------------------------------------------------
	obsServer := observability.NewServer(log, &cfg.Observability,
		database.NewHealthChecker(dbPool),
		cache.NewHealthChecker(sharedCache),
	)
	obsServer.Start()

	httpServer := api.NewHTTPServer(&cfg.Server, handler.Router)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting api server", slog.String("addr", httpServer.Addr), slog.Bool("tls", cfg.Server.TLSEnabled))

		var err error
		if cfg.Server.TLSEnabled {
			err = httpServer.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server failed: %w", err)
		}
	}()

	// -------------------------------------------------------------------------
	// 5. Graceful shutdown
	// -------------------------------------------------------------------------
	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	obsServer.Drain()
	if serveErr == nil && cfg.Observability.DrainDelay > 0 {
		log.Info("draining before shutdown", slog.Duration("delay", cfg.Observability.DrainDelay))
		time.Sleep(cfg.Observability.DrainDelay)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("api server shutdown failed", slog.String("error", err.Error()))
	}

	// In-flight usage increments must land before the pool closes.
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		log.Warn("side effects still running at shutdown", slog.String("error", err.Error()))
	}

	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("observability server shutdown failed", slog.String("error", err.Error()))
	}

	log.Info("service exited")
	return serveErr
}

func billingLimits(l config.PlanLimits) billing.Limits {
	return billing.Limits{MaxMatches: l.MaxMatches, MaxRules: l.MaxRules}
}
