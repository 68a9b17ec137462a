package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/andrew/mentor-gateway/internal/agents"
	"github.com/andrew/mentor-gateway/internal/agents/gemini"
	"github.com/andrew/mentor-gateway/internal/agents/groq"
	"github.com/andrew/mentor-gateway/internal/agents/openai"
	"github.com/andrew/mentor-gateway/internal/api"
	"github.com/andrew/mentor-gateway/internal/database/models"
	"github.com/andrew/mentor-gateway/internal/fallback"
	"github.com/andrew/mentor-gateway/internal/logging"
	"github.com/andrew/mentor-gateway/internal/mentor"
	"github.com/andrew/mentor-gateway/internal/metrics"
	"github.com/andrew/mentor-gateway/internal/orchestrator"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default)",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// providerFactories maps config names to adapter constructors
var providerFactories = map[string]agents.Factory{
	"groq":   func(o agents.Options) agents.Provider { return groq.NewProvider(o) },
	"gemini": func(o agents.Options) agents.Provider { return gemini.NewProvider(o) },
	"openai": func(o agents.Options) agents.Provider { return openai.NewProvider(o) },
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	logger := logging.New(cfg.Logging)
	logger.WithFields(log.Fields{
		"address":  cfg.Server.Address(),
		"database": cfg.Database.Path,
	}).Info("Starting mentor gateway")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := agents.NewRegistry(cfg, providerFactories, &http.Client{}, time.Now)
	if err != nil {
		return fmt.Errorf("failed to build provider registry: %w", err)
	}
	for _, p := range registry.All() {
		if !p.Configured() {
			logger.WithField("provider", p.Name()).Warn("Provider has no API key and will be skipped")
		}
	}
	if len(registry.All()) == 0 {
		logger.Warn("No providers enabled; every request will be served from the fallback store")
	} else {
		logger.WithField("order", strings.Join(registry.Names(), ",")).Info("Provider priority order")
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := metrics.NewPrometheusRecorder(promRegistry)
	if err != nil {
		return fmt.Errorf("failed to set up metrics: %w", err)
	}

	orch := orchestrator.New(registry.All(),
		orchestrator.WithLogger(logger),
		orchestrator.WithRecorder(recorder),
		orchestrator.WithUsageLogger(db),
		orchestrator.WithCircuitThreshold(cfg.Orchestrator.CircuitThreshold),
		orchestrator.WithAlertThresholds(cfg.Orchestrator.AlertThresholds),
		orchestrator.WithAlertResetPercent(cfg.Orchestrator.AlertResetPercent),
	)
	orch.OnQuotaAlert(func(alert orchestrator.QuotaAlert) {
		persistCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		record := &models.QuotaAlert{
			Provider:    alert.Provider,
			Threshold:   alert.Threshold,
			PercentUsed: alert.PercentUsed,
			CreatedAt:   alert.At,
		}
		if err := db.CreateQuotaAlert(persistCtx, record); err != nil {
			logger.WithError(err).Error("Failed to persist quota alert")
		}
	})

	if err := orch.SeedUsage(ctx, db); err != nil {
		logger.WithError(err).Warn("Starting with empty quota counters")
	}

	store := fallback.NewStore(db, fallback.Options{
		PrewarmLimit:   cfg.Cache.PrewarmLimit,
		PopularPool:    cfg.Cache.PopularPool,
		SuggestedLimit: cfg.Cache.SuggestedLimit,
		Logger:         logger,
		Recorder:       recorder,
	})
	store.Prewarm(ctx)

	svc := mentor.NewService(orch, store, logger)

	orch.StartHealthChecks(ctx, cfg.Orchestrator.HealthCheckInterval)
	defer orch.StopHealthChecks()

	handler := api.SetupRoutes(ctx, api.Dependencies{
		Config:       cfg,
		DB:           db,
		Orchestrator: orch,
		Store:        store,
		Mentor:       svc,
		Metrics:      recorder.Handler(),
		Logger:       logger,
	})

	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("Server listening on http://%s", cfg.Server.Address())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Server shutting down...")

	orch.StopHealthChecks()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited")
	return nil
}
