// Package app builds the application's dependency graph and runs the
// HTTP server until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/feedwise/feedwise/internal/api"
	"github.com/feedwise/feedwise/internal/config"
	"github.com/feedwise/feedwise/internal/discovery"
	"github.com/feedwise/feedwise/internal/enrich"
	"github.com/feedwise/feedwise/internal/llm"
	"github.com/feedwise/feedwise/internal/logging"
	"github.com/feedwise/feedwise/internal/metrics"
	"github.com/feedwise/feedwise/internal/pipeline"
	"github.com/feedwise/feedwise/internal/scoring"
	"github.com/feedwise/feedwise/internal/scrape"
	"github.com/feedwise/feedwise/internal/store/postgres"
)

// App holds the application's long-lived dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	server *api.Server
	store  *postgres.Store
}

// Build creates the full dependency graph from configuration. It fails
// fast when a critical dependency (the database) is unavailable.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	pg, err := postgres.New(ctx, cfg.DB, logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("store init failed: %w", err)
	}

	httpClient := &http.Client{}

	aggregator := discovery.NewAggregator(
		cfg.Pipeline.MaxCandidates,
		logger.Named("discovery"),
		discovery.NewNewsAPISource(cfg.NewsAPI, httpClient, logger.Named("newsapi")),
		discovery.NewRSSSource(cfg.Feeds, httpClient, logger.Named("rss")),
	)

	llmClient := llm.New(cfg.LLM, httpClient, logger.Named("llm"))
	scorer := scoring.NewScorer(llmClient, cfg.Pipeline.ScoreBatchSize, logger.Named("scoring"))
	scraper := scrape.New(cfg.Scraper, httpClient, logger.Named("scrape"))
	enricher := enrich.New(scraper, llmClient, pg, logger.Named("enrich"))

	pipe := pipeline.New(cfg.Pipeline, pg, pg, aggregator, scorer, enricher, logger.Named("pipeline"))
	server := api.NewServer(pipe, pg, pg, pg, cfg, logger.Named("api"))

	return &App{
		cfg:    cfg,
		logger: logger,
		server: server,
		store:  pg,
	}, nil
}

// Run starts the HTTP server and blocks until the context is canceled
// or a termination signal arrives, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	a.Close()
	return nil
}

// Close releases held resources.
func (a *App) Close() {
	a.store.Close()
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
}
