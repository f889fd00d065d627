// Command analytics starts the standalone analytics aggregation service.
//
// It consumes search and upload events from Kafka, aggregates them in memory
// (search counts per scope, latency percentiles, cache hit rate, zero-match
// rate, top queries and regions), optionally snapshots the aggregate to
// Postgres, and exposes GET /api/v1/analytics for dashboards.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/analytics/snapshot"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/postgres"
)

// main boots the analytics service: a Kafka consumer feeding the aggregator,
// the snapshot loop when Postgres is reachable, health checks and the HTTP
// API. SIGINT/SIGTERM triggers a graceful shutdown.
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	aggregator := analytics.NewAggregator()
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, "", aggregator.Handle)
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("analytics consumer error", "error", err)
		}
	}()
	slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	checker := health.NewChecker()
	checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: "consumer active"}
	})

	if cfg.Analytics.SnapshotInterval > 0 {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, snapshots disabled", "error", err)
		} else {
			defer db.Close()
			snapshots := snapshot.NewStore(db)
			if err := snapshots.EnsureSchema(ctx); err != nil {
				slog.Error("failed to ensure snapshot schema", "error", err)
				os.Exit(1)
			}
			if last, err := snapshots.Latest(ctx); err != nil {
				slog.Warn("could not read last snapshot", "error", err)
			} else if last != nil {
				slog.Info("previous snapshot found",
					"total_searches", last.TotalSearches,
					"total_uploads", last.TotalUploads,
				)
			}
			checker.Register("postgres", health.PingCheck(db.Ping, false))

			done := make(chan struct{})
			go func() {
				defer close(done)
				snapshots.Run(ctx, aggregator, cfg.Analytics.SnapshotInterval)
			}()
			// wait for the final snapshot before the pool closes
			defer func() { <-done }()
		}
	}

	analyticsHandler := analytics.NewHandler(aggregator)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.AccessLog(chain)
	chain = middleware.Tracing(cfg.Tracing.Enabled)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}
