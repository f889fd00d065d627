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

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/genome/cache"
	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/genome/handler"
	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/genome/service"
	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/genome/store"
	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/genome/validator"
	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/router"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/genome-search/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	instanceID := instanceName()
	slog.Info("starting genome api", "port", cfg.Server.Port, "instance", instanceID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	genomeStore := store.New(db)
	if cfg.Genome.EnsureSchemaOnBoot {
		if err := genomeStore.EnsureSchema(ctx); err != nil {
			slog.Error("failed to ensure genome schema", "error", err)
			os.Exit(1)
		}
	}
	slog.Info("genome store ready", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)

	var (
		redisClient *pkgredis.Client
		resultCache *cache.ResultCache
		limiter     middleware.Limiter
	)
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, result caching disabled", "error", err)
			redisClient = nil
		}
	}
	if redisClient != nil {
		defer redisClient.Close()
		resultCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
		limiter = ratelimit.NewRedis(redisClient, cfg.RateLimit.Window)
		slog.Info("result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	} else {
		limiter = ratelimit.New(ctx, cfg.RateLimit.Window)
	}

	deps := service.Deps{
		Store:   genomeStore,
		Cache:   resultCache,
		Metrics: m,
	}

	aggregator := analytics.NewAggregator()
	var consumers []*kafka.Consumer
	if cfg.Kafka.Enabled {
		uploads := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.GenomeUploaded)
		defer uploads.Close()
		deps.Events = uploads

		if resultCache != nil {
			// every replica holds its own view of ScopeAll, so each one
			// needs its own group
			consumers = append(consumers, kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.GenomeUploaded,
				"genome-search-cache-"+instanceID, resultCache.HandleGenomeUploaded))
		}

		if cfg.Analytics.Enabled {
			analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
			defer analyticsProducer.Close()
			collector := analytics.NewCollector(analyticsProducer, cfg.Analytics.BufferSize)
			collector.Start(ctx)
			defer collector.Close()
			deps.Tracker = collector

			consumers = append(consumers, kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents,
				"genome-search-stats-"+instanceID, aggregator.Handle))
			slog.Info("analytics collector started", "topic", cfg.Kafka.Topics.AnalyticsEvents)
		}
	} else if cfg.Analytics.Enabled {
		deps.Tracker = aggregator
		slog.Info("kafka disabled, analytics aggregated in process")
	}
	for _, c := range consumers {
		go func() {
			if err := c.Start(ctx); err != nil {
				slog.Error("kafka consumer error", "error", err)
			}
		}()
	}

	svc := service.New(service.Config{
		Limits: validator.Limits{
			MaxFileNameLength: cfg.Genome.MaxFileNameLength,
			MaxBodyBytes:      cfg.Genome.MaxUploadBytes,
		},
		MaxQueryLength:       cfg.Genome.MaxQueryLength,
		MaxConcurrentGenomes: cfg.Search.MaxConcurrentGenomes,
		SearchTimeout:        cfg.Search.Timeout,
	}, deps)

	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck(db.Ping, true))
	checker.Register("genomes", func(ctx context.Context) health.ComponentHealth {
		n, err := genomeStore.Count(ctx)
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d genomes stored", n)}
	})
	if cfg.Redis.Enabled {
		var ping func(context.Context) error
		if redisClient != nil {
			ping = redisClient.Ping
		}
		checker.Register("redis", health.PingCheck(ping, false))
	}

	routes := router.Deps{
		Genomes: handler.New(svc, resultCache, cfg.Genome.MaxUploadBytes),
		Health:  checker,
		Metrics: m,
		Limiter: limiter,
	}
	if cfg.Analytics.Enabled {
		routes.Analytics = analytics.NewHandler(aggregator)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router.New(cfg, routes),
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

	slog.Info("genome api listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("genome api stopped")
}

// instanceName identifies this process in per-replica consumer groups.
func instanceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "genomeapi"
	}
	return host + "-" + uuid.NewString()[:8]
}
