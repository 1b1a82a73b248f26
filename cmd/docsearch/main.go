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
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/extract"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion/dbwalk"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	searchhandler "github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	instanceID := uuid.NewString()
	slog.Info("starting docsearch",
		"port", cfg.Server.Port,
		"index_dir", cfg.Index.Dir,
		"commit_policy", cfg.Index.CommitPolicy,
		"instance_id", instanceID,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled && cfg.Metrics.Port != cfg.Server.Port {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	st, err := store.Open(cfg.Index.Dir, store.Options{
		Analyzer: tokenizer.Config{
			StopWords: cfg.Index.StopWords,
			Stemmer:   cfg.Index.Stemmer,
		},
		SegmentMaxSize:         cfg.Index.SegmentMaxSize,
		MaxSegmentsBeforeMerge: cfg.Index.MaxSegmentsBeforeMerge,
	})
	if err != nil {
		slog.Error("failed to open index", "dir", cfg.Index.Dir, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	engine := indexer.NewEngine(st, cfg.Index, m)

	var queryCache *cache.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis, cache.Namespace)
		if err != nil {
			slog.Warn("redis unavailable, using local cache only", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}
	queryCache, err = cache.New(redisClient, cfg.Search.CacheSize, cfg.Redis.CacheTTL)
	if err != nil {
		slog.Error("failed to create query cache", "error", err)
		os.Exit(1)
	}

	aggregator := analytics.NewAggregator()
	var analyticsPublisher analytics.Publisher
	if cfg.Kafka.Enabled {
		commitProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer commitProducer.Close()
		engine.OnCommit(indexer.PublishHook(commitProducer, instanceID, 5*time.Second))

		// Every replica needs every commit event, so each gets its own group.
		consumerCfg := cfg.Kafka
		consumerCfg.ConsumerGroup = fmt.Sprintf("%s-%s", cfg.Kafka.ConsumerGroup, instanceID)
		commits := consumer.New(kafka.NewConsumer(consumerCfg, cfg.Kafka.Topics.IndexComplete,
			consumer.HandleCommit(instanceID, func(ctx context.Context, event indexer.CommitEvent) {
				queryCache.PurgeLocal()
			}),
		))
		go func() {
			if err := commits.Start(ctx); err != nil {
				slog.Error("commit consumer stopped", "error", err)
			}
		}()

		analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer analyticsProducer.Close()
		analyticsPublisher = analyticsProducer

		// Fold in the other replicas' events so /analytics is cluster-wide.
		remote := kafka.NewConsumer(consumerCfg, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(aggregator, instanceID))
		go func() {
			if err := remote.Start(ctx); err != nil {
				slog.Error("analytics consumer stopped", "error", err)
			}
		}()
	}
	engine.OnCommit(func(ctx context.Context, event indexer.CommitEvent) {
		queryCache.PurgeLocal()
	})
	collector := analytics.NewCollector(analyticsPublisher, aggregator, 10000).WithOrigin(instanceID)
	collector.Start(ctx)
	defer collector.Close()

	walker, err := dbwalk.Open(ctx, cfg.Database, cfg.Postgres)
	if err != nil {
		slog.Warn("database source unavailable, /index_db disabled", "driver", cfg.Database.Driver, "error", err)
		walker = nil
	}
	var dbSource ingesthandler.DatabaseSource
	if walker != nil {
		defer walker.Close()
		dbSource = walker
	}

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		gen, err := st.LatestGeneration()
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("generation %d", gen)}
	})
	if redisClient != nil {
		checker.Register("redis", health.OptionalCheck(health.PingCheck(redisClient.Ping)))
	}
	if walker != nil {
		checker.Register("database", health.OptionalCheck(health.PingCheck(walker.Ping)))
	}

	registry := extract.NewRegistry(cfg.Ingest.MaxFileBytes)
	ingestH := ingesthandler.New(engine, registry, dbSource, collector, cfg.Ingest.MaxUploadBytes)
	searchH := searchhandler.New(
		parser.New(st.Analyzer()),
		executor.New(st, cfg.Search.DefaultLimit, cfg.Search.MaxResults),
		st,
		queryCache,
		collector,
		m,
		searchhandler.Options{
			DefaultField: cfg.Search.DefaultField,
			DefaultLimit: cfg.Search.DefaultLimit,
			MaxResults:   cfg.Search.MaxResults,
		},
	)
	limiter := newLimiter(cfg.Server)
	if limiter != nil {
		go limiter.RunCleanup(ctx, 5*time.Minute)
	}
	handler := routes(cfg, handlers{
		ingest:    ingestH,
		search:    searchH,
		analytics: analytics.NewHandler(aggregator),
		health:    checker,
		metrics:   m,
		limiter:   limiter,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("docsearch listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-shutdownDone
	slog.Info("docsearch stopped")
}
