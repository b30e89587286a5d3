// Package main wires together the sitedigest service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitedigest/internal/api"
	"github.com/JakeFAU/sitedigest/internal/clock/system"
	"github.com/JakeFAU/sitedigest/internal/config"
	"github.com/JakeFAU/sitedigest/internal/dispatcher"
	"github.com/JakeFAU/sitedigest/internal/engine"
	collyfetcher "github.com/JakeFAU/sitedigest/internal/fetcher/colly"
	"github.com/JakeFAU/sitedigest/internal/id/uuid"
	"github.com/JakeFAU/sitedigest/internal/logging"
	"github.com/JakeFAU/sitedigest/internal/metrics"
	memoryPublisher "github.com/JakeFAU/sitedigest/internal/publisher/memory"
	pubsubPublisher "github.com/JakeFAU/sitedigest/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/sitedigest/internal/queue/memory"
	"github.com/JakeFAU/sitedigest/internal/ratelimit"
	"github.com/JakeFAU/sitedigest/internal/scraper"
	gcsSink "github.com/JakeFAU/sitedigest/internal/sink/gcs"
	localSink "github.com/JakeFAU/sitedigest/internal/sink/local"
	memorySink "github.com/JakeFAU/sitedigest/internal/sink/memory"
	anthropicSummarizer "github.com/JakeFAU/sitedigest/internal/summarizer/anthropic"
	memoryStorage "github.com/JakeFAU/sitedigest/internal/storage/memory"
	postgresStorage "github.com/JakeFAU/sitedigest/internal/storage/postgres"
	"github.com/JakeFAU/sitedigest/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	clock := system.New()
	idGen := uuid.New()

	jobStore, closeStore, err := buildJobStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	sink, err := buildSink(ctx, cfg, logger)
	if err != nil {
		return err
	}

	publisher, closePublisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePublisher()

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Scraper.RequestsPerSec,
		DefaultBurst: 1,
	})
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Scraper.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	}, limiter, logger.Named("fetcher"))

	summarizer, err := anthropicSummarizer.New(anthropicSummarizer.Config{
		APIKey:      cfg.Summarizer.APIKey,
		Model:       cfg.Summarizer.Model,
		MaxTokens:   cfg.Summarizer.MaxTokens,
		Temperature: cfg.Summarizer.Temperature,
		Timeout:     time.Duration(cfg.Summarizer.TimeoutSec) * time.Second,
	}, logger.Named("summarizer"))
	if err != nil {
		return err
	}

	filter := scraper.NewURLFilter(cfg.Scraper.ExcludedPatterns, cfg.Scraper.ExcludedExts)
	stepCfg := engine.StepConfig{
		URLLimit:    cfg.Scraper.URLLimit,
		BatchSize:   cfg.Scraper.BatchLimit,
		CallTimeout: cfg.StepTimeout(),
	}
	executors := []engine.Executor{
		engine.NewDiscoveryStep(fetcher, filter, stepCfg, logger.Named("discovery")),
		engine.NewRetrievalStep(fetcher, clock, stepCfg, logger.Named("retrieval")),
		engine.NewTransformationStep(summarizer, clock, stepCfg, logger.Named("transformation")),
		engine.NewPersistenceStep(sink, stepCfg, logger.Named("persistence")),
	}
	eng := engine.New(executors, engine.NewRetryPolicy(cfg.Scraper.MaxRetries), clock, logger.Named("engine"))

	queue := queueMemory.NewQueue(cfg.Scraper.QueueDepth)
	workerCfg := worker.Config{Topic: cfg.PubSub.TopicName}
	var workers []*worker.Worker
	for i := 0; i < cfg.Scraper.Workers; i++ {
		workers = append(workers, worker.New(
			queue,
			jobStore,
			eng,
			publisher,
			clock,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, workers)

	apiServer := api.NewServer(jobStore, dispatch, eng, idGen, clock, api.Config{
		AuthEnabled:    cfg.Auth.Enabled,
		APIKey:         cfg.Auth.APIKey,
		RequestTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		SyncTimeout:    time.Duration(cfg.Server.SyncTimeoutSec) * time.Second,
	}, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", cfg.Scraper.Workers))
		dispatch.Run(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
	return nil
}

func buildJobStore(ctx context.Context, cfg config.Config) (scraper.JobStore, func(), error) {
	switch cfg.DB.Provider {
	case "postgres":
		store, err := postgresStorage.NewJobStore(ctx, postgresStorage.JobStoreConfig{
			DSN:             cfg.DB.DSN,
			Table:           cfg.DB.Table,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: time.Duration(cfg.DB.MaxConnLifetime) * time.Second,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("postgres job store: %w", err)
		}
		return store, store.Close, nil
	default:
		return memoryStorage.NewJobStore(), func() {}, nil
	}
}

func buildSink(ctx context.Context, cfg config.Config, logger *zap.Logger) (scraper.ResultSink, error) {
	switch cfg.Storage.Provider {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		sink, err := gcsSink.New(client, gcsSink.Config{
			Bucket: cfg.Storage.GCSBucket,
			Prefix: cfg.Storage.Prefix,
		}, logger.Named("sink"))
		if err != nil {
			return nil, fmt.Errorf("gcs sink: %w", err)
		}
		return sink, nil
	case "memory":
		return memorySink.New(), nil
	default:
		sink, err := localSink.New(cfg.Storage.LocalDir, logger.Named("sink"))
		if err != nil {
			return nil, fmt.Errorf("local sink: %w", err)
		}
		return sink, nil
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (scraper.Publisher, func(), error) {
	if !cfg.PubSub.Enabled {
		return memoryPublisher.New(), func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	pub := pubsubPublisher.New(client)
	return pub, pub.Close, nil
}
