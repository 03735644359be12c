// Package main runs the stock index HTTP service.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trogers1052/stock-index-service/internal/api"
	"github.com/trogers1052/stock-index-service/internal/cache"
	"github.com/trogers1052/stock-index-service/internal/config"
	"github.com/trogers1052/stock-index-service/internal/database"
	"github.com/trogers1052/stock-index-service/internal/export"
	"github.com/trogers1052/stock-index-service/internal/index"
	"github.com/trogers1052/stock-index-service/internal/ingest"
	"github.com/trogers1052/stock-index-service/internal/kafka"
	"github.com/trogers1052/stock-index-service/internal/retry"
	"github.com/trogers1052/stock-index-service/internal/sources"
)

func main() {
	cfg := config.Load()
	logger := newLogger()
	slog.SetDefault(logger)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to the database
	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	logger.Info("database connected", "host", cfg.Database.Host, "name", cfg.Database.DBName)

	// The cache is optional. Every cache method accepts a nil receiver, so
	// a missing Redis only costs read performance.
	c, err := cache.New(cfg.Redis)
	if err != nil {
		logger.Warn("cache unavailable, continuing without it", "error", err)
		c = nil
	} else {
		defer c.Close()
		logger.Info("cache connected", "addr", cfg.Redis.Addr)
	}

	// Kafka is optional as well. Leave the publisher interfaces nil when
	// disabled rather than wrapping a nil producer.
	var producer *kafka.Producer
	var ingestPublisher ingest.EventPublisher
	var rebuildPublisher index.EventPublisher
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		ingestPublisher = producer
		rebuildPublisher = producer
		logger.Info("kafka producer ready", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	// Wire the ingestion pipeline
	if cfg.Sources.AlphaVantageAPIKey == "" {
		logger.Warn("ALPHA_VANTAGE_API_KEY is not set, primary source fetches will fail")
	}
	coordinator := sources.NewCoordinator(
		sources.NewAlphaVantageSource(cfg.Sources.AlphaVantageAPIKey, cfg.Sources.AlphaVantageBaseURL, cfg.Sources.Timeout, logger),
		sources.NewYahooSource(cfg.Sources.YahooBaseURL, cfg.Sources.Timeout, logger),
		retryConfig(cfg.Retry),
		logger,
	)
	orchestrator := ingest.New(db, coordinator, ingestPublisher, logger)

	// Wire the index read side
	builder := index.NewBuilder(db, c, rebuildPublisher, logger)
	service := index.NewService(db, c, logger)
	exporter := export.NewExporter(db, cfg.Export.Dir, logger)

	// Consume ingest requests from Kafka when enabled
	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.RequestTopic, cfg.Kafka.GroupID, orchestrator, cfg.Index.Symbols, logger)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				logger.Error("kafka consumer stopped", "error", err)
			}
		}()
	}

	handler := api.NewHandler(api.HandlerDeps{
		Builder:        builder,
		Reader:         service,
		Ingestor:       orchestrator,
		Exporter:       exporter,
		ExportDir:      cfg.Export.Dir,
		DefaultSymbols: cfg.Index.Symbols,
		DefaultTopN:    cfg.Index.TopNDefault,
		Logger:         logger,
	})

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:    addr,
		Handler: api.SetupRoutes(handler),
		// No write timeout: ingest and export requests run until done.
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
	logger.Info("server stopped")
}

// newLogger builds the process logger. LOG_LEVEL=debug enables debug output.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

func retryConfig(cfg config.RetryConfig) retry.Config {
	return retry.Config{
		MaxAttempts:   cfg.MaxAttempts,
		InitialDelay:  cfg.InitialDelay,
		BackoffFactor: cfg.BackoffFactor,
		Jitter:        cfg.Jitter,
	}
}
