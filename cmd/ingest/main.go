// Package main runs an ingestion sweep from the command line, optionally
// rebuilding the index afterwards.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trogers1052/stock-index-service/internal/cache"
	"github.com/trogers1052/stock-index-service/internal/config"
	"github.com/trogers1052/stock-index-service/internal/database"
	"github.com/trogers1052/stock-index-service/internal/index"
	"github.com/trogers1052/stock-index-service/internal/ingest"
	"github.com/trogers1052/stock-index-service/internal/kafka"
	"github.com/trogers1052/stock-index-service/internal/models"
	"github.com/trogers1052/stock-index-service/internal/retry"
	"github.com/trogers1052/stock-index-service/internal/sources"
)

func main() {
	symbolsFlag := flag.String("symbols", "", "comma-separated symbols, defaults to SYMBOLS from the environment")
	startFlag := flag.String("start", "", "start date YYYY-MM-DD, defaults to today")
	endFlag := flag.String("end", "", "end date YYYY-MM-DD, defaults to today")
	buildIndexFlag := flag.Bool("build-index", false, "rebuild the index for the range after ingesting")
	topNFlag := flag.Int("top-n", 0, "index size when rebuilding, defaults to TOP_N_DEFAULT")
	flag.Parse()

	cfg := config.Load()

	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if cfg.Sources.AlphaVantageAPIKey == "" {
		logger.Error("ALPHA_VANTAGE_API_KEY is not set")
		os.Exit(1)
	}

	symbols := config.ParseSymbols(*symbolsFlag)
	if len(symbols) == 0 {
		symbols = cfg.Index.Symbols
	}
	if len(symbols) == 0 {
		logger.Error("no symbols to ingest, pass -symbols or set SYMBOLS")
		os.Exit(1)
	}

	startDate, endDate, err := parseRange(*startFlag, *endFlag)
	if err != nil {
		logger.Error("invalid date range", "error", err)
		os.Exit(1)
	}

	// Cancel the sweep on SIGINT/SIGTERM; attempted pairs are committed.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var producer *kafka.Producer
	var ingestPublisher ingest.EventPublisher
	var rebuildPublisher index.EventPublisher
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		ingestPublisher = producer
		rebuildPublisher = producer
	}

	coordinator := sources.NewCoordinator(
		sources.NewAlphaVantageSource(cfg.Sources.AlphaVantageAPIKey, cfg.Sources.AlphaVantageBaseURL, cfg.Sources.Timeout, logger),
		sources.NewYahooSource(cfg.Sources.YahooBaseURL, cfg.Sources.Timeout, logger),
		retry.Config{
			MaxAttempts:   cfg.Retry.MaxAttempts,
			InitialDelay:  cfg.Retry.InitialDelay,
			BackoffFactor: cfg.Retry.BackoffFactor,
			Jitter:        cfg.Retry.Jitter,
		},
		logger,
	)
	orchestrator := ingest.New(db, coordinator, ingestPublisher, logger)

	summary, err := orchestrator.Ingest(ctx, symbols, startDate, endDate)
	if summary != nil {
		logger.Info("ingestion summary",
			"symbols", summary.TotalSymbols,
			"pairs", summary.TotalDates,
			"successes", summary.Successes,
			"failures", summary.Failures,
			"success_rate", summary.SuccessRate)
	}
	if err != nil {
		logger.Error("ingestion failed", "error", err)
		os.Exit(1)
	}

	if !*buildIndexFlag {
		return
	}

	// Rebuild through the cache so stale read results are invalidated.
	c, err := cache.New(cfg.Redis)
	if err != nil {
		logger.Warn("cache unavailable, rebuilt dates will not be invalidated", "error", err)
		c = nil
	} else {
		defer c.Close()
	}

	topN := *topNFlag
	if topN <= 0 {
		topN = cfg.Index.TopNDefault
	}

	builder := index.NewBuilder(db, c, rebuildPublisher, logger)
	result, err := builder.BuildIndex(ctx, startDate, endDate, topN)
	if err != nil {
		logger.Error("index build failed", "error", err)
		os.Exit(1)
	}
	logger.Info("index build summary",
		"date_range", result.DateRange,
		"dates_processed", result.TotalDatesProcessed,
		"compositions_built", result.TotalCompositionsBuilt,
		"top_n", result.TopN)
}

// parseRange resolves the start and end flags. Either flag left empty
// means today, so a bare run sweeps today and `-start` alone backfills
// from that date through today.
func parseRange(start, end string) (time.Time, time.Time, error) {
	today := time.Now().UTC().Truncate(24 * time.Hour)

	startDate := today
	if start != "" {
		var err error
		startDate, err = time.Parse(models.DateFormat, start)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}

	endDate := today
	if end != "" {
		var err error
		endDate, err = time.Parse(models.DateFormat, end)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return startDate, endDate, nil
}
