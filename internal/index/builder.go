// Package index builds the equal-weighted top-N index from ingested daily
// data and serves cached read queries over the result.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/trogers1052/stock-index-service/internal/cache"
	"github.com/trogers1052/stock-index-service/internal/database"
	"github.com/trogers1052/stock-index-service/internal/models"
)

// ErrNoTradingData reports a build range with no ingested trading dates
var ErrNoTradingData = errors.New("no trading data available")

// Store is the slice of the database layer the builder drives.
type Store interface {
	GetAvailableDates(startDate, endDate time.Time) ([]time.Time, error)
	GetTopStocksByDate(date time.Time, topN int) ([]*models.IndexStock, error)
	ReplaceIndexComposition(date time.Time, stocks []*models.IndexStock) error
	CalculateIndexPerformance(startDate, endDate time.Time) ([]*models.IndexPerformance, error)
	DetectCompositionChanges(startDate, endDate time.Time) ([]*models.CompositionChange, error)
}

// EventPublisher announces completed rebuilds.
type EventPublisher interface {
	PublishIndexRebuilt(ctx context.Context, event *models.IndexEvent) error
}

// Builder rebuilds index compositions, performance, and composition changes
// for a date range.
type Builder struct {
	store    Store
	cache    *cache.Cache
	producer EventPublisher
	logger   *slog.Logger
}

// NewBuilder creates an index builder. cache and producer may be nil.
func NewBuilder(db *database.DB, c *cache.Cache, producer EventPublisher, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{store: db, cache: c, producer: producer, logger: logger}
}

// BuildIndex selects the top-N stocks by market cap for every trading date
// in the range, replaces the stored compositions, recalculates performance,
// re-detects composition changes, and invalidates the read caches. Dates
// where no stock qualifies are skipped with a warning.
func (b *Builder) BuildIndex(ctx context.Context, startDate, endDate time.Time, topN int) (*models.IndexBuildResult, error) {
	if topN <= 0 {
		return nil, fmt.Errorf("top N must be positive, got %d", topN)
	}
	if endDate.Before(startDate) {
		return nil, fmt.Errorf("start date %s is after end date %s",
			startDate.Format(models.DateFormat), endDate.Format(models.DateFormat))
	}

	start := startDate.Format(models.DateFormat)
	end := endDate.Format(models.DateFormat)

	dates, err := b.store.GetAvailableDates(startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to list trading dates: %w", err)
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("%w for date range %s to %s", ErrNoTradingData, start, end)
	}

	b.logger.Info("building index",
		"start_date", start,
		"end_date", end,
		"trading_dates", len(dates),
		"top_n", topN,
	)

	built := 0
	rebuiltKeys := make([]string, 0, len(dates))
	for _, date := range dates {
		day := date.Format(models.DateFormat)

		stocks, err := b.store.GetTopStocksByDate(date, topN)
		if err != nil {
			return nil, fmt.Errorf("failed to select top stocks for %s: %w", day, err)
		}
		if len(stocks) == 0 {
			b.logger.Warn("no eligible stocks, skipping date", "date", day)
			continue
		}
		if len(stocks) < topN {
			b.logger.Warn("fewer eligible stocks than requested",
				"date", day, "eligible", len(stocks), "top_n", topN)
		}

		if err := b.store.ReplaceIndexComposition(date, stocks); err != nil {
			return nil, fmt.Errorf("failed to store composition for %s: %w", day, err)
		}
		built++
		rebuiltKeys = append(rebuiltKeys, cache.CompositionKey(day))
	}

	performance, err := b.store.CalculateIndexPerformance(startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate index performance: %w", err)
	}

	changes, err := b.store.DetectCompositionChanges(startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to detect composition changes: %w", err)
	}

	b.invalidateCaches(ctx, rebuiltKeys)

	result := &models.IndexBuildResult{
		DateRange:                  fmt.Sprintf("%s to %s", start, end),
		TotalDatesProcessed:        len(dates),
		TotalCompositionsBuilt:     built,
		TotalPerformanceCalculated: len(performance),
		TopN:                       topN,
	}

	b.logger.Info("index build completed",
		"trading_dates", len(dates),
		"compositions_built", built,
		"performance_rows", len(performance),
		"composition_changes", len(changes),
	)

	b.publishRebuilt(ctx, result)
	return result, nil
}

// invalidateCaches drops the rebuilt dates' composition entries and every
// cached range query, since any range may now include rebuilt data.
func (b *Builder) invalidateCaches(ctx context.Context, compositionKeys []string) {
	if err := b.cache.Delete(ctx, compositionKeys...); err != nil {
		b.logger.Warn("failed to invalidate composition cache", "error", err)
	}
	for _, pattern := range []string{"index_performance:*", "composition_changes:*"} {
		if err := b.cache.DeleteByPattern(ctx, pattern); err != nil {
			b.logger.Warn("failed to invalidate cache pattern", "pattern", pattern, "error", err)
		}
	}
}

func (b *Builder) publishRebuilt(ctx context.Context, result *models.IndexBuildResult) {
	if b.producer == nil {
		return
	}
	event := &models.IndexEvent{
		EventType: models.EventIndexRebuilt,
		Result:    result,
		Timestamp: time.Now(),
	}
	if err := b.producer.PublishIndexRebuilt(ctx, event); err != nil {
		b.logger.Warn("failed to publish index rebuilt event", "error", err)
	}
}
