package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/trogers1052/stock-index-service/internal/cache"
	"github.com/trogers1052/stock-index-service/internal/database"
	"github.com/trogers1052/stock-index-service/internal/models"
)

// Reader is the slice of the database layer the read service queries.
type Reader interface {
	GetIndexComposition(date time.Time) ([]*models.IndexConstituent, error)
	GetIndexPerformance(startDate, endDate time.Time) ([]*models.IndexPerformance, error)
	GetCompositionChanges(startDate, endDate time.Time) ([]*models.CompositionChange, error)
}

// Service answers read queries over built index data, caching results in
// Redis for an hour. Cache trouble is logged and the database answers.
type Service struct {
	db     Reader
	cache  *cache.Cache
	logger *slog.Logger
}

// NewService creates the index read service. cache may be nil.
func NewService(db *database.DB, c *cache.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{db: db, cache: c, logger: logger}
}

// GetIndexComposition returns the composition stored for a date. A date with
// no composition yields database.ErrNotFound.
func (s *Service) GetIndexComposition(ctx context.Context, date time.Time) (*models.IndexCompositionResult, error) {
	key := cache.CompositionKey(date.Format(models.DateFormat))

	var cached models.IndexCompositionResult
	if s.readCache(ctx, key, &cached) {
		return &cached, nil
	}

	stocks, err := s.db.GetIndexComposition(date)
	if err != nil {
		return nil, err
	}

	result := &models.IndexCompositionResult{
		Date:        date.Format(models.DateFormat),
		TotalStocks: len(stocks),
		EqualWeight: 1.0 / float64(len(stocks)),
		Stocks:      stocks,
	}
	s.writeCache(ctx, key, result)
	return result, nil
}

// GetIndexPerformance returns the stored performance series for a range. An
// empty range yields database.ErrNotFound.
func (s *Service) GetIndexPerformance(ctx context.Context, startDate, endDate time.Time) (*models.IndexPerformanceResult, error) {
	start := startDate.Format(models.DateFormat)
	end := endDate.Format(models.DateFormat)
	key := cache.PerformanceKey(start, end)

	var cached models.IndexPerformanceResult
	if s.readCache(ctx, key, &cached) {
		return &cached, nil
	}

	series, err := s.db.GetIndexPerformance(startDate, endDate)
	if err != nil {
		return nil, err
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("no index performance found for %s to %s: %w", start, end, database.ErrNotFound)
	}

	result := &models.IndexPerformanceResult{
		StartDate:    start,
		EndDate:      end,
		TotalReturn:  series[len(series)-1].CumulativeReturn,
		DailyReturns: series,
	}
	s.writeCache(ctx, key, result)
	return result, nil
}

// GetCompositionChanges returns entries and exits detected in a range. No
// changes is a valid empty result, not an error.
func (s *Service) GetCompositionChanges(ctx context.Context, startDate, endDate time.Time) (*models.CompositionChangesResult, error) {
	start := startDate.Format(models.DateFormat)
	end := endDate.Format(models.DateFormat)
	key := cache.ChangesKey(start, end)

	var cached models.CompositionChangesResult
	if s.readCache(ctx, key, &cached) {
		return &cached, nil
	}

	changes, err := s.db.GetCompositionChanges(startDate, endDate)
	if err != nil {
		return nil, err
	}

	result := &models.CompositionChangesResult{
		StartDate:    start,
		EndDate:      end,
		TotalChanges: len(changes),
		Changes:      changes,
	}
	s.writeCache(ctx, key, result)
	return result, nil
}

func (s *Service) readCache(ctx context.Context, key string, dest interface{}) bool {
	found, err := s.cache.GetJSON(ctx, key, dest)
	if err != nil {
		s.logger.Warn("cache read failed", "key", key, "error", err)
		return false
	}
	if found {
		s.logger.Debug("cache hit", "key", key)
	}
	return found
}

func (s *Service) writeCache(ctx context.Context, key string, value interface{}) {
	if err := s.cache.SetJSON(ctx, key, value, cache.DefaultTTL); err != nil {
		s.logger.Warn("cache write failed", "key", key, "error", err)
	}
}
