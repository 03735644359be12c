package index

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogers1052/stock-index-service/internal/cache"
	"github.com/trogers1052/stock-index-service/internal/database"
	"github.com/trogers1052/stock-index-service/internal/models"
)

type fakeReader struct {
	compositions     map[string][]*models.IndexConstituent
	performance      []*models.IndexPerformance
	changes          []*models.CompositionChange
	compositionCalls int
	performanceCalls int
	changesCalls     int
}

func (f *fakeReader) GetIndexComposition(date time.Time) ([]*models.IndexConstituent, error) {
	f.compositionCalls++
	day := date.Format(models.DateFormat)
	stocks, ok := f.compositions[day]
	if !ok {
		return nil, fmt.Errorf("no composition found for %s: %w", day, database.ErrNotFound)
	}
	return stocks, nil
}

func (f *fakeReader) GetIndexPerformance(startDate, endDate time.Time) ([]*models.IndexPerformance, error) {
	f.performanceCalls++
	return f.performance, nil
}

func (f *fakeReader) GetCompositionChanges(startDate, endDate time.Time) ([]*models.CompositionChange, error) {
	f.changesCalls++
	return f.changes, nil
}

func testConstituents() []*models.IndexConstituent {
	return []*models.IndexConstituent{
		{Symbol: "AAPL", Weight: 0.5, MarketCap: decimal.NewFromInt(3800000000000), Rank: 1},
		{Symbol: "MSFT", Weight: 0.5, MarketCap: decimal.NewFromInt(3200000000000), Rank: 2},
	}
}

func TestServiceGetIndexComposition(t *testing.T) {
	date := time.Date(2024, 12, 16, 0, 0, 0, 0, time.UTC)

	t.Run("serves from the database and caches", func(t *testing.T) {
		c, _ := testCache(t)
		reader := &fakeReader{compositions: map[string][]*models.IndexConstituent{
			"2024-12-16": testConstituents(),
		}}
		s := &Service{db: reader, cache: c, logger: slog.New(slog.DiscardHandler)}

		result, err := s.GetIndexComposition(context.Background(), date)
		require.NoError(t, err)
		assert.Equal(t, "2024-12-16", result.Date)
		assert.Equal(t, 2, result.TotalStocks)
		assert.InDelta(t, 0.5, result.EqualWeight, 1e-9)
		require.Len(t, result.Stocks, 2)
		assert.Equal(t, "AAPL", result.Stocks[0].Symbol)

		cached, err := s.GetIndexComposition(context.Background(), date)
		require.NoError(t, err)
		assert.Equal(t, 1, reader.compositionCalls, "second read comes from the cache")
		assert.Equal(t, result.TotalStocks, cached.TotalStocks)
		assert.Equal(t, result.Stocks[1].Symbol, cached.Stocks[1].Symbol)
		assert.True(t, result.Stocks[1].MarketCap.Equal(cached.Stocks[1].MarketCap))
	})

	t.Run("missing composition maps to not found", func(t *testing.T) {
		s := &Service{db: &fakeReader{}, logger: slog.New(slog.DiscardHandler)}

		_, err := s.GetIndexComposition(context.Background(), date)
		require.Error(t, err)
		assert.ErrorIs(t, err, database.ErrNotFound)
	})

	t.Run("corrupt cache entry falls through to the database", func(t *testing.T) {
		c, mr := testCache(t)
		require.NoError(t, mr.Set(cache.CompositionKey("2024-12-16"), "{not json"))

		reader := &fakeReader{compositions: map[string][]*models.IndexConstituent{
			"2024-12-16": testConstituents(),
		}}
		s := &Service{db: reader, cache: c, logger: slog.New(slog.DiscardHandler)}

		result, err := s.GetIndexComposition(context.Background(), date)
		require.NoError(t, err)
		assert.Equal(t, 2, result.TotalStocks)
		assert.Equal(t, 1, reader.compositionCalls)
	})

	t.Run("works without a cache", func(t *testing.T) {
		reader := &fakeReader{compositions: map[string][]*models.IndexConstituent{
			"2024-12-16": testConstituents(),
		}}
		s := &Service{db: reader, logger: slog.New(slog.DiscardHandler)}

		_, err := s.GetIndexComposition(context.Background(), date)
		require.NoError(t, err)
		_, err = s.GetIndexComposition(context.Background(), date)
		require.NoError(t, err)
		assert.Equal(t, 2, reader.compositionCalls, "every read hits the database")
	})
}

func TestServiceGetIndexPerformance(t *testing.T) {
	day1 := time.Date(2024, 12, 16, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 12, 17, 0, 0, 0, 0, time.UTC)

	t.Run("total return is the final cumulative return", func(t *testing.T) {
		c, _ := testCache(t)
		reader := &fakeReader{performance: []*models.IndexPerformance{
			{Date: day1, DailyReturn: 1.0, CumulativeReturn: 1.0, IndexValue: 101.0},
			{Date: day2, DailyReturn: 1.0, CumulativeReturn: 2.0, IndexValue: 102.0},
		}}
		s := &Service{db: reader, cache: c, logger: slog.New(slog.DiscardHandler)}

		result, err := s.GetIndexPerformance(context.Background(), day1, day2)
		require.NoError(t, err)
		assert.Equal(t, "2024-12-16", result.StartDate)
		assert.Equal(t, "2024-12-17", result.EndDate)
		assert.InDelta(t, 2.0, result.TotalReturn, 1e-9)
		assert.Len(t, result.DailyReturns, 2)

		cached, err := s.GetIndexPerformance(context.Background(), day1, day2)
		require.NoError(t, err)
		assert.Equal(t, 1, reader.performanceCalls)
		assert.InDelta(t, result.TotalReturn, cached.TotalReturn, 1e-9)
		assert.Len(t, cached.DailyReturns, 2)
	})

	t.Run("empty range maps to not found", func(t *testing.T) {
		s := &Service{db: &fakeReader{}, logger: slog.New(slog.DiscardHandler)}

		_, err := s.GetIndexPerformance(context.Background(), day1, day2)
		require.Error(t, err)
		assert.ErrorIs(t, err, database.ErrNotFound)
		assert.Contains(t, err.Error(), "no index performance found for 2024-12-16 to 2024-12-17")
	})
}

func TestServiceGetCompositionChanges(t *testing.T) {
	day1 := time.Date(2024, 12, 16, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 12, 17, 0, 0, 0, 0, time.UTC)

	t.Run("zero changes is a valid result", func(t *testing.T) {
		c, _ := testCache(t)
		s := &Service{db: &fakeReader{}, cache: c, logger: slog.New(slog.DiscardHandler)}

		result, err := s.GetCompositionChanges(context.Background(), day1, day2)
		require.NoError(t, err)
		assert.Equal(t, 0, result.TotalChanges)
		assert.Empty(t, result.Changes)
	})

	t.Run("changes are served and cached", func(t *testing.T) {
		c, _ := testCache(t)
		newRank := 2
		reader := &fakeReader{changes: []*models.CompositionChange{
			{Date: day2, Symbol: "NVDA", Action: models.ChangeActionEntered, NewRank: &newRank, MarketCap: decimal.NewFromInt(3000000000000)},
		}}
		s := &Service{db: reader, cache: c, logger: slog.New(slog.DiscardHandler)}

		result, err := s.GetCompositionChanges(context.Background(), day1, day2)
		require.NoError(t, err)
		assert.Equal(t, 1, result.TotalChanges)
		assert.Equal(t, "NVDA", result.Changes[0].Symbol)

		cached, err := s.GetCompositionChanges(context.Background(), day1, day2)
		require.NoError(t, err)
		assert.Equal(t, 1, reader.changesCalls)
		assert.Equal(t, 1, cached.TotalChanges)
		require.NotNil(t, cached.Changes[0].NewRank)
		assert.Equal(t, 2, *cached.Changes[0].NewRank)
	})
}
