package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogers1052/stock-index-service/internal/models"
)

func seedComposition(t *testing.T, tdb *TestDB, date time.Time, symbols ...string) {
	t.Helper()

	stocks := make([]*models.IndexStock, 0, len(symbols))
	for i, symbol := range symbols {
		stocks = append(stocks, &models.IndexStock{
			Symbol:    symbol,
			MarketCap: *decPtr(1e12 - float64(i)*1e10),
			Rank:      i + 1,
		})
	}
	require.NoError(t, tdb.ReplaceIndexComposition(date, stocks))
}

func TestIndexPerformance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)

	day1 := time.Date(2024, 12, 16, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 12, 17, 0, 0, 0, 0, time.UTC)

	seed := func(t *testing.T) {
		t.Helper()

		for _, d := range []time.Time{day1, day2} {
			seedObservation(t, testDB, "AAPL", d, decPtr(250), nil)
			seedObservation(t, testDB, "MSFT", d, decPtr(430), nil)
			seedComposition(t, testDB, d, "AAPL", "MSFT")
		}
	}

	t.Run("calculate writes the compounded series", func(t *testing.T) {
		testDB.TruncateAll(t)
		seed(t)

		series, err := testDB.CalculateIndexPerformance(day1, day2)
		require.NoError(t, err)
		require.Len(t, series, 2)

		// Two constituents at weight 0.5 each contribute 0.5% apiece
		assert.InDelta(t, 1.0, series[0].DailyReturn, 1e-9)
		assert.InDelta(t, 1.0, series[0].CumulativeReturn, 1e-9)
		assert.InDelta(t, 101.0, series[0].IndexValue, 1e-9)

		assert.InDelta(t, 1.0, series[1].DailyReturn, 1e-9)
		assert.InDelta(t, 2.0, series[1].CumulativeReturn, 1e-9)
		assert.InDelta(t, 102.0, series[1].IndexValue, 1e-9)
	})

	t.Run("stored rows match the returned series", func(t *testing.T) {
		testDB.TruncateAll(t)
		seed(t)

		_, err := testDB.CalculateIndexPerformance(day1, day2)
		require.NoError(t, err)

		stored, err := testDB.GetIndexPerformance(day1, day2)
		require.NoError(t, err)
		require.Len(t, stored, 2)
		assert.Equal(t, "2024-12-16", stored[0].Date.Format(models.DateFormat))
		assert.InDelta(t, 101.0, stored[0].IndexValue, 1e-9)
		assert.Equal(t, "2024-12-17", stored[1].Date.Format(models.DateFormat))
	})

	t.Run("recalculating replaces rows instead of appending", func(t *testing.T) {
		testDB.TruncateAll(t)
		seed(t)

		_, err := testDB.CalculateIndexPerformance(day1, day2)
		require.NoError(t, err)
		_, err = testDB.CalculateIndexPerformance(day1, day2)
		require.NoError(t, err)

		stored, err := testDB.GetIndexPerformance(day1, day2)
		require.NoError(t, err)
		require.Len(t, stored, 2)
	})

	t.Run("constituents without a close contribute nothing", func(t *testing.T) {
		testDB.TruncateAll(t)

		seedObservation(t, testDB, "AAPL", day1, decPtr(250), nil)
		seedObservation(t, testDB, "MSFT", day1, nil, strPtr("network error"))
		seedComposition(t, testDB, day1, "AAPL", "MSFT")

		series, err := testDB.CalculateIndexPerformance(day1, day1)
		require.NoError(t, err)
		require.Len(t, series, 1)
		assert.InDelta(t, 0.5, series[0].DailyReturn, 1e-9)
		assert.InDelta(t, 100.5, series[0].IndexValue, 1e-9)
	})

	t.Run("no compositions yields an empty series", func(t *testing.T) {
		testDB.TruncateAll(t)

		series, err := testDB.CalculateIndexPerformance(day1, day2)
		require.NoError(t, err)
		assert.Empty(t, series)
	})
}
