package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/trogers1052/stock-index-service/internal/models"
)

// CalculateIndexPerformance recomputes the performance series for every
// composition date in the range and replaces the stored rows. Returns are
// compounded additively from a base index value of 100 and stored as
// percentages.
//
// The per-day return is a placeholder model: each constituent with a
// usable close contributes weight * 1%.
func (db *DB) CalculateIndexPerformance(startDate, endDate time.Time) ([]*models.IndexPerformance, error) {
	dates, err := db.GetCompositionDates(startDate, endDate)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return nil, nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin performance transaction: %w", err)
	}
	defer tx.Rollback()

	const baseValue = 100.0
	cumulative := 0.0
	now := time.Now()

	var results []*models.IndexPerformance
	for _, date := range dates {
		dailyReturn, constituents, err := dailyReturnForDate(tx, date)
		if err != nil {
			return nil, err
		}
		if constituents == 0 {
			continue
		}

		cumulative += dailyReturn
		indexValue := baseValue * (1 + cumulative)

		if _, err := tx.Exec(`DELETE FROM index_performance WHERE date = $1`, date); err != nil {
			return nil, fmt.Errorf("failed to clear performance row: %w", err)
		}
		if _, err := tx.Exec(`
			INSERT INTO index_performance (date, daily_return, cumulative_return, index_value, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, date, dailyReturn*100, cumulative*100, indexValue, now); err != nil {
			return nil, fmt.Errorf("failed to insert performance row: %w", err)
		}

		results = append(results, &models.IndexPerformance{
			Date:             date,
			DailyReturn:      dailyReturn * 100,
			CumulativeReturn: cumulative * 100,
			IndexValue:       indexValue,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit performance: %w", err)
	}
	return results, nil
}

// dailyReturnForDate sums the placeholder per-constituent returns for one
// composition date. Constituents whose close is null contribute nothing.
func dailyReturnForDate(tx *sql.Tx, date time.Time) (float64, int, error) {
	rows, err := tx.Query(`
		SELECT ic.weight, d.close_price
		FROM index_compositions ic
		JOIN daily_stock_data d ON d.symbol = ic.symbol AND d.date = ic.date
		WHERE ic.date = $1
	`, date)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query composition returns: %w", err)
	}
	defer rows.Close()

	dailyReturn := 0.0
	constituents := 0
	for rows.Next() {
		var weight float64
		var closePrice sql.NullString

		if err := rows.Scan(&weight, &closePrice); err != nil {
			return 0, 0, fmt.Errorf("failed to scan composition return: %w", err)
		}

		constituents++
		if closePrice.Valid && weight > 0 {
			dailyReturn += weight * 0.01
		}
	}

	return dailyReturn, constituents, nil
}

// GetIndexPerformance retrieves the stored performance series for a range
func (db *DB) GetIndexPerformance(startDate, endDate time.Time) ([]*models.IndexPerformance, error) {
	query := `
		SELECT date, daily_return, cumulative_return, index_value
		FROM index_performance
		WHERE date >= $1 AND date <= $2
		ORDER BY date ASC
	`

	rows, err := db.conn.Query(query, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query index performance: %w", err)
	}
	defer rows.Close()

	var series []*models.IndexPerformance
	for rows.Next() {
		var p models.IndexPerformance
		if err := rows.Scan(&p.Date, &p.DailyReturn, &p.CumulativeReturn, &p.IndexValue); err != nil {
			return nil, fmt.Errorf("failed to scan performance row: %w", err)
		}
		series = append(series, &p)
	}

	return series, nil
}
