package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/stock-index-service/internal/models"
)

// GetTopStocksByDate ranks symbols by latest market cap and returns the top
// N that have a usable close price on the given date. Symbols whose stored
// record carries an error or a null close are excluded; ties on market cap
// break by symbol so the ranking is stable.
func (db *DB) GetTopStocksByDate(date time.Time, topN int) ([]*models.IndexStock, error) {
	query := `
		SELECT m.symbol, m.name, m.exchange, m.latest_market_cap, d.close_price,
		       ROW_NUMBER() OVER (ORDER BY m.latest_market_cap DESC, m.symbol ASC) AS rank
		FROM stock_metadata m
		JOIN daily_stock_data d ON d.symbol = m.symbol
		WHERE d.date = $1
		  AND d.error IS NULL
		  AND d.close_price IS NOT NULL
		  AND m.latest_market_cap IS NOT NULL
		ORDER BY m.latest_market_cap DESC, m.symbol ASC
		LIMIT $2
	`

	rows, err := db.conn.Query(query, date, topN)
	if err != nil {
		return nil, fmt.Errorf("failed to query top stocks: %w", err)
	}
	defer rows.Close()

	var stocks []*models.IndexStock
	for rows.Next() {
		var s models.IndexStock
		var name, exchange sql.NullString

		err := rows.Scan(&s.Symbol, &name, &exchange, &s.MarketCap, &s.ClosePrice, &s.Rank)
		if err != nil {
			return nil, fmt.Errorf("failed to scan top stock: %w", err)
		}

		if name.Valid {
			s.Name = &name.String
		}
		if exchange.Valid {
			s.Exchange = &exchange.String
		}

		stocks = append(stocks, &s)
	}

	return stocks, nil
}

// ReplaceIndexComposition stores the composition for a date, replacing any
// previous composition for that date. Every constituent gets the same
// weight 1/n.
func (db *DB) ReplaceIndexComposition(date time.Time, stocks []*models.IndexStock) error {
	if len(stocks) == 0 {
		return fmt.Errorf("cannot store empty composition for %s", date.Format(models.DateFormat))
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin composition transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM index_compositions WHERE date = $1`, date); err != nil {
		return fmt.Errorf("failed to clear composition: %w", err)
	}

	weight := 1.0 / float64(len(stocks))
	now := time.Now()
	for _, s := range stocks {
		_, err := tx.Exec(`
			INSERT INTO index_compositions (date, symbol, weight, market_cap, rank, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, date, s.Symbol, weight, s.MarketCap, s.Rank, now)
		if err != nil {
			return fmt.Errorf("failed to insert composition row for %s: %w", s.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit composition: %w", err)
	}
	return nil
}

// GetIndexComposition retrieves the stored composition for a date
func (db *DB) GetIndexComposition(date time.Time) ([]*models.IndexConstituent, error) {
	query := `
		SELECT symbol, weight, market_cap, rank
		FROM index_compositions
		WHERE date = $1
		ORDER BY rank ASC
	`

	rows, err := db.conn.Query(query, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query composition: %w", err)
	}
	defer rows.Close()

	var constituents []*models.IndexConstituent
	for rows.Next() {
		var c models.IndexConstituent
		if err := rows.Scan(&c.Symbol, &c.Weight, &c.MarketCap, &c.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan constituent: %w", err)
		}
		constituents = append(constituents, &c)
	}

	if len(constituents) == 0 {
		return nil, fmt.Errorf("no composition found for %s: %w", date.Format(models.DateFormat), ErrNotFound)
	}

	return constituents, nil
}

// GetCompositionDates returns the distinct dates with a stored composition
// in a range
func (db *DB) GetCompositionDates(startDate, endDate time.Time) ([]time.Time, error) {
	query := `
		SELECT DISTINCT date
		FROM index_compositions
		WHERE date >= $1 AND date <= $2
		ORDER BY date ASC
	`

	rows, err := db.conn.Query(query, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query composition dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan composition date: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// CompositionExportRow is a composition entry joined with the symbol's
// descriptive metadata, used by the spreadsheet export.
type CompositionExportRow struct {
	Date      time.Time
	Symbol    string
	Name      *string
	Exchange  *string
	Weight    float64
	MarketCap decimal.Decimal
	Rank      int
}

// GetCompositionExportRows retrieves all composition entries in a range
// together with symbol names and exchanges
func (db *DB) GetCompositionExportRows(startDate, endDate time.Time) ([]*CompositionExportRow, error) {
	query := `
		SELECT ic.date, ic.symbol, m.name, m.exchange, ic.weight, ic.market_cap, ic.rank
		FROM index_compositions ic
		LEFT JOIN stock_metadata m ON m.symbol = ic.symbol
		WHERE ic.date >= $1 AND ic.date <= $2
		ORDER BY ic.date ASC, ic.rank ASC
	`

	rows, err := db.conn.Query(query, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query composition export rows: %w", err)
	}
	defer rows.Close()

	var exportRows []*CompositionExportRow
	for rows.Next() {
		var r CompositionExportRow
		var name, exchange sql.NullString

		err := rows.Scan(&r.Date, &r.Symbol, &name, &exchange, &r.Weight, &r.MarketCap, &r.Rank)
		if err != nil {
			return nil, fmt.Errorf("failed to scan composition export row: %w", err)
		}

		if name.Valid {
			r.Name = &name.String
		}
		if exchange.Valid {
			r.Exchange = &exchange.String
		}

		exportRows = append(exportRows, &r)
	}

	return exportRows, nil
}
