package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/stock-index-service/internal/models"
)

// UpsertDailyObservation folds an observation into the (symbol, date) record
// and returns the record as it now stands in the batch. When no record
// exists the observation is inserted as-is. When one exists the merge keeps
// every stored non-null field and adopts incoming values only for fields
// that are still null; if nothing is adopted the stored row is not touched
// at all, so re-ingesting the same day leaves updated_at unchanged.
func (b *IngestBatch) UpsertDailyObservation(obs *models.Observation) (*models.DailyObservation, error) {
	existing, err := b.getDailyObservation(obs.Symbol, obs.Date)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := time.Now()

	if existing == nil {
		query := `
			INSERT INTO daily_stock_data (
				symbol, date, close_price, market_cap, source, error, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		_, err := b.tx.Exec(query,
			obs.Symbol, obs.Date, obs.ClosePrice, obs.MarketCap, obs.Source, obs.Error, now, now,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert daily observation: %w", err)
		}
		return &models.DailyObservation{
			Symbol:     obs.Symbol,
			Date:       obs.Date,
			ClosePrice: obs.ClosePrice,
			MarketCap:  obs.MarketCap,
			Source:     obs.Source,
			Error:      obs.Error,
			CreatedAt:  now,
			UpdatedAt:  now,
		}, nil
	}

	merged, changed := mergeObservation(existing, obs)
	if !changed {
		return existing, nil
	}

	merged.UpdatedAt = now
	query := `
		UPDATE daily_stock_data
		SET close_price = $3, market_cap = $4, source = $5, error = $6, updated_at = $7
		WHERE symbol = $1 AND date = $2
	`
	if _, err := b.tx.Exec(query,
		merged.Symbol, merged.Date, merged.ClosePrice, merged.MarketCap, merged.Source, merged.Error, merged.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to update daily observation: %w", err)
	}
	return merged, nil
}

// mergeObservation applies the null-preserving merge policy. A field is
// adopted only when the stored value is null and the incoming one is not;
// stored values are never overwritten. When at least one field is adopted
// the record also takes over the incoming source and error. The returned
// flag reports whether the record changed.
func mergeObservation(existing *models.DailyObservation, incoming *models.Observation) (*models.DailyObservation, bool) {
	merged := *existing
	changed := false

	if merged.ClosePrice == nil && incoming.ClosePrice != nil {
		merged.ClosePrice = incoming.ClosePrice
		changed = true
	}
	if merged.MarketCap == nil && incoming.MarketCap != nil {
		merged.MarketCap = incoming.MarketCap
		changed = true
	}
	if changed {
		merged.Source = incoming.Source
		merged.Error = incoming.Error
	}

	return &merged, changed
}

func (b *IngestBatch) getDailyObservation(symbol string, date time.Time) (*models.DailyObservation, error) {
	query := `
		SELECT symbol, date, close_price, market_cap, source, error, created_at, updated_at
		FROM daily_stock_data
		WHERE symbol = $1 AND date = $2
	`
	return scanSingleDailyObservation(b.tx.QueryRow(query, symbol, date))
}

// GetDailyObservation retrieves the stored record for one symbol and date
func (db *DB) GetDailyObservation(symbol string, date time.Time) (*models.DailyObservation, error) {
	query := `
		SELECT symbol, date, close_price, market_cap, source, error, created_at, updated_at
		FROM daily_stock_data
		WHERE symbol = $1 AND date = $2
	`
	return scanSingleDailyObservation(db.conn.QueryRow(query, symbol, date))
}

// GetObservationsBySymbol retrieves the most recent records for a symbol
func (db *DB) GetObservationsBySymbol(symbol string, limit int) ([]*models.DailyObservation, error) {
	query := `
		SELECT symbol, date, close_price, market_cap, source, error, created_at, updated_at
		FROM daily_stock_data
		WHERE symbol = $1
		ORDER BY date DESC
		LIMIT $2
	`
	return scanDailyObservations(db.conn.Query(query, symbol, limit))
}

// GetObservationRange retrieves records for a symbol within a date range
func (db *DB) GetObservationRange(symbol string, startDate, endDate time.Time) ([]*models.DailyObservation, error) {
	query := `
		SELECT symbol, date, close_price, market_cap, source, error, created_at, updated_at
		FROM daily_stock_data
		WHERE symbol = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC
	`
	return scanDailyObservations(db.conn.Query(query, symbol, startDate, endDate))
}

// GetAvailableDates returns the distinct trading dates in a range, meaning
// dates with at least one cleanly stored observation. Dates where every row
// is an error marker do not count.
func (db *DB) GetAvailableDates(startDate, endDate time.Time) ([]time.Time, error) {
	query := `
		SELECT DISTINCT date
		FROM daily_stock_data
		WHERE date >= $1 AND date <= $2 AND error IS NULL
		ORDER BY date ASC
	`
	rows, err := db.conn.Query(query, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query available dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan date: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, nil
}

func scanSingleDailyObservation(row *sql.Row) (*models.DailyObservation, error) {
	var o models.DailyObservation
	var closePrice, marketCap, source, errMsg sql.NullString

	err := row.Scan(
		&o.Symbol, &o.Date, &closePrice, &marketCap, &source, &errMsg, &o.CreatedAt, &o.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("daily observation not found: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily observation: %w", err)
	}

	if closePrice.Valid {
		d, err := decimal.NewFromString(closePrice.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse close price: %w", err)
		}
		o.ClosePrice = &d
	}
	if marketCap.Valid {
		d, err := decimal.NewFromString(marketCap.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse market cap: %w", err)
		}
		o.MarketCap = &d
	}
	if source.Valid {
		o.Source = source.String
	}
	if errMsg.Valid {
		o.Error = &errMsg.String
	}

	return &o, nil
}

func scanDailyObservations(rows *sql.Rows, err error) ([]*models.DailyObservation, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to query daily observations: %w", err)
	}
	defer rows.Close()

	var observations []*models.DailyObservation
	for rows.Next() {
		var o models.DailyObservation
		var closePrice, marketCap, source, errMsg sql.NullString

		err := rows.Scan(
			&o.Symbol, &o.Date, &closePrice, &marketCap, &source, &errMsg, &o.CreatedAt, &o.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily observation: %w", err)
		}

		if closePrice.Valid {
			d, err := decimal.NewFromString(closePrice.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse close price: %w", err)
			}
			o.ClosePrice = &d
		}
		if marketCap.Valid {
			d, err := decimal.NewFromString(marketCap.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse market cap: %w", err)
			}
			o.MarketCap = &d
		}
		if source.Valid {
			o.Source = source.String
		}
		if errMsg.Valid {
			o.Error = &errMsg.String
		}

		observations = append(observations, &o)
	}

	return observations, nil
}
