package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/stock-index-service/internal/models"
)

// UpsertSymbolMetadata records the latest descriptive fields for a symbol.
// Supplied fields overwrite stored values, omitted fields are left
// unchanged, and last_updated is always bumped.
func (b *IngestBatch) UpsertSymbolMetadata(symbol string, update models.MetadataUpdate) error {
	query := `
		INSERT INTO stock_metadata (symbol, name, exchange, latest_market_cap, last_updated)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (symbol) DO UPDATE SET
			name = COALESCE(EXCLUDED.name, stock_metadata.name),
			exchange = COALESCE(EXCLUDED.exchange, stock_metadata.exchange),
			latest_market_cap = COALESCE(EXCLUDED.latest_market_cap, stock_metadata.latest_market_cap),
			last_updated = EXCLUDED.last_updated
	`
	_, err := b.tx.Exec(query, symbol, update.Name, update.Exchange, update.MarketCap, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert symbol metadata: %w", err)
	}
	return nil
}

// GetSymbolMetadata retrieves the metadata record for a symbol
func (db *DB) GetSymbolMetadata(symbol string) (*models.SymbolMetadata, error) {
	query := `
		SELECT symbol, name, exchange, latest_market_cap, last_updated
		FROM stock_metadata
		WHERE symbol = $1
	`

	var m models.SymbolMetadata
	var name, exchange, marketCap sql.NullString

	err := db.conn.QueryRow(query, symbol).Scan(
		&m.Symbol, &name, &exchange, &marketCap, &m.LastUpdated,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("symbol metadata not found: %s: %w", symbol, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get symbol metadata: %w", err)
	}

	if name.Valid {
		m.Name = &name.String
	}
	if exchange.Valid {
		m.Exchange = &exchange.String
	}
	if marketCap.Valid {
		d, err := decimal.NewFromString(marketCap.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse market cap: %w", err)
		}
		m.LatestMarketCap = &d
	}

	return &m, nil
}

// GetAllSymbolMetadata retrieves metadata for every known symbol
func (db *DB) GetAllSymbolMetadata() ([]*models.SymbolMetadata, error) {
	query := `
		SELECT symbol, name, exchange, latest_market_cap, last_updated
		FROM stock_metadata
		ORDER BY symbol ASC
	`

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbol metadata: %w", err)
	}
	defer rows.Close()

	var metadata []*models.SymbolMetadata
	for rows.Next() {
		var m models.SymbolMetadata
		var name, exchange, marketCap sql.NullString

		err := rows.Scan(&m.Symbol, &name, &exchange, &marketCap, &m.LastUpdated)
		if err != nil {
			return nil, fmt.Errorf("failed to scan symbol metadata: %w", err)
		}

		if name.Valid {
			m.Name = &name.String
		}
		if exchange.Valid {
			m.Exchange = &exchange.String
		}
		if marketCap.Valid {
			d, err := decimal.NewFromString(marketCap.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse market cap: %w", err)
			}
			m.LatestMarketCap = &d
		}

		metadata = append(metadata, &m)
	}

	return metadata, nil
}
