package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SymbolMetadata holds the latest known descriptive facts for a symbol
type SymbolMetadata struct {
	Symbol          string           `json:"symbol"`
	Name            *string          `json:"name,omitempty"`
	Exchange        *string          `json:"exchange,omitempty"`
	LatestMarketCap *decimal.Decimal `json:"latest_market_cap,omitempty"`
	LastUpdated     time.Time        `json:"last_updated"`
}

// MetadataUpdate carries the fields of a metadata upsert. Nil fields are
// left untouched; non-nil fields overwrite whatever is stored.
type MetadataUpdate struct {
	Name      *string
	Exchange  *string
	MarketCap *decimal.Decimal
}
