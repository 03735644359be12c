package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateFormat is the wire and log format for calendar dates
const DateFormat = "2006-01-02"

// Data source identifiers recorded on observations
const (
	SourceYahoo        = "yahoo"
	SourceAlphaVantage = "alphavantage"
)

// Observation is a single provider's answer for one (symbol, date) pair.
// ClosePrice and MarketCap are nil when the provider had nothing for the
// date; Error carries the provider's explanation or advisory warning.
// Name and Exchange ride along when the provider's quote payload includes
// them and only ever feed the symbol metadata record.
type Observation struct {
	Symbol     string           `json:"symbol"`
	Date       time.Time        `json:"date"`
	ClosePrice *decimal.Decimal `json:"close_price"`
	MarketCap  *decimal.Decimal `json:"market_cap"`
	Name       *string          `json:"name,omitempty"`
	Exchange   *string          `json:"exchange,omitempty"`
	Source     string           `json:"source"`
	Error      *string          `json:"error,omitempty"`
}

// DailyObservation is the reconciled record stored per (symbol, date).
// Non-nil values are never overwritten once recorded.
type DailyObservation struct {
	Symbol     string           `json:"symbol"`
	Date       time.Time        `json:"date"`
	ClosePrice *decimal.Decimal `json:"close_price"`
	MarketCap  *decimal.Decimal `json:"market_cap"`
	Source     string           `json:"source"`
	Error      *string          `json:"error,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}
