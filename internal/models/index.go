package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Composition change actions
const (
	ChangeActionEntered = "entered"
	ChangeActionExited  = "exited"
)

// IndexStock is one row of the top-N-by-market-cap selection for a date
type IndexStock struct {
	Symbol     string          `json:"symbol"`
	Name       *string         `json:"name,omitempty"`
	Exchange   *string         `json:"exchange,omitempty"`
	MarketCap  decimal.Decimal `json:"market_cap"`
	ClosePrice decimal.Decimal `json:"close_price"`
	Rank       int             `json:"rank"`
}

// IndexConstituent is one stored member of an index composition
type IndexConstituent struct {
	Symbol    string          `json:"symbol"`
	Weight    float64         `json:"weight"`
	MarketCap decimal.Decimal `json:"market_cap"`
	Rank      int             `json:"rank"`
}

// IndexPerformance is one stored day of index performance. Returns are
// stored as percentages; IndexValue is based at 100.
type IndexPerformance struct {
	Date             time.Time `json:"date"`
	DailyReturn      float64   `json:"daily_return"`
	CumulativeReturn float64   `json:"cumulative_return"`
	IndexValue       float64   `json:"index_value"`
}

// CompositionChange records a symbol entering or exiting the index
type CompositionChange struct {
	Date         time.Time       `json:"date"`
	Symbol       string          `json:"symbol"`
	Action       string          `json:"action"`
	PreviousRank *int            `json:"previous_rank,omitempty"`
	NewRank      *int            `json:"new_rank,omitempty"`
	MarketCap    decimal.Decimal `json:"market_cap"`
}

// IndexBuildResult summarizes one index rebuild
type IndexBuildResult struct {
	DateRange                  string `json:"date_range"`
	TotalDatesProcessed        int    `json:"total_dates_processed"`
	TotalCompositionsBuilt     int    `json:"total_compositions_built"`
	TotalPerformanceCalculated int    `json:"total_performance_calculated"`
	TopN                       int    `json:"top_n"`
}

// IndexCompositionResult is the read-side payload for one date's composition
type IndexCompositionResult struct {
	Date        string              `json:"date"`
	TotalStocks int                 `json:"total_stocks"`
	EqualWeight float64             `json:"equal_weight"`
	Stocks      []*IndexConstituent `json:"stocks"`
}

// IndexPerformanceResult is the read-side payload for a performance range
type IndexPerformanceResult struct {
	StartDate    string              `json:"start_date"`
	EndDate      string              `json:"end_date"`
	TotalReturn  float64             `json:"total_return"`
	DailyReturns []*IndexPerformance `json:"daily_returns"`
}

// CompositionChangesResult is the read-side payload for a changes range
type CompositionChangesResult struct {
	StartDate    string               `json:"start_date"`
	EndDate      string               `json:"end_date"`
	TotalChanges int                  `json:"total_changes"`
	Changes      []*CompositionChange `json:"changes"`
}

// ExportResult describes a written export workbook
type ExportResult struct {
	FileURL    string    `json:"file_url"`
	FilePath   string    `json:"file_path"`
	Filename   string    `json:"filename"`
	FileSize   int64     `json:"file_size"`
	ExportDate time.Time `json:"export_date"`
}
