package models

// IngestionSummary is the result of one ingestion run. It is returned to
// the caller and logged, never persisted.
type IngestionSummary struct {
	TotalSymbols int      `json:"total_symbols"`
	TotalDates   int      `json:"total_dates"`
	Successes    int      `json:"successes"`
	Failures     int      `json:"failures"`
	FailedPairs  []string `json:"failed_pairs"`
	SuccessRate  float64  `json:"success_rate"`
}
