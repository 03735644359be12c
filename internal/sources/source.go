// Package sources contains the market data providers and the coordinator
// that arbitrates between them. A provider returns an error only for
// transport failures; every expected-empty outcome comes back as a failed
// observation so the caller can store what the provider said.
package sources

import (
	"context"
	"time"

	"github.com/trogers1052/stock-index-service/internal/models"
)

// Source fetches a single symbol-date observation from one provider
type Source interface {
	Name() string
	Fetch(ctx context.Context, symbol string, date time.Time) (*models.Observation, error)
}

// failedObservation builds the observation recorded when a provider had no
// usable data for the pair
func failedObservation(symbol string, date time.Time, source, errMsg string) *models.Observation {
	return &models.Observation{
		Symbol: symbol,
		Date:   date,
		Source: source,
		Error:  &errMsg,
	}
}
