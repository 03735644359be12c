package sources

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/trogers1052/stock-index-service/internal/models"
	"github.com/trogers1052/stock-index-service/internal/retry"
)

// Coordinator arbitrates between the primary and fallback sources. Each
// fetch runs under the retry policy; a source that exhausts its attempts
// contributes a failed observation carrying the final error.
type Coordinator struct {
	primary   Source
	secondary Source
	retryCfg  retry.Config
	logger    *slog.Logger
}

// NewCoordinator wires the two sources together with a shared retry policy
func NewCoordinator(primary, secondary Source, retryCfg retry.Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	retryCfg.Logger = logger
	return &Coordinator{
		primary:   primary,
		secondary: secondary,
		retryCfg:  retryCfg,
		logger:    logger,
	}
}

// FetchWithFallback produces an observation for every call. The primary
// source wins outright when it has a close; the secondary is only consulted
// after the primary came back empty. When both are empty the primary's
// failure is preserved if it has one, so the stored row explains the
// original problem rather than the fallback's.
func (c *Coordinator) FetchWithFallback(ctx context.Context, symbol string, date time.Time) *models.Observation {
	primary := c.fetchFrom(ctx, c.primary, symbol, date)
	if primary.ClosePrice != nil {
		return primary
	}

	c.logger.Debug("primary source empty, trying fallback",
		"symbol", symbol, "date", date.Format(models.DateFormat))

	secondary := c.fetchFrom(ctx, c.secondary, symbol, date)
	if secondary.ClosePrice != nil {
		return secondary
	}

	if primary.Error != nil {
		return primary
	}
	return secondary
}

func (c *Coordinator) fetchFrom(ctx context.Context, src Source, symbol string, date time.Time) *models.Observation {
	operation := fmt.Sprintf("%s fetch %s %s", src.Name(), symbol, date.Format(models.DateFormat))

	var obs *models.Observation
	err := retry.Do(ctx, c.retryCfg, operation, func(ctx context.Context) error {
		var fetchErr error
		obs, fetchErr = src.Fetch(ctx, symbol, date)
		return fetchErr
	})
	if err != nil {
		return failedObservation(symbol, date, src.Name(), err.Error())
	}
	return obs
}
