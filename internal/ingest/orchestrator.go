// Package ingest drives the daily ingestion sweep: fetch every symbol-date
// pair through the source coordinator, reconcile the results into the
// store inside one batch transaction, and report a run summary.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/trogers1052/stock-index-service/internal/database"
	"github.com/trogers1052/stock-index-service/internal/models"
)

// Store is the persistence surface the orchestrator needs
type Store interface {
	EnsureSchema() error
	BeginIngestBatch() (Batch, error)
}

// Batch is the transactional write handle for one run
type Batch interface {
	UpsertDailyObservation(obs *models.Observation) (*models.DailyObservation, error)
	UpsertSymbolMetadata(symbol string, update models.MetadataUpdate) error
	Commit() error
	Rollback() error
}

// Fetcher produces one observation per symbol-date pair
type Fetcher interface {
	FetchWithFallback(ctx context.Context, symbol string, date time.Time) *models.Observation
}

// EventPublisher announces completed ingestion runs
type EventPublisher interface {
	PublishIngestionCompleted(ctx context.Context, event *models.IngestionEvent) error
}

// databaseStore adapts *database.DB to the Store interface
type databaseStore struct {
	db *database.DB
}

func (s databaseStore) EnsureSchema() error {
	return s.db.EnsureSchema()
}

func (s databaseStore) BeginIngestBatch() (Batch, error) {
	batch, err := s.db.BeginIngestBatch()
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// Orchestrator runs ingestion sweeps
type Orchestrator struct {
	store    Store
	fetcher  Fetcher
	producer EventPublisher
	logger   *slog.Logger
}

// New creates an orchestrator on top of the database. producer may be nil
// when event publishing is disabled.
func New(db *database.DB, fetcher Fetcher, producer EventPublisher, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		store:    databaseStore{db: db},
		fetcher:  fetcher,
		producer: producer,
		logger:   logger,
	}
}

// Ingest sweeps symbols × dates inclusive, symbol-major, inside a single
// batch transaction. A pair succeeds when the stored record ends up with a
// close price, whether that came from this fetch or an earlier run. On
// cancellation the pairs attempted so far are committed and the partial
// summary is returned together with the context error. A commit failure
// rolls back and returns no summary.
func (o *Orchestrator) Ingest(ctx context.Context, symbols []string, startDate, endDate time.Time) (*models.IngestionSummary, error) {
	if endDate.Before(startDate) {
		return nil, fmt.Errorf("start date %s is after end date %s",
			startDate.Format(models.DateFormat), endDate.Format(models.DateFormat))
	}

	if err := o.store.EnsureSchema(); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	dates := datesBetween(startDate, endDate)
	summary := &models.IngestionSummary{
		TotalSymbols: len(symbols),
		TotalDates:   len(symbols) * len(dates),
	}

	batch, err := o.store.BeginIngestBatch()
	if err != nil {
		return nil, err
	}
	defer batch.Rollback()

	o.logger.Info("starting ingestion",
		"symbols", len(symbols),
		"start", startDate.Format(models.DateFormat),
		"end", endDate.Format(models.DateFormat),
		"total_pairs", summary.TotalDates)

	var runErr error
sweep:
	for _, symbol := range symbols {
		for _, date := range dates {
			select {
			case <-ctx.Done():
				runErr = ctx.Err()
				o.logger.Warn("ingestion cancelled, committing attempted pairs",
					"attempted", summary.Successes+summary.Failures)
				break sweep
			default:
			}
			o.ingestPair(ctx, batch, symbol, date, summary)
		}
	}

	if err := batch.Commit(); err != nil {
		return nil, err
	}

	if summary.TotalDates > 0 {
		summary.SuccessRate = float64(summary.Successes) / float64(summary.TotalDates) * 100
	}

	o.logger.Info("ingestion completed",
		"successes", summary.Successes,
		"failures", summary.Failures,
		"success_rate", summary.SuccessRate)

	if runErr == nil {
		o.publishCompleted(ctx, symbols, startDate, endDate, summary)
	}

	return summary, runErr
}

// ingestPair fetches and stores one symbol-date pair. Store errors are
// counted against the pair and the sweep moves on.
func (o *Orchestrator) ingestPair(ctx context.Context, batch Batch, symbol string, date time.Time, summary *models.IngestionSummary) {
	pairID := fmt.Sprintf("%s-%s", symbol, date.Format(models.DateFormat))

	obs := o.fetcher.FetchWithFallback(ctx, symbol, date)

	stored, err := batch.UpsertDailyObservation(obs)
	if err != nil {
		o.logger.Error("failed to store observation", "pair", pairID, "error", err)
		o.recordFailure(summary, pairID)
		return
	}

	if obs.MarketCap != nil {
		update := models.MetadataUpdate{
			Name:      obs.Name,
			Exchange:  obs.Exchange,
			MarketCap: obs.MarketCap,
		}
		if err := batch.UpsertSymbolMetadata(symbol, update); err != nil {
			o.logger.Error("failed to store symbol metadata", "pair", pairID, "error", err)
			o.recordFailure(summary, pairID)
			return
		}
	}

	if stored.ClosePrice == nil {
		if stored.Error != nil {
			o.logger.Warn("no close price for pair", "pair", pairID, "reason", *stored.Error)
		} else {
			o.logger.Warn("no close price for pair", "pair", pairID)
		}
		o.recordFailure(summary, pairID)
		return
	}

	summary.Successes++
	o.logger.Debug("pair ingested", "pair", pairID, "source", stored.Source)
}

func (o *Orchestrator) recordFailure(summary *models.IngestionSummary, pairID string) {
	summary.Failures++
	summary.FailedPairs = append(summary.FailedPairs, pairID)
}

func (o *Orchestrator) publishCompleted(ctx context.Context, symbols []string, startDate, endDate time.Time, summary *models.IngestionSummary) {
	if o.producer == nil {
		return
	}

	event := &models.IngestionEvent{
		EventType: models.EventIngestionCompleted,
		Symbols:   symbols,
		StartDate: startDate.Format(models.DateFormat),
		EndDate:   endDate.Format(models.DateFormat),
		Summary:   summary,
		Timestamp: time.Now(),
	}
	if err := o.producer.PublishIngestionCompleted(ctx, event); err != nil {
		o.logger.Warn("failed to publish ingestion event", "error", err)
	}
}

// datesBetween expands an inclusive date range into calendar days
func datesBetween(start, end time.Time) []time.Time {
	var dates []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}
