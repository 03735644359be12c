package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/trogers1052/stock-index-service/internal/models"
)

// Ingestor runs an ingestion sweep on request
type Ingestor interface {
	Ingest(ctx context.Context, symbols []string, startDate, endDate time.Time) (*models.IngestionSummary, error)
}

// Consumer reads ingest requests from Kafka and runs them through the
// orchestrator. Messages are committed after handling, so a crash mid-run
// redelivers the request; the store's merge makes the rerun harmless.
// Malformed payloads are logged and committed so they are never redelivered.
type Consumer struct {
	reader         *kafka.Reader
	ingestor       Ingestor
	defaultSymbols []string
	logger         *slog.Logger
}

// NewConsumer creates a group consumer for ingest requests. defaultSymbols
// serves requests that name no symbols of their own.
func NewConsumer(brokers []string, topic, groupID string, ingestor Ingestor, defaultSymbols []string, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    10e3, // 10KB
		MaxBytes:    10e6, // 10MB
		MaxWait:     1 * time.Second,
		StartOffset: kafka.FirstOffset,
	})

	return &Consumer{
		reader:         reader,
		ingestor:       ingestor,
		defaultSymbols: defaultSymbols,
		logger:         logger,
	}
}

// Start consumes until the context is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("starting kafka consumer", "topic", c.reader.Config().Topic)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("kafka consumer shutting down")
			return c.reader.Close()
		default:
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.logger.Error("failed to fetch message", "error", err)
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				c.logger.Error("failed to process ingest request",
					"partition", msg.Partition, "offset", msg.Offset, "error", err)
			}

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				if ctx.Err() != nil {
					return c.reader.Close()
				}
				c.logger.Error("failed to commit message", "offset", msg.Offset, "error", err)
			}
		}
	}
}

// processMessage validates one ingest request and runs it
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	c.logger.Debug("received ingest request",
		"partition", msg.Partition, "offset", msg.Offset, "key", string(msg.Key))

	var req models.IngestRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		return fmt.Errorf("failed to unmarshal ingest request: %w", err)
	}

	startDate, endDate, err := parseRequestRange(req)
	if err != nil {
		return err
	}

	symbols := req.Symbols
	if len(symbols) == 0 {
		symbols = c.defaultSymbols
	}
	if len(symbols) == 0 {
		return fmt.Errorf("ingest request names no symbols and no defaults are configured")
	}

	summary, err := c.ingestor.Ingest(ctx, symbols, startDate, endDate)
	if err != nil {
		return fmt.Errorf("failed to run ingestion: %w", err)
	}

	c.logger.Info("ingest request completed",
		"symbols", len(symbols),
		"start_date", req.StartDate,
		"end_date", req.EndDate,
		"successes", summary.Successes,
		"failures", summary.Failures,
		"success_rate", summary.SuccessRate,
	)
	return nil
}

func parseRequestRange(req models.IngestRequest) (time.Time, time.Time, error) {
	if req.StartDate == "" || req.EndDate == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("ingest request is missing start_date or end_date")
	}

	startDate, err := time.Parse(models.DateFormat, req.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start_date %q: %w", req.StartDate, err)
	}
	endDate, err := time.Parse(models.DateFormat, req.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end_date %q: %w", req.EndDate, err)
	}
	return startDate, endDate, nil
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
