package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/trogers1052/stock-index-service/internal/models"
)

// Producer publishes ingestion and index lifecycle events to Kafka
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
	}
}

// PublishIngestionCompleted publishes the summary of a finished ingestion run
func (p *Producer) PublishIngestionCompleted(ctx context.Context, event *models.IngestionEvent) error {
	key := event.StartDate + "_" + event.EndDate
	return p.publish(ctx, key, event)
}

// PublishIndexRebuilt publishes the result of an index rebuild
func (p *Producer) PublishIndexRebuilt(ctx context.Context, event *models.IndexEvent) error {
	key := ""
	if event.Result != nil {
		key = event.Result.DateRange
	}
	return p.publish(ctx, key, event)
}

func (p *Producer) publish(ctx context.Context, key string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
