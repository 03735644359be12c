package models

import "time"

// Event types published to Kafka
const (
	EventIngestionCompleted = "INGESTION_COMPLETED"
	EventIndexRebuilt       = "INDEX_REBUILT"
)

// IngestionEvent announces a completed ingestion run
type IngestionEvent struct {
	EventType string            `json:"event_type"`
	Symbols   []string          `json:"symbols"`
	StartDate string            `json:"start_date"`
	EndDate   string            `json:"end_date"`
	Summary   *IngestionSummary `json:"summary"`
	Timestamp time.Time         `json:"timestamp"`
}

// IndexEvent announces a completed index rebuild
type IndexEvent struct {
	EventType string            `json:"event_type"`
	Result    *IndexBuildResult `json:"result"`
	Timestamp time.Time         `json:"timestamp"`
}

// IngestRequest is a message asking the service to run an ingestion sweep
type IngestRequest struct {
	Symbols   []string `json:"symbols"`
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
}
