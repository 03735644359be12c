package database

import (
	"database/sql"
	"fmt"
)

// IngestBatch is a transactional write handle for one ingestion run. Every
// upsert performed through the batch becomes durable together when Commit
// is called; until then none of it is visible to readers.
type IngestBatch struct {
	tx *sql.Tx
}

// BeginIngestBatch opens the transaction backing a single ingestion run
func (db *DB) BeginIngestBatch() (*IngestBatch, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin ingest batch: %w", err)
	}
	return &IngestBatch{tx: tx}, nil
}

// Commit makes the batch durable
func (b *IngestBatch) Commit() error {
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ingest batch: %w", err)
	}
	return nil
}

// Rollback discards the batch. Calling it after a successful Commit is a
// harmless no-op, so it is safe to defer.
func (b *IngestBatch) Rollback() error {
	if err := b.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("failed to roll back ingest batch: %w", err)
	}
	return nil
}
