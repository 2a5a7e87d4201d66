// Package ingest loads the bulk shows export into the vector index.
// Rows are normalized one at a time (bad rows are skipped, not fatal)
// and written in batches; a failed batch aborts the run so a partial
// import is visible rather than silent.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/anidex/anidex/internal/show"
)

// DefaultBatchSize is used when the caller passes a non-positive size.
const DefaultBatchSize = 256

// Indexer is the vector index surface ingestion writes to.
type Indexer interface {
	Upsert(ctx context.Context, docs []show.Document) ([]string, error)
}

// export mirrors the bulk export file: a single object wrapping the
// row list.
type export struct {
	Rows []show.Row `json:"AniDB_Anime"`
}

// ReadShows loads and normalizes the bulk export at path. Rows that
// fail normalization are logged and skipped; a missing or malformed
// file is an error.
func ReadShows(path string, logger *slog.Logger) ([]*show.Record, error) {
	if logger == nil {
		logger = slog.Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading shows export: %w", err)
	}
	var ex export
	if err := json.Unmarshal(data, &ex); err != nil {
		return nil, fmt.Errorf("decoding shows export: %w", err)
	}
	if len(ex.Rows) == 0 {
		logger.Warn("shows export has no AniDB_Anime rows", "path", path)
		return nil, nil
	}

	records := make([]*show.Record, 0, len(ex.Rows))
	skipped := 0
	for i, row := range ex.Rows {
		r, err := show.RecordFromRow(row)
		if err != nil {
			logger.Warn("skipping malformed row", "index", i, "error", err)
			skipped++
			continue
		}
		records = append(records, r)
	}
	logger.Info("shows export loaded",
		"path", path, "records", len(records), "skipped", skipped)
	return records, nil
}

// Run writes records to the index in batches and returns the number of
// documents successfully ingested. The first failed batch aborts the
// run; the returned count reflects only completed batches.
func Run(ctx context.Context, indexer Indexer, records []*show.Record, batchSize int, logger *slog.Logger) (int, error) {
	if indexer == nil {
		return 0, fmt.Errorf("indexer is required")
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	total := 0
	batches := 0
	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))
		docs := make([]show.Document, 0, end-start)
		for _, r := range records[start:end] {
			docs = append(docs, r.Document())
		}

		ids, err := indexer.Upsert(ctx, docs)
		if err != nil {
			return total, fmt.Errorf("ingesting batch %d after %d documents: %w", batches+1, total, err)
		}
		total += len(ids)
		batches++
		logger.Debug("batch ingested", "batch", batches, "docs", len(ids))
	}

	logger.Info("ingestion complete", "documents", total, "batches", batches)
	return total, nil
}
