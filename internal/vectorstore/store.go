// Package vectorstore persists show documents in PostgreSQL + pgvector
// and serves similarity search over them. Distances use cosine space:
// 0.0 is identical, 2.0 is opposite.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"

	"github.com/anidex/anidex/internal/show"
)

// VectorDimension is the embedding width. Must match the vector column
// in the shows table migration.
const VectorDimension = 768

// EmbedTimeout bounds a single embedding call.
const EmbedTimeout = 30 * time.Second

// ErrEmptyBatch indicates Upsert was called with no documents.
var ErrEmptyBatch = errors.New("vectorstore: empty document batch")

// Scored pairs a stored document with its cosine distance from a query.
type Scored struct {
	Document show.Document
	Distance float64
}

// Store is the pgvector-backed document index.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool     *pgxpool.Pool
	embedder ai.Embedder
	logger   *slog.Logger
}

// New creates a vector store over an existing pool.
func New(pool *pgxpool.Pool, embedder ai.Embedder, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, embedder: embedder, logger: logger}, nil
}

// embed generates a vector embedding for the given text.
func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	dim := int32(VectorDimension)
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, fmt.Errorf("empty embedding response")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}

// SearchWithScores embeds the query and returns the k nearest documents
// ordered by ascending cosine distance.
func (s *Store) SearchWithScores(ctx context.Context, query string, k int) ([]Scored, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	embedCtx, cancel := context.WithTimeout(ctx, EmbedTimeout)
	defer cancel()
	vec, err := s.embed(embedCtx, query)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT local_id, content, metadata, embedding <=> $1 AS distance
		FROM shows
		ORDER BY embedding <=> $1
		LIMIT $2`, vec, k)
	if err != nil {
		return nil, fmt.Errorf("searching shows: %w", err)
	}
	defer rows.Close()

	var results []Scored
	for rows.Next() {
		var sc Scored
		if err := rows.Scan(&sc.Document.LocalID, &sc.Document.Content, &sc.Document.Metadata, &sc.Distance); err != nil {
			return nil, fmt.Errorf("scanning show row: %w", err)
		}
		results = append(results, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating show rows: %w", err)
	}
	return results, nil
}

// Upsert writes documents idempotently: within one transaction the
// batch's ids are deleted, then every document is inserted fresh.
// Re-upserting the same ids replaces content, metadata, and embeddings
// without leaving duplicates behind. Returns the written local ids in
// input order.
func (s *Store) Upsert(ctx context.Context, docs []show.Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, ErrEmptyBatch
	}
	ids := make([]string, len(docs))
	for i, doc := range docs {
		if strings.TrimSpace(doc.LocalID) == "" {
			return nil, fmt.Errorf("document %d has no local id", i)
		}
		ids[i] = doc.LocalID
	}

	// Embed outside the transaction so no connection is held during
	// the slow part.
	vectors := make([]pgvector.Vector, len(docs))
	for i, doc := range docs {
		embedCtx, cancel := context.WithTimeout(ctx, EmbedTimeout)
		vec, err := s.embed(embedCtx, doc.Content)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("embedding document %s: %w", doc.LocalID, err)
		}
		vectors[i] = vec
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM shows WHERE local_id = ANY($1)`, ids); err != nil {
		return nil, fmt.Errorf("deleting existing documents: %w", err)
	}
	for i, doc := range docs {
		_, err := tx.Exec(ctx, `
			INSERT INTO shows (local_id, content, metadata, embedding)
			VALUES ($1, $2, $3, $4)`,
			doc.LocalID, doc.Content, FlattenMetadata(doc.Metadata), vectors[i])
		if err != nil {
			return nil, fmt.Errorf("inserting document %s: %w", doc.LocalID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing upsert: %w", err)
	}

	s.logger.Debug("documents upserted", "count", len(ids))
	return ids, nil
}

// Delete removes documents by local id. Missing ids are not an error.
func (s *Store) Delete(ctx context.Context, localIDs ...string) error {
	if len(localIDs) == 0 {
		return nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM shows WHERE local_id = ANY($1)`, localIDs)
	if err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}
	s.logger.Debug("documents deleted", "requested", len(localIDs), "deleted", tag.RowsAffected())
	return nil
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM shows`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

// FlattenMetadata prepares a metadata map for storage. String slices
// join into pipe-delimited strings; scalars pass through; anything
// else is dropped. Keeps the stored JSON shape flat and queryable.
func FlattenMetadata(metadata map[string]any) map[string]any {
	flat := make(map[string]any, len(metadata))
	for key, value := range metadata {
		switch v := value.(type) {
		case []string:
			flat[key] = strings.Join(v, "|")
		case string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:
			flat[key] = v
		default:
			continue
		}
	}
	return flat
}
