// Package app provides application initialization and dependency injection.
//
// App is the core container that wires all components: Genkit, the
// PostgreSQL connection pool, the vector store, the metadata cache, the
// AniDB MCP dialer, and the retrieval orchestrator with the answer chain
// on top.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anidex/anidex/internal/anidb"
	"github.com/anidex/anidex/internal/cache"
	"github.com/anidex/anidex/internal/config"
	"github.com/anidex/anidex/internal/ingest"
	"github.com/anidex/anidex/internal/rag"
	"github.com/anidex/anidex/internal/retrieval"
	"github.com/anidex/anidex/internal/vectorstore"
)

// App is the core application container.
type App struct {
	// Configuration
	Config *config.Config

	// Core services
	Genkit   *genkit.Genkit
	Model    ai.Model
	Embedder ai.Embedder // Explicitly exported for reuse in commands
	DBPool   *pgxpool.Pool

	// Domain services
	Vectors   *vectorstore.Store
	Cache     *cache.Store
	AniDB     *anidb.Dialer // nil when the external fallback is disabled
	Retriever *retrieval.Orchestrator
	Chain     *rag.Chain

	// Lifecycle management
	ctx          context.Context
	cancel       context.CancelFunc
	traceCleanup func()
}

// Reindex rebuilds vector rows from every record in the metadata cache.
// Returns how many records were indexed.
func (a *App) Reindex(ctx context.Context) (int, error) {
	records, err := a.Cache.LoadAll()
	if err != nil {
		return 0, fmt.Errorf("loading cached records: %w", err)
	}
	if len(records) == 0 {
		slog.Info("metadata cache is empty, nothing to reindex")
		return 0, nil
	}
	return ingest.Run(ctx, a.Vectors, records, a.Config.BatchSize, slog.Default().With("component", "reindex"))
}

// Close gracefully shuts down all resources.
func (a *App) Close() error {
	slog.Info("shutting down application")

	// 1. Cancel context
	if a.cancel != nil {
		a.cancel()
	}

	// MCP sessions are scoped to individual fallback attempts and
	// closed there; nothing to tear down here.

	// 2. Close database pool
	if a.DBPool != nil {
		a.DBPool.Close()
		slog.Info("database pool closed")
	}

	// 3. Flush pending trace spans
	if a.traceCleanup != nil {
		a.traceCleanup()
	}

	return nil
}
