// Package retrieval decides where search results come from. Vector
// search over the local index always runs first; when the hits are too
// few or too far, and external fallback is enabled, the orchestrator
// pulls fresh metadata from the external service, persists it, and
// merges it ahead of the local results.
//
// Fallback is strictly best-effort: no failure in the external path is
// allowed to break a query that already has local results.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/anidex/anidex/internal/anidb"
	"github.com/anidex/anidex/internal/cache"
	"github.com/anidex/anidex/internal/show"
	"github.com/anidex/anidex/internal/vectorstore"
)

// Searcher is the vector index surface the orchestrator needs.
type Searcher interface {
	SearchWithScores(ctx context.Context, query string, k int) ([]vectorstore.Scored, error)
	Upsert(ctx context.Context, docs []show.Document) ([]string, error)
}

// MetadataSession is one connected external service session: title
// search plus raw details fetch. Obtained from a Dialer and released
// with Close when the fallback attempt ends.
type MetadataSession interface {
	Search(ctx context.Context, title string) ([]anidb.SearchResult, error)
	FetchDetails(ctx context.Context, externalID int) ([]byte, error)
	Close()
}

// Dialer opens a metadata session. The orchestrator dials per fallback
// attempt so a dead external service costs exactly one failed dial,
// never a broken process-lifetime connection.
type Dialer interface {
	Dial(ctx context.Context) (MetadataSession, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (MetadataSession, error)

func (f DialerFunc) Dial(ctx context.Context) (MetadataSession, error) { return f(ctx) }

// Cache is the local record cache surface.
type Cache interface {
	Load(externalID int) (*show.Record, error)
	Save(r *show.Record, source string) error
}

// TitleExtractor pulls a show title out of a free-form question.
type TitleExtractor interface {
	ExtractTitle(ctx context.Context, query string) string
}

// Config tunes the acceptance test and fallback behavior.
type Config struct {
	// K is how many documents each vector search requests.
	K int

	// MinCount and MaxDistance define result acceptance: local results
	// are sufficient iff at least MinCount documents came back AND the
	// best (smallest) distance is at most MaxDistance.
	MinCount    int
	MaxDistance float64

	// FallbackEnabled gates the external path entirely.
	FallbackEnabled bool
}

// Result is one answered retrieval.
type Result struct {
	QueryID uuid.UUID
	Docs    []vectorstore.Scored

	// FallbackUsed reports whether an external document was merged in.
	FallbackUsed bool
}

// Orchestrator coordinates local search with external fallback.
type Orchestrator struct {
	searcher  Searcher
	dialer    Dialer
	cache     Cache
	extractor TitleExtractor
	cfg       Config
	logger    *slog.Logger
}

// New creates an orchestrator. dialer and extractor may be nil when
// fallback is disabled; searcher and cache are always required.
func New(searcher Searcher, dialer Dialer, c Cache, extractor TitleExtractor, cfg Config, logger *slog.Logger) (*Orchestrator, error) {
	if searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if c == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if cfg.FallbackEnabled {
		if dialer == nil {
			return nil, fmt.Errorf("metadata dialer is required when fallback is enabled")
		}
		if extractor == nil {
			return nil, fmt.Errorf("title extractor is required when fallback is enabled")
		}
	}
	if cfg.K <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", cfg.K)
	}
	if cfg.MinCount < 1 {
		return nil, fmt.Errorf("min_count must be at least 1, got %d", cfg.MinCount)
	}
	if cfg.MaxDistance < 0 {
		return nil, fmt.Errorf("max_distance must be non-negative, got %v", cfg.MaxDistance)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		searcher:  searcher,
		dialer:    dialer,
		cache:     c,
		extractor: extractor,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Retrieve answers a query. Local vector search runs first; if its
// results fail the acceptance test and fallback is enabled, the
// external path runs and its document is merged in front. Every
// external-path failure degrades to the local results.
func (o *Orchestrator) Retrieve(ctx context.Context, query string) (*Result, error) {
	queryID := uuid.New()
	logger := o.logger.With("query_id", queryID)

	started := time.Now()
	local, err := o.searcher.SearchWithScores(ctx, query, o.cfg.K)
	if err != nil {
		return nil, fmt.Errorf("local search: %w", err)
	}
	logger.Debug("local search completed",
		"hits", len(local), "duration", time.Since(started))

	if o.accept(local) {
		return &Result{QueryID: queryID, Docs: local}, nil
	}
	if !o.cfg.FallbackEnabled {
		logger.Debug("results insufficient, fallback disabled")
		return &Result{QueryID: queryID, Docs: local}, nil
	}

	external, err := o.fetchExternal(ctx, logger, query)
	if err != nil {
		// Absorb: a degraded answer beats no answer.
		logger.Warn("external fallback failed, serving local results", "error", err)
		return &Result{QueryID: queryID, Docs: local}, nil
	}
	if external == nil {
		return &Result{QueryID: queryID, Docs: local}, nil
	}

	return &Result{
		QueryID:      queryID,
		Docs:         merge(*external, local),
		FallbackUsed: true,
	}, nil
}

// accept is the result sufficiency test: enough hits and a close
// enough best hit. Results arrive distance-ordered, so the first is
// the best.
func (o *Orchestrator) accept(results []vectorstore.Scored) bool {
	if len(results) == 0 || len(results) < o.cfg.MinCount {
		return false
	}
	return results[0].Distance <= o.cfg.MaxDistance
}

// fetchExternal resolves a query to one externally sourced document:
// extract title, dial a session, search, take the first hit, then
// serve it from cache or fetch, normalize, and persist. The session is
// scoped to this one attempt and closed on every path. A nil document
// with nil error means the external service had no match.
func (o *Orchestrator) fetchExternal(ctx context.Context, logger *slog.Logger, query string) (*show.Document, error) {
	title := o.extractor.ExtractTitle(ctx, query)

	session, err := o.dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dialing metadata service: %w", err)
	}
	defer session.Close()

	hits, err := session.Search(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", title, err)
	}
	if len(hits) == 0 {
		logger.Debug("external search found nothing", "title", title)
		return nil, nil
	}
	hit := hits[0]

	record, err := o.cache.Load(hit.ID)
	switch {
	case err == nil:
		logger.Debug("cache hit", "external_id", hit.ID, "title", record.Title)
	case errors.Is(err, cache.ErrNotCached):
		record, err = o.fetchAndPersist(ctx, logger, session, hit.ID)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("loading cached show %d: %w", hit.ID, err)
	}

	doc := record.Document()
	return &doc, nil
}

// fetchAndPersist pulls details from the external service, normalizes
// them, and writes them to the cache and the vector index. Persistence
// failures are logged but do not discard the fetched record: the
// current query still gets the data, the next one refetches.
func (o *Orchestrator) fetchAndPersist(ctx context.Context, logger *slog.Logger, session MetadataSession, externalID int) (*show.Record, error) {
	raw, err := session.FetchDetails(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("fetching details for %d: %w", externalID, err)
	}
	record, err := show.ParseDetails(raw)
	if err != nil {
		return nil, fmt.Errorf("normalizing details for %d: %w", externalID, err)
	}

	if err := o.cache.Save(record, "mcp"); err != nil {
		logger.Warn("caching fetched show failed", "external_id", externalID, "error", err)
	}
	if _, err := o.searcher.Upsert(ctx, []show.Document{record.Document()}); err != nil {
		logger.Warn("indexing fetched show failed", "external_id", externalID, "error", err)
	}

	logger.Info("show fetched from external service",
		"external_id", externalID, "title", record.Title)
	return record, nil
}

// merge places the external document in front at distance 0.0 and
// drops any local hit with the same local id.
func merge(external show.Document, local []vectorstore.Scored) []vectorstore.Scored {
	merged := make([]vectorstore.Scored, 0, len(local)+1)
	merged = append(merged, vectorstore.Scored{Document: external, Distance: 0.0})
	for _, sc := range local {
		if sc.Document.LocalID == external.LocalID {
			continue
		}
		merged = append(merged, sc)
	}
	return merged
}
