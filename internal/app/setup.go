package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anidex/anidex/db"
	"github.com/anidex/anidex/internal/anidb"
	"github.com/anidex/anidex/internal/cache"
	"github.com/anidex/anidex/internal/config"
	"github.com/anidex/anidex/internal/observability"
	"github.com/anidex/anidex/internal/rag"
	"github.com/anidex/anidex/internal/retrieval"
	"github.com/anidex/anidex/internal/vectorstore"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup — call Close() to release.
func Setup(ctx context.Context, cfg *config.Config) (_ *App, retErr error) {
	a := &App{Config: cfg}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				slog.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.traceCleanup = provideTracing(ctx, cfg)

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, model, err := provideGenkit(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Genkit = g
	a.Model = model

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	vectors, err := vectorstore.New(pool, embedder, slog.Default().With("component", "vectorstore"))
	if err != nil {
		return nil, fmt.Errorf("creating vector store: %w", err)
	}
	a.Vectors = vectors

	metaCache, err := cache.Open(cfg.CacheDir, slog.Default().With("component", "cache"))
	if err != nil {
		return nil, fmt.Errorf("opening metadata cache: %w", err)
	}
	a.Cache = metaCache

	// The MCP dialer only exists when the external fallback is on; the
	// orchestrator dials a fresh session per fallback attempt, so a
	// missing or broken server surfaces as a degraded query, not a
	// startup failure.
	var dialer retrieval.Dialer
	if cfg.FallbackEnabled {
		a.AniDB = provideAniDB(cfg)
		anidbDialer := a.AniDB
		dialer = retrieval.DialerFunc(func(ctx context.Context) (retrieval.MetadataSession, error) {
			return anidbDialer.Dial(ctx)
		})
	}

	extractor := rag.NewExtractor(g, model, slog.Default().With("component", "extractor"))

	orchestrator, err := retrieval.New(vectors, dialer, metaCache, extractor, retrieval.Config{
		K:               cfg.RetrievalK,
		MinCount:        cfg.MinCount,
		MaxDistance:     cfg.MaxDistance,
		FallbackEnabled: cfg.FallbackEnabled,
	}, slog.Default().With("component", "retrieval"))
	if err != nil {
		return nil, fmt.Errorf("creating retrieval orchestrator: %w", err)
	}
	a.Retriever = orchestrator

	chain, err := rag.NewChain(g, model, orchestrator, slog.Default().With("component", "chain"))
	if err != nil {
		return nil, fmt.Errorf("creating answer chain: %w", err)
	}
	a.Chain = chain

	// Set up lifecycle management
	_, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	return a, nil
}

// provideTracing sets up Datadog tracing before Genkit initialization.
// Must run before provideGenkit so the TracerProvider is ready.
func provideTracing(ctx context.Context, cfg *config.Config) func() {
	shutdown, err := observability.SetupDatadog(ctx, observability.Config{
		AgentHost:   cfg.Datadog.AgentHost,
		Environment: cfg.Datadog.Environment,
		ServiceName: cfg.Datadog.ServiceName,
	})
	if err != nil {
		slog.Warn("setting up datadog tracing, tracing disabled", "error", err)
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideGenkit initializes Genkit with the configured AI provider and
// resolves the chat model. Supports gemini (default), ollama, and openai.
func provideGenkit(ctx context.Context, cfg *config.Config) (*genkit.Genkit, ai.Model, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = config.ProviderGemini
	}

	var g *genkit.Genkit
	var model ai.Model

	switch provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery)
		model = ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		// Register embedder for vector search
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		slog.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with openai provider")
		}
		model = genkit.LookupModel(g, cfg.FullModelName())
		slog.Info("initialized Genkit with openai provider", "model", cfg.ModelName)

	default: // "gemini"
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with gemini provider")
		}
		model = genkit.LookupModel(g, cfg.FullModelName())
		slog.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
	}

	if model == nil {
		return nil, nil, fmt.Errorf("model %q not found for provider %q", cfg.ModelName, provider)
	}

	return g, model, nil
}

// provideEmbedder looks up the embedder registered by the AI provider plugin.
// Each provider registers embedders differently:
//   - gemini: GoogleAIEmbedder(g, modelName)
//   - ollama: registered in provideGenkit, keyed by server address
//   - openai: auto-registered in Init(), looked up by model name
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	provider := cfg.Provider
	if provider == "" {
		provider = config.ProviderGemini
	}

	switch provider {
	case config.ProviderOllama:
		// Ollama embedder is keyed by server address (registered in provideGenkit)
		return ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderOpenAI:
		// OpenAI auto-registers embedders in Init()
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	default: // "gemini"
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// provideDBPool creates a PostgreSQL connection pool and runs migrations.
// Pool is configured with sensible defaults for connection management.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL(), slog.Default().With("component", "migrate")); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideAniDB creates the AniDB MCP dialer from configuration.
func provideAniDB(cfg *config.Config) *anidb.Dialer {
	return anidb.NewDialer(anidb.Config{
		Command:       cfg.AniDBCommand,
		Args:          cfg.AniDBArgs,
		Timeout:       time.Duration(cfg.AniDBTimeoutSecs) * time.Second,
		RatePerMinute: cfg.AniDBRatePerMinute,
	}, slog.Default().With("component", "anidb"))
}
