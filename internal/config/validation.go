package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	// 0. Check for nil config (defensive programming)
	if c == nil {
		return ErrConfigNil
	}

	// 1. API key validation, keyed on the selected provider
	switch c.Provider {
	case ProviderGemini, ProviderGoogleAI, "":
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
				"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
				ErrMissingAPIKey)
		}
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required", ErrMissingAPIKey)
		}
	case ProviderOllama:
		if c.OllamaHost == "" {
			return fmt.Errorf("%w: ollama_host cannot be empty when provider is %q",
				ErrInvalidOllamaHost, ProviderOllama)
		}
	default:
		return fmt.Errorf("%w: %q is not supported, must be one of: %v",
			ErrInvalidProvider, c.Provider,
			[]string{ProviderGemini, ProviderOllama, ProviderOpenAI})
	}

	// 2. Model configuration validation
	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	// Temperature range: 0.0 (deterministic) to 2.0 (maximum creativity)
	// Reference: Gemini API documentation
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	// MaxTokens range: 1 to 2097152 (Gemini 2.5 max context window)
	// Reference: https://ai.google.dev/gemini-api/docs/models
	if c.MaxTokens < 1 || c.MaxTokens > 2097152 {
		return fmt.Errorf("%w: must be between 1 and 2,097,152, got %d", ErrInvalidMaxTokens, c.MaxTokens)
	}

	// 3. Retrieval configuration validation
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	if c.RetrievalK <= 0 || c.RetrievalK > 100 {
		return fmt.Errorf("%w: must be between 1 and 100, got %d", ErrInvalidRetrievalK, c.RetrievalK)
	}

	if c.MinCount < 1 || c.MinCount > c.RetrievalK {
		return fmt.Errorf("%w: must be between 1 and retrieval_k (%d), got %d",
			ErrInvalidMinCount, c.RetrievalK, c.MinCount)
	}

	// Cosine distance ranges over [0, 2]
	if c.MaxDistance < 0 || c.MaxDistance > 2 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.4f", ErrInvalidMaxDistance, c.MaxDistance)
	}

	// 4. AniDB MCP server validation (only bites when the fallback is on)
	if c.FallbackEnabled && c.AniDBCommand == "" {
		return fmt.Errorf("%w: anidb_command must be set when fallback_enabled is true",
			ErrInvalidAniDBCommand)
	}

	if c.AniDBTimeoutSecs < 1 || c.AniDBTimeoutSecs > 600 {
		return fmt.Errorf("%w: must be between 1 and 600 seconds, got %d",
			ErrInvalidAniDBTimeout, c.AniDBTimeoutSecs)
	}

	// 5. Cache and ingestion validation
	if c.CacheDir == "" {
		return fmt.Errorf("%w: cache_dir cannot be empty", ErrInvalidCacheDir)
	}

	if c.BatchSize < 1 || c.BatchSize > 10000 {
		return fmt.Errorf("%w: must be between 1 and 10,000, got %d", ErrInvalidBatchSize, c.BatchSize)
	}

	// 6. PostgreSQL configuration validation
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set in config.yaml",
			ErrInvalidPostgresPassword)
	}

	// Warn if using default dev password (but don't block - user might be in dev)
	if c.PostgresPassword == "anidex_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "Change postgres_password in config.yaml for production deployments")
	}

	// Validate password strength (minimum 8 characters)
	if len(c.PostgresPassword) < 8 {
		return fmt.Errorf("%w: postgres_password must be at least 8 characters (got %d)",
			ErrInvalidPostgresPassword, len(c.PostgresPassword))
	}

	// 7. PostgreSQL SSL mode validation
	// Modern SSL modes only - exclude deprecated allow/prefer (MITM vulnerable)
	// Reference: https://www.postgresql.org/docs/current/libpq-ssl.html
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if c.PostgresSSLMode == "" {
		return fmt.Errorf("%w: postgres_ssl_mode is empty (should have default from setDefaults)",
			ErrInvalidPostgresSSLMode)
	}

	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v\n"+
			"Note: 'allow' and 'prefer' modes are deprecated (vulnerable to MITM attacks)",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	return nil
}
