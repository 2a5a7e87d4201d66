// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.anidex/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - AI: Model selection, temperature, max tokens, embedder
//   - Storage: PostgreSQL connection (see storage.go)
//   - Retrieval: Top-K, fallback thresholds for external lookup
//   - AniDB: External metadata server command, rate limit, timeout
//   - Observability: Datadog APM tracing (see observability.go)
//
// Security: Sensitive data (passwords) are never logged; config directory uses 0750 permissions.
// Validation: Comprehensive range checks in validation.go with clear error messages.
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidRetrievalK indicates the retrieval top-K value is out of range.
	ErrInvalidRetrievalK = errors.New("invalid retrieval k")

	// ErrInvalidMinCount indicates the fallback minimum result count is out of range.
	ErrInvalidMinCount = errors.New("invalid min count")

	// ErrInvalidMaxDistance indicates the fallback distance threshold is out of range.
	ErrInvalidMaxDistance = errors.New("invalid max distance")

	// ErrInvalidAniDBCommand indicates the AniDB MCP server command is invalid.
	ErrInvalidAniDBCommand = errors.New("invalid anidb command")

	// ErrInvalidAniDBTimeout indicates the AniDB call timeout is out of range.
	ErrInvalidAniDBTimeout = errors.New("invalid anidb timeout")

	// ErrInvalidCacheDir indicates the metadata cache directory is invalid.
	ErrInvalidCacheDir = errors.New("invalid cache directory")

	// ErrInvalidBatchSize indicates the ingestion batch size is out of range.
	ErrInvalidBatchSize = errors.New("invalid batch size")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")
)

const (
	// DefaultGeminiEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 outputs 3072 dimensions by default, but supports
	// truncation to 768 via OutputDimensionality (Matryoshka Representation Learning).
	// Our pgvector schema uses 768 dimensions; see vectorstore.VectorDimension.
	DefaultGeminiEmbedderModel = "gemini-embedding-001"

	// DefaultRetrievalK is the default number of documents returned per query.
	DefaultRetrievalK = 10

	// DefaultMinCount is the default minimum local result count before
	// the external fallback kicks in.
	DefaultMinCount = 3

	// DefaultMaxDistance is the default cosine-distance threshold above
	// which local results are considered too weak.
	DefaultMaxDistance = 0.7

	// DefaultBatchSize is the default ingestion batch size.
	DefaultBatchSize = 256

	// DefaultAniDBTimeoutSeconds is the default per-call timeout for the
	// AniDB MCP server.
	DefaultAniDBTimeoutSeconds = 30
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderOllama   = "ollama"
	ProviderOpenAI   = "openai"
	ProviderGoogleAI = "googleai"
)

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, tokens), update MarshalJSON.
type Config struct {
	// AI provider and model configuration
	Provider    string  `mapstructure:"provider" json:"provider"`     // "gemini" (default), "ollama", "openai"
	ModelName   string  `mapstructure:"model_name" json:"model_name"` // Model identifier (e.g., "gemini-2.5-flash", "llama3.3", "gpt-4o")
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Retrieval configuration
	EmbedderModel   string  `mapstructure:"embedder_model" json:"embedder_model"`
	RetrievalK      int     `mapstructure:"retrieval_k" json:"retrieval_k"`
	MinCount        int     `mapstructure:"min_count" json:"min_count"`
	MaxDistance     float64 `mapstructure:"max_distance" json:"max_distance"`
	FallbackEnabled bool    `mapstructure:"fallback_enabled" json:"fallback_enabled"`

	// AniDB MCP server configuration (see anidb.Config)
	AniDBCommand       string   `mapstructure:"anidb_command" json:"anidb_command"`
	AniDBArgs          []string `mapstructure:"anidb_args" json:"anidb_args"`
	AniDBTimeoutSecs   int      `mapstructure:"anidb_timeout_s" json:"anidb_timeout_s"`
	AniDBRatePerMinute int      `mapstructure:"anidb_rate_per_min" json:"anidb_rate_per_min"`

	// Metadata cache and ingestion configuration
	CacheDir  string `mapstructure:"cache_dir" json:"cache_dir"`
	ShowsJSON string `mapstructure:"shows_json" json:"shows_json"`
	BatchSize int    `mapstructure:"batch_size" json:"batch_size"`

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Observability configuration (see observability.go for type definition)
	Datadog DatadogConfig `mapstructure:"datadog" json:"datadog"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	// Configuration directory: ~/.anidex/
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".anidex")

	// Ensure directory exists (use 0750 permission for better security)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	// Configure Viper
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	// Set default values
	setDefaults()

	// Bind environment variables
	bindEnvVariables()

	// Read configuration file (if exists)
	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	// Use Unmarshal to automatically map to struct (type-safe)
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Parse DATABASE_URL if set (highest priority for PostgreSQL config)
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// CRITICAL: Validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("temperature", 0.7)
	viper.SetDefault("max_tokens", 2048)

	// Ollama defaults
	viper.SetDefault("ollama_host", "http://localhost:11434")

	// Retrieval defaults
	viper.SetDefault("embedder_model", DefaultGeminiEmbedderModel)
	viper.SetDefault("retrieval_k", DefaultRetrievalK)
	viper.SetDefault("min_count", DefaultMinCount)
	viper.SetDefault("max_distance", DefaultMaxDistance)
	viper.SetDefault("fallback_enabled", false)

	// AniDB MCP server defaults
	viper.SetDefault("anidb_command", "")
	viper.SetDefault("anidb_args", []string{})
	viper.SetDefault("anidb_timeout_s", DefaultAniDBTimeoutSeconds)
	viper.SetDefault("anidb_rate_per_min", 0)

	// Cache and ingestion defaults
	viper.SetDefault("cache_dir", filepath.Join("data", "mcp_cache"))
	viper.SetDefault("shows_json", filepath.Join("data", "shows.json"))
	viper.SetDefault("batch_size", DefaultBatchSize)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "anidex")
	viper.SetDefault("postgres_password", "anidex_dev_password")
	viper.SetDefault("postgres_db_name", "anidex")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Datadog defaults
	viper.SetDefault("datadog.agent_host", "localhost:4318")
	viper.SetDefault("datadog.environment", "dev")
	viper.SetDefault("datadog.service_name", "anidex")
}

// bindEnvVariables binds environment variable overrides explicitly.
// Secrets stay out of Viper where possible:
//   - GEMINI_API_KEY is read directly by Genkit (not via Viper), validated in cfg.Validate()
//   - DD_API_KEY - Datadog API key (optional, for observability)
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail)
	// If this panics, it's a BUG in our code, not a runtime error
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	// Datadog API key (optional, for observability)
	mustBind("datadog.api_key", "DD_API_KEY")

	// AI provider and model overrides
	mustBind("provider", "ANIDEX_PROVIDER")
	mustBind("model_name", "ANIDEX_MODEL_NAME")
	mustBind("ollama_host", "ANIDEX_OLLAMA_HOST")

	// Retrieval fallback overrides (handy for one-off runs)
	mustBind("fallback_enabled", "ANIDEX_FALLBACK_ENABLED")
	mustBind("anidb_command", "ANIDEX_ANIDB_COMMAND")
	mustBind("cache_dir", "ANIDEX_CACHE_DIR")

	// NOTE: GEMINI_API_KEY is read directly by Genkit, not via Viper
	// NOTE: OPENAI_API_KEY is read directly by Genkit OpenAI plugin, not via Viper
	// Validation checks their presence based on the selected provider in cfg.Validate()
}

// maskedValue is the placeholder for masked sensitive data.
// Using ████████ (full-width blocks U+2588) to avoid substring matching
// Previous attempts:
// - "****" failed: passwords with "*" leaked
// - "[REDACTED]" failed: passwords with "A", "D", "E", etc. leaked
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Shows first 2 and last 2 characters, masks the rest.
// SECURITY: For secrets <=8 chars, fully masks to prevent substring attacks.
// For longer secrets, shows partial chars with unique separator.
//
// THREAT MODEL: This defends against accidental logging of real secrets.
// It is NOT cryptographically secure - if logs are compromised, rotate secrets.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	// Fully mask short secrets to prevent substring matching attacks
	// Example attack: input "00***" → output "00******" contains "00***"
	if len(s) <= 8 {
		return maskedValue
	}
	// For longer secrets, show first/last 2 chars for debug utility
	// Example: "my_long_secret_key_123" → "my<████████>23"
	prefix := make([]byte, 2)
	suffix := make([]byte, 2)
	copy(prefix, s[:2])
	copy(suffix, s[len(s)-2:])
	return string(prefix) + "<" + maskedValue + ">" + string(suffix)
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - PostgresPassword
//   - Datadog.APIKey (via DatadogConfig.MarshalJSON)
//
// When adding new sensitive fields, update this method or the nested struct's MarshalJSON.
// The compiler will remind you when tests fail.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	// Note: Datadog.APIKey is handled by its own MarshalJSON
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// FullModelName returns the provider-qualified model name for Genkit.
// Examples: "googleai/gemini-2.5-flash", "ollama/llama3.3", "openai/gpt-4o".
// If ModelName already contains a "/", it is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + c.ModelName
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + c.ModelName
	default:
		return ProviderGoogleAI + "/" + c.ModelName
	}
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
