// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (SAGE_ prefix, runtime override)
//  2. Config file (~/.sage/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: chat model, embedder model, API key
//   - Storage: PostgreSQL connection (see storage.go)
//   - Budget: token budgets for the context assembly pipeline
//   - Retrieval: top-K and rate limiting knobs
//
// Sensitive values (passwords, API keys) are never logged.
// Validation lives in validation.go and uses sentinel errors so callers can
// check failures with errors.Is().
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidTopK indicates the retrieval top-K is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top-k")

	// ErrInvalidBudget indicates a token budget value is out of range.
	ErrInvalidBudget = errors.New("invalid token budget")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

// Default model configuration.
const (
	// DefaultModelName is the default chat model.
	DefaultModelName = "gemini-2.5-flash"

	// DefaultEmbedderModel is the default embedding model.
	// text-embedding-004 outputs 768-dimension vectors, matching the
	// pgvector schema in internal/database/migrations.
	DefaultEmbedderModel = "text-embedding-004"
)

// Default token budgets. HistoryTokens bounds the conversation window on
// its own; ContextTokens bounds the final assembled payload (documents +
// window + prompt + buffer). The two are deliberately independent.
const (
	DefaultHistoryTokens = 4000
	DefaultContextTokens = 12000
	DefaultBufferTokens  = 200
	DefaultTopK          = 5
)

// Config stores application configuration.
type Config struct {
	// AI model configuration
	ModelName     string `mapstructure:"model_name"`
	EmbedderModel string `mapstructure:"embedder_model"`

	// Token budget configuration
	HistoryTokens int `mapstructure:"history_tokens"` // conversation window budget
	ContextTokens int `mapstructure:"context_tokens"` // assembled payload budget
	BufferTokens  int `mapstructure:"buffer_tokens"`  // estimator safety margin

	// Retrieval configuration
	TopK int `mapstructure:"top_k"` // max retrieved documents per turn

	// Rate limiting for the generation service
	RateLimit      float64 `mapstructure:"rate_limit"`       // requests per second
	RateLimitBurst int     `mapstructure:"rate_limit_burst"` // burst size

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"` // SENSITIVE: never logged
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`
}

// APIKey returns the Gemini API key from the environment.
// Kept out of the Config struct so it can never end up in a config dump.
func (c *Config) APIKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".sage")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvPrefix("SAGE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings when set.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("model_name", DefaultModelName)
	v.SetDefault("embedder_model", DefaultEmbedderModel)

	v.SetDefault("history_tokens", DefaultHistoryTokens)
	v.SetDefault("context_tokens", DefaultContextTokens)
	v.SetDefault("buffer_tokens", DefaultBufferTokens)
	v.SetDefault("top_k", DefaultTopK)

	v.SetDefault("rate_limit", 10.0)
	v.SetDefault("rate_limit_burst", 30)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "sage")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_db_name", "sage")
	v.SetDefault("postgres_ssl_mode", "disable")
}
