package config

import (
	"fmt"
	"slices"
)

// validSSLModes are the SSL modes accepted by PostgreSQL.
var validSSLModes = []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// Model configuration
	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	// Token budgets. The history budget bounds the conversation window on
	// its own; the context budget bounds the final assembled payload and
	// must leave room past the safety buffer.
	if c.HistoryTokens < 1 {
		return fmt.Errorf("%w: history_tokens must be positive, got %d", ErrInvalidBudget, c.HistoryTokens)
	}
	if c.ContextTokens < 1 {
		return fmt.Errorf("%w: context_tokens must be positive, got %d", ErrInvalidBudget, c.ContextTokens)
	}
	if c.BufferTokens < 0 {
		return fmt.Errorf("%w: buffer_tokens cannot be negative, got %d", ErrInvalidBudget, c.BufferTokens)
	}
	if c.BufferTokens >= c.ContextTokens {
		return fmt.Errorf("%w: buffer_tokens (%d) must be smaller than context_tokens (%d)",
			ErrInvalidBudget, c.BufferTokens, c.ContextTokens)
	}

	// Retrieval configuration
	if c.TopK < 1 || c.TopK > 20 {
		return fmt.Errorf("%w: must be between 1 and 20, got %d", ErrInvalidTopK, c.TopK)
	}

	// PostgreSQL configuration
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: must be one of %v, got %q", ErrInvalidPostgresSSLMode, validSSLModes, c.PostgresSSLMode)
	}

	return nil
}

// ValidateAPIKey checks that the Gemini API key is present in the
// environment. Split from Validate so commands that never call the model
// (sessions list, version) work without a key.
func (c *Config) ValidateAPIKey() error {
	if c.APIKey() == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
			"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
			ErrMissingAPIKey)
	}
	return nil
}
