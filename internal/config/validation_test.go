package config

import (
	"errors"
	"testing"
)

// validConfig returns a configuration that passes validation.
func validConfig() *Config {
	return &Config{
		ModelName:        DefaultModelName,
		EmbedderModel:    DefaultEmbedderModel,
		HistoryTokens:    DefaultHistoryTokens,
		ContextTokens:    DefaultContextTokens,
		BufferTokens:     DefaultBufferTokens,
		TopK:             DefaultTopK,
		RateLimit:        10,
		RateLimitBurst:   30,
		PostgresHost:     "localhost",
		PostgresPort:     5432,
		PostgresUser:     "sage",
		PostgresPassword: "sage_dev_password",
		PostgresDBName:   "sage",
		PostgresSSLMode:  "disable",
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateNilConfig(t *testing.T) {
	var cfg *Config
	if err := cfg.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Errorf("Validate() = %v, want ErrConfigNil", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"empty model", func(c *Config) { c.ModelName = "" }, ErrInvalidModelName},
		{"empty embedder", func(c *Config) { c.EmbedderModel = "" }, ErrInvalidEmbedderModel},
		{"zero history budget", func(c *Config) { c.HistoryTokens = 0 }, ErrInvalidBudget},
		{"negative context budget", func(c *Config) { c.ContextTokens = -1 }, ErrInvalidBudget},
		{"negative buffer", func(c *Config) { c.BufferTokens = -1 }, ErrInvalidBudget},
		{"buffer swallows budget", func(c *Config) { c.BufferTokens = c.ContextTokens }, ErrInvalidBudget},
		{"zero top-k", func(c *Config) { c.TopK = 0 }, ErrInvalidTopK},
		{"huge top-k", func(c *Config) { c.TopK = 100 }, ErrInvalidTopK},
		{"empty host", func(c *Config) { c.PostgresHost = "" }, ErrInvalidPostgresHost},
		{"bad port", func(c *Config) { c.PostgresPort = 70000 }, ErrInvalidPostgresPort},
		{"empty db name", func(c *Config) { c.PostgresDBName = "" }, ErrInvalidPostgresDBName},
		{"bad ssl mode", func(c *Config) { c.PostgresSSLMode = "yes" }, ErrInvalidPostgresSSLMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateAPIKey(t *testing.T) {
	cfg := validConfig()

	t.Setenv("GEMINI_API_KEY", "")
	if err := cfg.ValidateAPIKey(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("ValidateAPIKey() = %v, want ErrMissingAPIKey", err)
	}

	t.Setenv("GEMINI_API_KEY", "test-key")
	if err := cfg.ValidateAPIKey(); err != nil {
		t.Errorf("ValidateAPIKey() = %v, want nil", err)
	}
}
