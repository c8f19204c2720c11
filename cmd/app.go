package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/sagechat/sage/internal/chat"
	"github.com/sagechat/sage/internal/config"
	"github.com/sagechat/sage/internal/database"
	"github.com/sagechat/sage/internal/knowledge"
	"github.com/sagechat/sage/internal/log"
	"github.com/sagechat/sage/internal/model"
	"github.com/sagechat/sage/internal/session"
	"github.com/sagechat/sage/internal/token"
)

// app holds the wired runtime for one command invocation. Commands that
// only touch storage use newStorageApp; commands that talk to the model
// (chat, ask, ingest) use newApp, which additionally requires an API key.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	pool   *pgxpool.Pool

	sessions  *session.Cache
	knowledge *knowledge.Store
	indexer   *knowledge.Indexer
	chat      *chat.Service
}

// newStorageApp loads configuration, runs migrations, and wires the
// storage-backed components. No model client is created.
func newStorageApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := log.New(log.Config{Level: logLevel()})

	if err := database.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.Open(ctx, cfg.PostgresDSN())
	if err != nil {
		return nil, err
	}

	store := session.NewStore(pool, logger.With("component", "session_store"))
	cache := session.NewCache(store, logger.With("component", "session_cache"))

	return &app{
		cfg:      cfg,
		logger:   logger,
		pool:     pool,
		sessions: cache,
	}, nil
}

// newApp wires the full pipeline: storage, tokenizer, Gemini client,
// knowledge store, and the chat service.
func newApp(ctx context.Context) (*app, error) {
	a, err := newStorageApp(ctx)
	if err != nil {
		return nil, err
	}

	cfg := a.cfg
	if err := cfg.ValidateAPIKey(); err != nil {
		a.Close()
		return nil, err
	}

	tokenizer, err := token.New()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initializing tokenizer: %w", err)
	}

	gemini, err := model.NewGemini(ctx, cfg.APIKey(), cfg.ModelName, cfg.EmbedderModel,
		tokenizer, a.logger.With("component", "gemini"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initializing model client: %w", err)
	}

	a.knowledge = knowledge.New(a.pool, gemini, a.logger.With("component", "knowledge"))
	a.indexer = knowledge.NewIndexer(a.knowledge, nil)

	svc, err := chat.New(chat.Config{
		Embedder:      gemini,
		Generator:     gemini,
		Retriever:     a.knowledge,
		Sessions:      a.sessions,
		Tokenizer:     tokenizer,
		Logger:        a.logger.With("component", "chat"),
		HistoryTokens: cfg.HistoryTokens,
		ContextTokens: cfg.ContextTokens,
		BufferTokens:  cfg.BufferTokens,
		TopK:          cfg.TopK,
		RateLimiter:   rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initializing chat service: %w", err)
	}
	a.chat = svc

	return a, nil
}

// Close releases the database pool.
func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

func logLevel() slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelWarn
}
