package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/sagechat/sage/internal/knowledge"
	"github.com/sagechat/sage/internal/model"
	"github.com/sagechat/sage/internal/session"
)

// ErrInvalidRequest indicates a missing session id or empty prompt. The
// request is rejected immediately with no side effects.
var ErrInvalidRequest = errors.New("invalid chat request")

const (
	defaultTopK          = 5
	defaultHistoryTokens = 4000
	defaultContextTokens = 12000
	defaultBufferTokens  = 200

	titleGenerationTimeout = 5 * time.Second
	titleInputMaxRunes     = 500
)

const systemPrompt = `You are a helpful assistant. Answer using the reference material below when it is relevant; say so when it is not sufficient. Be concise and accurate.

Reference material:
%s`

const titlePrompt = `Generate a concise title (at most six words) summarizing this message. Reply with the title only, no quotes or punctuation around it.

Message: %s

Title:`

// Retriever finds documents similar to a query embedding.
// *knowledge.Store satisfies it.
type Retriever interface {
	Search(ctx context.Context, embedding []float32, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
}

// Sessions is the session-cache surface one turn needs.
// *session.Cache satisfies it.
type Sessions interface {
	Get(sessionID uuid.UUID) (session.Session, error)
	Messages(ctx context.Context, sessionID uuid.UUID) ([]session.Message, error)
	AppendTurn(ctx context.Context, sessionID uuid.UUID, prompt, completion session.Message) error
	Rename(ctx context.Context, sessionID uuid.UUID, title string) error
}

// Config contains all required parameters for the chat service.
type Config struct {
	Embedder  model.Embedder
	Generator model.Generator
	Retriever Retriever
	Sessions  Sessions
	Tokenizer Tokenizer
	Logger    *slog.Logger

	// Token management
	HistoryTokens int // conversation window budget
	ContextTokens int // overall generation budget
	BufferTokens  int // safety margin for tokenizer estimate drift

	// Retrieval
	TopK int

	// Resilience
	CircuitBreakerConfig CircuitBreakerConfig
	RateLimiter          *rate.Limiter // nil = no proactive limiting
}

// validate checks that all required dependencies are present.
func (cfg Config) validate() error {
	if cfg.Embedder == nil {
		return errors.New("embedder is required")
	}
	if cfg.Generator == nil {
		return errors.New("generator is required")
	}
	if cfg.Retriever == nil {
		return errors.New("retriever is required")
	}
	if cfg.Sessions == nil {
		return errors.New("session cache is required")
	}
	if cfg.Tokenizer == nil {
		return errors.New("tokenizer is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Service runs one retrieval-augmented conversation turn end to end.
//
// Service is stateless across turns apart from the circuit breaker and rate
// limiter; all configuration is captured immutably at construction, so it is
// safe for concurrent use.
type Service struct {
	embedder  model.Embedder
	generator model.Generator
	retriever Retriever
	sessions  Sessions
	allocator *Allocator
	logger    *slog.Logger

	historyTokens int
	contextTokens int
	topK          int

	breaker *CircuitBreaker
	limiter *rate.Limiter
}

// New creates a Service. Zero token budgets and TopK get defaults.
func New(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.HistoryTokens <= 0 {
		cfg.HistoryTokens = defaultHistoryTokens
	}
	if cfg.ContextTokens <= 0 {
		cfg.ContextTokens = defaultContextTokens
	}
	if cfg.BufferTokens <= 0 {
		cfg.BufferTokens = defaultBufferTokens
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}

	return &Service{
		embedder:      cfg.Embedder,
		generator:     cfg.Generator,
		retriever:     cfg.Retriever,
		sessions:      cfg.Sessions,
		allocator:     NewAllocator(cfg.Tokenizer, cfg.BufferTokens, cfg.Logger),
		logger:        cfg.Logger,
		historyTokens: cfg.HistoryTokens,
		contextTokens: cfg.ContextTokens,
		topK:          cfg.TopK,
		breaker:       NewCircuitBreaker(cfg.CircuitBreakerConfig),
		limiter:       cfg.RateLimiter,
	}, nil
}

// ProcessTurn runs one chat turn: embed the prompt, retrieve documents and
// build the history window, fit both into the generation budget, generate,
// then persist the prompt/completion pair atomically.
//
// On success two new messages exist in cache and store and the session's
// token counter has advanced; no other session is touched. On failure the
// turn aborts with a classified error and no cache mutation, except an
// append whose store write failed: that error satisfies
// errors.Is(err, session.ErrCacheAhead) and the completion text is still
// returned, since the cache holds the turn.
func (s *Service) ProcessTurn(ctx context.Context, sessionID uuid.UUID, prompt string) (string, error) {
	if sessionID == uuid.Nil || strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: session id and prompt are required", ErrInvalidRequest)
	}
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return "", err
	}

	logger := s.logger.With("session_id", sessionID)
	start := time.Now()

	emb, err := s.embedder.Embed(ctx, prompt)
	if err != nil {
		return "", s.fail(logger, StateEmbedding, err)
	}
	logger.Debug("prompt embedded", "state", StateEmbedding, "tokens", emb.Tokens)

	// Retrieval and window building are independent; run both, join before
	// allocation. Buffered channels let the goroutines exit even if the
	// caller bails on context error.
	type retrievalResult struct {
		text string
		err  error
	}
	type windowResult struct {
		text string
		err  error
	}

	retrievalCh := make(chan retrievalResult, 1)
	windowCh := make(chan windowResult, 1)

	go func() {
		results, err := s.retriever.Search(ctx, emb.Vector, knowledge.WithTopK(s.topK))
		if err != nil {
			retrievalCh <- retrievalResult{err: err}
			return
		}
		retrievalCh <- retrievalResult{text: joinDocuments(results)}
	}()

	go func() {
		msgs, err := s.sessions.Messages(ctx, sessionID)
		if err != nil {
			windowCh <- windowResult{err: err}
			return
		}
		windowCh <- windowResult{text: BuildWindow(msgs, s.historyTokens)}
	}()

	rr := <-retrievalCh
	if rr.err != nil {
		return "", s.fail(logger, StateRetrieving, rr.err)
	}
	logger.Debug("documents retrieved", "state", StateRetrieving, "context_length", len(rr.text))

	wr := <-windowCh
	if wr.err != nil {
		return "", s.fail(logger, StateWindowBuilding, wr.err)
	}
	logger.Debug("history window built", "state", StateWindowBuilding, "window_length", len(wr.text))

	assembly, err := s.allocator.Fit(rr.text, wr.text, prompt, s.contextTokens)
	if err != nil {
		return "", s.fail(logger, StateBudgetAllocating, err)
	}

	completion, err := s.generate(ctx, assembly)
	if err != nil {
		return "", s.fail(logger, StateGenerating, err)
	}
	logger.Debug("completion generated", "state", StateGenerating,
		"prompt_tokens", completion.PromptTokens,
		"completion_tokens", completion.CompletionTokens,
	)

	userMsg := session.NewUserMessage(sessionID, prompt, emb.Tokens)
	assistantMsg := session.NewAssistantMessage(sessionID, completion.Text,
		completion.CompletionTokens, completion.PromptTokens)

	if err := s.sessions.AppendTurn(ctx, sessionID, userMsg, assistantMsg); err != nil {
		if errors.Is(err, session.ErrCacheAhead) {
			// The turn exists in cache and the answer is real; return it
			// alongside the divergence error so the caller can decide.
			return completion.Text, s.fail(logger, StatePersisting, err)
		}
		return "", s.fail(logger, StatePersisting, err)
	}

	if sess.Title == session.DefaultTitle {
		s.maybeRenameSession(ctx, logger, sessionID, prompt)
	}

	logger.Info("turn complete", "state", StateDone, "duration", time.Since(start))
	return completion.Text, nil
}

// generate calls the model behind the circuit breaker and rate limiter.
func (s *Service) generate(ctx context.Context, assembly Assembly) (model.Completion, error) {
	if err := s.breaker.Allow(); err != nil {
		return model.Completion{}, err
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return model.Completion{}, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	completion, err := s.generator.Complete(ctx,
		fmt.Sprintf(systemPrompt, assembly.Context), assembly.Conversation)
	if err != nil {
		s.breaker.Failure()
		return model.Completion{}, err
	}
	s.breaker.Success()
	return completion, nil
}

// maybeRenameSession replaces the placeholder title with a generated summary
// of the first prompt. Best-effort: failures are logged, never surfaced.
// Detached from the request context so a caller disconnecting right after
// the turn does not abort the rename mid-write.
func (s *Service) maybeRenameSession(ctx context.Context, logger *slog.Logger, sessionID uuid.UUID, prompt string) {
	titleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), titleGenerationTimeout)
	defer cancel()

	if runes := []rune(prompt); len(runes) > titleInputMaxRunes {
		prompt = string(runes[:titleInputMaxRunes]) + "..."
	}

	completion, err := s.generator.Complete(titleCtx, "", fmt.Sprintf(titlePrompt, prompt))
	if err != nil {
		logger.Debug("title generation failed", "error", err)
		return
	}

	title := strings.TrimSpace(completion.Text)
	if title == "" {
		return
	}
	if runes := []rune(title); len(runes) > session.TitleMaxLength {
		title = string(runes[:session.TitleMaxLength-3]) + "..."
	}

	if err := s.sessions.Rename(titleCtx, sessionID, title); err != nil {
		logger.Debug("session rename failed", "error", err)
	}
}

// joinDocuments flattens search results into one context block, most similar
// first, separated by blank lines.
func joinDocuments(results []knowledge.Result) string {
	if len(results) == 0 {
		return ""
	}
	parts := make([]string, len(results))
	for i, res := range results {
		parts[i] = res.Document.Content
	}
	return strings.Join(parts, "\n\n")
}

// fail logs a stage failure with enough context to diagnose and returns the
// error for propagation. No error is swallowed.
func (s *Service) fail(logger *slog.Logger, state State, err error) error {
	logger.Error("turn failed", "state", state, "error", err)
	return fmt.Errorf("%s: %w", state, err)
}
