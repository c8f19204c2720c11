// Package model defines the external model collaborators the chat pipeline
// depends on: an embedding service and a chat-completion service.
//
// The contracts are intentionally small request/response interfaces; the
// Gemini implementation in gemini.go is one provider behind them, and tests
// substitute stubs.
package model

import (
	"context"
	"errors"
)

// Sentinel errors for collaborator failures. Implementations wrap these so
// callers can classify failures with errors.Is() without knowing the
// provider.
var (
	// ErrEmbedding indicates the embedding service failed (unavailable,
	// input too long).
	ErrEmbedding = errors.New("embedding service failure")

	// ErrGeneration indicates the generation service failed (quota, limit
	// violations, unavailability).
	ErrGeneration = errors.New("generation service failure")
)

// Embedding is the result of embedding one text.
type Embedding struct {
	Vector []float32 // fixed-length vector for similarity comparison
	Tokens int       // token count of the embedded text
}

// Embedder converts text into a vector usable for similarity ranking.
// Identical text must yield vectors usable for consistent ranking.
type Embedder interface {
	Embed(ctx context.Context, text string) (Embedding, error)
}

// Completion is the result of one generation call.
type Completion struct {
	Text             string
	PromptTokens     int // tokens consumed processing the request
	CompletionTokens int // tokens in the generated text
}

// Generator produces a chat completion from a system context and the
// combined conversation-plus-prompt payload.
type Generator interface {
	Complete(ctx context.Context, system, prompt string) (Completion, error)
}
