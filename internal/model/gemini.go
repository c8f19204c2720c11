package model

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

// embeddingDimension matches the pgvector schema (vector(768)).
// text-embedding-004 emits 768 dimensions natively; larger models are
// truncated via OutputDimensionality.
const embeddingDimension int32 = 768

// TokenCounter estimates the token count of a text. The Gemini embedding
// API does not report token usage, so the client falls back to the
// pipeline's own tokenizer adapter for the Embedding.Tokens field.
type TokenCounter interface {
	Count(text string) int
}

// Gemini implements Embedder and Generator against the Gemini API.
type Gemini struct {
	client     *genai.Client
	model      string
	embedModel string
	counter    TokenCounter
	logger     *slog.Logger
}

// NewGemini creates a Gemini client for both embedding and generation.
func NewGemini(ctx context.Context, apiKey, model, embedModel string, counter TokenCounter, logger *slog.Logger) (*Gemini, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &Gemini{
		client:     client,
		model:      model,
		embedModel: embedModel,
		counter:    counter,
		logger:     logger,
	}, nil
}

// Embed implements Embedder.
func (g *Gemini) Embed(ctx context.Context, text string) (Embedding, error) {
	dim := embeddingDimension
	resp, err := g.client.Models.EmbedContent(ctx, g.embedModel,
		genai.Text(text),
		&genai.EmbedContentConfig{OutputDimensionality: &dim},
	)
	if err != nil {
		return Embedding{}, fmt.Errorf("%w: embedding with %s: %v", ErrEmbedding, g.embedModel, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return Embedding{}, fmt.Errorf("%w: empty embedding returned by %s", ErrEmbedding, g.embedModel)
	}

	emb := Embedding{Vector: resp.Embeddings[0].Values}
	if g.counter != nil {
		emb.Tokens = g.counter.Count(text)
	}

	g.logger.Debug("embedded text",
		"model", g.embedModel,
		"dimensions", len(emb.Vector),
		"tokens", emb.Tokens)
	return emb, nil
}

// Complete implements Generator.
func (g *Gemini) Complete(ctx context.Context, system, prompt string) (Completion, error) {
	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return Completion{}, fmt.Errorf("%w: generating with %s: %v", ErrGeneration, g.model, err)
	}

	text := resp.Text()
	if text == "" {
		return Completion{}, fmt.Errorf("%w: empty response from %s", ErrGeneration, g.model)
	}

	out := Completion{Text: text}
	if usage := resp.UsageMetadata; usage != nil {
		out.PromptTokens = int(usage.PromptTokenCount)
		out.CompletionTokens = int(usage.CandidatesTokenCount)
	} else if g.counter != nil {
		// Some responses omit usage metadata; estimate so the session
		// token counter still advances.
		out.PromptTokens = g.counter.Count(system) + g.counter.Count(prompt)
		out.CompletionTokens = g.counter.Count(text)
	}

	g.logger.Debug("generated completion",
		"model", g.model,
		"prompt_tokens", out.PromptTokens,
		"completion_tokens", out.CompletionTokens)
	return out, nil
}
