package chat

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
)

// ErrBudgetExhausted indicates the allocator cannot trim the document and
// conversation pools enough to fit the generation budget. The caller can
// shorten the prompt itself or raise the budget.
var ErrBudgetExhausted = errors.New("context budget exhausted")

// Tokenizer is the contract the allocator needs: token counts and
// tail-preserving truncation. *token.Adapter satisfies it.
type Tokenizer interface {
	Count(text string) int
	Tail(text string, n int) string
}

// Assembly is the allocator's output: the final context and conversation
// payloads for one generation call.
type Assembly struct {
	Context      string // retrieved-document text, possibly truncated
	Conversation string // conversation window plus the untouched user prompt
}

// Allocator fits retrieved documents, conversation history, and the user
// prompt into a generation token budget. When the combined count exceeds the
// budget, the document and conversation pools each absorb a cut proportional
// to their share of the two pools' combined size. The user prompt is never
// shortened.
type Allocator struct {
	tokenizer Tokenizer
	buffer    int
	logger    *slog.Logger
}

// NewAllocator creates an Allocator. buffer is a fixed safety margin added
// to every total, compensating for divergence between the local tokenizer's
// counts and the generation service's own accounting.
func NewAllocator(tokenizer Tokenizer, buffer int, logger *slog.Logger) *Allocator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Allocator{
		tokenizer: tokenizer,
		buffer:    buffer,
		logger:    logger,
	}
}

// Fit assembles the final payloads under budget. Below budget both texts
// pass through verbatim, with the prompt appended to the conversation. Above
// budget the two trimmable pools are token-truncated from the front (the
// tail, the most recent content, is kept) and decoded back to text.
//
// Returns ErrBudgetExhausted when the required reduction exceeds what the
// two pools hold.
func (a *Allocator) Fit(documents, conversation, prompt string, budget int) (Assembly, error) {
	docTok := a.tokenizer.Count(documents)
	convTok := a.tokenizer.Count(conversation)
	promptTok := a.tokenizer.Count(prompt)

	total := docTok + convTok + promptTok + a.buffer
	if total <= budget {
		return Assembly{
			Context:      documents,
			Conversation: joinConversation(conversation, prompt),
		}, nil
	}

	excess := total - budget
	if excess > docTok+convTok {
		return Assembly{}, fmt.Errorf(
			"%w: need to cut %d tokens but document and conversation pools hold %d",
			ErrBudgetExhausted, excess, docTok+convTok)
	}

	// Proportional reduction. The document pool's new size is rounded to
	// nearest with ties away from zero; the conversation pool absorbs
	// exactly the remainder so the two cuts sum to the excess.
	docShare := float64(docTok) / float64(docTok+convTok)
	newDocTok := clamp(int(math.Round(float64(docTok)-float64(excess)*docShare)), docTok)
	docCut := docTok - newDocTok
	newConvTok := clamp(convTok-(excess-docCut), convTok)

	a.logger.Debug("trimming context to fit budget",
		"budget", budget,
		"excess", excess,
		"doc_tokens", docTok,
		"doc_kept", newDocTok,
		"conv_tokens", convTok,
		"conv_kept", newConvTok,
	)

	return Assembly{
		Context:      a.tokenizer.Tail(documents, newDocTok),
		Conversation: joinConversation(a.tokenizer.Tail(conversation, newConvTok), prompt),
	}, nil
}

func joinConversation(conversation, prompt string) string {
	if conversation == "" {
		return prompt
	}
	return conversation + "\n" + prompt
}

func clamp(n, max int) int {
	if n < 0 {
		return 0
	}
	if n > max {
		return max
	}
	return n
}
