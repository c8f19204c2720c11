package chat

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/sagechat/sage/internal/log"
)

// runeCodec treats every rune as one token. Lossless and exact, so allocator
// arithmetic can be verified without a real BPE tokenizer.
type runeCodec struct{}

func (runeCodec) Count(text string) int { return utf8.RuneCountInString(text) }

func (runeCodec) Tail(text string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[len(runes)-n:])
}

func newTestAllocator(buffer int) *Allocator {
	return NewAllocator(runeCodec{}, buffer, log.NewNop())
}

func TestFitNoTrimming(t *testing.T) {
	alloc := newTestAllocator(200)

	docs := strings.Repeat("d", 100)
	conv := strings.Repeat("c", 50)
	prompt := strings.Repeat("p", 20)

	got, err := alloc.Fit(docs, conv, prompt, 2000)
	if err != nil {
		t.Fatalf("Fit() = %v", err)
	}
	if got.Context != docs {
		t.Error("context altered below budget")
	}
	if got.Conversation != conv+"\n"+prompt {
		t.Error("conversation altered below budget")
	}
}

func TestFitProportionalTrimming(t *testing.T) {
	alloc := newTestAllocator(200)

	// docTok=5000, convTok=3000, promptTok=100, buffer=200, budget=6000:
	// excess=2300, docShare=0.625, document keeps 3563 tail tokens and
	// conversation keeps 2137.
	docs := strings.Repeat("d", 1437) + strings.Repeat("D", 3563)
	conv := strings.Repeat("c", 863) + strings.Repeat("C", 2137)
	prompt := strings.Repeat("p", 100)

	got, err := alloc.Fit(docs, conv, prompt, 6000)
	if err != nil {
		t.Fatalf("Fit() = %v", err)
	}

	if got.Context != strings.Repeat("D", 3563) {
		t.Errorf("context keeps %d tokens (tail-marker count %d), want the last 3563",
			utf8.RuneCountInString(got.Context), strings.Count(got.Context, "D"))
	}
	wantConv := strings.Repeat("C", 2137) + "\n" + prompt
	if got.Conversation != wantConv {
		t.Errorf("conversation keeps %d tokens, want the last 2137 plus prompt",
			utf8.RuneCountInString(got.Conversation))
	}
}

func TestFitPromptInviolable(t *testing.T) {
	alloc := newTestAllocator(200)
	prompt := "the exact user question, never shortened"

	cases := []struct {
		name   string
		docs   string
		conv   string
		budget int
	}{
		{"below budget", "docs", "conv", 10000},
		{"heavy trimming", strings.Repeat("d", 5000), strings.Repeat("c", 3000), 1000},
		{"docs only", strings.Repeat("d", 2000), "", 500},
		{"conv only", "", strings.Repeat("c", 2000), 500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := alloc.Fit(tc.docs, tc.conv, prompt, tc.budget)
			if err != nil {
				t.Fatalf("Fit() = %v", err)
			}
			if !strings.HasSuffix(got.Conversation, prompt) {
				t.Errorf("output does not end with the untouched prompt: %q", got.Conversation)
			}
		})
	}
}

func TestFitBudgetExhausted(t *testing.T) {
	alloc := newTestAllocator(200)

	// Nothing to trim: both pools empty, prompt plus buffer over budget.
	_, err := alloc.Fit("", "", strings.Repeat("p", 100), 250)
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("Fit() = %v, want ErrBudgetExhausted", err)
	}

	// Pools exist but cannot absorb the full excess.
	_, err = alloc.Fit(strings.Repeat("d", 10), strings.Repeat("c", 10),
		strings.Repeat("p", 500), 400)
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("Fit() = %v, want ErrBudgetExhausted", err)
	}
}

func TestFitExactBudget(t *testing.T) {
	alloc := newTestAllocator(200)

	docs := strings.Repeat("d", 100)
	conv := strings.Repeat("c", 50)
	prompt := strings.Repeat("p", 20)

	// total = 100+50+20+200 = 370, exactly the budget: no trimming.
	got, err := alloc.Fit(docs, conv, prompt, 370)
	if err != nil {
		t.Fatalf("Fit() = %v", err)
	}
	if got.Context != docs {
		t.Error("context trimmed at exact budget")
	}
}

func TestFitExcessConsumesBothPoolsEntirely(t *testing.T) {
	alloc := newTestAllocator(0)

	// excess exactly equals the two pools: both trimmed to nothing, prompt
	// survives alone.
	got, err := alloc.Fit(strings.Repeat("d", 30), strings.Repeat("c", 20),
		strings.Repeat("p", 40), 40)
	if err != nil {
		t.Fatalf("Fit() = %v", err)
	}
	if got.Context != "" {
		t.Errorf("context = %q, want empty", got.Context)
	}
	if got.Conversation != strings.Repeat("p", 40) {
		t.Errorf("conversation = %q, want bare prompt", got.Conversation)
	}
}

func TestFitEmptyConversationBarePrompt(t *testing.T) {
	alloc := newTestAllocator(0)

	got, err := alloc.Fit("", "", "hello", 100)
	if err != nil {
		t.Fatalf("Fit() = %v", err)
	}
	// No leading separator when there is no conversation window.
	if got.Conversation != "hello" {
		t.Errorf("conversation = %q, want bare prompt", got.Conversation)
	}
}

func TestFitTrimmedTotalWithinBudget(t *testing.T) {
	alloc := newTestAllocator(200)
	codec := runeCodec{}

	cases := []struct {
		docs, conv, prompt int
		budget             int
	}{
		{5000, 3000, 100, 6000},
		{1000, 1000, 50, 1500},
		{10, 9000, 10, 3000},
		{9000, 10, 10, 3000},
		{333, 667, 1, 700},
	}
	for _, tc := range cases {
		got, err := alloc.Fit(
			strings.Repeat("d", tc.docs),
			strings.Repeat("c", tc.conv),
			strings.Repeat("p", tc.prompt),
			tc.budget)
		if err != nil {
			t.Fatalf("Fit(%d,%d,%d,%d) = %v", tc.docs, tc.conv, tc.prompt, tc.budget, err)
		}
		// Re-count the outputs; the newline separator is the only token not
		// charged to a pool.
		total := codec.Count(got.Context) + codec.Count(got.Conversation) + 200
		if total > tc.budget+1 {
			t.Errorf("Fit(%d,%d,%d,%d): output total %d exceeds budget",
				tc.docs, tc.conv, tc.prompt, tc.budget, total)
		}
	}
}
