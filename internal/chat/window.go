package chat

import (
	"slices"
	"strings"

	"github.com/sagechat/sage/internal/session"
)

// BuildWindow selects the most recent messages whose cumulative stored token
// counts fit within budget and joins their text chronologically with newline
// separators.
//
// Selection is greedy and recency-biased: messages are considered newest
// first, and the first message that would push the running total over budget
// is dropped whole, along with everything older. A single message that alone
// exceeds the budget yields an empty window, not an error.
func BuildWindow(msgs []session.Message, budget int) string {
	if len(msgs) == 0 || budget <= 0 {
		return ""
	}

	// Newest first; sequence numbers break timestamp ties.
	sorted := make([]session.Message, len(msgs))
	copy(sorted, msgs)
	slices.SortStableFunc(sorted, func(a, b session.Message) int {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if a.CreatedAt.After(b.CreatedAt) {
				return -1
			}
			return 1
		}
		return b.Sequence - a.Sequence
	})

	used := 0
	included := make([]session.Message, 0, len(sorted))
	for _, msg := range sorted {
		if used+msg.Tokens > budget {
			break
		}
		used += msg.Tokens
		included = append(included, msg)
	}
	if len(included) == 0 {
		return ""
	}

	// Back to chronological order for the final text.
	slices.Reverse(included)

	parts := make([]string, len(included))
	for i, msg := range included {
		parts[i] = msg.Text
	}
	return strings.Join(parts, "\n")
}
