package chat

import (
	"strings"
	"testing"
	"time"

	"github.com/sagechat/sage/internal/session"
)

func testMessages(tokens ...int) []session.Message {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	msgs := make([]session.Message, len(tokens))
	for i, n := range tokens {
		msgs[i] = session.Message{
			Text:      string(rune('a' + i)),
			Tokens:    n,
			Sequence:  i + 1,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return msgs
}

func TestBuildWindowEmpty(t *testing.T) {
	if got := BuildWindow(nil, 100); got != "" {
		t.Errorf("BuildWindow(nil) = %q, want empty", got)
	}
	if got := BuildWindow(testMessages(10), 0); got != "" {
		t.Errorf("BuildWindow(budget 0) = %q, want empty", got)
	}
}

func TestBuildWindowAllFit(t *testing.T) {
	msgs := testMessages(10, 20, 30)
	got := BuildWindow(msgs, 100)
	if got != "a\nb\nc" {
		t.Errorf("BuildWindow() = %q, want all messages chronologically", got)
	}
}

func TestBuildWindowRecencyBias(t *testing.T) {
	// Budget fits the two most recent (30+40) but not three (20+30+40).
	msgs := testMessages(10, 20, 30, 40)
	got := BuildWindow(msgs, 75)
	if got != "c\nd" {
		t.Errorf("BuildWindow() = %q, want two most recent in chronological order", got)
	}
}

func TestBuildWindowDropsWholeMessages(t *testing.T) {
	// The first over-budget message is excluded entirely, along with
	// everything older, even if a later message would still fit.
	msgs := testMessages(5, 100, 10)
	got := BuildWindow(msgs, 20)
	if got != "c" {
		t.Errorf("BuildWindow() = %q, want only the newest message", got)
	}
}

func TestBuildWindowSingleOverBudget(t *testing.T) {
	msgs := testMessages(500)
	if got := BuildWindow(msgs, 100); got != "" {
		t.Errorf("BuildWindow() = %q, want empty window for oversized message", got)
	}
}

func TestBuildWindowBudgetRespected(t *testing.T) {
	msgs := testMessages(7, 13, 29, 31, 11, 3)
	for _, budget := range []int{1, 10, 25, 50, 94, 200} {
		got := BuildWindow(msgs, budget)
		total := 0
		for _, msg := range msgs {
			if got == msg.Text || strings.Contains(got, msg.Text) {
				total += msg.Tokens
			}
		}
		if total > budget {
			t.Errorf("budget %d: window holds %d tokens", budget, total)
		}
	}
}

func TestBuildWindowTimestampTieBreak(t *testing.T) {
	// Equal timestamps fall back to sequence order.
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	msgs := []session.Message{
		{Text: "first", Tokens: 10, Sequence: 1, CreatedAt: ts},
		{Text: "second", Tokens: 10, Sequence: 2, CreatedAt: ts},
	}
	if got := BuildWindow(msgs, 10); got != "second" {
		t.Errorf("BuildWindow() = %q, want the higher-sequence message", got)
	}
	if got := BuildWindow(msgs, 20); got != "first\nsecond" {
		t.Errorf("BuildWindow() = %q, want insertion order", got)
	}
}

func TestBuildWindowDoesNotMutateInput(t *testing.T) {
	msgs := testMessages(10, 20, 30)
	original := make([]session.Message, len(msgs))
	copy(original, msgs)

	BuildWindow(msgs, 25)

	for i := range msgs {
		if msgs[i].Text != original[i].Text || msgs[i].Sequence != original[i].Sequence {
			t.Fatal("input slice reordered")
		}
	}
}
