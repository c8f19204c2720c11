package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Role constants define valid message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultTitle is the placeholder title a session carries until the first
// turn produces a generated summary title.
const DefaultTitle = "New conversation"

// TitleMaxLength is the maximum session title length in runes.
const TitleMaxLength = 80

// Sentinel errors for session operations, checked with errors.Is().
var (
	// ErrNotFound indicates the requested session does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrCacheInconsistency indicates a mutation referenced a session id
	// absent from the cache. This is a programming-contract violation, not
	// a user error: the turn fails rather than creating a phantom session.
	ErrCacheInconsistency = errors.New("session cache inconsistency")

	// ErrCacheAhead indicates a persistence failure after the cache was
	// already mutated: the in-memory state is ahead of the store. Callers
	// (or a reconciliation process) may retry the store write alone.
	ErrCacheAhead = errors.New("cache ahead of persistent store")
)

// Session represents a conversation thread. A session exclusively owns its
// messages; deleting the session deletes them all.
type Session struct {
	ID          uuid.UUID
	Title       string
	TotalTokens int64 // cumulative, monotonically non-decreasing
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Message is a single conversation message. Messages are immutable after
// creation; ordering is chronological with sequence numbers breaking ties.
type Message struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	Role      string // RoleUser | RoleAssistant
	Text      string
	Tokens    int // token count of Text
	// PromptTokens is only meaningful for assistant messages: the tokens
	// consumed processing the paired request, distinct from Tokens (the
	// completion's own count).
	PromptTokens int
	Sequence     int
	CreatedAt    time.Time
}

// NewUserMessage builds a user message for a session.
func NewUserMessage(sessionID uuid.UUID, text string, tokens int) Message {
	return Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      RoleUser,
		Text:      text,
		Tokens:    tokens,
		CreatedAt: time.Now(),
	}
}

// NewAssistantMessage builds an assistant message for a session.
func NewAssistantMessage(sessionID uuid.UUID, text string, tokens, promptTokens int) Message {
	return Message{
		ID:           uuid.New(),
		SessionID:    sessionID,
		Role:         RoleAssistant,
		Text:         text,
		Tokens:       tokens,
		PromptTokens: promptTokens,
		CreatedAt:    time.Now(),
	}
}

// TurnTokens is the amount the session counter advances by for one
// prompt/completion pair.
func TurnTokens(prompt, completion Message) int64 {
	return int64(prompt.Tokens) + int64(completion.PromptTokens) + int64(completion.Tokens)
}
