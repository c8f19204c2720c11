package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Storer is the persistent-store contract the Cache consumes.
// *Store satisfies it; tests substitute mocks.
type Storer interface {
	CreateSession(ctx context.Context, sess Session) error
	ListSessions(ctx context.Context) ([]Session, error)
	ListMessages(ctx context.Context, sessionID uuid.UUID) ([]Message, error)
	RenameSession(ctx context.Context, sessionID uuid.UUID, title string) error
	DeleteSession(ctx context.Context, sessionID uuid.UUID) error
	AppendTurn(ctx context.Context, sessionID uuid.UUID, totalTokens int64, prompt, completion Message) error
}

// entry is one cached session. The loaded flag makes hydration state
// explicit: false means the message list has not been fetched yet, which is
// distinct from a loaded-but-empty session.
type entry struct {
	mu       sync.Mutex
	session  Session
	messages []Message
	loaded   bool
}

// Cache is the process-wide in-memory view of sessions and their messages,
// lazily hydrated from and write-through synchronized with a Storer.
//
// Mutations update the cache before the store; a store failure therefore
// leaves the cache ahead and is reported via ErrCacheAhead rather than
// rolled back. Per-entry mutexes serialize all access to one session, so a
// reader never observes the cache mutated for a turn whose store write has
// not at least been attempted.
type Cache struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*entry
	store   Storer
	logger  *slog.Logger
}

// NewCache creates an empty Cache over the given store.
func NewCache(store Storer, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		entries: make(map[uuid.UUID]*entry),
		store:   store,
		logger:  logger,
	}
}

// List fetches all sessions from the store and replaces the cached session
// set wholesale. Any in-memory-only state (including hydrated message
// lists) is discarded; callers must persist before calling List.
func (c *Cache) List(ctx context.Context) ([]Session, error) {
	sessions, err := c.store.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("refreshing session list: %w", err)
	}

	c.mu.Lock()
	c.entries = make(map[uuid.UUID]*entry, len(sessions))
	for _, sess := range sessions {
		c.entries[sess.ID] = &entry{session: sess}
	}
	c.mu.Unlock()

	c.logger.Debug("refreshed session cache", "count", len(sessions))
	return sessions, nil
}

// Get returns the cached session record.
func (c *Cache) Get(sessionID uuid.UUID) (Session, error) {
	ent, err := c.lookup(sessionID)
	if err != nil {
		return Session{}, err
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()
	return ent.session, nil
}

// Messages returns a session's messages in chronological order, fetching
// from the store on first access only. Once hydrated, the list is served
// from memory for the process lifetime (until the next List refresh) — a
// latency-over-freshness trade-off.
func (c *Cache) Messages(ctx context.Context, sessionID uuid.UUID) ([]Message, error) {
	ent, err := c.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()

	if !ent.loaded {
		messages, err := c.store.ListMessages(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("hydrating messages for session %s: %w", sessionID, err)
		}
		ent.messages = messages
		ent.loaded = true
		c.logger.Debug("hydrated session messages", "session_id", sessionID, "count", len(messages))
	}

	out := make([]Message, len(ent.messages))
	copy(out, ent.messages)
	return out, nil
}

// Create allocates a new session with a generated identifier and the
// placeholder title, adds it to the cache, then persists it. The cache is
// updated before persistence confirmation; on store failure the returned
// error satisfies errors.Is(err, ErrCacheAhead).
func (c *Cache) Create(ctx context.Context) (Session, error) {
	now := time.Now()
	sess := Session{
		ID:        uuid.New(),
		Title:     DefaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
	}

	c.mu.Lock()
	c.entries[sess.ID] = &entry{session: sess, loaded: true}
	c.mu.Unlock()

	if err := c.store.CreateSession(ctx, sess); err != nil {
		return sess, fmt.Errorf("persisting new session %s: %w: %w", sess.ID, ErrCacheAhead, err)
	}

	c.logger.Debug("created session", "id", sess.ID)
	return sess, nil
}

// Rename updates the session title in cache, then in the store.
func (c *Cache) Rename(ctx context.Context, sessionID uuid.UUID, title string) error {
	ent, err := c.lookup(sessionID)
	if err != nil {
		return err
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()

	ent.session.Title = title
	ent.session.UpdatedAt = time.Now()

	if err := c.store.RenameSession(ctx, sessionID, title); err != nil {
		return fmt.Errorf("persisting rename of session %s: %w: %w", sessionID, ErrCacheAhead, err)
	}

	c.logger.Debug("renamed session", "id", sessionID)
	return nil
}

// Delete removes the session (and its messages) from cache, then from the
// store.
func (c *Cache) Delete(ctx context.Context, sessionID uuid.UUID) error {
	c.mu.Lock()
	_, ok := c.entries[sessionID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("deleting session %s: %w", sessionID, ErrCacheInconsistency)
	}
	delete(c.entries, sessionID)
	c.mu.Unlock()

	if err := c.store.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("persisting delete of session %s: %w: %w", sessionID, ErrCacheAhead, err)
	}

	c.logger.Debug("deleted session", "id", sessionID)
	return nil
}

// AppendTurn appends a prompt/completion pair to the cached session,
// advances the cumulative token counter by prompt.Tokens +
// completion.PromptTokens + completion.Tokens, then issues one atomic store
// call covering the counter and both messages.
//
// The entry lock is held across the cache mutation and the store call, so
// no reader observes the new messages before the store write has been
// attempted. The cache mutation itself is all-or-nothing and not gated on
// ctx: a caller abandoning the request cannot leave a half-appended entry.
func (c *Cache) AppendTurn(ctx context.Context, sessionID uuid.UUID, prompt, completion Message) error {
	ent, err := c.lookup(sessionID)
	if err != nil {
		return err
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()

	// Hydrate before appending so a later Messages call cannot double-load
	// the new pair from the store.
	if !ent.loaded {
		messages, err := c.store.ListMessages(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("hydrating messages for session %s: %w", sessionID, err)
		}
		ent.messages = messages
		ent.loaded = true
	}

	prompt.Sequence = len(ent.messages) + 1
	completion.Sequence = len(ent.messages) + 2

	ent.messages = append(ent.messages, prompt, completion)
	ent.session.TotalTokens += TurnTokens(prompt, completion)
	ent.session.UpdatedAt = time.Now()

	if err := c.store.AppendTurn(ctx, sessionID, ent.session.TotalTokens, prompt, completion); err != nil {
		return fmt.Errorf("persisting turn for session %s: %w: %w", sessionID, ErrCacheAhead, err)
	}

	c.logger.Debug("appended turn",
		"session_id", sessionID,
		"total_tokens", ent.session.TotalTokens)
	return nil
}

// lookup resolves a session entry, failing with ErrCacheInconsistency when
// the id is unknown to the cache.
func (c *Cache) lookup(sessionID uuid.UUID) (*entry, error) {
	c.mu.RLock()
	ent, ok := c.entries[sessionID]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrCacheInconsistency)
	}
	return ent, nil
}
