package session

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sagechat/sage/internal/database"
	"github.com/sagechat/sage/internal/log"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()

	dbURL := os.Getenv("SAGE_TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("SAGE_TEST_DATABASE_URL not set, skipping integration test")
	}

	require.NoError(t, database.Migrate(dbURL))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := database.Open(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return NewStore(pool, log.NewNop())
}

func createIntegrationSession(t *testing.T, store *Store) Session {
	t.Helper()

	sess := Session{
		ID:        uuid.New(),
		Title:     DefaultTitle,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, store.CreateSession(context.Background(), sess))
	t.Cleanup(func() {
		_ = store.DeleteSession(context.Background(), sess.ID)
	})
	return sess
}

func TestStoreSessionLifecycle(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	sess := createIntegrationSession(t, store)

	sessions, err := store.ListSessions(ctx)
	require.NoError(t, err)
	found := false
	for _, s := range sessions {
		if s.ID == sess.ID {
			found = true
			require.Equal(t, DefaultTitle, s.Title)
			require.Zero(t, s.TotalTokens)
		}
	}
	require.True(t, found, "created session missing from list")

	require.NoError(t, store.RenameSession(ctx, sess.ID, "renamed"))
	require.NoError(t, store.DeleteSession(ctx, sess.ID))

	err = store.RenameSession(ctx, sess.ID, "gone")
	require.ErrorIs(t, err, ErrNotFound)
	err = store.DeleteSession(ctx, sess.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreAppendTurn(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	sess := createIntegrationSession(t, store)

	prompt := NewUserMessage(sess.ID, "what is a session?", 5)
	completion := NewAssistantMessage(sess.ID, "a conversation thread", 4, 80)

	require.NoError(t, store.AppendTurn(ctx, sess.ID, 89, prompt, completion))

	msgs, err := store.ListMessages(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, RoleUser, msgs[0].Role)
	require.Equal(t, 1, msgs[0].Sequence)
	require.Equal(t, RoleAssistant, msgs[1].Role)
	require.Equal(t, 2, msgs[1].Sequence)
	require.Equal(t, 80, msgs[1].PromptTokens)

	// Second turn continues the sequence.
	p2 := NewUserMessage(sess.ID, "and a message?", 4)
	c2 := NewAssistantMessage(sess.ID, "one utterance", 3, 90)
	require.NoError(t, store.AppendTurn(ctx, sess.ID, 186, p2, c2))

	msgs, err = store.ListMessages(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	require.Equal(t, 3, msgs[2].Sequence)
	require.Equal(t, 4, msgs[3].Sequence)

	sessions, err := store.ListSessions(ctx)
	require.NoError(t, err)
	for _, s := range sessions {
		if s.ID == sess.ID {
			require.Equal(t, int64(186), s.TotalTokens)
		}
	}
}

func TestStoreAppendTurnUnknownSession(t *testing.T) {
	store := newIntegrationStore(t)

	missing := uuid.New()
	err := store.AppendTurn(context.Background(), missing, 10,
		NewUserMessage(missing, "q", 1), NewAssistantMessage(missing, "a", 1, 1))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreDeleteCascadesMessages(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	sess := createIntegrationSession(t, store)
	require.NoError(t, store.AppendTurn(ctx, sess.ID, 3,
		NewUserMessage(sess.ID, "q", 1), NewAssistantMessage(sess.ID, "a", 1, 1)))

	require.NoError(t, store.DeleteSession(ctx, sess.ID))

	msgs, err := store.ListMessages(ctx, sess.ID)
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestStoreConcurrentAppends(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	sess := createIntegrationSession(t, store)

	// FOR UPDATE on the session row serializes concurrent appends, so no
	// sequence number can collide against the unique constraint.
	const turns = 8
	errCh := make(chan error, turns)
	for i := 0; i < turns; i++ {
		go func() {
			p := NewUserMessage(sess.ID, "q", 1)
			c := NewAssistantMessage(sess.ID, "a", 1, 1)
			errCh <- store.AppendTurn(ctx, sess.ID, 0, p, c)
		}()
	}
	for i := 0; i < turns; i++ {
		require.NoError(t, <-errCh)
	}

	msgs, err := store.ListMessages(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, turns*2)
	for i, msg := range msgs {
		require.Equal(t, i+1, msg.Sequence)
	}
}

func TestStoreListMessagesEmptySession(t *testing.T) {
	store := newIntegrationStore(t)

	sess := createIntegrationSession(t, store)
	msgs, err := store.ListMessages(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Empty(t, msgs)

	if errors.Is(err, ErrNotFound) {
		t.Error("empty session must not read as missing")
	}
}
