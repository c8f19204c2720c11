package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists sessions and messages in PostgreSQL.
// Safe for concurrent use; all state lives in the database.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, title, total_tokens, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		sess.ID, sess.Title, sess.TotalTokens, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting session %s: %w", sess.ID, err)
	}

	s.logger.Debug("created session", "id", sess.ID)
	return nil
}

// ListSessions returns all sessions ordered by most recent activity.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, total_tokens, created_at, updated_at
		 FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.TotalTokens, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading session rows: %w", err)
	}

	s.logger.Debug("listed sessions", "count", len(sessions))
	return sessions, nil
}

// ListMessages returns a session's messages in chronological order.
func (s *Store) ListMessages(ctx context.Context, sessionID uuid.UUID) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, role, body, tokens, prompt_tokens, sequence_number, created_at
		 FROM messages WHERE session_id = $1 ORDER BY sequence_number`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing messages for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Text,
			&msg.Tokens, &msg.PromptTokens, &msg.Sequence, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading message rows: %w", err)
	}

	s.logger.Debug("listed messages", "session_id", sessionID, "count", len(messages))
	return messages, nil
}

// RenameSession updates a session's title.
func (s *Store) RenameSession(ctx context.Context, sessionID uuid.UUID, title string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET title = $2, updated_at = now() WHERE id = $1`,
		sessionID, title)
	if err != nil {
		return fmt.Errorf("renaming session %s: %w", sessionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("renaming session %s: %w", sessionID, ErrNotFound)
	}

	s.logger.Debug("renamed session", "id", sessionID)
	return nil
}

// DeleteSession removes a session and all its messages (CASCADE).
func (s *Store) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", sessionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deleting session %s: %w", sessionID, ErrNotFound)
	}

	s.logger.Debug("deleted session", "id", sessionID)
	return nil
}

// AppendTurn persists one prompt/completion pair and the session's updated
// token counter as a single transaction. The session row is locked with
// SELECT ... FOR UPDATE so concurrent appends to the same session serialize
// and sequence numbers never collide.
func (s *Store) AppendTurn(ctx context.Context, sessionID uuid.UUID, totalTokens int64, prompt, completion Message) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", err)
		}
	}()

	var lockedID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&lockedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("locking session %s: %w", sessionID, ErrNotFound)
		}
		return fmt.Errorf("locking session %s: %w", sessionID, err)
	}

	var maxSeq int
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) FROM messages WHERE session_id = $1`,
		sessionID).Scan(&maxSeq)
	if err != nil {
		return fmt.Errorf("reading max sequence for session %s: %w", sessionID, err)
	}

	for i, msg := range []Message{prompt, completion} {
		_, err = tx.Exec(ctx,
			`INSERT INTO messages (id, session_id, role, body, tokens, prompt_tokens, sequence_number, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			msg.ID, sessionID, msg.Role, msg.Text, msg.Tokens, msg.PromptTokens, maxSeq+i+1, msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting %s message for session %s: %w", msg.Role, sessionID, err)
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE sessions SET total_tokens = $2, updated_at = now() WHERE id = $1`,
		sessionID, totalTokens)
	if err != nil {
		return fmt.Errorf("updating token counter for session %s: %w", sessionID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing turn for session %s: %w", sessionID, err)
	}

	s.logger.Debug("appended turn",
		"session_id", sessionID,
		"total_tokens", totalTokens,
		"sequence", maxSeq+2)
	return nil
}
