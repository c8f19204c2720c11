package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	stateDir  = ".sage"
	stateFile = "current_session"
)

// stateFilePath returns the path to ~/.sage/current_session, creating the
// state directory if needed.
func stateFilePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	dir := filepath.Join(homeDir, stateDir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating state directory: %w", err)
	}

	return filepath.Join(dir, stateFile), nil
}

// LoadCurrentSessionID loads the active session id from the local state
// file. Returns (nil, nil) when no current session is recorded.
func LoadCurrentSessionID() (*uuid.UUID, error) {
	path, err := stateFilePath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return nil, nil
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid session id in state file: %w", err)
	}

	return &id, nil
}

// SaveCurrentSessionID records the active session id in the local state
// file.
func SaveCurrentSessionID(sessionID uuid.UUID) error {
	path, err := stateFilePath()
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(sessionID.String()), 0o600); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	return nil
}

// ClearCurrentSessionID removes the state file. Idempotent.
func ClearCurrentSessionID() error {
	path, err := stateFilePath()
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing state file: %w", err)
	}
	return nil
}
