// Package state persists the loop driver's session so a run can be paused,
// resumed or inspected from another process.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"laserlens/internal/logging"
)

// FileName is the state file inside the state directory.
const FileName = "state.json"

// Turn is one completed prompt/response exchange.
type Turn struct {
	Loop      int    `json:"loop,omitempty"` // loop index the turn ran at
	Prompt    string `json:"prompt"`
	Response  string `json:"response"`
	Timestamp string `json:"timestamp"` // RFC 3339, UTC
}

// CommandResult is one executed directive as shown to the next prompt.
type CommandResult struct {
	Name   string `json:"name"`
	Result string `json:"result"`
}

// Session is the durable record of a run.
type Session struct {
	SessionID        string          `json:"session_id"`
	Topic            string          `json:"topic"`
	Model            string          `json:"model,omitempty"`
	CurrentLoopIndex int             `json:"current_loop_index"`
	TotalLoops       int             `json:"total_loops"`
	History          []Turn          `json:"history"`
	LastThought      string          `json:"last_thought"`
	Paused           *string         `json:"paused,omitempty"`
	Cancelled        *string         `json:"cancelled,omitempty"`
	TmpStreamPath    string          `json:"tmp_stream_path,omitempty"`
	CommandResults   []CommandResult `json:"command_results,omitempty"`
	// Completed is set once every loop has run; a session may start past
	// loop 1, so history length does not tell.
	Completed bool      `json:"completed,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Status names the session's persisted condition.
type Status string

const (
	StatusEmpty     Status = "empty"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Status derives the session condition. Cancelled wins over paused.
func (s *Session) Status() Status {
	switch {
	case s.SessionID == "" && len(s.History) == 0:
		return StatusEmpty
	case s.Cancelled != nil:
		return StatusCancelled
	case s.Paused != nil:
		return StatusPaused
	case s.Completed:
		return StatusCompleted
	default:
		return StatusRunning
	}
}

// Resumable reports whether a run can continue from this session.
func (s *Session) Resumable() bool {
	st := s.Status()
	return st == StatusPaused || st == StatusRunning
}

// Store reads and writes the state file. Single writer; readers tolerate
// stale data.
type Store struct {
	path string
}

// NewStore creates the state directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &Store{path: filepath.Join(dir, FileName)}, nil
}

// Path returns the state file path.
func (s *Store) Path() string {
	return s.path
}

// Dir returns the state directory.
func (s *Store) Dir() string {
	return filepath.Dir(s.path)
}

// Load reads the session. A missing file yields an empty session; a corrupt
// one is logged and also yields an empty session.
func (s *Store) Load() *Session {
	sess, err := s.LoadStrict()
	if err != nil {
		logging.Get(logging.CategoryStore).Warn("could not load state from %s: %v", s.path, err)
		return &Session{}
	}
	return sess
}

// LoadStrict is Load that reports decode failures. A missing file is not an error.
func (s *Store) LoadStrict() (*Session, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &Session{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}
	sess := &Session{}
	if err := json.Unmarshal(data, sess); err != nil {
		return nil, fmt.Errorf("failed to parse state: %w", err)
	}
	return sess, nil
}

// Save writes the session atomically: a temp file in the same directory is
// written, synced and renamed over the state file.
func (s *Store) Save(sess *Session) error {
	sess.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close state: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace state: %w", err)
	}
	logging.StoreDebug("saved state (loop %d/%d, %d turns)", sess.CurrentLoopIndex, sess.TotalLoops, len(sess.History))
	return nil
}

// Clear removes the state file. Missing is fine.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear state: %w", err)
	}
	return nil
}
