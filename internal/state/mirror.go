package state

import (
	"fmt"
	"os"
	"path/filepath"
)

// Mirror is the append-only stream file: every streamed fragment plus
// turn-boundary delimiters, for crash recovery.
type Mirror struct {
	path string
	f    *os.File
}

// MirrorPath returns the default mirror location for a session.
func MirrorPath(dir, sessionID, suffix string) string {
	if suffix == "" {
		suffix = ".tmp"
	}
	return filepath.Join(dir, "stream_"+sessionID+suffix)
}

// OpenMirror opens path for appending, creating it if needed. Existing
// content is never truncated.
func OpenMirror(path string) (*Mirror, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create mirror directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream mirror: %w", err)
	}
	return &Mirror{path: path, f: f}, nil
}

// Path returns the mirror file path.
func (m *Mirror) Path() string {
	return m.path
}

// Write appends text. The file is unbuffered so each write reaches the OS
// immediately.
func (m *Mirror) Write(text string) error {
	if _, err := m.f.WriteString(text); err != nil {
		return fmt.Errorf("failed to write stream mirror: %w", err)
	}
	return nil
}

// Close closes the file.
func (m *Mirror) Close() error {
	return m.f.Close()
}
