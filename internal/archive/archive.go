// Package archive keeps an unbounded SQLite log of completed turns across
// sessions. It complements the state file, which only holds the active
// session.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"laserlens/internal/logging"

	_ "modernc.org/sqlite"
)

// Turn is one archived prompt/response exchange.
type Turn struct {
	SessionID string
	LoopIndex int
	Prompt    string
	Response  string
	CreatedAt time.Time
}

// Session summarizes one archived session.
type Session struct {
	ID        string
	Topic     string
	Model     string
	Turns     int
	StartedAt time.Time
}

// Store manages the archive database.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore creates or opens the archive at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, dbPath: dbPath}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logging.StoreDebug("archive opened at %s", dbPath)
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	PRAGMA busy_timeout = 5000;

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		topic TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		loop_index INTEGER NOT NULL,
		prompt TEXT NOT NULL,
		response TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, loop_index);
	`
	_, err := s.db.Exec(schema)
	return err
}

// BeginSession records a session. Re-recording an existing id is a no-op.
func (s *Store) BeginSession(ctx context.Context, id, topic, model string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (id, topic, model, started_at) VALUES (?, ?, ?, ?)`,
		id, topic, model, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to record session: %w", err)
	}
	return nil
}

// AppendTurn archives one completed turn.
func (s *Store) AppendTurn(ctx context.Context, t Turn) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (session_id, loop_index, prompt, response, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.SessionID, t.LoopIndex, t.Prompt, t.Response, formatTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to archive turn: %w", err)
	}
	return nil
}

// Turns returns turns for a session in loop order. An empty sessionID means
// every session. limit <= 0 means no limit; otherwise the newest limit turns
// are returned, still in ascending order.
func (s *Store) Turns(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	query := `SELECT session_id, loop_index, prompt, response, created_at FROM turns`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var t Turn
		var created string
		if err := rows.Scan(&t.SessionID, &t.LoopIndex, &t.Prompt, &t.Response, &created); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		t.CreatedAt = parseTime(created)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Sessions lists archived sessions, newest first.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.topic, s.model, s.started_at, COUNT(t.id)
		FROM sessions s LEFT JOIN turns t ON t.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		var started string
		if err := rows.Scan(&sess.ID, &sess.Topic, &sess.Model, &started, &sess.Turns); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sess.StartedAt = parseTime(started)
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Times are stored as RFC 3339 text so they sort lexically and read back
// without driver-specific conversion.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
