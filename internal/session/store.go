// Package session is the durable side of the orchestrator: saved missions
// live in a local sqlite database, with one reserved row acting as the
// always-overwritten autosave slot.
package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"overseer/internal/mission"
	"overseer/internal/ratelimit"
)

// AutosaveID is the reserved key for the crash-resume slot. It never shows
// up in the manual history list.
const AutosaveID = "autosave"

// Retention bounds the manual history list.
const Retention = 10

// SavedSession is the unit of persistence.
type SavedSession struct {
	ID        string           `json:"id"`
	Timestamp time.Time        `json:"timestamp"`
	Query     string           `json:"query"`
	Config    ratelimit.Config `json:"config"`
	State     *mission.State   `json:"state"`
}

// NewID generates a short session id.
func NewID() string {
	return uuid.New().String()[:8]
}

type Store struct {
	db *sql.DB
}

// Open creates the database file (and parent directory) if needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// WAL so a UI reader never blocks the autosave writer; busy timeout so
	// writers retry instead of returning SQLITE_BUSY.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("exec %s: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		query      TEXT NOT NULL,
		config     TEXT NOT NULL,
		state      TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}
	return nil
}

// Put upserts a session and prunes manual history beyond the retention
// bound. The autosave row never counts against retention.
func (s *Store) Put(sess *SavedSession) error {
	cfgJSON, err := json.Marshal(sess.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	stateJSON, err := json.Marshal(sess.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO sessions (id, created_at, query, config, state)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			created_at = excluded.created_at,
			query = excluded.query,
			config = excluded.config,
			state = excluded.state`,
		sess.ID, sess.Timestamp.UTC(), sess.Query, string(cfgJSON), string(stateJSON))
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	_, err = s.db.Exec(`
		DELETE FROM sessions
		WHERE id != ? AND id NOT IN (
			SELECT id FROM sessions WHERE id != ?
			ORDER BY created_at DESC LIMIT ?
		)`, AutosaveID, AutosaveID, Retention)
	if err != nil {
		return fmt.Errorf("prune sessions: %w", err)
	}
	return nil
}

func scanSession(scanner interface{ Scan(dest ...any) error }) (*SavedSession, error) {
	var (
		sess      SavedSession
		cfgJSON   string
		stateJSON string
	)
	if err := scanner.Scan(&sess.ID, &sess.Timestamp, &sess.Query, &cfgJSON, &stateJSON); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(cfgJSON), &sess.Config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := json.Unmarshal([]byte(stateJSON), &sess.State); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &sess, nil
}

// Get returns (nil, nil) when the id is unknown.
func (s *Store) Get(id string) (*SavedSession, error) {
	row := s.db.QueryRow(`
		SELECT id, created_at, query, config, state
		FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// List returns manual sessions, most recent first, bounded by Retention.
func (s *Store) List() ([]SavedSession, error) {
	rows, err := s.db.Query(`
		SELECT id, created_at, query, config, state
		FROM sessions WHERE id != ?
		ORDER BY created_at DESC LIMIT ?`, AutosaveID, Retention)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SavedSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

func (s *Store) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	return err
}

// PutAutosave implements mission.Saver against the reserved slot.
func (s *Store) PutAutosave(query string, cfg ratelimit.Config, st *mission.State) error {
	return s.Put(&SavedSession{
		ID:        AutosaveID,
		Timestamp: time.Now(),
		Query:     query,
		Config:    cfg,
		State:     st,
	})
}

// GetAutosave returns the pending crash-resume session, if any.
func (s *Store) GetAutosave() (*SavedSession, error) {
	return s.Get(AutosaveID)
}

// ClearAutosave implements mission.Saver.
func (s *Store) ClearAutosave() error {
	return s.Delete(AutosaveID)
}
