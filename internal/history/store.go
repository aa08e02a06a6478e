package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is a persisted command line.
type Entry struct {
	ID        int64
	Session   string
	Command   string
	ExitCode  int
	CreatedAt time.Time
}

// Store persists history in SQLite so it survives across sessions.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// OpenStore opens (or creates) the history database at path. Use ":memory:"
// for a throwaway store.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if path == ":memory:" {
		// Every connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session TEXT NOT NULL,
		command TEXT NOT NULL,
		exit_code INTEGER NOT NULL DEFAULT -1,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_session ON history(session);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append stores command for session and returns the new entry id.
func (s *Store) Append(ctx context.Context, session, command string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO history (session, command, created_at) VALUES (?, ?, ?)",
		session, command, time.Now().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert history entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert history entry: %w", err)
	}
	return id, nil
}

// UpdateExitCode records the exit code of the entry with id.
func (s *Store) UpdateExitCode(ctx context.Context, id int64, code uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "UPDATE history SET exit_code = ? WHERE id = ?", int(code), id); err != nil {
		return fmt.Errorf("update history entry: %w", err)
	}
	return nil
}

// Recent returns the last n entries across all sessions, oldest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session, command, exit_code, created_at FROM (
			SELECT * FROM history ORDER BY id DESC LIMIT ?
		) ORDER BY id`,
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.ID, &e.Session, &e.Command, &e.ExitCode, &created); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		e.CreatedAt = time.Unix(0, created)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return entries, nil
}

// Commands returns the command lines of Recent(n).
func (s *Store) Commands(ctx context.Context, n int) ([]string, error) {
	entries, err := s.Recent(ctx, n)
	if err != nil {
		return nil, err
	}
	commands := make([]string, len(entries))
	for i, e := range entries {
		commands[i] = e.Command
	}
	return commands, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
