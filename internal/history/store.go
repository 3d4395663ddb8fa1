// Package history keeps a durable log of bake summaries in SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no summary has the requested bake ID.
var ErrNotFound = errors.New("bake not found")

// Summary describes one finished bake.
type Summary struct {
	BakeID           string         `json:"bake_id"`
	StartedAt        time.Time      `json:"started_at"`
	Duration         time.Duration  `json:"duration"`
	OutDir           string         `json:"out_dir"`
	Success          bool           `json:"success"`
	Entries          int            `json:"entries"`
	FailedEntries    int            `json:"failed_entries"`
	IncrementalCount int            `json:"incremental_count"`
	InvalidReason    string         `json:"invalid_reason,omitempty"`
	StaleDeleted     int            `json:"stale_deleted"`
	Passes           int            `json:"passes"`
	SourceRevision   string         `json:"source_revision,omitempty"`
	Counters         map[string]int `json:"counters,omitempty"`
}

// Store is a SQLite-backed summary log.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens (or creates) the database at dbPath. Use ":memory:" for an
// in-memory database.
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if dbPath == ":memory:" {
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
	CREATE TABLE IF NOT EXISTS bakes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		bake_id TEXT NOT NULL UNIQUE,
		started_at INTEGER NOT NULL,
		success INTEGER NOT NULL,
		summary TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_bakes_started_at ON bakes(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append stores a summary.
func (s *Store) Append(ctx context.Context, sum Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO bakes (bake_id, started_at, success, summary) VALUES (?, ?, ?, ?)",
		sum.BakeID, sum.StartedAt.UnixNano(), sum.Success, string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}
	return nil
}

// Recent returns up to limit summaries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT summary FROM bakes ORDER BY started_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Summary
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		var sum Summary
		if err := json.Unmarshal([]byte(raw), &sum); err != nil {
			return nil, fmt.Errorf("unmarshal summary: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// Get returns the summary of one bake.
func (s *Store) Get(ctx context.Context, bakeID string) (Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT summary FROM bakes WHERE bake_id = ?", bakeID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Summary{}, fmt.Errorf("%w: %s", ErrNotFound, bakeID)
	}
	if err != nil {
		return Summary{}, fmt.Errorf("query summary: %w", err)
	}
	var sum Summary
	if err := json.Unmarshal([]byte(raw), &sum); err != nil {
		return Summary{}, fmt.Errorf("unmarshal summary: %w", err)
	}
	return sum, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
