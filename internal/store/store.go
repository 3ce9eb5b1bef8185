// Copyright (c) 2026 dotandev
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dotandev/rpcmerge/internal/errors"
	"github.com/dotandev/rpcmerge/internal/logger"
	_ "modernc.org/sqlite"
)

const (
	// SchemaVersion tracks the database schema version for migrations
	SchemaVersion = 1

	// DefaultMaxRuns is the number of history rows kept by Cleanup
	DefaultMaxRuns = 500
)

// Run is one recorded invocation of the merge engine.
type Run struct {
	ID          int64          `json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	Mode        string         `json:"mode"`
	Profile     string         `json:"profile"`
	Input       string         `json:"input"`
	Output      string         `json:"output"`
	Caller      string         `json:"caller,omitempty"`
	Callee      string         `json:"callee,omitempty"`
	Changed     bool           `json:"changed"`
	Diagnostics []string       `json:"diagnostics,omitempty"`
	Stats       map[string]int `json:"stats,omitempty"`
}

// Store keeps the demangled-name cache and the run history in SQLite.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.WrapStoreError("failed to create store directory", err)
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, errors.WrapStoreError("failed to open database", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, errors.WrapStoreError("failed to initialize schema", err)
	}

	if err := os.Chmod(path, 0600); err != nil {
		logger.Logger.Warn("Failed to set database permissions", "error", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS demangled (
		symbol TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at TEXT NOT NULL,
		mode TEXT NOT NULL,
		profile TEXT NOT NULL,
		input TEXT NOT NULL,
		output TEXT NOT NULL,
		caller TEXT,
		callee TEXT,
		changed INTEGER NOT NULL,
		diagnostics_json TEXT,
		stats_json TEXT,
		schema_version INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Lookup returns the cached logical name for a mangled symbol.
func (s *Store) Lookup(ctx context.Context, symbol string) (string, bool, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM demangled WHERE symbol = ?`, symbol).Scan(&name)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.WrapStoreError("failed to look up symbol", err)
	}
	return name, true, nil
}

// Save caches the logical name for a mangled symbol.
func (s *Store) Save(ctx context.Context, symbol, name string) error {
	query := `
	INSERT INTO demangled (symbol, name, created_at) VALUES (?, ?, ?)
	ON CONFLICT(symbol) DO UPDATE SET
		name = excluded.name,
		created_at = excluded.created_at
	`
	if _, err := s.db.ExecContext(ctx, query, symbol, name, formatTime(time.Now())); err != nil {
		return errors.WrapStoreError("failed to save symbol", err)
	}
	return nil
}

// RecordRun appends a run to the history and fills in its ID.
func (s *Store) RecordRun(ctx context.Context, run *Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	diagJSON, err := json.Marshal(run.Diagnostics)
	if err != nil {
		return errors.WrapStoreError("failed to marshal diagnostics", err)
	}
	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return errors.WrapStoreError("failed to marshal stats", err)
	}

	query := `
	INSERT INTO runs (
		created_at, mode, profile, input, output, caller, callee,
		changed, diagnostics_json, stats_json, schema_version
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		formatTime(run.CreatedAt), run.Mode, run.Profile, run.Input, run.Output,
		run.Caller, run.Callee, boolToInt(run.Changed),
		string(diagJSON), string(statsJSON), SchemaVersion,
	)
	if err != nil {
		return errors.WrapStoreError("failed to record run", err)
	}

	if run.ID, err = result.LastInsertId(); err != nil {
		return errors.WrapStoreError("failed to read run id", err)
	}

	logger.Logger.Debug("Run recorded", "id", run.ID, "mode", run.Mode, "changed", run.Changed)
	return nil
}

// ListRuns returns recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
	SELECT id, created_at, mode, profile, input, output, caller, callee,
	       changed, diagnostics_json, stats_json
	FROM runs
	ORDER BY id DESC
	LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.WrapStoreError("failed to list runs", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var (
			run                 Run
			createdAt           string
			caller, callee      sql.NullString
			diagJSON, statsJSON sql.NullString
			changed             int
		)

		if err := rows.Scan(
			&run.ID, &createdAt, &run.Mode, &run.Profile, &run.Input, &run.Output,
			&caller, &callee, &changed, &diagJSON, &statsJSON,
		); err != nil {
			return nil, errors.WrapStoreError("failed to scan run", err)
		}

		if run.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, errors.WrapStoreError("failed to parse created_at", err)
		}
		run.Caller = caller.String
		run.Callee = callee.String
		run.Changed = changed != 0

		if diagJSON.Valid && diagJSON.String != "" {
			if err := json.Unmarshal([]byte(diagJSON.String), &run.Diagnostics); err != nil {
				return nil, errors.WrapStoreError("failed to decode diagnostics", err)
			}
		}
		if statsJSON.Valid && statsJSON.String != "" {
			if err := json.Unmarshal([]byte(statsJSON.String), &run.Stats); err != nil {
				return nil, errors.WrapStoreError("failed to decode stats", err)
			}
		}

		runs = append(runs, &run)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.WrapStoreError("error iterating runs", err)
	}

	return runs, nil
}

// Cleanup keeps only the newest maxRuns history rows.
func (s *Store) Cleanup(ctx context.Context, maxRuns int) error {
	if maxRuns <= 0 {
		return nil
	}

	query := `
	DELETE FROM runs
	WHERE id NOT IN (
		SELECT id FROM runs ORDER BY id DESC LIMIT ?
	)
	`
	result, err := s.db.ExecContext(ctx, query, maxRuns)
	if err != nil {
		return errors.WrapStoreError("failed to trim history", err)
	}

	if n, _ := result.RowsAffected(); n > 0 {
		logger.Logger.Debug("Trimmed run history", "count", n)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
