package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/specdrift/specdrift/internal/events"
	"github.com/specdrift/specdrift/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS dispositions (
	evidence_key TEXT PRIMARY KEY,
	disposition  TEXT NOT NULL,
	run_id       TEXT NOT NULL,
	decided_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS atom_links (
	evidence_key TEXT PRIMARY KEY,
	atom_id      TEXT NOT NULL,
	linked_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS runs (
	run_id     TEXT PRIMARY KEY,
	phase      TEXT NOT NULL,
	pending    INTEGER NOT NULL DEFAULT 0,
	atom_count INTEGER NOT NULL DEFAULT 0,
	state_json TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS run_events (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id    TEXT NOT NULL,
	type      TEXT NOT NULL,
	severity  TEXT NOT NULL,
	message   TEXT NOT NULL,
	data_json TEXT,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id);
`

// SQLiteStore implements RunStore on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ RunStore = (*SQLiteStore)(nil)

// Open creates or opens the run store at path, initializing the schema.
func Open(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("opening run store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging run store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// TerminalDispositions implements RunStore.
func (s *SQLiteStore) TerminalDispositions(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT evidence_key, disposition FROM dispositions WHERE disposition IN (?, ?)`,
		DispositionAccepted, DispositionRejected)
	if err != nil {
		return nil, fmt.Errorf("querying dispositions: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var key, disp string
		if err := rows.Scan(&key, &disp); err != nil {
			return nil, err
		}
		result[key] = disp
	}
	return result, rows.Err()
}

// RecordDisposition implements RunStore.
func (s *SQLiteStore) RecordDisposition(ctx context.Context, evidenceKey, disposition, runID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dispositions (evidence_key, disposition, run_id, decided_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(evidence_key) DO UPDATE SET
		   disposition = excluded.disposition,
		   run_id = excluded.run_id,
		   decided_at = excluded.decided_at`,
		evidenceKey, disposition, runID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("recording disposition for %s: %w", evidenceKey, err)
	}
	return nil
}

// AtomLinks implements RunStore.
func (s *SQLiteStore) AtomLinks(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT evidence_key, atom_id FROM atom_links`)
	if err != nil {
		return nil, fmt.Errorf("querying atom links: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var key, atomID string
		if err := rows.Scan(&key, &atomID); err != nil {
			return nil, err
		}
		result[key] = atomID
	}
	return result, rows.Err()
}

// LinkAtom implements RunStore.
func (s *SQLiteStore) LinkAtom(ctx context.Context, evidenceKey, atomID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO atom_links (evidence_key, atom_id, linked_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(evidence_key) DO UPDATE SET
		   atom_id = excluded.atom_id,
		   linked_at = excluded.linked_at`,
		evidenceKey, atomID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("linking atom %s to %s: %w", atomID, evidenceKey, err)
	}
	return nil
}

// SaveRun implements RunStore.
func (s *SQLiteStore) SaveRun(ctx context.Context, state *types.RunState) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("serializing run state: %w", err)
	}

	pending := 0
	if state.PendingHumanReview {
		pending = 1
	}
	now := time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, phase, pending, atom_count, state_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
		   phase = excluded.phase,
		   pending = excluded.pending,
		   atom_count = excluded.atom_count,
		   state_json = excluded.state_json,
		   updated_at = excluded.updated_at`,
		state.RunID, string(state.Phase), pending, len(state.InferredAtoms),
		string(blob), now, now)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", state.RunID, err)
	}
	return nil
}

// LoadRun implements RunStore.
func (s *SQLiteStore) LoadRun(ctx context.Context, runID string) (*types.RunState, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT state_json FROM runs WHERE run_id = ?`, runID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", runID, err)
	}

	var state types.RunState
	if err := json.Unmarshal([]byte(blob), &state); err != nil {
		return nil, fmt.Errorf("deserializing run %s: %w", runID, err)
	}
	return &state, nil
}

// ListRuns implements RunStore.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, phase, pending, atom_count, created_at, updated_at
		 FROM runs ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var result []RunSummary
	for rows.Next() {
		var r RunSummary
		var phase string
		var pending int
		if err := rows.Scan(&r.RunID, &phase, &pending, &r.AtomCount, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Phase = types.Phase(phase)
		r.Pending = pending != 0
		result = append(result, r)
	}
	return result, rows.Err()
}

// StoreEvent implements RunStore.
func (s *SQLiteStore) StoreEvent(ctx context.Context, event *events.RunEvent) error {
	var dataJSON []byte
	if event.Data != nil {
		var err error
		dataJSON, err = json.Marshal(event.Data)
		if err != nil {
			return fmt.Errorf("serializing event data: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_events (run_id, type, severity, message, data_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.RunID, string(event.Type), string(event.Severity), event.Message,
		string(dataJSON), event.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("storing event: %w", err)
	}
	return nil
}
