// Package storage persists run bookkeeping in SQLite: prior-run evidence
// dispositions (used by the delta-scan closure rule), evidence→atom links
// (used to isolate changed-but-linked evidence), suspended and terminal run
// snapshots, and the observational event log.
//
// The reconciliation core never persists atoms itself beyond the run
// snapshot; turning accepted atoms into durable governed records is the
// downstream layer's job.
package storage

import (
	"context"
	"time"

	"github.com/specdrift/specdrift/internal/events"
	"github.com/specdrift/specdrift/internal/types"
)

// Disposition values recorded for evidence after a run completes.
// Accepted/rejected are terminal: delta discovery excludes evidence with a
// terminal disposition (the closure rule).
const (
	DispositionAccepted = "accepted"
	DispositionRejected = "rejected"
	DispositionPending  = "pending"
)

// RunSummary is a lightweight listing row for stored runs.
type RunSummary struct {
	RunID     string
	Phase     types.Phase
	Pending   bool
	AtomCount int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RunStore is the durable bookkeeping interface consumed by discovery (for
// closure and isolation), the orchestrator (for suspend/resume snapshots),
// and the CLI (for listing and review).
type RunStore interface {
	// TerminalDispositions returns evidence keys with a terminal
	// disposition from prior runs, mapped to that disposition.
	TerminalDispositions(ctx context.Context) (map[string]string, error)

	// RecordDisposition stores the disposition for one evidence key.
	RecordDisposition(ctx context.Context, evidenceKey, disposition, runID string) error

	// AtomLinks returns evidence keys already linked to an atom, mapped to
	// the atom id.
	AtomLinks(ctx context.Context) (map[string]string, error)

	// LinkAtom records that an evidence key supports an atom.
	LinkAtom(ctx context.Context, evidenceKey, atomID string) error

	// SaveRun upserts a full RunState snapshot.
	SaveRun(ctx context.Context, state *types.RunState) error

	// LoadRun returns a previously saved RunState, or an error if absent.
	LoadRun(ctx context.Context, runID string) (*types.RunState, error)

	// ListRuns returns summaries for all stored runs, newest first.
	ListRuns(ctx context.Context) ([]RunSummary, error)

	// StoreEvent appends to the run event log. Failures here are logged by
	// callers, never fatal.
	StoreEvent(ctx context.Context, event *events.RunEvent) error

	Close() error
}
