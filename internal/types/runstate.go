package types

import (
	"fmt"
	"time"
)

// Phase identifies where a run is in the pipeline state machine.
//
// The machine is linear: structure → discover → context → infer →
// synthesize → verify → persist. The verify phase is the only one with a
// self-loop: it may return itself unchanged while awaiting human review
// input before advancing to persist.
type Phase string

const (
	PhaseStructure  Phase = "structure"
	PhaseDiscover   Phase = "discover"
	PhaseContext    Phase = "context"
	PhaseInfer      Phase = "infer"
	PhaseSynthesize Phase = "synthesize"
	PhaseVerify     Phase = "verify"
	PhasePersist    Phase = "persist"
)

// Next returns the phase that follows p in the pipeline. PhasePersist is
// terminal and returns itself.
func (p Phase) Next() Phase {
	switch p {
	case PhaseStructure:
		return PhaseDiscover
	case PhaseDiscover:
		return PhaseContext
	case PhaseContext:
		return PhaseInfer
	case PhaseInfer:
		return PhaseSynthesize
	case PhaseSynthesize:
		return PhaseVerify
	case PhaseVerify:
		return PhasePersist
	default:
		return PhasePersist
	}
}

// Terminal reports whether p is the terminal phase.
func (p Phase) Terminal() bool { return p == PhasePersist }

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhaseStructure, PhaseDiscover, PhaseContext, PhaseInfer,
		PhaseSynthesize, PhaseVerify, PhasePersist:
		return true
	}
	return false
}

// HumanAtomDecision is one human override supplied on resume: "approve" or
// "reject" for a single atom.
type HumanAtomDecision struct {
	AtomTempID string `json:"atom_temp_id"`
	Decision   string `json:"decision"` // "approve" | "reject"
}

// HumanReviewInput carries the reviewer's per-atom overrides into a resumed
// verify phase. Atoms without an explicit entry keep their quality-based
// decision.
type HumanReviewInput struct {
	AtomDecisions []HumanAtomDecision `json:"atom_decisions"`
}

// RunState is the orchestrator's working set for one reconciliation run.
//
// Ownership: RunState is exclusively owned and mutated by the orchestrator
// and the phase currently executing; no two phases run concurrently against
// it. It is serialized to the run store only when the run suspends for human
// review or reaches its terminal phase.
type RunState struct {
	// RunID identifies the run for cancellation lookup and persistence.
	RunID string `json:"run_id"`

	Phase Phase `json:"phase"`

	EvidenceItems []EvidenceItem `json:"evidence_items,omitempty"`

	// EvidenceAnalysis is keyed by EvidenceItem.Key(). Entries are shed
	// once inference has consumed them, to bound memory on large
	// repositories.
	EvidenceAnalysis map[string]EvidenceAnalysis `json:"evidence_analysis,omitempty"`

	InferredAtoms     []*InferredAtom     `json:"inferred_atoms,omitempty"`
	InferredMolecules []*InferredMolecule `json:"inferred_molecules,omitempty"`
	Decisions         []AtomDecision      `json:"decisions,omitempty"`

	// PendingHumanReview is set when the verify phase suspended instead of
	// advancing; the caller is expected to re-invoke with HumanReviewInput
	// populated.
	PendingHumanReview bool              `json:"pending_human_review,omitempty"`
	HumanReviewInput   *HumanReviewInput `json:"human_review_input,omitempty"`

	// ChangedLinkedEvidence lists evidence keys that changed since the
	// baseline but are already linked to an existing atom. They are never
	// sent to inference; each is surfaced as a warning.
	ChangedLinkedEvidence []string `json:"changed_linked_evidence,omitempty"`

	// Errors are non-fatal phase failures; a phase that fails unrecoverably
	// appends here and the run still advances with empty results.
	Errors []string `json:"errors,omitempty"`

	// Warnings record phase-level degradations (delta fallback, naming
	// batch failures, high fail rate).
	Warnings []string `json:"warnings,omitempty"`

	LLMCallCount int `json:"llm_call_count"`

	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AddError records a non-fatal phase failure.
func (s *RunState) AddError(phase Phase, err error) {
	s.Errors = append(s.Errors, fmt.Sprintf("%s: %v", phase, err))
}

// AddWarning records a phase-level degradation.
func (s *RunState) AddWarning(format string, args ...interface{}) {
	s.Warnings = append(s.Warnings, fmt.Sprintf(format, args...))
}

// ShedAnalysis releases the raw per-item analysis context once inference
// has consumed it. Only derived atoms and molecules persist forward.
func (s *RunState) ShedAnalysis() {
	s.EvidenceAnalysis = nil
}

// AtomByTempID returns the atom with the given temp id, or nil.
func (s *RunState) AtomByTempID(id string) *InferredAtom {
	for _, a := range s.InferredAtoms {
		if a.TempID == id {
			return a
		}
	}
	return nil
}
