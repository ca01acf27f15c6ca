// Package types defines the core data model shared by every phase of the
// reconciliation pipeline: evidence items, inferred atoms and molecules,
// per-atom decisions, and the run state that carries them between phases.
package types

import (
	"errors"
	"fmt"
)

// ErrRunCancelled is the distinguished cancellation outcome. It is the only
// error that aborts a run: phases return it (wrapped) when they observe the
// run's cancellation flag at a batch or tier boundary, and the orchestrator
// discards any partial phase output when it sees it.
var ErrRunCancelled = errors.New("run cancelled")

// EvidenceType classifies a discovered unit of ground truth.
type EvidenceType string

const (
	EvidenceTest          EvidenceType = "test"
	EvidenceSourceExport  EvidenceType = "source_export"
	EvidenceUIComponent   EvidenceType = "ui_component"
	EvidenceAPIEndpoint   EvidenceType = "api_endpoint"
	EvidenceDocumentation EvidenceType = "documentation"
	EvidenceCodeComment   EvidenceType = "code_comment"
	EvidenceCoverageGap   EvidenceType = "coverage_gap"
)

// AllEvidenceTypes lists every known evidence type. Order is not significant
// here; see TierOrder for the processing order guarantee.
var AllEvidenceTypes = []EvidenceType{
	EvidenceTest,
	EvidenceSourceExport,
	EvidenceUIComponent,
	EvidenceAPIEndpoint,
	EvidenceDocumentation,
	EvidenceCodeComment,
	EvidenceCoverageGap,
}

// TierOrder is the fixed, deterministic order in which evidence tiers are
// processed by inference. Test evidence is the primary signal and always
// goes first; the remaining tiers follow in decreasing structural weight.
// The order never depends on which tier's work finishes first.
var TierOrder = []EvidenceType{
	EvidenceTest,
	EvidenceAPIEndpoint,
	EvidenceUIComponent,
	EvidenceSourceExport,
	EvidenceCodeComment,
	EvidenceDocumentation,
	EvidenceCoverageGap,
}

// Valid reports whether t is one of the seven known evidence types.
func (t EvidenceType) Valid() bool {
	switch t {
	case EvidenceTest, EvidenceSourceExport, EvidenceUIComponent,
		EvidenceAPIEndpoint, EvidenceDocumentation, EvidenceCodeComment,
		EvidenceCoverageGap:
		return true
	}
	return false
}

// EvidenceItem is a discovered unit of ground truth: a test, an exported
// function, a UI component, an API route, a documentation section, a marker
// comment, or a coverage gap. Items are created during discovery and are
// immutable thereafter; the run owns them.
type EvidenceItem struct {
	Type     EvidenceType `json:"type"`
	FilePath string       `json:"file_path"`
	Name     string       `json:"name"`

	// Code is an optional snippet giving inference concrete text to work
	// with (test body, function signature, route handler, ...).
	Code string `json:"code,omitempty"`

	// LineNumber is 1-based; 0 means unknown.
	LineNumber int `json:"line_number,omitempty"`

	// Metadata carries type-specific detail, e.g. "method" and "path" for
	// api_endpoint items or "framework" for ui_component items.
	Metadata map[string]string `json:"metadata,omitempty"`

	// BaseConfidence (0-100) ranks items within per-type caps and caps the
	// confidence of atoms inferred from this item's fallbacks.
	BaseConfidence int `json:"base_confidence"`
}

// Key returns the stable identity of an evidence item within and across
// runs: "type:filePath:name". Analysis entries, prior-run dispositions, and
// atom links are all keyed by this string.
func (e *EvidenceItem) Key() string {
	return fmt.Sprintf("%s:%s:%s", e.Type, e.FilePath, e.Name)
}

// Validate checks structural validity of an evidence item.
func (e *EvidenceItem) Validate() error {
	if !e.Type.Valid() {
		return fmt.Errorf("unknown evidence type %q", e.Type)
	}
	if e.FilePath == "" {
		return fmt.Errorf("evidence item missing file path")
	}
	if e.Name == "" {
		return fmt.Errorf("evidence item missing name")
	}
	if e.BaseConfidence < 0 || e.BaseConfidence > 100 {
		return fmt.Errorf("base_confidence must be 0-100 (got %d)", e.BaseConfidence)
	}
	return nil
}

// EvidenceAnalysis is the derived context for one evidence item, keyed by
// EvidenceItem.Key(). It is produced by the context phase, consumed read-only
// by inference, and released from RunState once inference has consumed it.
type EvidenceAnalysis struct {
	Summary        string   `json:"summary"`
	DomainConcepts []string `json:"domain_concepts,omitempty"`
	RelatedDocs    []string `json:"related_docs,omitempty"`
}

// AtomCategory classifies the kind of behavioral claim an atom makes.
type AtomCategory string

const (
	CategoryFunctional  AtomCategory = "functional"
	CategorySecurity    AtomCategory = "security"
	CategoryPerformance AtomCategory = "performance"
	CategoryReliability AtomCategory = "reliability"
	CategoryUsability   AtomCategory = "usability"
)

// Valid reports whether c is a known atom category.
func (c AtomCategory) Valid() bool {
	switch c {
	case CategoryFunctional, CategorySecurity, CategoryPerformance,
		CategoryReliability, CategoryUsability:
		return true
	}
	return false
}

// SourceReference points an atom back at the artifact it was inferred from.
type SourceReference struct {
	FilePath   string `json:"file_path"`
	Name       string `json:"name"`
	LineNumber int    `json:"line_number,omitempty"`
}

// EvidenceSource records one piece of evidence supporting an atom. An atom
// starts with exactly one source and accumulates more as cross-evidence
// deduplication merges independently inferred duplicates onto it.
type EvidenceSource struct {
	Type       EvidenceType `json:"type"`
	FilePath   string       `json:"file_path"`
	Name       string       `json:"name"`
	Confidence int          `json:"confidence"`
}

// InferredAtom is a candidate behavioral specification: a single,
// irreducible, observable claim about the system. Atoms are created by
// inference, mutated by deduplication (evidence merge, corroboration bonus)
// and by verification (quality score), and never destroyed within a run:
// rejection is a decision, not deletion.
type InferredAtom struct {
	// TempID is a run-scoped identity, not yet durable.
	TempID string `json:"temp_id"`

	Description        string       `json:"description"`
	Category           AtomCategory `json:"category"`
	ObservableOutcomes []string     `json:"observable_outcomes"`

	// Confidence is on a 0-100 scale. Inference normalizes 0-1 model
	// output by rescaling ×100.
	Confidence int `json:"confidence"`

	Reasoning        string   `json:"reasoning"`
	AmbiguityReasons []string `json:"ambiguity_reasons,omitempty"`

	SourceReference     SourceReference  `json:"source_reference"`
	EvidenceSources     []EvidenceSource `json:"evidence_sources"`
	PrimaryEvidenceType EvidenceType     `json:"primary_evidence_type"`

	// QualityScore is nil until verification runs, then 0-100.
	QualityScore *int `json:"quality_score,omitempty"`
}

// Validate checks structural validity of an atom.
func (a *InferredAtom) Validate() error {
	if a.TempID == "" {
		return fmt.Errorf("atom missing temp_id")
	}
	if a.Description == "" {
		return fmt.Errorf("atom %s missing description", a.TempID)
	}
	if a.Confidence < 0 || a.Confidence > 100 {
		return fmt.Errorf("atom %s confidence must be 0-100 (got %d)", a.TempID, a.Confidence)
	}
	if !a.PrimaryEvidenceType.Valid() {
		return fmt.Errorf("atom %s has unknown primary evidence type %q", a.TempID, a.PrimaryEvidenceType)
	}
	if len(a.EvidenceSources) == 0 {
		return fmt.Errorf("atom %s has no evidence sources", a.TempID)
	}
	return nil
}

// InferredMolecule is a named, non-owning cluster of atoms sharing a theme.
// A molecule references atoms by TempID; it never owns them, and molecule
// confidence is derived from atom confidence, never the reverse.
type InferredMolecule struct {
	TempID      string   `json:"temp_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	AtomTempIDs []string `json:"atom_temp_ids"`

	// Confidence is the rounded arithmetic mean of member atom confidences.
	Confidence int `json:"confidence"`

	Reasoning       string `json:"reasoning"`
	GherkinScenario string `json:"gherkin_scenario,omitempty"`
}

// Decision is the verification outcome for a single atom.
type Decision string

const (
	DecisionApproved    Decision = "approved"
	DecisionRejected    Decision = "rejected"
	DecisionQualityFail Decision = "quality_fail"
)

// AtomDecision pairs an atom with its verification decision. Verification
// returns exactly one AtomDecision per input atom, in input order,
// regardless of execution strategy.
type AtomDecision struct {
	AtomTempID   string   `json:"atom_temp_id"`
	Decision     Decision `json:"decision"`
	QualityScore int      `json:"quality_score"`

	// HumanOverride is true when the decision came from human review input
	// rather than the quality rules.
	HumanOverride bool `json:"human_override,omitempty"`
}
