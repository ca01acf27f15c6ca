// Package verify scores atom quality and decides approval. Scoring runs
// under one of three strategies (batched, bounded-concurrent, sequential)
// that all produce the same output shape: one score and one decision per
// atom, in input order. The verify phase is also where a run pauses for
// human review and resumes with per-atom overrides.
package verify

import (
	"context"
	"fmt"
	"log"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/specdrift/specdrift/internal/ai"
	"github.com/specdrift/specdrift/internal/types"
)

// ToolScoreAtom is the optional per-atom scoring tool tried before the
// rule-based fallback.
const ToolScoreAtom = "score_atom"

// Strategy names the execution strategy a verification pass used.
type Strategy string

const (
	StrategyBatched    Strategy = "batched"
	StrategyBounded    Strategy = "bounded_concurrent"
	StrategySequential Strategy = "sequential"
)

// Outcome is the result of one verification pass.
type Outcome struct {
	// Decisions has exactly one entry per input atom, in input order.
	Decisions []types.AtomDecision

	// PendingHumanReview signals the orchestrator to hold the verify phase
	// and await human input instead of advancing.
	PendingHumanReview bool

	Warnings []string
	Strategy Strategy
}

// Verifier scores atoms and applies review decisions.
type Verifier struct {
	tools  ai.ToolRegistry
	batch  ai.BatchFacility
	config Config
}

// New creates a Verifier. tools and batch may both be nil, which pins the
// sequential strategy with rule-based scoring.
func New(tools ai.ToolRegistry, batch ai.BatchFacility, config Config) (*Verifier, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid verify config: %w", err)
	}
	return &Verifier{tools: tools, batch: batch, config: config}, nil
}

// Verify scores every atom and decides approved or quality_fail. It writes
// each atom's QualityScore in place (workers touch disjoint indices only).
// cancelled may be nil; when it reports true the pass stops at the next
// scoring boundary and returns types.ErrRunCancelled without producing
// decisions. When review is required, the outcome reports PendingHumanReview
// and the caller holds the phase.
func (v *Verifier) Verify(ctx context.Context, atoms []types.InferredAtom, cancelled func() bool) (*Outcome, error) {
	scores := make([]int, len(atoms))
	strategy := v.chooseStrategy(len(atoms))
	if cancelled == nil {
		cancelled = func() bool { return false }
	}

	var err error
	switch strategy {
	case StrategyBatched:
		err = v.scoreBatched(ctx, atoms, scores, cancelled)
	case StrategyBounded:
		err = v.scoreBounded(ctx, atoms, scores, cancelled)
	default:
		err = v.scoreSequential(ctx, atoms, scores, cancelled)
	}
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{Strategy: strategy}
	failed := 0
	for i := range atoms {
		atoms[i].QualityScore = &scores[i]
		decision := types.DecisionApproved
		if scores[i] < v.config.QualityThreshold {
			decision = types.DecisionQualityFail
			failed++
		}
		outcome.Decisions = append(outcome.Decisions, types.AtomDecision{
			AtomTempID:   atoms[i].TempID,
			Decision:     decision,
			QualityScore: scores[i],
		})
	}

	if len(atoms) > 0 && failed*2 > len(atoms) {
		outcome.Warnings = append(outcome.Warnings, fmt.Sprintf(
			"%d of %d atoms failed quality verification; review the quality threshold or inference prompts",
			failed, len(atoms)))
	}
	if v.config.RequireReview || (v.config.LegacyFailBlock && failed > len(atoms)-failed) {
		outcome.PendingHumanReview = true
	}

	log.Printf("[VERIFY] strategy %s scored %d atoms (%d failed, pending review: %t)",
		strategy, len(atoms), failed, outcome.PendingHumanReview)
	return outcome, nil
}

// Resume applies human review input on top of the quality-based decisions.
// It is deterministic and idempotent: scores come from each atom's stored
// QualityScore (re-derived by rule if absent), and atoms without an explicit
// human decision keep their quality-based decision.
func (v *Verifier) Resume(atoms []types.InferredAtom, input types.HumanReviewInput) *Outcome {
	overrides := make(map[string]string, len(input.AtomDecisions))
	for _, d := range input.AtomDecisions {
		overrides[d.AtomTempID] = d.Decision
	}

	outcome := &Outcome{Strategy: StrategySequential}
	for i := range atoms {
		score := RuleScore(atoms[i])
		if atoms[i].QualityScore != nil {
			score = *atoms[i].QualityScore
		}
		decision := types.DecisionApproved
		if score < v.config.QualityThreshold {
			decision = types.DecisionQualityFail
		}

		human := false
		switch overrides[atoms[i].TempID] {
		case "approve":
			decision = types.DecisionApproved
			human = true
		case "reject":
			decision = types.DecisionRejected
			human = true
		}
		outcome.Decisions = append(outcome.Decisions, types.AtomDecision{
			AtomTempID:    atoms[i].TempID,
			Decision:      decision,
			QualityScore:  score,
			HumanOverride: human,
		})
	}
	log.Printf("[VERIFY] review resumed: %d decisions, %d human overrides",
		len(outcome.Decisions), len(overrides))
	return outcome
}

// chooseStrategy applies the fixed priority order: batched when the batch
// facility is live and the run is large enough, bounded-concurrent when a
// scoring tool exists for a large run, sequential otherwise.
func (v *Verifier) chooseStrategy(count int) Strategy {
	large := count >= v.config.BatchThreshold
	if large && v.batch != nil && v.batch.Available() {
		return StrategyBatched
	}
	if large && v.hasTool() {
		return StrategyBounded
	}
	return StrategySequential
}

func (v *Verifier) hasTool() bool {
	return v.tools != nil && v.tools.HasTool(ToolScoreAtom)
}

// scoreResponse is the JSON shape expected from tool and batch scorers.
type scoreResponse struct {
	QualityScore float64 `json:"quality_score"`
}

// scoreBatched submits every atom in one request set and matches results
// back by atom id. Missing or malformed per-atom results fall back to the
// rule score for that atom only. The whole set is one boundary: cancellation
// is checked before submission, never mid-flight.
func (v *Verifier) scoreBatched(ctx context.Context, atoms []types.InferredAtom, scores []int, cancelled func() bool) error {
	if cancelled() {
		return types.ErrRunCancelled
	}
	items := make([]ai.BatchItem, len(atoms))
	for i, atom := range atoms {
		items[i] = ai.BatchItem{ID: atom.TempID, Prompt: scoringPrompt(atom)}
	}

	results, err := v.batch.SubmitAndWait(ctx, ai.TaskScoring, items, func(p ai.BatchProgress) {
		log.Printf("[VERIFY] batch progress: %d/%d (%d failed)", p.Completed, p.Total, p.Failed)
	})
	if err != nil {
		log.Printf("[VERIFY] batch submission failed, rule-scoring all atoms: %v", err)
		for i := range atoms {
			scores[i] = RuleScore(atoms[i])
		}
		return nil
	}

	byID := make(map[string]ai.BatchResult, len(results))
	for _, r := range results {
		byID[r.ID] = r
	}
	for i := range atoms {
		scores[i] = scoreFromResult(byID[atoms[i].TempID], atoms[i])
	}
	return nil
}

func scoreFromResult(result ai.BatchResult, atom types.InferredAtom) int {
	if result.ID == "" || result.Err != nil {
		return RuleScore(atom)
	}
	parsed := ai.Parse[scoreResponse](result.Output, "quality scoring")
	if !parsed.Success {
		return RuleScore(atom)
	}
	return clampScore(parsed.Data.QualityScore, atom)
}

// scoreBounded runs the tool scorer under a semaphore. A tool failure for
// one atom rule-scores that atom without affecting the others. cancelled is
// polled before each slot acquisition; in-flight workers drain before the
// pass reports cancellation.
func (v *Verifier) scoreBounded(ctx context.Context, atoms []types.InferredAtom, scores []int, cancelled func() bool) error {
	limit := int64(v.config.ConcurrencyLimit)
	sem := semaphore.NewWeighted(limit)
	aborted := false
	for i := range atoms {
		if cancelled() {
			aborted = true
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		go func() {
			defer sem.Release(1)
			scores[i] = v.scoreOne(ctx, atoms[i])
		}()
	}
	// Acquiring every slot waits for all workers to finish.
	if err := sem.Acquire(ctx, limit); err != nil {
		return err
	}
	sem.Release(limit)
	if aborted {
		return types.ErrRunCancelled
	}
	return nil
}

// scoreSequential scores atoms one at a time, tool first when configured.
func (v *Verifier) scoreSequential(ctx context.Context, atoms []types.InferredAtom, scores []int, cancelled func() bool) error {
	for i := range atoms {
		if cancelled() {
			return types.ErrRunCancelled
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		scores[i] = v.scoreOne(ctx, atoms[i])
	}
	return nil
}

func (v *Verifier) scoreOne(ctx context.Context, atom types.InferredAtom) int {
	if !v.hasTool() {
		return RuleScore(atom)
	}
	output, err := v.tools.ExecuteTool(ctx, ToolScoreAtom, map[string]interface{}{
		"atom_temp_id": atom.TempID,
		"prompt":       scoringPrompt(atom),
	})
	if err != nil {
		log.Printf("[VERIFY] tool scoring failed for %s, using rule score: %v", atom.TempID, err)
		return RuleScore(atom)
	}
	parsed := ai.Parse[scoreResponse](output, "quality scoring")
	if !parsed.Success {
		return RuleScore(atom)
	}
	return clampScore(parsed.Data.QualityScore, atom)
}

func clampScore(raw float64, atom types.InferredAtom) int {
	if raw <= 1.0 && raw > 0 {
		raw *= 100
	}
	if raw < 0 || raw > 100 {
		return RuleScore(atom)
	}
	return int(raw + 0.5)
}

func scoringPrompt(atom types.InferredAtom) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Score the quality of this behavioral claim from 0 to 100.\n\n")
	fmt.Fprintf(&b, "Description: %s\n", atom.Description)
	fmt.Fprintf(&b, "Category: %s\n", atom.Category)
	fmt.Fprintf(&b, "Observable outcomes: %s\n", strings.Join(atom.ObservableOutcomes, "; "))
	fmt.Fprintf(&b, "Reasoning: %s\n", atom.Reasoning)
	if len(atom.AmbiguityReasons) > 0 {
		fmt.Fprintf(&b, "Known ambiguities: %s\n", strings.Join(atom.AmbiguityReasons, "; "))
	}
	b.WriteString("\nRespond with JSON only: {\"quality_score\": 0-100}")
	return b.String()
}
