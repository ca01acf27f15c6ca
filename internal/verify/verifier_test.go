package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/specdrift/specdrift/internal/ai"
	"github.com/specdrift/specdrift/internal/types"
)

// goodAtom scores 100 against the rules.
func goodAtom(id string) types.InferredAtom {
	return types.InferredAtom{
		TempID:              id,
		Description:         "users can reset their password via an emailed link",
		Category:            types.CategoryFunctional,
		ObservableOutcomes:  []string{"a reset email arrives"},
		Confidence:          85,
		Reasoning:           "the test asserts the email is sent and the link works",
		SourceReference:     types.SourceReference{FilePath: "auth_test.go", Name: "TestReset"},
		EvidenceSources:     []types.EvidenceSource{{Type: types.EvidenceTest, FilePath: "auth_test.go", Name: "TestReset"}},
		PrimaryEvidenceType: types.EvidenceTest,
	}
}

// weakAtom scores well below the default threshold.
func weakAtom(id string) types.InferredAtom {
	return types.InferredAtom{
		TempID:              id,
		Description:         "System exhibits behavior evidenced by coverage_gap in legacy.go",
		Category:            types.CategoryFunctional,
		Confidence:          30,
		Reasoning:           "fallback",
		AmbiguityReasons:    []string{"model output was unparseable"},
		PrimaryEvidenceType: types.EvidenceCoverageGap,
	}
}

type fakeBatch struct {
	available bool
	calls     int32
	respond   func(item ai.BatchItem) ai.BatchResult
	err       error
}

func (f *fakeBatch) Available() bool { return f.available }

func (f *fakeBatch) SubmitAndWait(ctx context.Context, task ai.Task, items []ai.BatchItem, progress func(ai.BatchProgress)) ([]ai.BatchResult, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	results := make([]ai.BatchResult, len(items))
	for i, item := range items {
		results[i] = f.respond(item)
	}
	if progress != nil {
		progress(ai.BatchProgress{Completed: len(items), Total: len(items)})
	}
	return results, nil
}

func TestRuleScoreComponents(t *testing.T) {
	full := goodAtom("a1")
	if got := RuleScore(full); got != 100 {
		t.Errorf("complete atom should score 100, got %d", got)
	}

	tests := []struct {
		name   string
		mutate func(*types.InferredAtom)
		want   int
	}{
		{"short description", func(a *types.InferredAtom) { a.Description = "short" }, 75},
		{"no outcomes", func(a *types.InferredAtom) { a.ObservableOutcomes = nil }, 85},
		{"no category", func(a *types.InferredAtom) { a.Category = "" }, 85},
		{"thin reasoning", func(a *types.InferredAtom) { a.Reasoning = "yes" }, 90},
		{"low confidence", func(a *types.InferredAtom) { a.Confidence = 49 }, 85},
		{"ambiguous", func(a *types.InferredAtom) { a.AmbiguityReasons = []string{"x"} }, 90},
		{"no source ref", func(a *types.InferredAtom) { a.SourceReference = types.SourceReference{} }, 90},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			atom := goodAtom("a1")
			tt.mutate(&atom)
			if got := RuleScore(atom); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSequentialStrategySmallRun(t *testing.T) {
	v, err := New(nil, nil, DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	atoms := []types.InferredAtom{goodAtom("a1"), weakAtom("a2")}
	outcome, err := v.Verify(context.Background(), atoms, nil)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if outcome.Strategy != StrategySequential {
		t.Errorf("expected sequential strategy, got %s", outcome.Strategy)
	}
	if outcome.Decisions[0].Decision != types.DecisionApproved {
		t.Errorf("good atom should be approved, got %s", outcome.Decisions[0].Decision)
	}
	if outcome.Decisions[1].Decision != types.DecisionQualityFail {
		t.Errorf("weak atom should fail, got %s", outcome.Decisions[1].Decision)
	}
	if atoms[0].QualityScore == nil || *atoms[0].QualityScore != 100 {
		t.Error("quality score should be written back onto the atom")
	}
}

func TestBatchedStrategyUsedOnceForLargeRun(t *testing.T) {
	batch := &fakeBatch{
		available: true,
		respond: func(item ai.BatchItem) ai.BatchResult {
			return ai.BatchResult{ID: item.ID, Output: `{"quality_score": 91}`}
		},
	}
	v, _ := New(nil, batch, DefaultConfig())

	var atoms []types.InferredAtom
	for i := 0; i < 25; i++ {
		atoms = append(atoms, goodAtom(fmt.Sprintf("a%02d", i)))
	}
	outcome, err := v.Verify(context.Background(), atoms, nil)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if outcome.Strategy != StrategyBatched {
		t.Fatalf("expected batched strategy, got %s", outcome.Strategy)
	}
	if batch.calls != 1 {
		t.Errorf("batch facility should be used exactly once, got %d calls", batch.calls)
	}
	if len(outcome.Decisions) != 25 {
		t.Fatalf("expected 25 decisions, got %d", len(outcome.Decisions))
	}
	for i, d := range outcome.Decisions {
		if d.AtomTempID != atoms[i].TempID {
			t.Fatalf("decision %d out of order: %s != %s", i, d.AtomTempID, atoms[i].TempID)
		}
		if d.QualityScore != 91 {
			t.Errorf("expected batch score 91, got %d", d.QualityScore)
		}
	}
}

func TestBatchedMalformedResultFallsBackPerAtom(t *testing.T) {
	batch := &fakeBatch{
		available: true,
		respond: func(item ai.BatchItem) ai.BatchResult {
			if item.ID == "a05" {
				return ai.BatchResult{ID: item.ID, Output: "not json"}
			}
			if item.ID == "a06" {
				return ai.BatchResult{ID: item.ID, Err: errors.New("item failed")}
			}
			return ai.BatchResult{ID: item.ID, Output: `{"quality_score": 90}`}
		},
	}
	v, _ := New(nil, batch, DefaultConfig())

	var atoms []types.InferredAtom
	for i := 0; i < 20; i++ {
		atoms = append(atoms, goodAtom(fmt.Sprintf("a%02d", i)))
	}
	outcome, err := v.Verify(context.Background(), atoms, nil)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	// Atoms 5 and 6 fall back to the rule score (100 for a complete atom).
	for i, d := range outcome.Decisions {
		want := 90
		if i == 5 || i == 6 {
			want = 100
		}
		if d.QualityScore != want {
			t.Errorf("decision %d: score %d, want %d", i, d.QualityScore, want)
		}
	}
}

func TestBoundedStrategyToolFailureIsolated(t *testing.T) {
	tools := ai.NewFuncRegistry()
	tools.Register(ToolScoreAtom, func(ctx context.Context, args map[string]interface{}) (string, error) {
		if args["atom_temp_id"] == "a03" {
			return "", errors.New("tool crashed")
		}
		return `{"quality_score": 88}`, nil
	})
	v, _ := New(tools, nil, DefaultConfig())

	var atoms []types.InferredAtom
	for i := 0; i < 20; i++ {
		atoms = append(atoms, goodAtom(fmt.Sprintf("a%02d", i)))
	}
	outcome, err := v.Verify(context.Background(), atoms, nil)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if outcome.Strategy != StrategyBounded {
		t.Fatalf("expected bounded strategy, got %s", outcome.Strategy)
	}
	for i, d := range outcome.Decisions {
		want := 88
		if i == 3 {
			want = 100 // rule fallback for the crashed tool call
		}
		if d.QualityScore != want {
			t.Errorf("decision %d: score %d, want %d", i, d.QualityScore, want)
		}
	}
}

func TestAllStrategiesPreserveOrder(t *testing.T) {
	var atoms []types.InferredAtom
	for i := 0; i < 25; i++ {
		atoms = append(atoms, goodAtom(fmt.Sprintf("a%02d", i)))
	}

	tools := ai.NewFuncRegistry()
	tools.Register(ToolScoreAtom, func(ctx context.Context, args map[string]interface{}) (string, error) {
		return `{"quality_score": 95}`, nil
	})
	batch := &fakeBatch{
		available: true,
		respond: func(item ai.BatchItem) ai.BatchResult {
			return ai.BatchResult{ID: item.ID, Output: `{"quality_score": 95}`}
		},
	}

	verifiers := map[Strategy]*Verifier{}
	vBatch, _ := New(nil, batch, DefaultConfig())
	verifiers[StrategyBatched] = vBatch
	vBounded, _ := New(tools, nil, DefaultConfig())
	verifiers[StrategyBounded] = vBounded
	vSeq, _ := New(nil, nil, DefaultConfig())
	verifiers[StrategySequential] = vSeq

	for want, v := range verifiers {
		input := make([]types.InferredAtom, len(atoms))
		copy(input, atoms)
		outcome, err := v.Verify(context.Background(), input, nil)
		if err != nil {
			t.Fatalf("%s Verify failed: %v", want, err)
		}
		if outcome.Strategy != want {
			t.Fatalf("expected %s, got %s", want, outcome.Strategy)
		}
		if len(outcome.Decisions) != len(atoms) {
			t.Fatalf("%s: %d decisions for %d atoms", want, len(outcome.Decisions), len(atoms))
		}
		for i, d := range outcome.Decisions {
			if d.AtomTempID != atoms[i].TempID {
				t.Errorf("%s: decision %d out of order", want, i)
			}
		}
	}
}

func TestBoundedStrategyStopsOnCancellation(t *testing.T) {
	var toolCalls int32
	var flag atomic.Bool
	tools := ai.NewFuncRegistry()
	tools.Register(ToolScoreAtom, func(ctx context.Context, args map[string]interface{}) (string, error) {
		atomic.AddInt32(&toolCalls, 1)
		flag.Store(true)
		return `{"quality_score": 90}`, nil
	})

	cfg := DefaultConfig()
	cfg.ConcurrencyLimit = 1
	v, _ := New(tools, nil, cfg)

	var atoms []types.InferredAtom
	for i := 0; i < 25; i++ {
		atoms = append(atoms, goodAtom(fmt.Sprintf("a%02d", i)))
	}
	outcome, err := v.Verify(context.Background(), atoms, flag.Load)
	if !errors.Is(err, types.ErrRunCancelled) {
		t.Fatalf("expected ErrRunCancelled, got %v", err)
	}
	if outcome != nil {
		t.Errorf("cancelled pass must not produce decisions, got %+v", outcome)
	}
	if got := atomic.LoadInt32(&toolCalls); got >= 25 {
		t.Errorf("scoring ran to completion despite cancellation: %d calls", got)
	}
}

func TestSequentialStrategyStopsOnCancellation(t *testing.T) {
	var toolCalls int32
	var flag atomic.Bool
	tools := ai.NewFuncRegistry()
	tools.Register(ToolScoreAtom, func(ctx context.Context, args map[string]interface{}) (string, error) {
		atomic.AddInt32(&toolCalls, 1)
		flag.Store(true)
		return `{"quality_score": 90}`, nil
	})
	v, _ := New(tools, nil, DefaultConfig())

	// Below the batch threshold: sequential strategy with the tool scorer.
	atoms := []types.InferredAtom{goodAtom("a1"), goodAtom("a2"), goodAtom("a3")}
	outcome, err := v.Verify(context.Background(), atoms, flag.Load)
	if !errors.Is(err, types.ErrRunCancelled) {
		t.Fatalf("expected ErrRunCancelled, got %v", err)
	}
	if outcome != nil {
		t.Errorf("cancelled pass must not produce decisions, got %+v", outcome)
	}
	if got := atomic.LoadInt32(&toolCalls); got != 1 {
		t.Errorf("expected exactly 1 call before the next boundary, got %d", got)
	}
}

func TestBatchedStrategyChecksCancellationBeforeSubmit(t *testing.T) {
	batch := &fakeBatch{
		available: true,
		respond: func(item ai.BatchItem) ai.BatchResult {
			return ai.BatchResult{ID: item.ID, Output: `{"quality_score": 90}`}
		},
	}
	v, _ := New(nil, batch, DefaultConfig())

	var atoms []types.InferredAtom
	for i := 0; i < 25; i++ {
		atoms = append(atoms, goodAtom(fmt.Sprintf("a%02d", i)))
	}
	_, err := v.Verify(context.Background(), atoms, func() bool { return true })
	if !errors.Is(err, types.ErrRunCancelled) {
		t.Fatalf("expected ErrRunCancelled, got %v", err)
	}
	if batch.calls != 0 {
		t.Errorf("batch must not be submitted after cancellation, got %d calls", batch.calls)
	}
}

func TestHighFailureRateWarns(t *testing.T) {
	v, _ := New(nil, nil, DefaultConfig())
	atoms := []types.InferredAtom{weakAtom("a1"), weakAtom("a2"), goodAtom("a3")}
	outcome, err := v.Verify(context.Background(), atoms, nil)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if len(outcome.Warnings) != 1 || !strings.Contains(outcome.Warnings[0], "failed quality verification") {
		t.Errorf("expected failure-rate warning, got %v", outcome.Warnings)
	}
}

func TestRequireReviewPauses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequireReview = true
	v, _ := New(nil, nil, cfg)

	outcome, err := v.Verify(context.Background(), []types.InferredAtom{goodAtom("a1")}, nil)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !outcome.PendingHumanReview {
		t.Error("requireReview must pause for human review")
	}
}

func TestLegacyFailBlockPausesOnMajorityFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LegacyFailBlock = true
	v, _ := New(nil, nil, cfg)

	outcome, err := v.Verify(context.Background(),
		[]types.InferredAtom{weakAtom("a1"), weakAtom("a2"), goodAtom("a3")}, nil)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !outcome.PendingHumanReview {
		t.Error("legacy fail block must pause when failures outnumber passes")
	}

	// Without the legacy flag the same run does not pause.
	vOff, _ := New(nil, nil, DefaultConfig())
	outcome, _ = vOff.Verify(context.Background(),
		[]types.InferredAtom{weakAtom("a1"), weakAtom("a2"), goodAtom("a3")}, nil)
	if outcome.PendingHumanReview {
		t.Error("majority failure alone must not pause without the legacy flag")
	}
}

func TestResumeAppliesHumanOverrides(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequireReview = true
	v, _ := New(nil, nil, cfg)

	atoms := []types.InferredAtom{goodAtom("a1"), goodAtom("a2"), weakAtom("a3")}
	first, err := v.Verify(context.Background(), atoms, nil)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !first.PendingHumanReview {
		t.Fatal("expected pending review")
	}

	input := types.HumanReviewInput{AtomDecisions: []types.HumanAtomDecision{
		{AtomTempID: "a1", Decision: "reject"},
		{AtomTempID: "a3", Decision: "approve"},
	}}
	resumed := v.Resume(atoms, input)

	// A human rejection wins regardless of quality score.
	if resumed.Decisions[0].Decision != types.DecisionRejected || !resumed.Decisions[0].HumanOverride {
		t.Errorf("a1 should be rejected by override, got %+v", resumed.Decisions[0])
	}
	// No override: quality-based decision stands.
	if resumed.Decisions[1].Decision != types.DecisionApproved || resumed.Decisions[1].HumanOverride {
		t.Errorf("a2 should keep its quality decision, got %+v", resumed.Decisions[1])
	}
	// A human approval rescues a quality failure.
	if resumed.Decisions[2].Decision != types.DecisionApproved || !resumed.Decisions[2].HumanOverride {
		t.Errorf("a3 should be approved by override, got %+v", resumed.Decisions[2])
	}
}

func TestResumeIsIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequireReview = true
	v, _ := New(nil, nil, cfg)

	atoms := []types.InferredAtom{goodAtom("a1"), weakAtom("a2")}
	if _, err := v.Verify(context.Background(), atoms, nil); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	input := types.HumanReviewInput{AtomDecisions: []types.HumanAtomDecision{
		{AtomTempID: "a2", Decision: "approve"},
	}}
	first := v.Resume(atoms, input)
	second := v.Resume(atoms, input)

	if len(first.Decisions) != len(second.Decisions) {
		t.Fatal("resume is not idempotent: decision counts differ")
	}
	for i := range first.Decisions {
		if first.Decisions[i] != second.Decisions[i] {
			t.Errorf("resume is not idempotent at %d: %+v vs %+v",
				i, first.Decisions[i], second.Decisions[i])
		}
	}
}
