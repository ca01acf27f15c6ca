// Package pipeline drives the reconciliation run through its linear state
// machine: structure → discover → context → infer → synthesize → verify →
// persist. Phase failures are local and additive: a failed phase appends
// to the run's errors and the run advances with empty results. The only
// run-aborting condition is cooperative cancellation, and the only
// suspension is the verify phase's human-review pause.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/specdrift/specdrift/internal/analysis"
	"github.com/specdrift/specdrift/internal/content"
	"github.com/specdrift/specdrift/internal/dedup"
	"github.com/specdrift/specdrift/internal/discovery"
	"github.com/specdrift/specdrift/internal/events"
	"github.com/specdrift/specdrift/internal/inference"
	"github.com/specdrift/specdrift/internal/storage"
	"github.com/specdrift/specdrift/internal/synthesis"
	"github.com/specdrift/specdrift/internal/types"
	"github.com/specdrift/specdrift/internal/verify"
)

// CallCounter exposes how many model calls a run has issued so far.
type CallCounter interface {
	CallCount() int
}

// Orchestrator owns run state and steps it through the pipeline phases.
type Orchestrator struct {
	discoverer  *discovery.Discoverer
	analyzer    *analysis.Analyzer
	engine      *inference.Engine
	synthesizer *synthesis.Synthesizer
	verifier    *verify.Verifier
	dedupConfig dedup.Config

	store    storage.RunStore // optional
	counter  CallCounter      // optional
	registry *CancelRegistry
}

// Options bundles the phase implementations for an Orchestrator. Store and
// Counter are optional; everything else is required.
type Options struct {
	Discoverer  *discovery.Discoverer
	Analyzer    *analysis.Analyzer
	Engine      *inference.Engine
	Synthesizer *synthesis.Synthesizer
	Verifier    *verify.Verifier
	DedupConfig dedup.Config

	Store    storage.RunStore
	Counter  CallCounter
	Registry *CancelRegistry
}

// New creates an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Discoverer == nil || opts.Analyzer == nil || opts.Engine == nil ||
		opts.Synthesizer == nil || opts.Verifier == nil {
		return nil, fmt.Errorf("all phase implementations are required")
	}
	if err := opts.DedupConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dedup config: %w", err)
	}
	registry := opts.Registry
	if registry == nil {
		registry = NewCancelRegistry()
	}
	return &Orchestrator{
		discoverer:  opts.Discoverer,
		analyzer:    opts.Analyzer,
		engine:      opts.Engine,
		synthesizer: opts.Synthesizer,
		verifier:    opts.Verifier,
		dedupConfig: opts.DedupConfig,
		store:       opts.Store,
		counter:     opts.Counter,
		registry:    registry,
	}, nil
}

// Registry returns the cancellation registry so callers can cancel runs.
func (o *Orchestrator) Registry() *CancelRegistry { return o.registry }

// Run executes a fresh reconciliation run over root. It returns the final
// RunState; if the verify phase suspended for human review, the state
// reports PendingHumanReview with the phase still at verify, and the caller
// resumes later via Resume. Cancellation returns the state together with
// types.ErrRunCancelled; everything produced after the last committed
// boundary has been discarded.
func (o *Orchestrator) Run(ctx context.Context, root string, scanOpts content.ScanOptions) (*types.RunState, error) {
	state := &types.RunState{
		RunID:     "run-" + uuid.NewString(),
		Phase:     types.PhaseStructure,
		StartedAt: time.Now().UTC(),
	}
	o.registry.Register(state.RunID)
	defer o.registry.Release(state.RunID)
	log.Printf("[PIPELINE] run %s started at %s", state.RunID, root)

	return o.advance(ctx, state, &runScratch{root: root, scanOpts: scanOpts})
}

// Resume continues a suspended run with the reviewer's input. The run must
// be parked at the verify phase.
func (o *Orchestrator) Resume(ctx context.Context, state *types.RunState, input types.HumanReviewInput) (*types.RunState, error) {
	if state.Phase != types.PhaseVerify || !state.PendingHumanReview {
		return state, fmt.Errorf("run %s is not awaiting review (phase %s)", state.RunID, state.Phase)
	}
	state.HumanReviewInput = &input
	o.registry.Register(state.RunID)
	defer o.registry.Release(state.RunID)
	o.emit(ctx, events.ReviewResumed(state.RunID, len(input.AtomDecisions)))

	return o.advance(ctx, state, &runScratch{})
}

// runScratch holds run-scoped working data that never needs to survive a
// suspension: the scan target and the dependency edges feeding the
// foundational boost.
type runScratch struct {
	root     string
	scanOpts content.ScanOptions
	deps     []content.DependencyEdge
}

// advance runs phases until the run terminates, suspends, or is cancelled.
func (o *Orchestrator) advance(ctx context.Context, state *types.RunState, scratch *runScratch) (*types.RunState, error) {
	for {
		if o.registry.Cancelled(state.RunID) || ctx.Err() != nil {
			return o.cancelRun(ctx, state)
		}

		var suspended bool
		var err error
		switch state.Phase {
		case types.PhaseStructure:
			o.runStructure(state, scratch.root)
		case types.PhaseDiscover:
			o.runDiscover(ctx, state, scratch)
		case types.PhaseContext:
			o.runContext(ctx, state)
		case types.PhaseInfer:
			err = o.runInfer(ctx, state, scratch)
		case types.PhaseSynthesize:
			o.runSynthesize(ctx, state)
		case types.PhaseVerify:
			suspended, err = o.runVerify(ctx, state)
		case types.PhasePersist:
			o.runPersist(ctx, state)
		}
		if errors.Is(err, types.ErrRunCancelled) {
			return o.cancelRun(ctx, state)
		}
		if err != nil {
			// No phase returns any other error today; treat it as local.
			state.AddError(state.Phase, err)
		}

		if o.counter != nil {
			state.LLMCallCount = o.counter.CallCount()
		}
		state.UpdatedAt = time.Now().UTC()

		if suspended {
			o.saveState(ctx, state)
			o.emit(ctx, events.ReviewPending(state.RunID, len(state.InferredAtoms)))
			log.Printf("[PIPELINE] run %s suspended for human review (%d atoms)",
				state.RunID, len(state.InferredAtoms))
			return state, nil
		}

		from := state.Phase
		if from.Terminal() {
			o.saveState(ctx, state)
			log.Printf("[PIPELINE] run %s complete: %d atoms, %d molecules, %d errors, %d warnings",
				state.RunID, len(state.InferredAtoms), len(state.InferredMolecules),
				len(state.Errors), len(state.Warnings))
			return state, nil
		}
		state.Phase = from.Next()
		o.emit(ctx, events.PhaseTransition(state.RunID, string(from), string(state.Phase)))
	}
}

// cancelRun discards uncommitted output and marks the run cancelled.
func (o *Orchestrator) cancelRun(ctx context.Context, state *types.RunState) (*types.RunState, error) {
	o.emit(ctx, events.Cancelled(state.RunID, string(state.Phase)))
	state.UpdatedAt = time.Now().UTC()
	o.saveState(ctx, state)
	log.Printf("[PIPELINE] run %s cancelled during %s", state.RunID, state.Phase)
	return state, types.ErrRunCancelled
}

// runStructure validates the workspace before any scanning happens.
func (o *Orchestrator) runStructure(state *types.RunState, root string) {
	info, err := os.Stat(root)
	if err != nil {
		state.AddError(types.PhaseStructure, fmt.Errorf("workspace root: %w", err))
		return
	}
	if !info.IsDir() {
		state.AddError(types.PhaseStructure, fmt.Errorf("workspace root %s is not a directory", root))
	}
}

// runDiscover finds evidence and applies the pre-inference evidence dedup so
// near-duplicates never reach the model.
func (o *Orchestrator) runDiscover(ctx context.Context, state *types.RunState, scratch *runScratch) {
	result, err := o.discoverer.Discover(ctx, scratch.root, scratch.scanOpts)
	if err != nil {
		state.AddError(types.PhaseDiscover, err)
		o.emit(ctx, events.PhaseError(state.RunID, string(types.PhaseDiscover), err.Error()))
		return
	}
	for _, w := range result.Warnings {
		state.AddWarning("%s", w)
		o.emit(ctx, events.Warning(state.RunID, w))
	}
	for _, key := range result.ChangedLinkedEvidence {
		state.AddWarning("evidence %s changed but is linked to an existing atom; review it manually", key)
	}
	state.ChangedLinkedEvidence = result.ChangedLinkedEvidence
	state.EvidenceItems = dedup.DedupEvidence(result.Items, o.dedupConfig)
	scratch.deps = result.Dependencies
}

// runContext derives per-evidence analysis for inference to consume.
func (o *Orchestrator) runContext(ctx context.Context, state *types.RunState) {
	analyses, err := o.analyzer.Analyze(ctx, state.EvidenceItems)
	if err != nil {
		state.AddError(types.PhaseContext, err)
		o.emit(ctx, events.PhaseError(state.RunID, string(types.PhaseContext), err.Error()))
		return
	}
	state.EvidenceAnalysis = analyses
}

// runInfer produces atoms, deduplicates them across evidence types, and
// sheds the consumed analysis context.
func (o *Orchestrator) runInfer(ctx context.Context, state *types.RunState, scratch *runScratch) error {
	cancelled := func() bool { return o.registry.Cancelled(state.RunID) }
	result, err := o.engine.Infer(ctx, state.EvidenceItems, state.EvidenceAnalysis, scratch.deps, cancelled)
	if err != nil {
		// Cancellation discards the partial atom list entirely.
		return err
	}

	atoms := dedup.DedupAtoms(result.Atoms, o.dedupConfig)
	state.InferredAtoms = make([]*types.InferredAtom, len(atoms))
	for i := range atoms {
		state.InferredAtoms[i] = &atoms[i]
	}
	if result.FilteredByMinConfidence > 0 {
		state.AddWarning("%d atoms excluded below minimum confidence", result.FilteredByMinConfidence)
	}
	state.ShedAnalysis()
	return nil
}

// runSynthesize clusters atoms into molecules. Synthesis never discards
// atoms; a failure here would only cost the grouping.
func (o *Orchestrator) runSynthesize(ctx context.Context, state *types.RunState) {
	atoms := derefAtoms(state.InferredAtoms)
	molecules := o.synthesizer.Synthesize(ctx, atoms)
	state.InferredMolecules = make([]*types.InferredMolecule, len(molecules))
	for i := range molecules {
		state.InferredMolecules[i] = &molecules[i]
	}
}

// runVerify scores atoms or applies review input. It reports suspended=true
// when the phase must hold for human review.
func (o *Orchestrator) runVerify(ctx context.Context, state *types.RunState) (bool, error) {
	atoms := derefAtoms(state.InferredAtoms)

	if state.PendingHumanReview {
		if state.HumanReviewInput == nil {
			// Re-invoked without input: stay suspended.
			return true, nil
		}
		outcome := o.verifier.Resume(atoms, *state.HumanReviewInput)
		state.Decisions = outcome.Decisions
		state.PendingHumanReview = false
		state.HumanReviewInput = nil
		return false, nil
	}

	cancelled := func() bool { return o.registry.Cancelled(state.RunID) }
	outcome, err := o.verifier.Verify(ctx, atoms, cancelled)
	if err != nil {
		// Cancellation propagates; decisions from an aborted pass are
		// discarded.
		return false, err
	}
	for i, d := range outcome.Decisions {
		score := d.QualityScore
		state.InferredAtoms[i].QualityScore = &score
	}
	for _, w := range outcome.Warnings {
		state.AddWarning("%s", w)
		o.emit(ctx, events.Warning(state.RunID, w))
	}
	state.Decisions = outcome.Decisions
	if outcome.PendingHumanReview {
		state.PendingHumanReview = true
		return true, nil
	}
	return false, nil
}

// runPersist records dispositions and atom links for downstream governance.
func (o *Orchestrator) runPersist(ctx context.Context, state *types.RunState) {
	if o.store == nil {
		return
	}
	for _, d := range state.Decisions {
		atom := state.AtomByTempID(d.AtomTempID)
		if atom == nil {
			continue
		}
		disposition := storage.DispositionPending
		switch d.Decision {
		case types.DecisionApproved:
			disposition = storage.DispositionAccepted
		case types.DecisionRejected:
			disposition = storage.DispositionRejected
		}
		for _, src := range atom.EvidenceSources {
			key := evidenceKey(src)
			if err := o.store.RecordDisposition(ctx, key, disposition, state.RunID); err != nil {
				state.AddError(types.PhasePersist, err)
				continue
			}
			if d.Decision == types.DecisionApproved {
				if err := o.store.LinkAtom(ctx, key, atom.TempID); err != nil {
					state.AddError(types.PhasePersist, err)
				}
			}
		}
	}
}

func evidenceKey(src types.EvidenceSource) string {
	item := types.EvidenceItem{Type: src.Type, FilePath: src.FilePath, Name: src.Name}
	return item.Key()
}

func derefAtoms(atoms []*types.InferredAtom) []types.InferredAtom {
	out := make([]types.InferredAtom, len(atoms))
	for i, a := range atoms {
		out[i] = *a
	}
	return out
}

func (o *Orchestrator) saveState(ctx context.Context, state *types.RunState) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveRun(ctx, state); err != nil {
		log.Printf("[PIPELINE] saving run %s failed: %v", state.RunID, err)
	}
}

func (o *Orchestrator) emit(ctx context.Context, event *events.RunEvent) {
	if o.store == nil {
		return
	}
	if err := o.store.StoreEvent(ctx, event); err != nil {
		log.Printf("[PIPELINE] storing event for run %s failed: %v", event.RunID, err)
	}
}
