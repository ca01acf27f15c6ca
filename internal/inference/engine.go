// Package inference turns evidence items into candidate atoms: single,
// observable behavioral claims with confidence and provenance. Every
// evidence item yields exactly one atom or a counted min-confidence
// exclusion; nothing is dropped silently.
package inference

import (
	"context"
	"fmt"
	"log"
	"path"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/specdrift/specdrift/internal/ai"
	"github.com/specdrift/specdrift/internal/content"
	"github.com/specdrift/specdrift/internal/types"
)

// ToolInferAtom is the optional tool name tried before direct LLM
// invocation for each item.
const ToolInferAtom = "infer_atom"

// Result is the output of an inference pass.
type Result struct {
	Atoms []types.InferredAtom

	// FilteredByMinConfidence counts atoms excluded after fallback
	// substitution. Atoms plus this count always equals the evidence input
	// count.
	FilteredByMinConfidence int
}

// Engine infers atoms from evidence.
type Engine struct {
	invoker ai.Invoker
	tools   ai.ToolRegistry
	config  Config
}

// New creates an Engine. tools may be nil; invoker may be nil, in which case
// every item produces a fallback atom.
func New(invoker ai.Invoker, tools ai.ToolRegistry, config Config) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid inference config: %w", err)
	}
	return &Engine{invoker: invoker, tools: tools, config: config}, nil
}

// atomResponse is the JSON shape the model is asked for.
type atomResponse struct {
	Description        string   `json:"description"`
	Category           string   `json:"category"`
	ObservableOutcomes []string `json:"observable_outcomes"`
	Confidence         float64  `json:"confidence"`
	Reasoning          string   `json:"reasoning"`
	AmbiguityReasons   []string `json:"ambiguity_reasons"`
}

// Infer processes evidence tier by tier in the fixed TierOrder, in
// concurrent batches within each tier. cancelled is polled at every batch
// boundary; once it reports true, Infer returns the atoms committed by
// completed batches together with ErrRunCancelled; the caller decides
// whether to keep them (the orchestrator discards them).
func (e *Engine) Infer(ctx context.Context, items []types.EvidenceItem, analysis map[string]types.EvidenceAnalysis, deps []content.DependencyEdge, cancelled func() bool) (*Result, error) {
	byTier := make(map[types.EvidenceType][]types.EvidenceItem)
	for _, item := range items {
		byTier[item.Type] = append(byTier[item.Type], item)
	}
	graph := buildDepGraph(deps, e.config)

	var atoms []types.InferredAtom
	for _, tier := range types.TierOrder {
		tierItems := byTier[tier]
		if len(tierItems) == 0 {
			continue
		}
		log.Printf("[INFERENCE] tier %s: %d items", tier, len(tierItems))

		for start := 0; start < len(tierItems); start += e.config.BatchSize {
			if cancelled != nil && cancelled() {
				log.Printf("[INFERENCE] cancellation observed at batch boundary, %d atoms committed", len(atoms))
				return &Result{Atoms: atoms}, types.ErrRunCancelled
			}
			if err := ctx.Err(); err != nil {
				return &Result{Atoms: atoms}, types.ErrRunCancelled
			}

			end := min(start+e.config.BatchSize, len(tierItems))
			batch := tierItems[start:end]
			produced := make([]types.InferredAtom, len(batch))

			g, gctx := errgroup.WithContext(ctx)
			for i := range batch {
				g.Go(func() error {
					produced[i] = e.inferOne(gctx, batch[i], analysis)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return &Result{Atoms: atoms}, err
			}
			atoms = append(atoms, produced...)
		}
	}

	// Boost and filter sequentially after all parallel work is done.
	result := &Result{}
	for _, atom := range atoms {
		if e.config.FoundationalBoost > 0 && graph.foundational(atom.SourceReference.FilePath) {
			atom.Confidence = min(atom.Confidence+e.config.FoundationalBoost, 100)
		}
		if atom.Confidence < e.config.MinConfidence {
			result.FilteredByMinConfidence++
			continue
		}
		result.Atoms = append(result.Atoms, atom)
	}
	log.Printf("[INFERENCE] produced %d atoms from %d items (%d below min confidence)",
		len(result.Atoms), len(items), result.FilteredByMinConfidence)
	return result, nil
}

// inferOne produces exactly one atom for one evidence item. Tool-based
// inference is tried first when configured; any failure at any stage lands
// on the fallback atom, never on an error.
func (e *Engine) inferOne(ctx context.Context, item types.EvidenceItem, analysis map[string]types.EvidenceAnalysis) types.InferredAtom {
	var itemAnalysis *types.EvidenceAnalysis
	if a, ok := analysis[item.Key()]; ok {
		itemAnalysis = &a
	}
	prompt := buildPrompt(item, itemAnalysis)

	if e.tools != nil && e.tools.HasTool(ToolInferAtom) {
		output, err := e.tools.ExecuteTool(ctx, ToolInferAtom, map[string]interface{}{
			"evidence_type": string(item.Type),
			"file_path":     item.FilePath,
			"name":          item.Name,
			"prompt":        prompt,
		})
		if err == nil {
			if atom, ok := e.atomFromOutput(output, item); ok {
				return atom
			}
		} else {
			log.Printf("[INFERENCE] tool %s failed for %s, falling back to direct call: %v",
				ToolInferAtom, item.Key(), err)
		}
	}

	if e.invoker == nil {
		return e.fallbackAtom(item, "no model available")
	}
	output, err := e.invoker.Invoke(ctx, ai.Request{
		Task:     ai.TaskInference,
		Messages: []ai.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		log.Printf("[INFERENCE] %s: call failed, synthesizing fallback atom: %v", item.Key(), err)
		return e.fallbackAtom(item, fmt.Sprintf("model call failed: %v", err))
	}
	if atom, ok := e.atomFromOutput(output, item); ok {
		return atom
	}
	return e.fallbackAtom(item, "model output was unparseable or incomplete")
}

// atomFromOutput parses and validates a model response into an atom.
func (e *Engine) atomFromOutput(output string, item types.EvidenceItem) (types.InferredAtom, bool) {
	parsed := ai.Parse[atomResponse](output, "atom inference")
	if !parsed.Success {
		return types.InferredAtom{}, false
	}
	resp := parsed.Data
	if strings.TrimSpace(resp.Description) == "" {
		return types.InferredAtom{}, false
	}

	category := types.AtomCategory(strings.ToLower(strings.TrimSpace(resp.Category)))
	ambiguity := resp.AmbiguityReasons
	switch category {
	case types.CategoryFunctional, types.CategorySecurity, types.CategoryPerformance,
		types.CategoryReliability, types.CategoryUsability:
	default:
		ambiguity = append(ambiguity, fmt.Sprintf("model reported unknown category %q", resp.Category))
		category = types.CategoryFunctional
	}
	ambiguity = append(ambiguity, validateDescription(resp.Description)...)

	return types.InferredAtom{
		TempID:              newTempID(),
		Description:         strings.TrimSpace(resp.Description),
		Category:            category,
		ObservableOutcomes:  resp.ObservableOutcomes,
		Confidence:          normalizeConfidence(resp.Confidence),
		Reasoning:           resp.Reasoning,
		AmbiguityReasons:    ambiguity,
		SourceReference:     sourceRef(item),
		EvidenceSources:     []types.EvidenceSource{evidenceSource(item)},
		PrimaryEvidenceType: item.Type,
	}, true
}

// fallbackAtom synthesizes a low-confidence atom from the evidence itself so
// no item is ever dropped silently. Its confidence never exceeds the
// evidence's own base confidence.
func (e *Engine) fallbackAtom(item types.EvidenceItem, reason string) types.InferredAtom {
	confidence := min(e.config.FallbackConfidence, item.BaseConfidence)
	return types.InferredAtom{
		TempID:              newTempID(),
		Description:         fallbackDescription(item),
		Category:            types.CategoryFunctional,
		Confidence:          confidence,
		Reasoning:           "synthesized mechanically from evidence metadata",
		AmbiguityReasons:    []string{reason},
		SourceReference:     sourceRef(item),
		EvidenceSources:     []types.EvidenceSource{evidenceSource(item)},
		PrimaryEvidenceType: item.Type,
	}
}

func fallbackDescription(item types.EvidenceItem) string {
	return fmt.Sprintf("System exhibits behavior evidenced by %s %q in %s",
		item.Type, item.Name, item.FilePath)
}

func newTempID() string {
	return "atom-" + uuid.NewString()
}

func sourceRef(item types.EvidenceItem) types.SourceReference {
	return types.SourceReference{
		FilePath:   item.FilePath,
		Name:       item.Name,
		LineNumber: item.LineNumber,
	}
}

func evidenceSource(item types.EvidenceItem) types.EvidenceSource {
	return types.EvidenceSource{
		Type:       item.Type,
		FilePath:   item.FilePath,
		Name:       item.Name,
		Confidence: item.BaseConfidence,
	}
}

// depGraph summarizes import topology for the foundational boost: per-file
// outgoing import counts and per-package distinct importers.
type depGraph struct {
	outgoing      map[string]int
	pkgDependents map[string]map[string]bool
	config        Config
}

func buildDepGraph(deps []content.DependencyEdge, config Config) *depGraph {
	if len(deps) == 0 {
		return nil
	}
	g := &depGraph{
		outgoing:      make(map[string]int),
		pkgDependents: make(map[string]map[string]bool),
		config:        config,
	}
	for _, edge := range deps {
		g.outgoing[edge.From]++
		if g.pkgDependents[edge.To] == nil {
			g.pkgDependents[edge.To] = make(map[string]bool)
		}
		g.pkgDependents[edge.To][edge.From] = true
	}
	return g
}

// foundational reports whether file sits at the base of the import graph:
// its package has at least MinDependents distinct importers while the file
// itself imports at most MaxDependencies others. A file with no edges of
// its own still qualifies when its package is widely imported.
func (g *depGraph) foundational(file string) bool {
	if g == nil {
		return false
	}
	if g.outgoing[file] > g.config.FoundationalMaxDependencies {
		return false
	}
	return len(g.pkgDependents[path.Dir(file)]) >= g.config.FoundationalMinDependents
}
