// Package synthesis clusters deduplicated atoms into named molecules.
// Clustering is deterministic and never fails; the optional naming
// refinement pass is cosmetic and degrades to template names on any model
// problem. Molecule confidence is always derived from atom confidence,
// never the reverse.
package synthesis

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/specdrift/specdrift/internal/ai"
	"github.com/specdrift/specdrift/internal/types"
)

// Synthesizer clusters atoms into molecules.
type Synthesizer struct {
	invoker ai.Invoker
	config  Config
}

// New creates a Synthesizer. invoker may be nil, which disables name
// refinement.
func New(invoker ai.Invoker, config Config) (*Synthesizer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid synthesis config: %w", err)
	}
	return &Synthesizer{invoker: invoker, config: config}, nil
}

// Synthesize groups atoms into molecules. Atoms are never consumed or
// discarded: clusters below the minimum size are simply not emitted as
// molecules, and their atoms continue standalone through verification.
func (s *Synthesizer) Synthesize(ctx context.Context, atoms []types.InferredAtom) []types.InferredMolecule {
	if len(atoms) == 0 {
		return nil
	}

	clusters := clusterAtoms(atoms, s.config)
	var molecules []types.InferredMolecule
	for _, cl := range clusters {
		if len(cl.members) < s.config.MinAtomsPerMolecule {
			continue
		}
		molecules = append(molecules, s.templateMolecule(cl, atoms))
	}
	log.Printf("[SYNTHESIS] strategy %s produced %d molecules from %d atoms",
		s.config.Strategy, len(molecules), len(atoms))

	if s.config.RefineNames && s.invoker != nil {
		s.refineNames(ctx, molecules, atoms)
	}
	return molecules
}

// templateMolecule builds a molecule with deterministic template naming.
func (s *Synthesizer) templateMolecule(cl cluster, atoms []types.InferredAtom) types.InferredMolecule {
	ids := make([]string, len(cl.members))
	sum := 0
	for i, idx := range cl.members {
		ids[i] = atoms[idx].TempID
		sum += atoms[idx].Confidence
	}
	mean := int(math.Round(float64(sum) / float64(len(cl.members))))

	return types.InferredMolecule{
		TempID:      "mol-" + uuid.NewString(),
		Name:        templateName(cl.key),
		Description: fmt.Sprintf("Behaviors related to %s (%d atoms)", cl.key, len(cl.members)),
		AtomTempIDs: ids,
		Confidence:  mean,
		Reasoning:   fmt.Sprintf("grouped by %s strategy on key %q", s.config.Strategy, cl.key),
	}
}

func templateName(key string) string {
	key = strings.ReplaceAll(key, "_", " ")
	key = strings.ReplaceAll(key, "-", " ")
	words := strings.Fields(key)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	if len(words) == 0 {
		return "Miscellaneous"
	}
	return strings.Join(words, " ")
}

// refinementEntry is one molecule's refined naming in the model response.
type refinementEntry struct {
	TempID          string `json:"temp_id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	GherkinScenario string `json:"gherkin_scenario"`
}

// refineNames runs the cosmetic naming pass in batches. A failed batch
// keeps its template names; groupings and confidence are never touched.
func (s *Synthesizer) refineNames(ctx context.Context, molecules []types.InferredMolecule, atoms []types.InferredAtom) {
	byID := make(map[string]*types.InferredAtom, len(atoms))
	for i := range atoms {
		byID[atoms[i].TempID] = &atoms[i]
	}

	for start := 0; start < len(molecules); start += s.config.RefineBatchSize {
		end := min(start+s.config.RefineBatchSize, len(molecules))
		batch := molecules[start:end]

		resp, err := s.invoker.Invoke(ctx, ai.Request{
			Task:     ai.TaskNaming,
			Messages: []ai.Message{{Role: "user", Content: refinementPrompt(batch, byID)}},
		})
		if err != nil {
			log.Printf("[SYNTHESIS] naming batch failed, keeping template names: %v", err)
			continue
		}
		parsed := ai.Parse[[]refinementEntry](resp, "molecule naming")
		if !parsed.Success {
			log.Printf("[SYNTHESIS] naming batch unparseable, keeping template names")
			continue
		}

		refined := make(map[string]refinementEntry, len(parsed.Data))
		for _, entry := range parsed.Data {
			refined[entry.TempID] = entry
		}
		for i := range batch {
			entry, ok := refined[batch[i].TempID]
			if !ok || strings.TrimSpace(entry.Name) == "" {
				continue
			}
			batch[i].Name = strings.TrimSpace(entry.Name)
			if strings.TrimSpace(entry.Description) != "" {
				batch[i].Description = strings.TrimSpace(entry.Description)
			}
			batch[i].GherkinScenario = entry.GherkinScenario
		}
	}
}

func refinementPrompt(batch []types.InferredMolecule, byID map[string]*types.InferredAtom) string {
	var b strings.Builder
	b.WriteString("Rename and describe these behavior groups. For each, give a short human-friendly name, a one-sentence description, and a Gherkin scenario sketch.\n\n")
	for _, mol := range batch {
		fmt.Fprintf(&b, "Group %s (current name %q):\n", mol.TempID, mol.Name)
		for _, id := range mol.AtomTempIDs {
			if atom := byID[id]; atom != nil {
				fmt.Fprintf(&b, "  - %s\n", atom.Description)
			}
		}
		b.WriteString("\n")
	}
	b.WriteString(`Respond with a JSON array only: [{"temp_id": "...", "name": "...", "description": "...", "gherkin_scenario": "..."}]`)
	return b.String()
}
