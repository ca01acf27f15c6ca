// Package dedup merges atoms that different evidence types inferred
// independently for the same behavior, and prunes near-duplicate evidence
// before it reaches the model.
package dedup

import (
	"fmt"
	"log"
	"strings"

	"github.com/specdrift/specdrift/internal/similarity"
	"github.com/specdrift/specdrift/internal/types"
)

// Config holds deduplication thresholds.
type Config struct {
	// AtomThreshold is the minimum similarity for merging two atoms from
	// different primary evidence types.
	AtomThreshold float64 `yaml:"atom_threshold"`

	// EvidenceThreshold is the minimum similarity for pruning a
	// near-duplicate evidence item within the same file.
	EvidenceThreshold float64 `yaml:"evidence_threshold"`

	// Corroboration bonuses are tunable defaults, not derived constants.
	BonusTwoTypes   int `yaml:"bonus_two_types"`
	BonusThreeTypes int `yaml:"bonus_three_types"`
}

// DefaultConfig returns the default dedup configuration.
func DefaultConfig() Config {
	return Config{
		AtomThreshold:     0.4,
		EvidenceThreshold: 0.6,
		BonusTwoTypes:     10,
		BonusThreeTypes:   15,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.AtomThreshold < 0 || c.AtomThreshold > 1 {
		return fmt.Errorf("atom_threshold must be in [0,1] (got %g)", c.AtomThreshold)
	}
	if c.EvidenceThreshold < 0 || c.EvidenceThreshold > 1 {
		return fmt.Errorf("evidence_threshold must be in [0,1] (got %g)", c.EvidenceThreshold)
	}
	if c.BonusTwoTypes < 0 || c.BonusThreeTypes < 0 {
		return fmt.Errorf("corroboration bonuses cannot be negative")
	}
	return nil
}

// DedupEvidence removes near-duplicate evidence items before inference to
// bound model call volume. Only items in the same file are compared; the
// item with the higher base confidence survives each duplicate pair.
func DedupEvidence(items []types.EvidenceItem, config Config) []types.EvidenceItem {
	removed := make(map[int]bool)
	byFile := make(map[string][]int)
	for i, item := range items {
		byFile[item.FilePath] = append(byFile[item.FilePath], i)
	}

	for _, indices := range byFile {
		for a := 0; a < len(indices); a++ {
			if removed[indices[a]] {
				continue
			}
			for b := a + 1; b < len(indices); b++ {
				if removed[indices[b]] {
					continue
				}
				ia, ib := items[indices[a]], items[indices[b]]
				score := similarity.Score(evidenceText(ia), evidenceText(ib))
				if score < config.EvidenceThreshold {
					continue
				}
				if ia.BaseConfidence >= ib.BaseConfidence {
					removed[indices[b]] = true
				} else {
					removed[indices[a]] = true
					break
				}
			}
		}
	}

	if len(removed) == 0 {
		return items
	}
	kept := make([]types.EvidenceItem, 0, len(items)-len(removed))
	for i, item := range items {
		if !removed[i] {
			kept = append(kept, item)
		}
	}
	log.Printf("[DEDUP] pruned %d near-duplicate evidence items before inference", len(removed))
	return kept
}

func evidenceText(item types.EvidenceItem) string {
	return item.Name + " " + item.Code
}

// DedupAtoms merges atoms inferred independently from different primary
// evidence types. Each merge group keeps the highest-confidence atom as
// representative, concatenates every member's evidence sources onto it, and
// awards a corroboration bonus when independent types agree. Output order
// follows input order of the surviving representatives.
func DedupAtoms(atoms []types.InferredAtom, config Config) []types.InferredAtom {
	if len(atoms) < 2 {
		return atoms
	}

	uf := newUnionFind(len(atoms))
	for i := 0; i < len(atoms); i++ {
		for j := i + 1; j < len(atoms); j++ {
			if atoms[i].PrimaryEvidenceType == atoms[j].PrimaryEvidenceType {
				continue
			}
			if similarity.Score(atomText(atoms[i]), atomText(atoms[j])) >= config.AtomThreshold {
				uf.union(i, j)
			}
		}
	}

	groups := make(map[int][]int)
	for i := range atoms {
		root := uf.find(i)
		groups[root] = append(groups[root], i)
	}

	merged := 0
	out := make([]types.InferredAtom, 0, len(groups))
	for i := range atoms {
		root := uf.find(i)
		group := groups[root]
		if group == nil {
			continue // already emitted
		}
		groups[root] = nil

		if len(group) == 1 {
			out = append(out, atoms[i])
			continue
		}

		rep := mergeGroup(atoms, group, config)
		out = append(out, rep)
		merged += len(group) - 1
	}

	if merged > 0 {
		log.Printf("[DEDUP] merged %d atoms into cross-evidence representatives (%d -> %d)",
			merged, len(atoms), len(out))
	}
	return out
}

// mergeGroup collapses a union-find group onto its highest-confidence member.
func mergeGroup(atoms []types.InferredAtom, group []int, config Config) types.InferredAtom {
	best := group[0]
	for _, idx := range group[1:] {
		if atoms[idx].Confidence > atoms[best].Confidence {
			best = idx
		}
	}

	rep := atoms[best]
	distinctTypes := make(map[types.EvidenceType]bool)
	var sources []types.EvidenceSource
	for _, idx := range group {
		sources = append(sources, atoms[idx].EvidenceSources...)
		for _, src := range atoms[idx].EvidenceSources {
			distinctTypes[src.Type] = true
		}
		distinctTypes[atoms[idx].PrimaryEvidenceType] = true
	}
	rep.EvidenceSources = sources

	bonus := 0
	switch {
	case len(distinctTypes) >= 3:
		bonus = config.BonusThreeTypes
	case len(distinctTypes) == 2:
		bonus = config.BonusTwoTypes
	}
	rep.Confidence = min(rep.Confidence+bonus, 100)
	return rep
}

func atomText(atom types.InferredAtom) string {
	parts := []string{atom.Description}
	parts = append(parts, atom.ObservableOutcomes...)
	parts = append(parts, string(atom.Category))
	return strings.Join(parts, " ")
}
