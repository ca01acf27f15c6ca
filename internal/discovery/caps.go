package discovery

import (
	"fmt"
	"log"
	"sort"

	"github.com/specdrift/specdrift/internal/types"
)

// applyCaps enforces per-type caps and the total cap. Within a type, items
// are ranked by base confidence descending; ties keep first-discovered
// order. The overall discovery order is preserved for survivors.
func (d *Discoverer) applyCaps(items []types.EvidenceItem, result *Result) []types.EvidenceItem {
	drop := make(map[int]bool)

	byType := make(map[types.EvidenceType][]int)
	for i, item := range items {
		byType[item.Type] = append(byType[item.Type], i)
	}
	for t, indices := range byType {
		cap, capped := d.config.TypeCaps[t]
		if !capped || len(indices) <= cap {
			continue
		}
		ranked := make([]int, len(indices))
		copy(ranked, indices)
		sort.SliceStable(ranked, func(a, b int) bool {
			return items[ranked[a]].BaseConfidence > items[ranked[b]].BaseConfidence
		})
		for _, idx := range ranked[cap:] {
			drop[idx] = true
		}
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("evidence type %s capped at %d (discovered %d)", t, cap, len(indices)))
		log.Printf("[DISCOVERY] capped %s evidence at %d of %d", t, cap, len(indices))
	}

	kept := make([]types.EvidenceItem, 0, len(items))
	for i, item := range items {
		if drop[i] {
			continue
		}
		kept = append(kept, item)
	}

	if len(kept) > d.config.MaxTotalItems {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("total evidence capped at %d (discovered %d)", d.config.MaxTotalItems, len(kept)))
		kept = kept[:d.config.MaxTotalItems]
	}
	return kept
}
