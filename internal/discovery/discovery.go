package discovery

import (
	"context"
	"fmt"
	"log"

	"github.com/specdrift/specdrift/internal/content"
	"github.com/specdrift/specdrift/internal/storage"
	"github.com/specdrift/specdrift/internal/types"
)

// Result is the output of a discovery pass.
type Result struct {
	Items []types.EvidenceItem

	// Dependencies are intra-module import edges, used later for the
	// foundational confidence boost.
	Dependencies []content.DependencyEdge

	// ChangedLinkedEvidence lists keys of changed evidence already linked
	// to an existing atom. Linked evidence never re-enters inference; the
	// pipeline surfaces these as warnings instead.
	ChangedLinkedEvidence []string

	// Warnings collects non-fatal problems (baseline fallback, skipped
	// rules). Discovery never fails the run for a bad baseline.
	Warnings []string

	// Mode is the mode actually used, which may differ from the configured
	// mode after a baseline fallback.
	Mode Mode

	FilesScanned int
}

// Discoverer finds evidence items in a codebase.
type Discoverer struct {
	source content.Source
	store  storage.RunStore
	config Config
}

// New creates a Discoverer. store may be nil, in which case delta mode
// degrades to a full scan.
func New(source content.Source, store storage.RunStore, config Config) (*Discoverer, error) {
	if source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid discovery config: %w", err)
	}
	return &Discoverer{source: source, store: store, config: config}, nil
}

// Discover runs a discovery pass over root.
func (d *Discoverer) Discover(ctx context.Context, root string, opts content.ScanOptions) (*Result, error) {
	scan, err := d.source.Scan(ctx, root, opts)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}

	result := &Result{
		Dependencies: scan.Dependencies,
		Mode:         d.config.Mode,
		FilesScanned: scan.FilesScanned,
	}

	items := scan.Items
	if d.config.Mode == ModeDelta {
		items = d.applyDelta(ctx, items, result)
	}

	items = d.applyCaps(items, result)
	result.Items = items

	log.Printf("[DISCOVERY] %s scan: %d items from %d files (%d warnings)",
		result.Mode, len(result.Items), result.FilesScanned, len(result.Warnings))
	return result, nil
}

// applyDelta filters items to those changed since the baseline and enforces
// the closure and isolation rules. Any baseline problem falls open to a full
// scan with a warning.
func (d *Discoverer) applyDelta(ctx context.Context, items []types.EvidenceItem, result *Result) []types.EvidenceItem {
	changed, err := d.changedFilter(ctx)
	if err != nil {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("delta baseline unavailable, falling back to full scan: %v", err))
		result.Mode = ModeFull
		log.Printf("[DISCOVERY] delta baseline unavailable, falling back to full scan: %v", err)
		return items
	}

	filtered := make([]types.EvidenceItem, 0, len(items))
	for _, item := range items {
		if changed(item) {
			filtered = append(filtered, item)
		}
	}
	items = filtered

	if d.store == nil {
		return items
	}

	// Closure: evidence with a terminal disposition from a prior run stays
	// settled and is excluded from this run.
	terminal, err := d.store.TerminalDispositions(ctx)
	if err != nil {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("could not load prior dispositions, closure rule skipped: %v", err))
	} else if len(terminal) > 0 {
		kept := items[:0]
		excluded := 0
		for _, item := range items {
			if _, settled := terminal[item.Key()]; settled {
				excluded++
				continue
			}
			kept = append(kept, item)
		}
		items = kept
		if excluded > 0 {
			log.Printf("[DISCOVERY] closure rule excluded %d settled items", excluded)
		}
	}

	// Isolation: changed evidence already linked to an atom becomes a
	// warning for human attention instead of inference input.
	links, err := d.store.AtomLinks(ctx)
	if err != nil {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("could not load atom links, isolation rule skipped: %v", err))
		return items
	}
	kept := items[:0]
	for _, item := range items {
		if _, linked := links[item.Key()]; linked {
			result.ChangedLinkedEvidence = append(result.ChangedLinkedEvidence, item.Key())
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

// changedFilter resolves the delta baseline into a predicate over evidence
// items. The diff baseline wins when both are configured.
func (d *Discoverer) changedFilter(ctx context.Context) (func(types.EvidenceItem) bool, error) {
	if d.config.BaselineDiffPath != "" {
		files, err := changedFilesFromDiff(d.config.BaselineDiffPath)
		if err != nil {
			return nil, err
		}
		return func(item types.EvidenceItem) bool {
			return files[item.FilePath]
		}, nil
	}
	if d.config.BaselineRunID != "" {
		return d.changedAgainstRun(ctx, d.config.BaselineRunID)
	}
	return nil, fmt.Errorf("no baseline configured")
}

// changedAgainstRun treats an item as changed when the baseline run never
// saw its key or saw it with different code.
func (d *Discoverer) changedAgainstRun(ctx context.Context, runID string) (func(types.EvidenceItem) bool, error) {
	if d.store == nil {
		return nil, fmt.Errorf("no run store available for baseline run %s", runID)
	}
	prior, err := d.store.LoadRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("loading baseline run %s: %w", runID, err)
	}
	baseline := make(map[string]string, len(prior.EvidenceItems))
	for _, item := range prior.EvidenceItems {
		baseline[item.Key()] = item.Code
	}
	return func(item types.EvidenceItem) bool {
		code, seen := baseline[item.Key()]
		return !seen || code != item.Code
	}, nil
}
