package discovery

import (
	"fmt"

	"github.com/specdrift/specdrift/internal/types"
)

// Mode selects full or incremental discovery.
type Mode string

const (
	// ModeFull walks every evidence source.
	ModeFull Mode = "full"

	// ModeDelta discovers only evidence changed since a baseline, applying
	// the closure rule (previously settled evidence is excluded) and the
	// isolation rule (changed evidence already linked to an atom is
	// surfaced as a warning, never re-inferred).
	ModeDelta Mode = "delta"
)

// Config holds discovery configuration.
type Config struct {
	Mode Mode `yaml:"mode"`

	// BaselineRunID identifies the prior run whose evidence set is the
	// delta baseline. Ignored in full mode.
	BaselineRunID string `yaml:"baseline_run_id"`

	// BaselineDiffPath points at a unified diff (e.g. `git diff` output)
	// whose changed-file set is the delta baseline. Takes precedence over
	// BaselineRunID when both are set.
	BaselineDiffPath string `yaml:"baseline_diff_path"`

	// MaxTotalItems caps the full scan (default 10000).
	MaxTotalItems int `yaml:"max_total_items"`

	// TypeCaps bounds each evidence type before inference, ranked by base
	// confidence descending, ties broken by first-discovered order. A type
	// absent from the map is uncapped.
	TypeCaps map[types.EvidenceType]int `yaml:"type_caps"`
}

// DefaultConfig returns the default discovery configuration. Test evidence
// is deliberately uncapped; it is the primary behavioral signal.
func DefaultConfig() Config {
	return Config{
		Mode:          ModeFull,
		MaxTotalItems: 10000,
		TypeCaps: map[types.EvidenceType]int{
			types.EvidenceAPIEndpoint:   200,
			types.EvidenceUIComponent:   150,
			types.EvidenceSourceExport:  150,
			types.EvidenceCodeComment:   100,
			types.EvidenceDocumentation: 50,
			types.EvidenceCoverageGap:   50,
		},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Mode != ModeFull && c.Mode != ModeDelta {
		return fmt.Errorf("mode must be %q or %q (got %q)", ModeFull, ModeDelta, c.Mode)
	}
	if c.MaxTotalItems <= 0 {
		return fmt.Errorf("max_total_items must be positive (got %d)", c.MaxTotalItems)
	}
	for t, cap := range c.TypeCaps {
		if !t.Valid() {
			return fmt.Errorf("type_caps contains unknown evidence type %q", t)
		}
		if cap < 0 {
			return fmt.Errorf("type_caps[%s] cannot be negative (got %d)", t, cap)
		}
	}
	return nil
}
