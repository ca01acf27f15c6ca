// Package content supplies evidence to the pipeline: it enumerates a root
// directory, classifies artifacts into the seven evidence kinds with cheap
// per-type extractors, and optionally builds the dependency edge list used
// for the foundational-module confidence boost.
package content

import (
	"context"

	"github.com/specdrift/specdrift/internal/types"
)

// DependencyEdge is one import relationship: the file at From depends on
// the package at To.
type DependencyEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ScanOptions controls evidence enumeration.
type ScanOptions struct {
	// IncludeGlobs restricts the scan to matching paths (doublestar
	// patterns, relative to root). Empty means everything.
	IncludeGlobs []string `yaml:"include"`

	// ExcludeGlobs removes matching paths. Defaults cover vendored and
	// generated trees.
	ExcludeGlobs []string `yaml:"exclude"`

	// IncludeDependencies enables the dependency edge list.
	IncludeDependencies bool `yaml:"include_dependencies"`

	// CoverageProfile is an optional path to a Go coverage profile used to
	// derive coverage_gap evidence.
	CoverageProfile string `yaml:"coverage_profile"`
}

// DefaultScanOptions returns scan options with the standard exclusions.
func DefaultScanOptions() ScanOptions {
	return ScanOptions{
		ExcludeGlobs: []string{
			"vendor/**",
			"node_modules/**",
			".git/**",
			"**/*.pb.go",
			"**/*_generated.go",
			"dist/**",
			"build/**",
		},
	}
}

// ScanResult is everything a scan produced.
type ScanResult struct {
	Items        []types.EvidenceItem
	Dependencies []DependencyEdge

	// FilesScanned counts files that were read and classified.
	FilesScanned int
}

// Source is the evidence-enumeration capability the pipeline consumes.
type Source interface {
	Scan(ctx context.Context, root string, opts ScanOptions) (*ScanResult, error)
}
