package content

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/specdrift/specdrift/internal/types"
)

// Default base confidence per evidence type. Tests and route registrations
// are strong behavioral signals; coverage gaps are the weakest.
var baseConfidence = map[types.EvidenceType]int{
	types.EvidenceTest:          90,
	types.EvidenceAPIEndpoint:   85,
	types.EvidenceUIComponent:   75,
	types.EvidenceSourceExport:  70,
	types.EvidenceDocumentation: 60,
	types.EvidenceCodeComment:   50,
	types.EvidenceCoverageGap:   40,
}

// snippetMaxLines bounds the code snippet attached to an evidence item.
const snippetMaxLines = 30

var (
	goTestRegex     = regexp.MustCompile(`(?m)^func (Test[A-Za-z0-9_]+)\(`)
	jsTestRegex     = regexp.MustCompile(`(?m)(?:it|test|describe)\(\s*['"` + "`" + `]([^'"` + "`" + `]+)`)
	goExportRegex   = regexp.MustCompile(`(?m)^(?:func|type) ([A-Z][A-Za-z0-9_]*)`)
	goMethodRegex   = regexp.MustCompile(`(?m)^func \([^)]+\) ([A-Z][A-Za-z0-9_]*)\(`)
	jsComponentReg  = regexp.MustCompile(`(?m)^(?:export\s+(?:default\s+)?)(?:function|const|class)\s+([A-Z][A-Za-z0-9_]*)`)
	goRouteRegex    = regexp.MustCompile(`\.(GET|POST|PUT|PATCH|DELETE|HandleFunc)\(\s*"([^"]+)"`)
	jsRouteRegex    = regexp.MustCompile(`(?:app|router)\.(get|post|put|patch|delete)\(\s*['"` + "`" + `]([^'"` + "`" + `]+)`)
	markerRegex     = regexp.MustCompile(`(?m)(?://|#)\s*(TODO|FIXME|HACK|NOTE|BUG)[:\s](.{0,120})`)
	mdHeadingRegex  = regexp.MustCompile(`(?m)^#{1,3}\s+(.+)$`)
)

// FSScanner is the filesystem-backed Source implementation.
type FSScanner struct{}

var _ Source = (*FSScanner)(nil)

// NewFSScanner creates a filesystem scanner.
func NewFSScanner() *FSScanner {
	return &FSScanner{}
}

// Scan walks root and produces the evidence set, honoring include/exclude
// globs. File read errors are skipped, not fatal: a single unreadable file
// never blocks discovery.
func (s *FSScanner) Scan(ctx context.Context, root string, opts ScanOptions) (*ScanResult, error) {
	result := &ScanResult{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil // skip unreadable entries
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if excluded(rel+"/", opts.ExcludeGlobs) {
				return fs.SkipDir
			}
			return nil
		}
		if excluded(rel, opts.ExcludeGlobs) {
			return nil
		}
		if len(opts.IncludeGlobs) > 0 && !matchesAny(rel, opts.IncludeGlobs) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("[CONTENT] skipping unreadable file %s: %v", rel, err)
			return nil
		}
		result.FilesScanned++
		result.Items = append(result.Items, classify(rel, string(data))...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	if opts.CoverageProfile != "" {
		gaps, err := coverageGaps(opts.CoverageProfile)
		if err != nil {
			log.Printf("[CONTENT] coverage profile unusable: %v", err)
		} else {
			result.Items = append(result.Items, gaps...)
		}
	}

	if opts.IncludeDependencies {
		edges, err := dependencyEdges(root, opts)
		if err != nil {
			log.Printf("[CONTENT] dependency edges unavailable: %v", err)
		} else {
			result.Dependencies = edges
		}
	}

	return result, nil
}

func excluded(rel string, globs []string) bool {
	return matchesAny(rel, globs)
}

func matchesAny(rel string, globs []string) bool {
	for _, g := range globs {
		if ok, err := doublestar.Match(g, rel); err == nil && ok {
			return true
		}
		// Directory prefix patterns like "vendor/**" should also match the
		// directory itself during traversal.
		if strings.HasSuffix(rel, "/") {
			if ok, err := doublestar.Match(g, strings.TrimSuffix(rel, "/")); err == nil && ok {
				return true
			}
		}
	}
	return false
}

// classify extracts evidence items from one file based on its path and
// contents. A file can contribute to several tiers (a Go file carries both
// exports and marker comments).
func classify(rel, text string) []types.EvidenceItem {
	var items []types.EvidenceItem
	ext := strings.ToLower(filepath.Ext(rel))

	switch {
	case strings.HasSuffix(rel, "_test.go"):
		for _, m := range goTestRegex.FindAllStringSubmatchIndex(text, -1) {
			name := text[m[2]:m[3]]
			items = append(items, evidence(types.EvidenceTest, rel, name, snippetAt(text, m[0]), lineAt(text, m[0]), nil))
		}

	case strings.Contains(rel, ".test.") || strings.Contains(rel, ".spec."):
		for _, m := range jsTestRegex.FindAllStringSubmatchIndex(text, -1) {
			name := text[m[2]:m[3]]
			items = append(items, evidence(types.EvidenceTest, rel, name, snippetAt(text, m[0]), lineAt(text, m[0]), nil))
		}

	case ext == ".go":
		for _, m := range goExportRegex.FindAllStringSubmatchIndex(text, -1) {
			name := text[m[2]:m[3]]
			items = append(items, evidence(types.EvidenceSourceExport, rel, name, snippetAt(text, m[0]), lineAt(text, m[0]), nil))
		}
		for _, m := range goMethodRegex.FindAllStringSubmatchIndex(text, -1) {
			name := text[m[2]:m[3]]
			items = append(items, evidence(types.EvidenceSourceExport, rel, name, snippetAt(text, m[0]), lineAt(text, m[0]), nil))
		}
		for _, m := range goRouteRegex.FindAllStringSubmatch(text, -1) {
			method := m[1]
			if method == "HandleFunc" {
				method = "ANY"
			}
			items = append(items, evidence(types.EvidenceAPIEndpoint, rel, method+" "+m[2], "", 0,
				map[string]string{"method": method, "path": m[2]}))
		}

	case ext == ".tsx" || ext == ".jsx":
		framework := "react"
		for _, m := range jsComponentReg.FindAllStringSubmatchIndex(text, -1) {
			name := text[m[2]:m[3]]
			items = append(items, evidence(types.EvidenceUIComponent, rel, name, snippetAt(text, m[0]), lineAt(text, m[0]),
				map[string]string{"framework": framework}))
		}

	case ext == ".vue" || ext == ".svelte":
		name := strings.TrimSuffix(filepath.Base(rel), ext)
		items = append(items, evidence(types.EvidenceUIComponent, rel, name, "", 0,
			map[string]string{"framework": strings.TrimPrefix(ext, ".")}))

	case ext == ".ts" || ext == ".js" || ext == ".mjs":
		for _, m := range jsRouteRegex.FindAllStringSubmatch(text, -1) {
			method := strings.ToUpper(m[1])
			items = append(items, evidence(types.EvidenceAPIEndpoint, rel, method+" "+m[2], "", 0,
				map[string]string{"method": method, "path": m[2]}))
		}

	case ext == ".md" || ext == ".rst" || ext == ".adoc":
		for _, m := range mdHeadingRegex.FindAllStringSubmatchIndex(text, -1) {
			name := strings.TrimSpace(text[m[2]:m[3]])
			if name == "" {
				continue
			}
			items = append(items, evidence(types.EvidenceDocumentation, rel, name, snippetAt(text, m[0]), lineAt(text, m[0]), nil))
		}
	}

	// Marker comments apply to every source file regardless of tier.
	if isSourceExt(ext) {
		for _, m := range markerRegex.FindAllStringSubmatchIndex(text, -1) {
			marker := text[m[2]:m[3]]
			body := strings.TrimSpace(text[m[4]:m[5]])
			if body == "" {
				continue
			}
			items = append(items, evidence(types.EvidenceCodeComment, rel, marker+": "+body, "", lineAt(text, m[0]),
				map[string]string{"marker": marker}))
		}
	}

	return items
}

func isSourceExt(ext string) bool {
	switch ext {
	case ".go", ".ts", ".tsx", ".js", ".jsx", ".py", ".rb", ".java", ".rs", ".c", ".h", ".cpp":
		return true
	}
	return false
}

func evidence(t types.EvidenceType, rel, name, code string, line int, meta map[string]string) types.EvidenceItem {
	return types.EvidenceItem{
		Type:           t,
		FilePath:       rel,
		Name:           name,
		Code:           code,
		LineNumber:     line,
		Metadata:       meta,
		BaseConfidence: baseConfidence[t],
	}
}

// lineAt returns the 1-based line number of byte offset off.
func lineAt(text string, off int) int {
	return strings.Count(text[:off], "\n") + 1
}

// snippetAt returns up to snippetMaxLines lines starting at offset off.
func snippetAt(text string, off int) string {
	rest := text[off:]
	lines := strings.SplitN(rest, "\n", snippetMaxLines+1)
	if len(lines) > snippetMaxLines {
		lines = lines[:snippetMaxLines]
	}
	return strings.Join(lines, "\n")
}

// coverageGaps parses a Go coverage profile and emits one coverage_gap item
// per uncovered block, keyed by file and start line.
func coverageGaps(profilePath string) ([]types.EvidenceItem, error) {
	f, err := os.Open(profilePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var items []types.EvidenceItem
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "mode:") {
			continue
		}
		// format: name.go:line.col,line.col numStmt count
		if !strings.HasSuffix(line, " 0") {
			continue
		}
		colon := strings.LastIndex(line, ":")
		if colon < 0 {
			continue
		}
		file := line[:colon]
		spec := line[colon+1:]
		startLine := 0
		if dot := strings.IndexByte(spec, '.'); dot > 0 {
			fmt.Sscanf(spec[:dot], "%d", &startLine)
		}
		items = append(items, evidence(types.EvidenceCoverageGap, file,
			fmt.Sprintf("uncovered block at line %d", startLine), "", startLine, nil))
	}
	return items, scanner.Err()
}
