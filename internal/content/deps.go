package content

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/mod/modfile"
)

var importBlockRegex = regexp.MustCompile(`(?s)import\s*\((.*?)\)`)
var importLineRegex = regexp.MustCompile(`(?m)^\s*(?:[\w.]+\s+)?"([^"]+)"`)
var singleImportRegex = regexp.MustCompile(`(?m)^import\s+(?:[\w.]+\s+)?"([^"]+)"`)

// dependencyEdges builds the {from,to} edge list for a Go module rooted at
// root: one edge per intra-module import, from the importing file to the
// imported package directory. External imports are ignored; the
// foundational-module classification only cares about files inside the
// repository.
func dependencyEdges(root string, opts ScanOptions) ([]DependencyEdge, error) {
	modData, err := os.ReadFile(filepath.Join(root, "go.mod"))
	if err != nil {
		return nil, fmt.Errorf("reading go.mod: %w", err)
	}
	modPath := modfile.ModulePath(modData)
	if modPath == "" {
		return nil, fmt.Errorf("go.mod has no module path")
	}

	var edges []DependencyEdge
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
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
		if !strings.HasSuffix(rel, ".go") || strings.HasSuffix(rel, "_test.go") {
			return nil
		}
		if excluded(rel, opts.ExcludeGlobs) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		for _, imp := range extractImports(string(data)) {
			if !strings.HasPrefix(imp, modPath) {
				continue
			}
			pkgDir := strings.TrimPrefix(strings.TrimPrefix(imp, modPath), "/")
			if pkgDir == "" || pkgDir == filepath.ToSlash(filepath.Dir(rel)) {
				continue
			}
			edges = append(edges, DependencyEdge{From: rel, To: pkgDir})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return edges, nil
}

// extractImports pulls import paths from Go source without a full parse.
func extractImports(src string) []string {
	var imports []string
	for _, block := range importBlockRegex.FindAllStringSubmatch(src, -1) {
		for _, line := range importLineRegex.FindAllStringSubmatch(block[1], -1) {
			imports = append(imports, line[1])
		}
	}
	for _, m := range singleImportRegex.FindAllStringSubmatch(src, -1) {
		imports = append(imports, m[1])
	}
	return imports
}
