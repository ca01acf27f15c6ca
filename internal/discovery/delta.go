package discovery

import (
	"fmt"
	"os"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// changedFilesFromDiff parses a unified diff and returns the set of changed
// file paths, relative to the repository root.
func changedFilesFromDiff(path string) (map[string]bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading baseline diff: %w", err)
	}
	fileDiffs, err := diff.ParseMultiFileDiff(data)
	if err != nil {
		return nil, fmt.Errorf("parsing baseline diff %s: %w", path, err)
	}
	if len(fileDiffs) == 0 {
		return nil, fmt.Errorf("baseline diff %s contains no file changes", path)
	}

	changed := make(map[string]bool, len(fileDiffs))
	for _, fd := range fileDiffs {
		for _, name := range []string{fd.NewName, fd.OrigName} {
			name = stripDiffPrefix(name)
			if name != "" {
				changed[name] = true
			}
		}
	}
	return changed, nil
}

// stripDiffPrefix removes git's a/ and b/ prefixes and discards /dev/null.
func stripDiffPrefix(name string) string {
	if name == "" || name == "/dev/null" {
		return ""
	}
	if strings.HasPrefix(name, "a/") || strings.HasPrefix(name, "b/") {
		return name[2:]
	}
	return name
}
