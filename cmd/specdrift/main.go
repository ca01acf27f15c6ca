// Command specdrift reconciles a codebase's observed behavior against
// declared behavioral specifications: it scans for evidence, infers and
// deduplicates behavioral atoms, clusters them into molecules, and scores
// their quality, pausing for human review when asked to.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
