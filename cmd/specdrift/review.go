package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/specdrift/specdrift/internal/types"
)

var reviewCmd = &cobra.Command{
	Use:   "review <run-id> [path]",
	Short: "Review a suspended run's atoms and resume it",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "."
		if len(args) == 2 {
			root = args[1]
		}
		w, err := openWorkspace(root)
		if err != nil {
			return err
		}
		defer w.close()

		state, err := w.store.LoadRun(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !state.PendingHumanReview {
			return fmt.Errorf("run %s is not awaiting review (phase %s)", state.RunID, state.Phase)
		}

		input, err := collectReviewDecisions(state)
		if err != nil {
			return err
		}
		if input == nil {
			fmt.Println("review aborted; run remains suspended")
			return nil
		}

		orch, err := w.buildOrchestrator()
		if err != nil {
			return err
		}
		resumed, err := orch.Resume(cmd.Context(), state, *input)
		if err != nil {
			return err
		}
		return printRunState(resumed, flagOutput)
	},
}

// collectReviewDecisions walks the reviewer through each atom. A nil result
// means the reviewer quit without submitting.
func collectReviewDecisions(state *types.RunState) (*types.HumanReviewInput, error) {
	rl, err := readline.New("")
	if err != nil {
		return nil, fmt.Errorf("opening terminal: %w", err)
	}
	defer rl.Close()

	bold := color.New(color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	var input types.HumanReviewInput
	for i, atom := range state.InferredAtoms {
		fmt.Printf("\n%s [%d/%d] %s\n", bold("Atom"), i+1, len(state.InferredAtoms), atom.TempID)
		fmt.Printf("  %s\n", atom.Description)
		fmt.Printf("  category: %s   confidence: %d", atom.Category, atom.Confidence)
		if atom.QualityScore != nil {
			fmt.Printf("   quality: %d", *atom.QualityScore)
		}
		fmt.Println()
		fmt.Printf("  source: %s (%s)\n", atom.SourceReference.FilePath, atom.PrimaryEvidenceType)
		for _, reason := range atom.AmbiguityReasons {
			fmt.Printf("  %s %s\n", yellow("ambiguous:"), reason)
		}

		decision, err := promptDecision(rl)
		if err != nil {
			return nil, err
		}
		switch decision {
		case "approve", "reject":
			input.AtomDecisions = append(input.AtomDecisions, types.HumanAtomDecision{
				AtomTempID: atom.TempID,
				Decision:   decision,
			})
		case "quit":
			return nil, nil
		}
		// Skipped atoms keep their quality-based decision.
	}
	return &input, nil
}

func promptDecision(rl *readline.Instance) (string, error) {
	rl.SetPrompt("  [a]pprove / [r]eject / [s]kip / [q]uit > ")
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt || err == io.EOF {
			return "quit", nil
		}
		if err != nil {
			return "", err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "a", "approve":
			return "approve", nil
		case "r", "reject":
			return "reject", nil
		case "s", "skip", "":
			return "skip", nil
		case "q", "quit":
			return "quit", nil
		}
	}
}
