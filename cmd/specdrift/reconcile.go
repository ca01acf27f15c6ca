package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/specdrift/specdrift/internal/discovery"
	"github.com/specdrift/specdrift/internal/types"
)

var (
	flagDelta         bool
	flagBaselineRun   string
	flagBaselineDiff  string
	flagRequireReview bool
	flagOutput        string
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [path]",
	Short: "Run a reconciliation pass over a codebase",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "."
		if len(args) == 1 {
			root = args[0]
		}
		w, err := openWorkspace(root)
		if err != nil {
			return err
		}
		defer w.close()

		if flagDelta {
			w.cfg.Discovery.Mode = discovery.ModeDelta
			if flagBaselineRun != "" {
				w.cfg.Discovery.BaselineRunID = flagBaselineRun
			}
			if flagBaselineDiff != "" {
				w.cfg.Discovery.BaselineDiffPath = flagBaselineDiff
			}
		}
		if flagRequireReview {
			w.cfg.Verify.RequireReview = true
		}

		orch, err := w.buildOrchestrator()
		if err != nil {
			return err
		}

		// Ctrl-C requests cooperative cancellation; the run stops at the
		// next batch or tier boundary.
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sig)
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-sig:
				orch.Registry().CancelAll()
				fmt.Fprintln(os.Stderr, "cancellation requested, stopping at next boundary...")
			case <-done:
			}
		}()

		state, err := orch.Run(cmd.Context(), w.root, w.cfg.Scan)
		if errors.Is(err, types.ErrRunCancelled) {
			fmt.Fprintf(os.Stderr, "run %s cancelled\n", state.RunID)
			return nil
		}
		if err != nil {
			return err
		}
		return printRunState(state, flagOutput)
	},
}

func init() {
	reconcileCmd.Flags().BoolVar(&flagDelta, "delta", false, "discover only evidence changed since a baseline")
	reconcileCmd.Flags().StringVar(&flagBaselineRun, "baseline-run", "", "baseline run id for delta discovery")
	reconcileCmd.Flags().StringVar(&flagBaselineDiff, "baseline-diff", "", "unified diff file for delta discovery")
	reconcileCmd.Flags().BoolVar(&flagRequireReview, "require-review", false, "pause for human review before persisting")
	reconcileCmd.Flags().StringVarP(&flagOutput, "output", "o", "text", "output format: text, json, or yaml")
}

func printRunState(state *types.RunState, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	case "yaml":
		data, err := yaml.Marshal(state)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	default:
		printRunSummary(state)
		return nil
	}
}

func printRunSummary(state *types.RunState) {
	bold := color.New(color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Printf("%s %s (phase %s)\n", bold("Run"), state.RunID, state.Phase)
	fmt.Printf("  evidence: %d   atoms: %d   molecules: %d   model calls: %d\n",
		len(state.EvidenceItems), len(state.InferredAtoms),
		len(state.InferredMolecules), state.LLMCallCount)

	if state.PendingHumanReview {
		fmt.Printf("  %s (resume with: specdrift review %s)\n",
			yellow("awaiting human review"), state.RunID)
	}

	approved, rejected, failed := 0, 0, 0
	for _, d := range state.Decisions {
		switch d.Decision {
		case types.DecisionApproved:
			approved++
		case types.DecisionRejected:
			rejected++
		case types.DecisionQualityFail:
			failed++
		}
	}
	if len(state.Decisions) > 0 {
		fmt.Printf("  decisions: %s approved, %s rejected, %s quality-fail\n",
			green(approved), red(rejected), yellow(failed))
	}
	for _, m := range state.InferredMolecules {
		fmt.Printf("  • %s (%d atoms, confidence %d)\n", m.Name, len(m.AtomTempIDs), m.Confidence)
	}
	for _, w := range state.Warnings {
		fmt.Printf("  %s %s\n", yellow("warning:"), w)
	}
	for _, e := range state.Errors {
		fmt.Printf("  %s %s\n", red("error:"), e)
	}
}
