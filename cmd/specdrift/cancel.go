package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/specdrift/specdrift/internal/events"
	"github.com/specdrift/specdrift/internal/types"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <run-id> [path]",
	Short: "Cancel a suspended run so it never resumes",
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
			return fmt.Errorf("run %s is not suspended (phase %s); only suspended runs can be cancelled here",
				state.RunID, state.Phase)
		}

		state.PendingHumanReview = false
		state.AddError(types.PhaseVerify, fmt.Errorf("cancelled by operator before review"))
		if err := w.store.SaveRun(cmd.Context(), state); err != nil {
			return err
		}
		if err := w.store.StoreEvent(cmd.Context(), events.Cancelled(state.RunID, string(state.Phase))); err != nil {
			return err
		}
		fmt.Printf("run %s cancelled\n", state.RunID)
		return nil
	},
}
