package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/specdrift/specdrift/internal/types"
)

var runsCmd = &cobra.Command{
	Use:   "runs [path]",
	Short: "List stored reconciliation runs",
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

		summaries, err := w.store.ListRuns(cmd.Context())
		if err != nil {
			return err
		}
		if len(summaries) == 0 {
			fmt.Println("no stored runs")
			return nil
		}

		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()

		for _, s := range summaries {
			status := string(s.Phase)
			switch {
			case s.Pending:
				status = yellow("awaiting review")
			case s.Phase == types.PhasePersist:
				status = green("complete")
			}
			fmt.Printf("%s  %-18s  %3d atoms  %s\n",
				s.UpdatedAt.Format("2006-01-02 15:04"), status, s.AtomCount, s.RunID)
		}
		return nil
	},
}
