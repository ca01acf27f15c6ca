package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/specdrift/specdrift/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default " + config.FileName + " to the workspace",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "."
		if len(args) == 1 {
			root = args[0]
		}
		path, err := config.WriteDefault(root)
		if err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", path)
		return nil
	},
}
