// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var getResultsCmd = &cobra.Command{
	Use:   "get-results [task-id]",
	Short: "Print the papers a completed task retrieved",
	Long: `get-results prints the papers retrieved by a single task as JSON. With
--all instead of a task id, it prints the deduplicated union of every
completed task's results.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if all {
			return enc.Encode(mgr.GetAllResults())
		}

		if len(args) != 1 {
			return fmt.Errorf("get-results: exactly one task id is required unless --all is set")
		}
		papers, err := mgr.GetResults(args[0])
		if err != nil {
			return err
		}
		return enc.Encode(papers)
	},
}

func init() {
	getResultsCmd.Flags().Bool("all", false, "print the deduplicated union of every completed task's results")
	rootCmd.AddCommand(getResultsCmd)
}
