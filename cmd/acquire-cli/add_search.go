// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/litreview/papersearch/pkg/manager"
)

var addSearchCmd = &cobra.Command{
	Use:   "add-search",
	Short: "Queue a search against one source",
	Long: `add-search enqueues a single search task for a configured source
(openalex, semantic_scholar, arxiv, crossref, patentsview) and prints its
task id. The task does not run until "run-all" drains the queue.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		source, _ := cmd.Flags().GetString("source")
		query, _ := cmd.Flags().GetString("query")
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		limit, _ := cmd.Flags().GetInt("limit")
		priority, _ := cmd.Flags().GetInt("priority")

		if source == "" || query == "" {
			return fmt.Errorf("add-search: --source and --query are required")
		}

		spec := manager.SearchSpec{Source: source, Query: query, Limit: limit, Priority: priority}
		if from != "" {
			t, err := time.Parse("2006-01-02", from)
			if err != nil {
				return fmt.Errorf("add-search: parsing --from: %w", err)
			}
			spec.DateFrom = t
		}
		if to != "" {
			t, err := time.Parse("2006-01-02", to)
			if err != nil {
				return fmt.Errorf("add-search: parsing --to: %w", err)
			}
			spec.DateTo = t
		}

		id, err := mgr.AddSearch(spec)
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

func init() {
	addSearchCmd.Flags().String("source", "", "source adapter name (openalex, semantic_scholar, arxiv, crossref, patentsview)")
	addSearchCmd.Flags().String("query", "", "free-text query")
	addSearchCmd.Flags().String("from", "", "publication date range start (YYYY-MM-DD)")
	addSearchCmd.Flags().String("to", "", "publication date range end (YYYY-MM-DD)")
	addSearchCmd.Flags().Int("limit", 0, "maximum number of papers to retrieve (0 = source default)")
	addSearchCmd.Flags().Int("priority", 0, "task priority, lower runs first")
	rootCmd.AddCommand(addSearchCmd)
}
