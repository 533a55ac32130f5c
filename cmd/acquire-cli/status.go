// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Print a task's status, or aggregate progress with no argument",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			stats := mgr.Progress()
			fmt.Printf("total=%d pending=%d running=%d completed=%d failed=%d cancelled=%d papers=%d pages=%d rate=%.1f/min complete=%.1f%%\n",
				stats.TotalTasks, stats.Pending, stats.Running, stats.Completed, stats.Failed, stats.Cancelled,
				stats.TotalPapers, stats.TotalPages, stats.PapersPerMinute(), stats.CompletionPercentage())
			return nil
		}
		status, ok := mgr.TaskStatus(args[0])
		if !ok {
			return fmt.Errorf("status: unknown task %s", args[0])
		}
		fmt.Println(status)
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [task-id]",
	Short: "Request cancellation of a pending or running task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mgr.Cancel(args[0])
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cancelCmd)
}
