// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var runAllCmd = &cobra.Command{
	Use:   "run-all",
	Short: "Block until every queued task reaches a terminal state",
	Long: `run-all polls the queue until every task currently known to it has
completed, failed, or been cancelled, printing a progress line on each poll.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		poll, _ := cmd.Flags().GetDuration("poll-interval")

		ctx := context.Background()
		var cancel context.CancelFunc
		if timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() { done <- mgr.RunAll(ctx, poll) }()

		ticker := time.NewTicker(poll)
		defer ticker.Stop()
		for {
			select {
			case err := <-done:
				stats := mgr.Progress()
				fmt.Printf("done: %d completed, %d failed, %d cancelled\n", stats.Completed, stats.Failed, stats.Cancelled)
				return err
			case <-ticker.C:
				stats := mgr.Progress()
				fmt.Printf("running: %d pending, %d in-flight, %d completed, %d failed\n",
					stats.Pending, stats.Running, stats.Completed, stats.Failed)
			}
		}
	},
}

func init() {
	runAllCmd.Flags().Duration("timeout", 0, "give up after this long (0 = no timeout)")
	runAllCmd.Flags().Duration("poll-interval", time.Second, "how often to poll the queue for completion")
	rootCmd.AddCommand(runAllCmd)
}
