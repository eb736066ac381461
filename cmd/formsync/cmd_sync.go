package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lofari/DynamicForms-sub000/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one delivery pass over pending submissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := openClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		report, err := c.engine.SyncPending(ctx)
		if err != nil {
			return userError(err)
		}
		printReport(cmd, report)
		return nil
	},
}

func printReport(cmd *cobra.Command, r syncer.Report) {
	fmt.Fprintf(cmd.OutOrStdout(), "sync: %d attempted, %d synced, %d failed, %d to retry\n",
		r.Attempted, r.Synced, r.Failed, r.Retryable)
}
