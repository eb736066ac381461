package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lofari/DynamicForms-sub000/internal/queue"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage queued submissions",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued submissions, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := openClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		subs, err := c.queue.List(ctx)
		if err != nil {
			return userError(err)
		}
		if len(subs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "queue is empty")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tFORM\tSTATUS\tATTEMPTS\tCREATED\tERROR")
		for _, s := range subs {
			msg := ""
			if s.ErrorMessage != nil {
				msg = *s.ErrorMessage
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				s.ID, s.FormTitle, s.Status, s.AttemptCount, s.CreatedAt.Format("2006-01-02 15:04:05"), msg)
		}
		return w.Flush()
	},
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry <submission-id>",
	Short: "Give a failed submission a fresh set of attempts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := openClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.queue.Retry(ctx, args[0]); err != nil {
			return queueError(args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is pending again\n", args[0])
		return nil
	},
}

var queueDiscardCmd = &cobra.Command{
	Use:   "discard <submission-id>",
	Short: "Delete a failed submission",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := openClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.queue.Discard(ctx, args[0]); err != nil {
			return queueError(args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s discarded\n", args[0])
		return nil
	},
}

func queueError(id string, err error) error {
	switch {
	case errors.Is(err, queue.ErrNotFound):
		return fmt.Errorf("no submission %s", id)
	case errors.Is(err, queue.ErrNotEligible):
		return fmt.Errorf("submission %s has not failed", id)
	}
	return userError(err)
}

func init() {
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueRetryCmd)
	queueCmd.AddCommand(queueDiscardCmd)
}
