package main

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/lofari/DynamicForms-sub000/internal/apperr"
	"github.com/lofari/DynamicForms-sub000/internal/session"
)

var submitSyncNow bool

var submitCmd = &cobra.Command{
	Use:   "submit <form-id> [key=value ...]",
	Short: "Validate a form and queue it for delivery",
	Long: `Opens the form (resuming its draft), applies the given values and
validates every page. Valid submissions are queued and, unless --sync=false,
delivered right away. Invalid ones keep their values in the draft.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		updates, err := parseAssignments(args[1:])
		if err != nil {
			return err
		}

		c, err := openClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		def, err := c.catalog.Form(ctx, args[0])
		if def == nil {
			return userError(err)
		}

		s, err := session.Open(ctx, def, session.Deps{
			Queue:         c.queue,
			Drafts:        c.drafts,
			AutosaveDelay: cfg.AutosaveDelay,
			Logger:        logger,
		})
		if err != nil {
			return userError(err)
		}
		defer s.Close(context.WithoutCancel(ctx))

		keys := make([]string, 0, len(updates))
		for k := range updates {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			s.Set(k, updates[k])
		}

		id, err := s.Submit(ctx)
		if err != nil {
			var ae *apperr.Error
			if errors.As(err, &ae) && ae.Kind == apperr.KindValidation {
				out := cmd.ErrOrStderr()
				fmt.Fprintln(out, apperr.UserMessage(locale, err))
				fmt.Fprintf(out, "page %d of %d:\n", s.Page()+1, len(def.Pages))
				for _, line := range sortedErrors(ae.FieldErrors) {
					fmt.Fprintf(out, "  %s\n", line)
				}
				return fmt.Errorf("submission not queued")
			}
			return userError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "queued %s\n", id)

		if !submitSyncNow {
			return nil
		}
		report, err := c.engine.SyncPending(ctx)
		if err != nil {
			return userError(err)
		}
		printReport(cmd, report)
		return nil
	},
}

func sortedErrors(fields map[string]string) []string {
	out := make([]string, 0, len(fields))
	for k, v := range fields {
		out = append(out, k+": "+v)
	}
	sort.Strings(out)
	return out
}

func init() {
	submitCmd.Flags().BoolVar(&submitSyncNow, "sync", true, "Deliver queued submissions immediately")
}
