package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lofari/DynamicForms-sub000/internal/form"
)

var draftPage int

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Manage in-progress drafts",
}

var draftSaveCmd = &cobra.Command{
	Use:   "save <form-id> [key=value ...]",
	Short: "Merge values into the draft of a form",
	Args:  cobra.MinimumNArgs(1),
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

		formID := args[0]
		values := form.Values{}
		page := 0
		existing, err := c.drafts.Get(ctx, formID)
		if err != nil {
			return userError(err)
		}
		if existing != nil {
			values = existing.Values
			page = existing.PageIndex
		}
		for k, v := range updates {
			values[k] = v
		}
		if cmd.Flags().Changed("page") {
			page = draftPage
		}

		if err := c.drafts.Save(ctx, formID, page, values); err != nil {
			return userError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "draft saved for %s (%d values)\n", formID, len(values))
		return nil
	},
}

var draftShowCmd = &cobra.Command{
	Use:   "show <form-id>",
	Short: "Print the saved draft of a form",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := openClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		d, err := c.drafts.Get(ctx, args[0])
		if err != nil {
			return userError(err)
		}
		if d == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "no draft for %s\n", args[0])
			return nil
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "form %s, page %d, saved %s\n", d.FormID, d.PageIndex+1, d.UpdatedAt.Format("2006-01-02 15:04:05"))
		printValues(cmd, d.Values)
		return nil
	},
}

var draftRmCmd = &cobra.Command{
	Use:   "rm <form-id>",
	Short: "Delete the draft of a form",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := openClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.drafts.Delete(ctx, args[0]); err != nil {
			return userError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "draft for %s removed\n", args[0])
		return nil
	},
}

// parseAssignments reads key=value arguments. Values may be empty.
func parseAssignments(args []string) (form.Values, error) {
	out := form.Values{}
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", a)
		}
		out[k] = v
	}
	return out, nil
}

func printValues(cmd *cobra.Command, values form.Values) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", k, values[k])
	}
}

func init() {
	draftSaveCmd.Flags().IntVar(&draftPage, "page", 0, "Page index to resume at")

	draftCmd.AddCommand(draftSaveCmd)
	draftCmd.AddCommand(draftShowCmd)
	draftCmd.AddCommand(draftRmCmd)
}
