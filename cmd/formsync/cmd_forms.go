package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lofari/DynamicForms-sub000/internal/form"
)

var formsCmd = &cobra.Command{
	Use:   "forms",
	Short: "Browse the form catalogue",
}

var formsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available forms (cached copy when offline)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := openClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		sums, err := c.catalog.Summaries(ctx)
		if err != nil && sums == nil {
			return userError(err)
		}
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "offline: showing cached forms (%s)\n", userError(err))
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tPAGES\tFIELDS\tQUEUED")
		for _, s := range sums {
			n, err := c.queue.CountPendingByForm(ctx, s.FormID)
			if err != nil {
				return userError(err)
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", s.FormID, s.Title, s.PageCount, s.FieldCount, n)
		}
		return w.Flush()
	},
}

var formsShowCmd = &cobra.Command{
	Use:   "show <form-id>",
	Short: "Show the pages and fields of a form",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := openClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		def, err := c.catalog.Form(ctx, args[0])
		if def == nil {
			return userError(err)
		}
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "offline: showing cached form (%s)\n", userError(err))
		}
		printDefinition(cmd, def)
		return nil
	},
}

func printDefinition(cmd *cobra.Command, def *form.Definition) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s)\n", def.Title, def.ID)
	if def.Description != "" {
		fmt.Fprintln(out, def.Description)
	}
	for i, p := range def.Pages {
		fmt.Fprintf(out, "\nPage %d: %s\n", i+1, p.Title)
		printElements(cmd, p.Elements, "  ")
	}
}

func printElements(cmd *cobra.Command, es form.Elements, indent string) {
	out := cmd.OutOrStdout()
	for _, e := range es {
		a := e.Common()
		req := ""
		if a.Required {
			req = " *"
		}
		cond := ""
		if a.VisibleWhen != nil {
			cond = fmt.Sprintf(" [when %s %s %s]", a.VisibleWhen.FieldID, a.VisibleWhen.Operator, a.VisibleWhen.Value)
		}
		fmt.Fprintf(out, "%s%s (%s) %s%s%s\n", indent, a.ID, e.Kind(), a.DisplayName(), req, cond)
		if g, ok := e.(*form.RepeatingGroup); ok {
			printElements(cmd, g.Children, indent+"    ")
		}
	}
}

func init() {
	formsCmd.AddCommand(formsListCmd)
	formsCmd.AddCommand(formsShowCmd)
}
