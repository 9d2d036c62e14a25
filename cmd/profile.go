package cmd

import (
	"fmt"
	"os"

	"github.com/KaramelBytes/sheetqa/internal/analysis"
	"github.com/KaramelBytes/sheetqa/internal/render"
	"github.com/spf13/cobra"
)

var (
	profLoad       loadFlags
	profColumn     string
	profTop        int
	profJSON       bool
	profSummary    bool
	profOutputPath string
	profSampleRows int
)

var profileCmd = &cobra.Command{
	Use:   "profile <file>",
	Short: "Profile one column, or summarize the whole table as Markdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, schema, err := profLoad.load(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if profSummary {
			md := analysis.Summarize(schema, table.Records, profSampleRows).Markdown()
			if profOutputPath != "" {
				if err := os.WriteFile(profOutputPath, []byte(md), 0o644); err != nil {
					return fmt.Errorf("write output: %w", err)
				}
				fmt.Fprintf(out, "✓ Wrote summary to %s\n", profOutputPath)
				return nil
			}
			fmt.Fprintln(out, md)
			return nil
		}
		if schema.Empty() {
			return fmt.Errorf("%s has no rows", args[0])
		}
		col, ok := schema.Column(profColumn)
		if !ok {
			if profColumn != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "⚠ Column %q not found; using %q\n", profColumn, schema.Columns[0].Name)
			}
			col = schema.Columns[0]
		}
		p := analysis.ProfileColumn(table.Records, col.Name)
		p.Type = col.Type
		if profJSON {
			return printJSON(out, map[string]any{"profile": p, "top": p.Top(profTop)})
		}
		return render.Profile(out, p, profTop)
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profLoad.register(profileCmd)
	profileCmd.Flags().StringVarP(&profColumn, "column", "c", "", "column to profile (defaults to the first column)")
	profileCmd.Flags().IntVar(&profTop, "top", 10, "number of most frequent values to list")
	profileCmd.Flags().BoolVar(&profJSON, "json", false, "print the profile as JSON")
	profileCmd.Flags().BoolVar(&profSummary, "summary", false, "summarize every column as Markdown")
	profileCmd.Flags().StringVarP(&profOutputPath, "output", "o", "", "with --summary: write the Markdown to this path")
	profileCmd.Flags().IntVar(&profSampleRows, "sample-rows", 5, "with --summary: number of sample rows to include")
}
