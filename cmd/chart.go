package cmd

import (
	"fmt"

	"github.com/KaramelBytes/sheetqa/internal/analysis"
	"github.com/KaramelBytes/sheetqa/internal/render"
	"github.com/spf13/cobra"
)

var (
	chartLoad   loadFlags
	chartColumn string
	chartJSON   bool
)

var chartCmd = &cobra.Command{
	Use:   "chart <file>",
	Short: "Chart one column: a histogram for numbers, top categories otherwise",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, schema, err := chartLoad.load(args[0])
		if err != nil {
			return err
		}
		if schema.Empty() {
			return fmt.Errorf("%s has no rows", args[0])
		}
		col, ok := schema.Column(chartColumn)
		if !ok {
			if chartColumn != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "⚠ Column %q not found; using %q\n", chartColumn, schema.Columns[0].Name)
			}
			col = schema.Columns[0]
		}
		series := analysis.BuildSeries(table.Records, col.Name, col.Type)
		if chartJSON {
			return printJSON(cmd.OutOrStdout(), map[string]any{"column": col, "chartData": series})
		}
		return render.Series(cmd.OutOrStdout(), col.Name, series)
	},
}

func init() {
	rootCmd.AddCommand(chartCmd)
	chartLoad.register(chartCmd)
	chartCmd.Flags().StringVarP(&chartColumn, "column", "c", "", "column to chart (defaults to the first column)")
	chartCmd.Flags().BoolVar(&chartJSON, "json", false, "print the series as JSON")
}
