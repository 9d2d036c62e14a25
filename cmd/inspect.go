package cmd

import (
	"fmt"

	"github.com/KaramelBytes/sheetqa/internal/dataset"
	"github.com/KaramelBytes/sheetqa/internal/render"
	"github.com/spf13/cobra"
)

var (
	inspLoad loadFlags
	inspPage int
	inspJSON bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show the inferred schema and one page of rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, schema, err := inspLoad.load(args[0])
		if err != nil {
			return err
		}
		page := dataset.Paginate(table.Records, inspPage)
		out := cmd.OutOrStdout()
		if inspJSON {
			return printJSON(out, map[string]any{"schema": schema, "page": page})
		}
		if schema.Empty() {
			fmt.Fprintln(out, "No rows found.")
			return nil
		}
		if err := render.Schema(out, schema); err != nil {
			return err
		}
		fmt.Fprintln(out)
		return render.Page(out, schema, page)
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspLoad.register(inspectCmd)
	inspectCmd.Flags().IntVar(&inspPage, "page", 1, "1-based page of rows to show (10 rows per page)")
	inspectCmd.Flags().BoolVar(&inspJSON, "json", false, "print schema and rows as JSON")
}
