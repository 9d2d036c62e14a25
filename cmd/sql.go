package cmd

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/sheetqa/internal/render"
	"github.com/KaramelBytes/sheetqa/internal/sqlexec"
	"github.com/spf13/cobra"
)

var (
	sqlLoad  loadFlags
	sqlLimit int
	sqlJSON  bool
)

var sqlCmd = &cobra.Command{
	Use:   "sql <file> <query>",
	Short: "Run a read-only SQL query against the table",
	Long: `Loads the file into an in-memory SQLite table named after the file
(for example sales_q1 for "Sales Q1.xlsx") and runs a SELECT or WITH query.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, schema, err := sqlLoad.load(args[0])
		if err != nil {
			return err
		}
		if schema.Empty() {
			return fmt.Errorf("%s has no rows", args[0])
		}
		db, err := sqlexec.Open(cmd.Context(), schema, table.Records)
		if err != nil {
			return err
		}
		defer db.Close()
		res, err := db.Query(cmd.Context(), strings.Join(args[1:], " "), sqlLimit)
		if err != nil {
			return fmt.Errorf("table %s: %w", db.Table(), err)
		}
		if sqlJSON {
			return printJSON(cmd.OutOrStdout(), res)
		}
		return render.Rows(cmd.OutOrStdout(), res)
	},
}

func init() {
	rootCmd.AddCommand(sqlCmd)
	sqlLoad.register(sqlCmd)
	sqlCmd.Flags().IntVar(&sqlLimit, "limit", sqlexec.DefaultLimit, "maximum rows to print")
	sqlCmd.Flags().BoolVar(&sqlJSON, "json", false, "print the result as JSON")
}
