package cmd

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/sheetqa/internal/dataset"
	"github.com/KaramelBytes/sheetqa/internal/parser"
	"github.com/spf13/cobra"
)

// loadFlags are the parsing options shared by every command that reads
// a spreadsheet.
type loadFlags struct {
	delimiter  string
	decimal    string
	thousands  string
	maxRows    int
	sheetName  string
	sheetIndex int
}

func (lf *loadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&lf.delimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' (sniffed if omitted)")
	cmd.Flags().StringVar(&lf.decimal, "decimal", "", "decimal separator for numbers: '.'|'comma' (auto-detect if omitted)")
	cmd.Flags().StringVar(&lf.thousands, "thousands", "", "thousands separator for numbers: ','|'.'|'space' (auto-detect if omitted)")
	cmd.Flags().IntVar(&lf.maxRows, "max-rows", 0, "maximum rows to load (0 = unlimited)")
	cmd.Flags().StringVar(&lf.sheetName, "sheet-name", "", "XLSX: sheet name to load")
	cmd.Flags().IntVar(&lf.sheetIndex, "sheet-index", 0, "XLSX: 1-based sheet index (used if --sheet-name not provided)")
}

func (lf *loadFlags) options() (parser.Options, error) {
	opt := parser.Options{MaxRows: lf.maxRows, SheetName: lf.sheetName, SheetIndex: lf.sheetIndex}
	switch lf.delimiter {
	case "":
	case ",":
		opt.Delimiter = ','
	case "\t", "tab":
		opt.Delimiter = '\t'
	case ";":
		opt.Delimiter = ';'
	default:
		return opt, fmt.Errorf("unsupported --delimiter: %s", lf.delimiter)
	}
	switch strings.ToLower(strings.TrimSpace(lf.decimal)) {
	case ",", "comma":
		opt.DecimalSeparator = ','
	case ".", "dot":
		opt.DecimalSeparator = '.'
	case "":
	default:
		return opt, fmt.Errorf("unsupported --decimal: %s (use '.'|'comma')", lf.decimal)
	}
	switch strings.ToLower(strings.TrimSpace(lf.thousands)) {
	case ",":
		opt.ThousandsSeparator = ','
	case ".":
		opt.ThousandsSeparator = '.'
	case "space", " ":
		opt.ThousandsSeparator = ' '
	case "":
	default:
		return opt, fmt.Errorf("unsupported --thousands: %s (use ','|'.'|'space')", lf.thousands)
	}
	return opt, nil
}

// load parses path and infers its schema.
func (lf *loadFlags) load(path string) (dataset.Table, dataset.Schema, error) {
	opt, err := lf.options()
	if err != nil {
		return dataset.Table{}, dataset.Schema{}, err
	}
	table, err := parser.ParseFile(path, opt)
	if err != nil {
		return dataset.Table{}, dataset.Schema{}, err
	}
	schema := dataset.InferSchema(table.Name, table.Records)
	logger.Debug("dataset loaded", "file", path, "rows", len(table.Records), "columns", len(schema.Columns))
	return table, schema, nil
}
