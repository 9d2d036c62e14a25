// Package render prints datasets, charts and answers as terminal tables.
package render

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/KaramelBytes/sheetqa/internal/analysis"
	"github.com/KaramelBytes/sheetqa/internal/assistant"
	"github.com/KaramelBytes/sheetqa/internal/dataset"
	"github.com/KaramelBytes/sheetqa/internal/sqlexec"
)

const (
	barWidth    = 30
	answerWidth = 100
	cellWidth   = 40
)

func newTable(header ...any) table.Writer {
	t := table.NewWriter()
	if len(header) > 0 {
		t.AppendHeader(table.Row(header))
	}
	t.SetStyle(table.StyleLight)
	t.Style().Format = table.FormatOptions{
		Footer: text.FormatDefault,
		Header: text.FormatDefault,
		Row:    text.FormatDefault,
	}
	t.Style().Options.DrawBorder = false
	return t
}

func flush(w io.Writer, t table.Writer) error {
	_, err := io.WriteString(w, t.Render()+"\n")
	return err
}

func cell(v any) string {
	s := dataset.Label(v)
	if text.RuneWidthWithoutEscSequences(s) > cellWidth {
		s = text.Trim(s, cellWidth-3) + "..."
	}
	return s
}

// Schema prints the column names and inferred types.
func Schema(w io.Writer, schema dataset.Schema) error {
	t := newTable("#", "Column", "Type")
	for i, c := range schema.Columns {
		t.AppendRow(table.Row{i + 1, c.Name, c.Type})
	}
	if schema.TableName != "" {
		t.SetTitle(schema.TableName)
	}
	return flush(w, t)
}

// Page prints one page of records in schema column order.
func Page(w io.Writer, schema dataset.Schema, page dataset.Page) error {
	header := make(table.Row, len(schema.Columns))
	for i, c := range schema.Columns {
		header[i] = c.Name
	}
	t := newTable(header...)
	for _, r := range page.Records {
		row := make(table.Row, len(schema.Columns))
		for i, c := range schema.Columns {
			row[i] = cell(r.Value(c.Name))
		}
		t.AppendRow(row)
	}
	t.AppendFooter(table.Row{fmt.Sprintf("page %d of %d (%d rows)", page.Number, page.TotalPages, page.TotalRows)})
	return flush(w, t)
}

// Series prints a chart series with a proportional bar per point.
func Series(w io.Writer, column string, points []analysis.ChartPoint) error {
	t := newTable(column, "Value", "")
	peak := 0.0
	for _, p := range points {
		peak = math.Max(peak, p.Value)
	}
	for _, p := range points {
		n := 0
		if peak > 0 && p.Value > 0 {
			n = int(math.Round(p.Value / peak * barWidth))
		}
		t.AppendRow(table.Row{p.Name, formatNumber(p.Value), strings.Repeat("█", n)})
	}
	if len(points) == 0 {
		t.AppendRow(table.Row{"(no data)", "", ""})
	}
	return flush(w, t)
}

// Profile prints the counts and range of one column plus its most
// frequent values.
func Profile(w io.Writer, p analysis.Profile, limit int) error {
	t := newTable("Metric", "Value")
	t.SetTitle(p.Column)
	t.AppendRows([]table.Row{
		{"type", p.Type},
		{"total", p.TotalCount},
		{"missing", p.Missing},
		{"unique", p.UniqueCount},
	})
	for _, m := range []struct {
		name string
		v    *float64
	}{{"min", p.Min}, {"max", p.Max}, {"mean", p.Mean}, {"std", p.Std}} {
		if m.v != nil {
			t.AppendRow(table.Row{m.name, formatNumber(*m.v)})
		}
	}
	if err := flush(w, t); err != nil {
		return err
	}
	top := p.Top(limit)
	if len(top) == 0 {
		return nil
	}
	ft := newTable("Value", "Count")
	for _, kv := range top {
		ft.AppendRow(table.Row{cell(kv.Value), kv.Count})
	}
	return flush(w, ft)
}

// Result prints an answer, its SQL and its chart.
func Result(w io.Writer, res assistant.AnalysisResult) error {
	if _, err := fmt.Fprintln(w, text.WrapSoft(res.Answer, answerWidth)); err != nil {
		return err
	}
	if res.SQLQuery != "" {
		if _, err := fmt.Fprintf(w, "\nSQL:\n  %s\n", res.SQLQuery); err != nil {
			return err
		}
	}
	if res.NeedsChart {
		if _, err := fmt.Fprintf(w, "\n%s chart of %s:\n", res.ChartType, res.ChartDataColumn); err != nil {
			return err
		}
		return Series(w, res.ChartDataColumn, res.ChartData)
	}
	return nil
}

// Rows prints a SQL result.
func Rows(w io.Writer, res *sqlexec.Result) error {
	header := make(table.Row, len(res.Columns))
	for i, c := range res.Columns {
		header[i] = c
	}
	t := newTable(header...)
	for _, r := range res.Rows {
		row := make(table.Row, len(r))
		for i, v := range r {
			row[i] = cell(v)
		}
		t.AppendRow(row)
	}
	if res.Truncated {
		t.AppendFooter(table.Row{fmt.Sprintf("showing first %d rows", len(res.Rows))})
	}
	return flush(w, t)
}

// History prints the conversation log.
func History(w io.Writer, entries []assistant.Entry) error {
	t := newTable("When", "Role", "Message")
	for _, e := range entries {
		t.AppendRow(table.Row{e.At.Format("15:04:05"), e.Role, text.WrapSoft(e.Content, answerWidth-20)})
	}
	return flush(w, t)
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return fmt.Sprintf("%.0f", f)
	}
	return fmt.Sprintf("%.2f", f)
}
