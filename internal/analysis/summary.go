package analysis

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/sheetqa/internal/dataset"
)

// Summary is a markdown-friendly description of a loaded dataset.
type Summary struct {
	Name     string
	Rows     int
	Profiles []Profile
	Samples  []dataset.Record
	Columns  []dataset.Column
	Warnings []string
}

// Summarize profiles every schema column and keeps the first sampleRows
// records as examples.
func Summarize(schema dataset.Schema, records []dataset.Record, sampleRows int) *Summary {
	s := &Summary{Name: schema.TableName, Rows: len(records), Columns: schema.Columns}
	for _, c := range schema.Columns {
		p := ProfileColumn(records, c.Name)
		p.Type = c.Type
		s.Profiles = append(s.Profiles, p)
	}
	if sampleRows > len(records) {
		sampleRows = len(records)
	}
	if sampleRows > 0 {
		s.Samples = records[:sampleRows]
	}
	for _, p := range s.Profiles {
		if p.TotalCount == 0 && s.Rows > 0 {
			s.Warnings = append(s.Warnings, fmt.Sprintf("column %s has no values", safeName(p.Column)))
		}
	}
	return s
}

// Markdown renders a compact report suitable for prompts or standalone docs.
func (s *Summary) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if s.Name != "" {
		b.WriteString(fmt.Sprintf("Table: %s\n", s.Name))
	}
	b.WriteString(fmt.Sprintf("Rows: %d\n", s.Rows))
	b.WriteString(fmt.Sprintf("Columns: %d\n\n", len(s.Profiles)))

	b.WriteString("[SCHEMA]\n")
	for _, p := range s.Profiles {
		total := p.TotalCount + p.Missing
		missPct := 0.0
		if total > 0 {
			missPct = float64(p.Missing) * 100.0 / float64(total)
		}
		b.WriteString(fmt.Sprintf("- %s: %s (non-null %d, missing %.1f%%, unique %d)", safeName(p.Column), p.Type, p.TotalCount, missPct, p.UniqueCount))
		switch {
		case p.Type == dataset.TypeNumber && p.Min != nil:
			b.WriteString(fmt.Sprintf("; min %.4g, max %.4g, mean %.4g", *p.Min, *p.Max, *p.Mean))
			if p.Std != nil {
				b.WriteString(fmt.Sprintf(", std %.4g", *p.Std))
			}
		case p.Type == dataset.TypeString || p.Type == dataset.TypeBoolean:
			tops := p.Top(5)
			if len(tops) > 0 {
				b.WriteString("; top: ")
				for i, kv := range tops {
					if i > 0 {
						b.WriteString(", ")
					}
					b.WriteString(fmt.Sprintf("%s(%d)", safeVal(kv.Value), kv.Count))
				}
			}
		}
		b.WriteString("\n")
	}
	if len(s.Samples) > 0 && len(s.Columns) > 0 {
		b.WriteString("\n[HEAD AND SAMPLE ROWS]\n")
		b.WriteString("| ")
		for i, c := range s.Columns {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(safeName(c.Name))
		}
		b.WriteString(" |\n| ")
		for i := range s.Columns {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString("---")
		}
		b.WriteString(" |\n")
		for _, row := range s.Samples {
			b.WriteString("| ")
			for i, c := range s.Columns {
				if i > 0 {
					b.WriteString(" | ")
				}
				val := dataset.Label(row.Value(c.Name))
				if len(val) > 80 {
					val = val[:77] + "..."
				}
				b.WriteString(safeVal(val))
			}
			b.WriteString(" |\n")
		}
	}
	if len(s.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range s.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
