package assistant

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/KaramelBytes/sheetqa/internal/analysis"
	"github.com/KaramelBytes/sheetqa/internal/dataset"
)

const replyContract = `Respond with exactly one JSON object and nothing else:
{
  "answer": "a concise plain-language answer to the question",
  "sqlQuery": "a SQL query over the table that answers the question, or an empty string",
  "visualization": "pie" | "bar" | "line" | null,
  "chartDataColumn": "the column to chart when a visualization is useful"
}`

// BuildPrompt assembles the question prompt from the schema, the first
// sampleRows records and the question. When tokenBudget is positive a
// dataset summary is included and truncated to fit. It returns the
// prompt and its token estimate.
func BuildPrompt(schema dataset.Schema, records []dataset.Record, question string, sampleRows, tokenBudget int) (string, int, error) {
	if sampleRows > len(records) {
		sampleRows = len(records)
	}
	if sampleRows < 0 {
		sampleRows = 0
	}
	cols, err := json.Marshal(schema.Columns)
	if err != nil {
		return "", 0, fmt.Errorf("marshal schema: %w", err)
	}
	rows, err := json.MarshalIndent(records[:sampleRows], "", "  ")
	if err != nil {
		return "", 0, fmt.Errorf("marshal sample rows: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("[INSTRUCTIONS]\n")
	sb.WriteString("You are a data analyst. Answer the question about the table described below.\n")
	sb.WriteString(replyContract)
	sb.WriteString("\n\n")

	sb.WriteString("[SCHEMA]\n")
	if schema.TableName != "" {
		sb.WriteString(fmt.Sprintf("Table: %s\n", schema.TableName))
	}
	sb.Write(cols)
	sb.WriteString("\n\n")

	sb.WriteString("[SAMPLE ROWS]\n")
	sb.Write(rows)
	sb.WriteString("\n\n")

	if tokenBudget > 0 {
		base := estimateTokens(sb.String()) + estimateTokens(question) + 16
		if left := tokenBudget - base; left > 0 {
			md := analysis.Summarize(schema, records, 0).Markdown()
			sb.WriteString(fitSummary(md, left))
			sb.WriteString("\n\n")
		}
	}

	sb.WriteString("[QUESTION]\n")
	sb.WriteString(question)
	sb.WriteString("\n")

	prompt := sb.String()
	return prompt, estimateTokens(prompt), nil
}

// estimateTokens counts about one token per four characters; any
// non-empty text is at least one token.
func estimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return max(n/4, 1)
}

// fitSummary keeps whole lines of the summary Markdown while they fit in
// budget tokens.
func fitSummary(md string, budget int) string {
	if estimateTokens(md) <= budget {
		return md
	}
	var sb strings.Builder
	used := 0
	for _, line := range strings.SplitAfter(md, "\n") {
		n := utf8.RuneCountInString(line)
		if (used+n)/4 > budget {
			break
		}
		sb.WriteString(line)
		used += n
	}
	return strings.TrimRight(sb.String(), "\n")
}
