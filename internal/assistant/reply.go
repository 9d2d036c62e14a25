package assistant

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/KaramelBytes/sheetqa/internal/analysis"
	"github.com/KaramelBytes/sheetqa/internal/dataset"
)

// reply is the lenient decoding of the generated JSON object.
type reply struct {
	Answer          string
	SQLQuery        string
	NeedsChart      bool
	ChartType       ChartType
	ChartDataColumn string
	ChartData       []analysis.ChartPoint
}

// firstJSONObject returns the first balanced {...} block in text. Braces
// inside JSON strings do not count.
func firstJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	for start >= 0 {
		depth := 0
		inString, escaped := false, false
		for i := start; i < len(text); i++ {
			c := text[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
		// unbalanced from here; try the next opening brace
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// parseReply extracts and decodes the reply object. Surrounding prose is
// ignored. A reply without an answer counts as malformed.
func parseReply(text string) (reply, error) {
	block, ok := firstJSONObject(text)
	if !ok {
		return reply{}, fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		return reply{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	r := reply{
		Answer:          rawString(raw["answer"]),
		SQLQuery:        rawString(raw["sqlQuery"]),
		ChartDataColumn: rawString(raw["chartDataColumn"]),
		NeedsChart:      rawBool(raw["needsChart"]),
		ChartData:       rawSeries(raw["chartData"]),
	}
	if strings.TrimSpace(r.Answer) == "" {
		return reply{}, fmt.Errorf("%w: missing answer", ErrMalformedResponse)
	}
	for _, key := range []string{"chartType", "visualization"} {
		if ct, ok := ParseChartType(rawString(raw[key])); ok {
			r.ChartType = ct
			break
		}
	}
	return r, nil
}

func rawString(m json.RawMessage) string {
	m = bytes.TrimSpace(m)
	if len(m) == 0 || bytes.Equal(m, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(m, &s); err == nil {
		return s
	}
	return string(m)
}

func rawBool(m json.RawMessage) bool {
	var b bool
	if err := json.Unmarshal(m, &b); err == nil {
		return b
	}
	return strings.EqualFold(rawString(m), "true")
}

// rawSeries accepts [{name, value}] with loosely typed members. Points
// whose value is not numeric are dropped.
func rawSeries(m json.RawMessage) []analysis.ChartPoint {
	if len(m) == 0 {
		return nil
	}
	var items []struct {
		Name  any `json:"name"`
		Value any `json:"value"`
	}
	if err := json.Unmarshal(m, &items); err != nil {
		return nil
	}
	var out []analysis.ChartPoint
	for _, it := range items {
		v, ok := dataset.AsNumber(it.Value)
		if !ok {
			continue
		}
		out = append(out, analysis.ChartPoint{Name: dataset.Label(dataset.Normalize(it.Name)), Value: v})
	}
	return out
}
