package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/KaramelBytes/sheetqa/internal/analysis"
	"github.com/KaramelBytes/sheetqa/internal/assistant"
	"github.com/KaramelBytes/sheetqa/internal/dataset"
	"github.com/KaramelBytes/sheetqa/internal/sqlexec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaAndPage(t *testing.T) {
	keys := []string{"region", "sales"}
	recs := []dataset.Record{
		dataset.NewRecord(keys, []any{"north", 20.0}),
		dataset.NewRecord(keys, []any{nil, 2.5}),
	}
	schema := dataset.InferSchema("sales", recs)

	var buf bytes.Buffer
	require.NoError(t, Schema(&buf, schema))
	assert.Contains(t, buf.String(), "region")
	assert.Contains(t, buf.String(), "number")

	buf.Reset()
	require.NoError(t, Page(&buf, schema, dataset.Paginate(recs, 1)))
	out := buf.String()
	assert.Contains(t, out, "north")
	assert.Contains(t, out, dataset.MissingLabel)
	assert.Contains(t, out, "page 1 of 1 (2 rows)")
}

func TestSeriesBarsScaleToPeak(t *testing.T) {
	var buf bytes.Buffer
	pts := []analysis.ChartPoint{{Name: "north", Value: 4}, {Name: "south", Value: 2}, {Name: "west", Value: 0}}
	require.NoError(t, Series(&buf, "region", pts))
	lines := strings.Split(buf.String(), "\n")
	var north, south string
	for _, l := range lines {
		if strings.Contains(l, "north") {
			north = l
		}
		if strings.Contains(l, "south") {
			south = l
		}
	}
	assert.Equal(t, barWidth, strings.Count(north, "█"))
	assert.Equal(t, barWidth/2, strings.Count(south, "█"))

	buf.Reset()
	require.NoError(t, Series(&buf, "region", nil))
	assert.Contains(t, buf.String(), "(no data)")
}

func TestResultWithChart(t *testing.T) {
	var buf bytes.Buffer
	res := assistant.AnalysisResult{
		Answer:          "North sells most.",
		SQLQuery:        "SELECT region FROM sales",
		NeedsChart:      true,
		ChartType:       assistant.ChartPie,
		ChartDataColumn: "region",
		ChartData:       []analysis.ChartPoint{{Name: "north", Value: 3}},
	}
	require.NoError(t, Result(&buf, res))
	out := buf.String()
	assert.Contains(t, out, "North sells most.")
	assert.Contains(t, out, "SELECT region FROM sales")
	assert.Contains(t, out, "pie chart of region")
}

func TestProfileAndRows(t *testing.T) {
	recs := []dataset.Record{
		dataset.NewRecord([]string{"v"}, []any{1.0}),
		dataset.NewRecord([]string{"v"}, []any{3.0}),
	}
	p := analysis.ProfileColumn(recs, "v")
	var buf bytes.Buffer
	require.NoError(t, Profile(&buf, p, 5))
	assert.Contains(t, buf.String(), "mean")

	buf.Reset()
	require.NoError(t, Rows(&buf, &sqlexec.Result{Columns: []string{"n"}, Rows: [][]any{{int64(7)}}, Truncated: true}))
	assert.Contains(t, buf.String(), "7")
	assert.Contains(t, buf.String(), "showing first 1 rows")

	buf.Reset()
	require.NoError(t, History(&buf, []assistant.Entry{{Role: assistant.RoleUser, Content: "hi", At: time.Now()}}))
	assert.Contains(t, buf.String(), "user")
}
