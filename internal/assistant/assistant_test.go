package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/KaramelBytes/sheetqa/internal/ai"
	"github.com/KaramelBytes/sheetqa/internal/analysis"
	"github.com/KaramelBytes/sheetqa/internal/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRuntime struct {
	mu      sync.Mutex
	reply   string
	err     error
	block   chan struct{}
	prompts []string
}

func (f *fakeRuntime) Generate(ctx context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, req.Prompt)
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &ai.GenerateResponse{Text: f.reply, Model: req.Model}, nil
}

func (f *fakeRuntime) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func salesSession(t *testing.T) *Session {
	t.Helper()
	keys := []string{"region", "sales"}
	data := [][]any{
		{"north", 20.0}, {"south", 25.0}, {"north", 30.0},
		{"east", 90.0}, {"north", 10.0}, {"south", 15.0}, {"west", 5.0},
	}
	recs := make([]dataset.Record, len(data))
	for i, d := range data {
		recs[i] = dataset.NewRecord(keys, d)
	}
	s := NewSession()
	s.Load(dataset.Table{Name: "sales", Records: recs})
	return s
}

func TestAskRequiresData(t *testing.T) {
	rt := &fakeRuntime{reply: `{"answer":"x"}`}
	o := NewOrchestrator(rt, Options{Model: "m"}, nil)
	_, err := o.Ask(context.Background(), NewSession(), "how many rows?")
	require.ErrorIs(t, err, ErrNoDataLoaded)
	_, err = o.Ask(context.Background(), salesSession(t), "   ")
	require.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Zero(t, rt.calls())
}

func TestAskGreetingShortCircuits(t *testing.T) {
	rt := &fakeRuntime{reply: `{"answer":"x"}`}
	s := salesSession(t)
	o := NewOrchestrator(rt, Options{Model: "m"}, nil)
	res, err := o.Ask(context.Background(), s, "  Hello ")
	require.NoError(t, err)
	assert.Equal(t, greetingAnswer, res.Answer)
	assert.False(t, res.NeedsChart)
	assert.Zero(t, rt.calls())
	h := s.History()
	require.Len(t, h, 2)
	assert.Equal(t, RoleUser, h[0].Role)
	assert.Equal(t, "Hello", h[0].Content)
	assert.Equal(t, RoleAssistant, h[1].Role)

	// a greeting inside a sentence is a real question
	_, err = o.Ask(context.Background(), s, "hello, which region sells most?")
	require.NoError(t, err)
	assert.Equal(t, 1, rt.calls())
}

func TestAskPromptCarriesSchemaSampleAndQuestion(t *testing.T) {
	rt := &fakeRuntime{reply: `{"answer":"north"}`}
	o := NewOrchestrator(rt, Options{Model: "m", SampleRows: 5}, nil)
	_, err := o.Ask(context.Background(), salesSession(t), "Which region sells most?")
	require.NoError(t, err)
	require.Equal(t, 1, rt.calls())
	p := rt.prompts[0]
	assert.Contains(t, p, `{"name":"region","type":"string"}`)
	assert.Contains(t, p, "Which region sells most?")
	// only the first five records are sampled
	assert.Contains(t, p, `"sales": 90`)
	assert.NotContains(t, p, `"region": "west"`)
	assert.Contains(t, p, `"sqlQuery"`)
}

func TestAskParsesReplyWithProse(t *testing.T) {
	rt := &fakeRuntime{reply: "Sure! Here you go:\n```json\n" +
		`{"answer":"North leads {by far}","sqlQuery":"SELECT region, SUM(sales) FROM sales GROUP BY region","visualization":"Pie","chartDataColumn":"region"}` +
		"\n```\nAnything else? {not json}"}
	s := salesSession(t)
	o := NewOrchestrator(rt, Options{Model: "m"}, nil)
	res, err := o.Ask(context.Background(), s, "share by region")
	require.NoError(t, err)
	assert.Equal(t, "North leads {by far}", res.Answer)
	assert.Contains(t, res.SQLQuery, "GROUP BY region")
	assert.True(t, res.NeedsChart)
	assert.Equal(t, ChartPie, res.ChartType)
	assert.Equal(t, "region", res.ChartDataColumn)
	require.NotEmpty(t, res.ChartData)
	assert.Equal(t, analysis.ChartPoint{Name: "north", Value: 3}, res.ChartData[0])
	assert.Empty(t, res.ErrorKind)

	cur, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, res.Answer, cur.Answer)
	assert.Len(t, s.History(), 2)
}

func TestAskBackfillsMissingChartColumn(t *testing.T) {
	rt := &fakeRuntime{reply: `{"answer":"ok","needsChart":true,"chartDataColumn":"nope"}`}
	o := NewOrchestrator(rt, Options{Model: "m"}, nil)
	res, err := o.Ask(context.Background(), salesSession(t), "chart it")
	require.NoError(t, err)
	assert.Equal(t, ChartBar, res.ChartType)
	assert.Equal(t, "region", res.ChartDataColumn, "unknown columns fall back to the first column")
	total := 0.0
	for _, p := range res.ChartData {
		total += p.Value
	}
	assert.Equal(t, 7.0, total)
}

func TestAskKeepsSuppliedChartDataCapped(t *testing.T) {
	var pts []string
	for i := 0; i < 15; i++ {
		pts = append(pts, `{"name":"p`+string(rune('a'+i))+`","value":"`+string(rune('1'+i%9))+`"}`)
	}
	rt := &fakeRuntime{reply: `{"answer":"ok","chartType":"line","chartData":[` + strings.Join(pts, ",") + `]}`}
	o := NewOrchestrator(rt, Options{Model: "m"}, nil)
	res, err := o.Ask(context.Background(), salesSession(t), "trend")
	require.NoError(t, err)
	assert.Equal(t, ChartLine, res.ChartType)
	assert.Len(t, res.ChartData, analysis.MaxSeriesPoints)
	assert.Equal(t, "pa", res.ChartData[0].Name)
	assert.Equal(t, 1.0, res.ChartData[0].Value)
}

func TestAskNoChartKeepsNullType(t *testing.T) {
	rt := &fakeRuntime{reply: `{"answer":"7 rows","sqlQuery":"SELECT COUNT(*) FROM sales","visualization":"scatter"}`}
	o := NewOrchestrator(rt, Options{Model: "m"}, nil)
	res, err := o.Ask(context.Background(), salesSession(t), "how many rows?")
	require.NoError(t, err)
	assert.False(t, res.NeedsChart)
	assert.Equal(t, ChartNone, res.ChartType)
	assert.Nil(t, res.ChartData)

	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"chartType":null`)
}

func TestAskMalformedReply(t *testing.T) {
	for _, body := range []string{"I think the answer is north.", `{"answer": "unterminated`, `{"sqlQuery":"SELECT 1"}`} {
		rt := &fakeRuntime{reply: body}
		s := salesSession(t)
		o := NewOrchestrator(rt, Options{Model: "m"}, nil)
		res, err := o.Ask(context.Background(), s, "q")
		require.NoError(t, err, body)
		assert.Equal(t, KindMalformedResponse, res.ErrorKind, body)
		assert.ErrorIs(t, res.Err(), ErrMalformedResponse)
		assert.Empty(t, res.SQLQuery)
		assert.False(t, res.NeedsChart)
		assert.Len(t, s.History(), 2)
	}
}

func TestAskServiceUnavailable(t *testing.T) {
	rt := &fakeRuntime{err: &ai.UnreachableError{Host: "http://127.0.0.1:11434", Err: errors.New("connection refused")}}
	s := salesSession(t)
	o := NewOrchestrator(rt, Options{Model: "m"}, nil)
	res, err := o.Ask(context.Background(), s, "q")
	require.NoError(t, err)
	assert.Equal(t, KindServiceUnavailable, res.ErrorKind)
	assert.ErrorIs(t, res.Err(), ErrServiceUnavailable)
	assert.Equal(t, unavailableAnswer, res.Answer)
	assert.False(t, s.Busy())
}

func TestAskTimeout(t *testing.T) {
	rt := &fakeRuntime{block: make(chan struct{})}
	o := NewOrchestrator(rt, Options{Model: "m", Timeout: 50 * time.Millisecond}, nil)
	start := time.Now()
	res, err := o.Ask(context.Background(), salesSession(t), "slow question")
	require.NoError(t, err)
	assert.Equal(t, KindServiceUnavailable, res.ErrorKind)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestAskSingleFlight(t *testing.T) {
	rt := &fakeRuntime{reply: `{"answer":"done"}`, block: make(chan struct{})}
	s := salesSession(t)
	o := NewOrchestrator(rt, Options{Model: "m"}, nil)

	done := make(chan AnalysisResult)
	go func() {
		res, _ := o.Ask(context.Background(), s, "first")
		done <- res
	}()
	require.Eventually(t, s.Busy, time.Second, 5*time.Millisecond)

	_, err := o.Ask(context.Background(), s, "second")
	require.ErrorIs(t, err, ErrBusy)

	close(rt.block)
	res := <-done
	assert.Equal(t, "done", res.Answer)
	assert.False(t, s.Busy())
	// the rejected question is not logged
	assert.Len(t, s.History(), 2)
}

func TestFirstJSONObject(t *testing.T) {
	got, ok := firstJSONObject(`noise {"a":"}{","b":{"c":1}} tail {"x":2}`)
	require.True(t, ok)
	assert.Equal(t, `{"a":"}{","b":{"c":1}}`, got)

	got, ok = firstJSONObject(`{ broken {"ok":true}`)
	require.True(t, ok)
	assert.Equal(t, `{"ok":true}`, got)

	_, ok = firstJSONObject("no braces")
	assert.False(t, ok)
}

func TestSessionChartAndProfileSubstituteColumn(t *testing.T) {
	s := salesSession(t)
	col, series, err := s.Chart("missing")
	require.NoError(t, err)
	assert.Equal(t, "region", col.Name)
	assert.LessOrEqual(t, len(series), analysis.MaxSeriesPoints)

	col, series, err = s.Chart("sales")
	require.NoError(t, err)
	assert.Equal(t, dataset.TypeNumber, col.Type)
	assert.NotEmpty(t, series)

	p, err := s.Profile("sales")
	require.NoError(t, err)
	assert.Equal(t, 7, p.TotalCount)

	_, sub, err := s.ResolveColumn("")
	require.NoError(t, err)
	assert.True(t, sub)

	_, _, err = NewSession().Chart("x")
	assert.ErrorIs(t, err, ErrNoDataLoaded)
}

func TestSessionPage(t *testing.T) {
	s := salesSession(t)
	p := s.Page(1)
	assert.Equal(t, 1, p.TotalPages)
	assert.Len(t, p.Records, 7)
}

func TestHistoryRoundTrip(t *testing.T) {
	rt := &fakeRuntime{reply: `{"answer":"north","visualization":"bar","chartDataColumn":"region"}`}
	s := salesSession(t)
	o := NewOrchestrator(rt, Options{Model: "m"}, nil)
	_, err := o.Ask(context.Background(), s, "top region?")
	require.NoError(t, err)

	path := HistoryPath(filepath.Join(t.TempDir(), "history"), s.ID)
	require.NoError(t, s.SaveHistory(path))

	restored := NewSession()
	require.NoError(t, restored.LoadHistory(path))
	assert.Equal(t, s.History()[0].Content, restored.History()[0].Content)
	cur, ok := restored.Current()
	require.True(t, ok)
	assert.Equal(t, ChartBar, cur.ChartType)
	assert.Equal(t, "region", cur.ChartDataColumn)

	// a missing file is not an error
	require.NoError(t, NewSession().LoadHistory(filepath.Join(t.TempDir(), "none.json")))
}

func TestAskWithNonFiniteValues(t *testing.T) {
	rt := &fakeRuntime{reply: `{"answer":"the mean is 2","needsChart":true,"chartDataColumn":"score"}`}
	keys := []string{"score"}
	s := NewSession()
	s.Load(dataset.Table{Name: "scores", Records: []dataset.Record{
		dataset.NewRecord(keys, []any{1.0}),
		dataset.NewRecord(keys, []any{math.NaN()}),
		dataset.NewRecord(keys, []any{3.0}),
		dataset.NewRecord(keys, []any{math.Inf(1)}),
	}})
	o := NewOrchestrator(rt, Options{Model: "m"}, nil)

	res, err := o.Ask(context.Background(), s, "what is the mean?")
	require.NoError(t, err)
	assert.Equal(t, "the mean is 2", res.Answer)
	assert.Empty(t, res.ErrorKind)
	require.Equal(t, 1, rt.calls())
	assert.Contains(t, rt.prompts[0], `"score": null`)
	assert.Len(t, s.History(), 2)

	var total float64
	for _, p := range res.ChartData {
		total += p.Value
	}
	assert.Equal(t, 2.0, total)
	_, err = json.Marshal(res)
	require.NoError(t, err)
}

func TestLoadHistoryAppendsAfterExistingTurns(t *testing.T) {
	saved := salesSession(t)
	o := NewOrchestrator(&fakeRuntime{reply: `{"answer":"from disk"}`}, Options{Model: "m"}, nil)
	_, err := o.Ask(context.Background(), saved, "old question")
	require.NoError(t, err)
	path := HistoryPath(t.TempDir(), saved.ID)
	require.NoError(t, saved.SaveHistory(path))

	s := salesSession(t)
	o = NewOrchestrator(&fakeRuntime{reply: `{"answer":"live"}`}, Options{Model: "m"}, nil)
	_, err = o.Ask(context.Background(), s, "new question")
	require.NoError(t, err)
	before := s.History()
	require.Len(t, before, 2)

	require.NoError(t, s.LoadHistory(path))
	after := s.History()
	require.Len(t, after, 4)
	assert.Equal(t, before, after[:2])
	assert.Equal(t, "old question", after[2].Content)
	cur, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, "live", cur.Answer)

	// an empty saved log leaves the turns in place
	emptyPath := HistoryPath(t.TempDir(), NewSession().ID)
	require.NoError(t, NewSession().SaveHistory(emptyPath))
	require.NoError(t, s.LoadHistory(emptyPath))
	assert.Len(t, s.History(), 4)
}

func TestAskRacingEmptyReload(t *testing.T) {
	rt := &fakeRuntime{reply: `{"answer":"ok","needsChart":true,"chartDataColumn":"nope"}`}
	o := NewOrchestrator(rt, Options{Model: "m"}, nil)
	for i := 0; i < 100; i++ {
		s := salesSession(t)
		done := make(chan struct{})
		go func() {
			defer close(done)
			s.Load(dataset.Table{Name: "empty"})
		}()
		res, err := o.Ask(context.Background(), s, "top region?")
		<-done
		if err != nil {
			require.ErrorIs(t, err, ErrNoDataLoaded)
			continue
		}
		assert.Equal(t, "region", res.ChartDataColumn)
	}
}

func TestFitSummaryKeepsWholeLines(t *testing.T) {
	md := "[DATASET SUMMARY]\n" + strings.Repeat("- column: string, 10 values\n", 20)
	assert.Equal(t, md, fitSummary(md, estimateTokens(md)))

	cut := fitSummary(md, 20)
	assert.LessOrEqual(t, estimateTokens(cut), 20)
	assert.True(t, strings.HasPrefix(cut, "[DATASET SUMMARY]\n"))
	for _, line := range strings.Split(cut, "\n")[1:] {
		assert.Equal(t, "- column: string, 10 values", line)
	}
	assert.Equal(t, 0, estimateTokens(""))
	assert.Equal(t, 1, estimateTokens("ab"))
}
