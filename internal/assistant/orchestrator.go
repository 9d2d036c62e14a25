package assistant

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/KaramelBytes/sheetqa/internal/ai"
	"github.com/KaramelBytes/sheetqa/internal/analysis"
	"github.com/KaramelBytes/sheetqa/internal/dataset"
	"github.com/KaramelBytes/sheetqa/internal/logging"
)

// DefaultTimeout bounds one text-generation call.
const DefaultTimeout = 30 * time.Second

// Options tune how questions are answered.
type Options struct {
	Model       string
	Stream      bool
	Temperature float64
	Timeout     time.Duration
	SampleRows  int
	TokenBudget int
	// OnDelta receives partial text when Stream is set and the runtime
	// supports streaming.
	OnDelta func(string)
}

// Orchestrator answers questions against a session's dataset.
type Orchestrator struct {
	rt   ai.Runtime
	opts Options
	log  *slog.Logger
}

// NewOrchestrator wires a runtime. A nil logger discards output.
func NewOrchestrator(rt ai.Runtime, opts Options, log *slog.Logger) *Orchestrator {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.SampleRows <= 0 || opts.SampleRows > 5 {
		opts.SampleRows = 5
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Orchestrator{rt: rt, opts: opts, log: log}
}

// Ask answers question against s. Only one question per session runs at a
// time; a concurrent call gets ErrBusy. Failures of the generation service
// and unusable replies do not return an error: they produce an apologetic
// result whose ErrorKind is set. Every answered question, greetings
// included, is appended to the log together with its result.
func (o *Orchestrator) Ask(ctx context.Context, s *Session, question string) (AnalysisResult, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return AnalysisResult{}, ErrEmptyQuestion
	}
	if !s.HasData() {
		return AnalysisResult{}, ErrNoDataLoaded
	}
	if !s.begin() {
		return AnalysisResult{}, ErrBusy
	}
	defer s.finish()

	// the dataset may have been replaced since the HasData check
	schema, records := s.snapshot()
	if schema.Empty() || len(records) == 0 {
		return AnalysisResult{}, ErrNoDataLoaded
	}

	log := o.log.With("session", s.ID)
	if isGreeting(q) {
		res := AnalysisResult{Answer: greetingAnswer}
		s.appendTurn(q, res)
		log.Debug("greeting answered locally")
		return res, nil
	}

	prompt, tokens, err := BuildPrompt(schema, records, q, o.opts.SampleRows, o.opts.TokenBudget)
	if err != nil {
		log.Warn("prompt not built", "err", err)
		res := AnalysisResult{Answer: unavailableAnswer, ErrorKind: KindServiceUnavailable}
		s.appendTurn(q, res)
		return res, nil
	}
	log.Debug("prompt built", "tokens", tokens, "rows", len(records))

	start := time.Now()
	text, err := o.generate(ctx, prompt)
	if err != nil {
		log.Warn("generation failed", "err", err, "unavailable", ai.IsUnavailable(err), "elapsed", time.Since(start))
		res := AnalysisResult{Answer: unavailableAnswer, ErrorKind: KindServiceUnavailable}
		s.appendTurn(q, res)
		return res, nil
	}
	log.Debug("generation finished", "elapsed", time.Since(start), "chars", len(text))

	r, err := parseReply(text)
	if err != nil {
		log.Warn("unusable reply", "err", err)
		res := AnalysisResult{Answer: malformedAnswer, ErrorKind: KindMalformedResponse}
		s.appendTurn(q, res)
		return res, nil
	}
	res := finalize(r, schema, records)
	if res.NeedsChart && r.ChartDataColumn != res.ChartDataColumn {
		log.Info("chart column substituted", "requested", r.ChartDataColumn, "used", res.ChartDataColumn)
	}
	s.appendTurn(q, res)
	return res, nil
}

func (o *Orchestrator) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()
	req := ai.GenerateRequest{Model: o.opts.Model, Prompt: prompt, Stream: o.opts.Stream, Temperature: o.opts.Temperature}
	if sr, ok := o.rt.(ai.StreamRuntime); ok && o.opts.Stream && o.opts.OnDelta != nil {
		var sb strings.Builder
		err := sr.GenerateStream(ctx, req, func(delta string) {
			sb.WriteString(delta)
			o.opts.OnDelta(delta)
		})
		return sb.String(), err
	}
	resp, err := o.rt.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// finalize turns a decoded reply into a result. A reply asking for a chart
// without a type gets a bar chart; a chart with no data is computed from
// the dataset over the requested column, or the first column when the
// requested one does not exist.
func finalize(r reply, schema dataset.Schema, records []dataset.Record) AnalysisResult {
	res := AnalysisResult{Answer: r.Answer, SQLQuery: r.SQLQuery, ChartType: r.ChartType}
	res.NeedsChart = r.NeedsChart || r.ChartType != ChartNone
	if !res.NeedsChart {
		return res
	}
	if res.ChartType == ChartNone {
		res.ChartType = ChartBar
	}
	col, _ := resolveColumn(schema, r.ChartDataColumn)
	res.ChartDataColumn = col.Name
	if len(r.ChartData) > 0 {
		res.ChartData = analysis.Truncate(r.ChartData)
	} else {
		res.ChartData = analysis.BuildSeries(records, col.Name, col.Type)
	}
	return res
}
