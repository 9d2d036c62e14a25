package assistant

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/KaramelBytes/sheetqa/internal/analysis"
)

var (
	// ErrNoDataLoaded blocks a question until a dataset is uploaded.
	ErrNoDataLoaded = errors.New("no data loaded")
	// ErrBusy rejects a question while another one is in flight on the same session.
	ErrBusy = errors.New("a question is already being processed for this session")
	// ErrEmptyQuestion rejects blank questions.
	ErrEmptyQuestion = errors.New("question cannot be empty")
	// ErrServiceUnavailable marks a result produced without the text-generation service.
	ErrServiceUnavailable = errors.New("text generation service unavailable")
	// ErrMalformedResponse marks a result whose reply had no usable JSON object.
	ErrMalformedResponse = errors.New("malformed text generation reply")
)

// ChartType is a plot style; the empty value means no chart and encodes
// as JSON null.
type ChartType string

const (
	ChartNone ChartType = ""
	ChartPie  ChartType = "pie"
	ChartBar  ChartType = "bar"
	ChartLine ChartType = "line"
)

// ParseChartType accepts pie, bar or line in any case.
func ParseChartType(s string) (ChartType, bool) {
	switch ChartType(strings.ToLower(strings.TrimSpace(s))) {
	case ChartPie:
		return ChartPie, true
	case ChartBar:
		return ChartBar, true
	case ChartLine:
		return ChartLine, true
	}
	return ChartNone, false
}

func (c ChartType) MarshalJSON() ([]byte, error) {
	if c == ChartNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(c))
}

func (c *ChartType) UnmarshalJSON(b []byte) error {
	var s *string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == nil {
		*c = ChartNone
		return nil
	}
	*c, _ = ParseChartType(*s)
	return nil
}

// ErrorKind names the degraded path that produced a result.
type ErrorKind string

const (
	KindServiceUnavailable ErrorKind = "external_service_unavailable"
	KindMalformedResponse  ErrorKind = "malformed_external_response"
)

// AnalysisResult is the answer to one question. It is produced fresh per
// question and handed out by value.
type AnalysisResult struct {
	Answer          string                `json:"answer"`
	SQLQuery        string                `json:"sqlQuery"`
	NeedsChart      bool                  `json:"needsChart"`
	ChartType       ChartType             `json:"chartType"`
	ChartDataColumn string                `json:"chartDataColumn,omitempty"`
	ChartData       []analysis.ChartPoint `json:"chartData,omitempty"`
	ErrorKind       ErrorKind             `json:"errorKind,omitempty"`
}

// Err maps ErrorKind back to its sentinel, or nil for a normal result.
func (r AnalysisResult) Err() error {
	switch r.ErrorKind {
	case KindServiceUnavailable:
		return ErrServiceUnavailable
	case KindMalformedResponse:
		return ErrMalformedResponse
	}
	return nil
}

const (
	greetingAnswer    = "Hello! I can help you explore the uploaded data. Ask me a question about it, for example which category appears most often."
	unavailableAnswer = "Sorry, I couldn't reach the analysis service. Please check that it is running and try again."
	malformedAnswer   = "Sorry, I couldn't make sense of the analysis response. Please try rephrasing your question."
)

var greetings = map[string]bool{"hi": true, "hello": true, "hey": true, "greetings": true}

func isGreeting(q string) bool {
	return greetings[strings.ToLower(strings.TrimSpace(q))]
}
