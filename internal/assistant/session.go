package assistant

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/KaramelBytes/sheetqa/internal/analysis"
	"github.com/KaramelBytes/sheetqa/internal/dataset"
	"github.com/google/uuid"
)

// Roles recorded in the conversation log.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Entry is one line of the conversation log.
type Entry struct {
	ID      string    `json:"id"`
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Session holds one user's loaded dataset, its current result and the
// conversation log. All methods are safe for concurrent use.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.RWMutex
	schema   dataset.Schema
	records  []dataset.Record
	source   string
	current  *AnalysisResult
	history  []Entry
	inFlight atomic.Bool
}

// NewSession returns an empty session with a fresh ID.
func NewSession() *Session {
	return &Session{ID: uuid.NewString(), CreatedAt: time.Now()}
}

// Load replaces the dataset. The schema is inferred from the first
// non-empty record; the log and current result are kept.
func (s *Session) Load(t dataset.Table) dataset.Schema {
	schema := dataset.InferSchema(t.Name, t.Records)
	s.mu.Lock()
	s.schema = schema
	s.records = t.Records
	s.source = t.Name
	s.mu.Unlock()
	return schema
}

// HasData reports whether at least one record is loaded.
func (s *Session) HasData() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records) > 0 && !s.schema.Empty()
}

// snapshot returns the current dataset. Records are replaced wholesale on
// Load and never mutated, so the slice may be shared with readers.
func (s *Session) snapshot() (dataset.Schema, []dataset.Record) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schema, s.records
}

// Schema returns a copy of the inferred schema.
func (s *Session) Schema() dataset.Schema {
	schema, _ := s.snapshot()
	cols := make([]dataset.Column, len(schema.Columns))
	copy(cols, schema.Columns)
	schema.Columns = cols
	return schema
}

// Records returns the loaded records.
func (s *Session) Records() []dataset.Record {
	_, records := s.snapshot()
	return records
}

// Page returns page n (1-based) of the loaded records.
func (s *Session) Page(n int) dataset.Page {
	return dataset.Paginate(s.Records(), n)
}

// ResolveColumn looks name up in the schema. An unknown or empty name
// falls back to the first column and substituted is true.
func (s *Session) ResolveColumn(name string) (col dataset.Column, substituted bool, err error) {
	schema, _ := s.snapshot()
	if schema.Empty() {
		return dataset.Column{}, false, ErrNoDataLoaded
	}
	col, substituted = resolveColumn(schema, name)
	return col, substituted, nil
}

func resolveColumn(schema dataset.Schema, name string) (dataset.Column, bool) {
	if c, ok := schema.Column(name); ok {
		return c, false
	}
	return schema.Columns[0], true
}

// Chart builds the chart series for column. The resolved column is
// returned alongside so callers can report a substitution.
func (s *Session) Chart(column string) (dataset.Column, []analysis.ChartPoint, error) {
	schema, records := s.snapshot()
	if len(records) == 0 || schema.Empty() {
		return dataset.Column{}, nil, ErrNoDataLoaded
	}
	col, _ := resolveColumn(schema, column)
	return col, analysis.BuildSeries(records, col.Name, col.Type), nil
}

// Profile profiles column, resolving it the same way Chart does.
func (s *Session) Profile(column string) (analysis.Profile, error) {
	schema, records := s.snapshot()
	if len(records) == 0 || schema.Empty() {
		return analysis.Profile{}, ErrNoDataLoaded
	}
	col, _ := resolveColumn(schema, column)
	p := analysis.ProfileColumn(records, col.Name)
	p.Type = col.Type
	return p, nil
}

// History returns a copy of the conversation log.
func (s *Session) History() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.history))
	copy(out, s.history)
	return out
}

// Current returns the latest result, if any.
func (s *Session) Current() (AnalysisResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return AnalysisResult{}, false
	}
	return *s.current, true
}

// Busy reports whether a question is being processed.
func (s *Session) Busy() bool { return s.inFlight.Load() }

func (s *Session) begin() bool { return s.inFlight.CompareAndSwap(false, true) }

func (s *Session) finish() { s.inFlight.Store(false) }

// appendTurn records the question and its answer and publishes res as
// the current result in one step.
func (s *Session) appendTurn(question string, res AnalysisResult) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history,
		Entry{ID: uuid.NewString(), Role: RoleUser, Content: question, At: now},
		Entry{ID: uuid.NewString(), Role: RoleAssistant, Content: res.Answer, At: now},
	)
	s.current = &res
}
