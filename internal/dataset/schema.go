package dataset

import (
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

// ColumnType is the inferred type of a column.
type ColumnType string

const (
	TypeNumber   ColumnType = "number"
	TypeDatetime ColumnType = "datetime"
	TypeBoolean  ColumnType = "boolean"
	TypeString   ColumnType = "string"
)

// Column is a named, typed column of the loaded dataset.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Schema describes the loaded table. Column names are unique.
type Schema struct {
	TableName string   `json:"tableName"`
	Columns   []Column `json:"columns"`
}

// Empty reports whether the schema has no columns.
func (s Schema) Empty() bool { return len(s.Columns) == 0 }

// Column looks up a column by exact name.
func (s Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Has reports whether name is a column of the schema.
func (s Schema) Has(name string) bool {
	_, ok := s.Column(name)
	return ok
}

// Names lists the column names in order.
func (s Schema) Names() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// Table pairs a name with its ordered records.
type Table struct {
	Name    string
	Records []Record
}

// Infer derives column types from a single record, in key order.
// Later records are never consulted.
func Infer(first Record) []Column {
	cols := make([]Column, 0, first.Len())
	for _, k := range first.keys {
		cols = append(cols, Column{Name: k, Type: typeOf(first.values[k])})
	}
	return cols
}

func typeOf(v any) ColumnType {
	switch v.(type) {
	case float64:
		return TypeNumber
	case time.Time:
		return TypeDatetime
	case bool:
		return TypeBoolean
	default:
		return TypeString
	}
}

// InferSchema builds the schema from the first record that has at least
// one field. An empty dataset yields a schema with no columns.
func InferSchema(tableName string, records []Record) Schema {
	s := Schema{TableName: tableName, Columns: []Column{}}
	for _, r := range records {
		if r.Len() == 0 {
			continue
		}
		s.Columns = Infer(r)
		break
	}
	return s
}

// TableNameFrom turns a file name into a lower-case SQL identifier.
// "Sales Q1.xlsx" becomes "sales_q1".
func TableNameFrom(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(base) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	name := strings.TrimSuffix(b.String(), "_")
	if name == "" {
		return "data"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "t_" + name
	}
	return name
}
