package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Record is one row of a dataset: an ordered mapping from column name to
// a primitive value. Key order is the order fields were first set.
type Record struct {
	keys   []string
	values map[string]any
}

// NewRecord builds a record from parallel key and value slices. Values
// beyond len(keys) are ignored; missing values become nil.
func NewRecord(keys []string, values []any) Record {
	r := Record{keys: make([]string, 0, len(keys)), values: make(map[string]any, len(keys))}
	for i, k := range keys {
		var v any
		if i < len(values) {
			v = values[i]
		}
		r.Set(k, v)
	}
	return r
}

// Set assigns a value, appending the key if it is new.
func (r *Record) Set(key string, v any) {
	if r.values == nil {
		r.values = map[string]any{}
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = Normalize(v)
}

// Keys returns the field names in order.
func (r Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len is the number of fields.
func (r Record) Len() int { return len(r.keys) }

// Get returns the value and whether the key exists.
func (r Record) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Value returns the value for key, or nil when absent.
func (r Record) Value(key string) any {
	return r.values[key]
}

// jsonValue maps v to its wire form. NaN and ±Inf have none and become null.
func jsonValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.Format(time.RFC3339)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
	}
	return v
}

// MarshalJSON writes the fields in key order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(jsonValue(r.values[k]))
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a flat JSON object, keeping key order. Nested
// objects and arrays are kept as their JSON text.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("record: expected object, got %v", tok)
	}
	*r = Record{values: map[string]any{}}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := kt.(string)
		if !ok {
			return fmt.Errorf("record: expected key, got %v", kt)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("record: field %q: %w", key, err)
		}
		r.Set(key, decodeScalar(raw))
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

func decodeScalar(raw json.RawMessage) any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	switch trimmed[0] {
	case '{', '[':
		return string(trimmed)
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return string(trimmed)
	}
	return v
}
