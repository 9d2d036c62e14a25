package dataset

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// MissingLabel is shown wherever a missing value has to be rendered.
const MissingLabel = "Unknown"

// Normalize folds a primitive into one of the canonical cell types:
// float64, string, bool, time.Time or nil. Unsupported values are
// stringified.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case string, bool, time.Time:
		return x
	case *time.Time:
		if x == nil {
			return nil
		}
		return *x
	default:
		return Stringify(x)
	}
}

// IsMissing reports whether v counts as an absent cell.
func IsMissing(v any) bool {
	return v == nil
}

// Stringify returns the canonical string form used for counting and
// labelling. The number 1 and the string "1" produce the same key.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339)
	case json.Number:
		return x.String()
	case interface{ String() string }:
		return x.String()
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Label is Stringify with missing values mapped to MissingLabel.
func Label(v any) string {
	if IsMissing(v) {
		return MissingLabel
	}
	return Stringify(v)
}

// AsNumber returns the finite numeric value of v. Numeric strings are
// coerced; everything else, NaN and ±Inf included, is rejected.
func AsNumber(v any) (float64, bool) {
	var f float64
	switch x := Normalize(v).(type) {
	case float64:
		f = x
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false
		}
		p, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// IsRealNumber reports whether v is a finite number as stored, without
// coercing strings.
func IsRealNumber(v any) (float64, bool) {
	f, ok := Normalize(v).(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
