package parser

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// coerceText converts a text cell into a typed value: boolean, number,
// datetime, or the trimmed string. Blank cells are missing (nil).
func coerceText(s string, opt Options) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	switch strings.ToLower(v) {
	case "true":
		return true
	case "false":
		return false
	}
	if looksNumeric(v) {
		if x, ok := parseNumeric(v, opt); ok {
			return x
		}
	}
	if t, ok := parseTimeMaybe(v); ok {
		return t
	}
	return v
}

// looksNumeric rejects text that strconv would accept but a spreadsheet
// user would not read as a number (inf, nan, hex).
func looksNumeric(s string) bool {
	hasDigit := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case r == '.' || r == ',' || r == '-' || r == '+' || r == '%' || r == ' ' || r == '\u00a0' || r == 'e' || r == 'E':
		default:
			return false
		}
	}
	return hasDigit
}

var timeLayouts = []string{
	time.RFC3339, "2006-01-02", "2006/01/02", "02/01/2006", "01/02/2006",
	"2006-01-02 15:04", "2006-01-02 15:04:05", "1/2/2006 15:04", "1/2/2006 15:04:05",
}

func parseTimeMaybe(s string) (time.Time, bool) {
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseNumeric(s string, opt Options) (float64, bool) {
	raw := strings.TrimSpace(s)
	if strings.HasSuffix(raw, "%") {
		raw = strings.TrimSuffix(raw, "%")
	}
	raw = strings.ReplaceAll(raw, "\u00a0", " ")
	raw = strings.TrimSpace(raw)
	dec := opt.DecimalSeparator
	thou := opt.ThousandsSeparator
	if dec == 0 {
		cpos := strings.LastIndex(raw, ",")
		dpos := strings.LastIndex(raw, ".")
		switch {
		case cpos >= 0 && dpos >= 0:
			if cpos > dpos {
				dec, thou = ',', '.'
			} else {
				dec, thou = '.', ','
			}
		case cpos >= 0:
			dec = ','
		default:
			dec = '.'
		}
	}
	if thou == 0 {
		for _, sep := range []rune{',', '.', ' '} {
			if sep != dec {
				raw = strings.ReplaceAll(raw, string(sep), "")
			}
		}
	} else if thou != dec {
		raw = strings.ReplaceAll(raw, string(thou), "")
	}
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
