package parser

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/KaramelBytes/sheetqa/internal/dataset"
)

type csvParser struct{}

func (csvParser) CanParse(filename string) bool {
	name := strings.ToLower(filename)
	return strings.HasSuffix(name, ".csv") || strings.HasSuffix(name, ".tsv")
}

func (csvParser) Parse(content []byte, opt Options) ([]dataset.Record, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(content)
	}
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.Comma = delim

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return []dataset.Record{}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	keys := headerKeys(header)
	maxRows := opt.MaxRows
	out := []dataset.Record{}
	for line := 1; ; line++ {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}
		if maxRows > 0 && len(out) >= maxRows {
			break
		}
		vals := make([]any, len(keys))
		blank := true
		for j := range keys {
			if j >= len(rec) {
				continue
			}
			vals[j] = coerceText(rec[j], opt)
			if vals[j] != nil {
				blank = false
			}
		}
		if blank {
			continue
		}
		out = append(out, dataset.NewRecord(keys, vals))
	}
	return out, nil
}

// sniffDelimiter picks the most frequent of ',', ';' and tab on the
// first line, ignoring quoted text. Defaults to ','.
func sniffDelimiter(content []byte) rune {
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	if !sc.Scan() {
		return ','
	}
	counts := map[rune]int{}
	inQuote := false
	for _, c := range sc.Text() {
		if c == '"' {
			inQuote = !inQuote
			continue
		}
		if inQuote {
			continue
		}
		switch c {
		case ',', ';', '\t':
			counts[c]++
		}
	}
	best, n := ',', 0
	for _, c := range []rune{',', ';', '\t'} {
		if counts[c] > n {
			best, n = c, counts[c]
		}
	}
	return best
}

// headerKeys trims header cells and makes them unique. Blank names become
// column_N (1-based); repeats get a _2, _3... suffix.
func headerKeys(header []string) []string {
	seen := map[string]int{}
	keys := make([]string, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		base := name
		for seen[name] > 0 {
			seen[base]++
			name = fmt.Sprintf("%s_%d", base, seen[base])
		}
		seen[name]++
		keys[i] = name
	}
	return keys
}
