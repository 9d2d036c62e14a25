package parser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/KaramelBytes/sheetqa/internal/dataset"
)

// Options controls how a spreadsheet is turned into records.
type Options struct {
	// SheetName selects an XLSX sheet by name (case-insensitive).
	SheetName string
	// SheetIndex selects an XLSX sheet by 1-based position; 0 means the first sheet.
	SheetIndex int
	// MaxRows limits rows read; 0 means unlimited.
	MaxRows int
	// Delimiter for CSV. If 0, sniffs among ',', ';', '\t'.
	Delimiter rune
	// Numeric parsing locale. If DecimalSeparator is 0, auto-detect per value.
	DecimalSeparator   rune
	ThousandsSeparator rune
}

// Parser turns uploaded file content into ordered records.
type Parser interface {
	CanParse(filename string) bool
	Parse(content []byte, opt Options) ([]dataset.Record, error)
}

var registry []Parser

// Register adds a parser implementation to the registry.
func Register(p Parser) {
	registry = append(registry, p)
}

// ErrUnsupported indicates a format is not supported.
var ErrUnsupported = errors.New("unsupported spreadsheet format")

// ParseBytes selects a parser based on name and returns the table. The
// table name is derived from the file name.
func ParseBytes(name string, content []byte, opt Options) (dataset.Table, error) {
	for _, p := range registry {
		if !p.CanParse(name) {
			continue
		}
		recs, err := p.Parse(content, opt)
		if err != nil {
			return dataset.Table{}, fmt.Errorf("parse %s: %w", filepath.Base(name), err)
		}
		return dataset.Table{Name: dataset.TableNameFrom(name), Records: recs}, nil
	}
	return dataset.Table{}, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(name))
}

// ParseFile reads path and parses it with ParseBytes.
func ParseFile(path string, opt Options) (dataset.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return dataset.Table{}, fmt.Errorf("read file: %w", err)
	}
	return ParseBytes(path, data, opt)
}

// Supported lists the file extensions the registry accepts.
func Supported() []string {
	return []string{".csv", ".tsv", ".xlsx", ".json"}
}

func init() {
	Register(csvParser{})
	Register(xlsxParser{})
	Register(jsonParser{})
}
