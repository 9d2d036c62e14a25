package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/KaramelBytes/sheetqa/internal/dataset"
)

type jsonParser struct{}

func (jsonParser) CanParse(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".json")
}

// Parse accepts an array of flat objects. String cells that look like
// dates are kept as strings; JSON has no date type to honour.
func (jsonParser) Parse(content []byte, opt Options) ([]dataset.Record, error) {
	var recs []dataset.Record
	if err := json.Unmarshal(content, &recs); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	if recs == nil {
		recs = []dataset.Record{}
	}
	if opt.MaxRows > 0 && len(recs) > opt.MaxRows {
		recs = recs[:opt.MaxRows]
	}
	return recs, nil
}
