package analysis

import (
	"math"
	"sort"

	"github.com/KaramelBytes/sheetqa/internal/dataset"
)

// Profile is the frequency and range summary of one column.
type Profile struct {
	Column      string             `json:"column"`
	Type        dataset.ColumnType `json:"type,omitempty"`
	UniqueCount int                `json:"uniqueCount"`
	TotalCount  int                `json:"totalCount"`
	Missing     int                `json:"missing"`
	ValueCounts map[string]int     `json:"valueCounts"`
	// Min and Max cover real numeric values only; nil when there are none.
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
	Mean *float64 `json:"mean,omitempty"`
	Std  *float64 `json:"std,omitempty"`

	// order holds ValueCounts keys in first-seen order.
	order []string
}

// CategoryCount is one value and its number of occurrences.
type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// ProfileColumn iterates every record and counts the stringified values
// of column. Missing values are tallied separately and count toward
// neither UniqueCount nor TotalCount.
func ProfileColumn(records []dataset.Record, column string) Profile {
	p := Profile{Column: column, ValueCounts: map[string]int{}}
	var n int
	var mean, m2 float64
	minV, maxV := math.Inf(1), math.Inf(-1)
	for _, r := range records {
		v := r.Value(column)
		if dataset.IsMissing(v) {
			p.Missing++
			continue
		}
		p.TotalCount++
		key := dataset.Stringify(v)
		if _, seen := p.ValueCounts[key]; !seen {
			p.order = append(p.order, key)
		}
		p.ValueCounts[key]++
		x, ok := dataset.IsRealNumber(v)
		if !ok {
			continue
		}
		// Welford update
		n++
		if x < minV {
			minV = x
		}
		if x > maxV {
			maxV = x
		}
		delta := x - mean
		mean += delta / float64(n)
		m2 += delta * (x - mean)
	}
	p.UniqueCount = len(p.ValueCounts)
	if n > 0 {
		p.Min, p.Max, p.Mean = ptr(minV), ptr(maxV), ptr(mean)
		if n > 1 {
			p.Std = ptr(math.Sqrt(m2 / float64(n-1)))
		}
	}
	return p
}

// Top returns up to limit values ordered by descending count. Ties keep
// first-seen order. limit <= 0 returns all values.
func (p Profile) Top(limit int) []CategoryCount {
	order := p.order
	if len(order) != len(p.ValueCounts) {
		// profile was decoded or built by hand; fall back to lexical order.
		order = make([]string, 0, len(p.ValueCounts))
		for k := range p.ValueCounts {
			order = append(order, k)
		}
		sort.Strings(order)
	}
	out := make([]CategoryCount, len(order))
	for i, k := range order {
		out[i] = CategoryCount{Value: k, Count: p.ValueCounts[k]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func ptr(f float64) *float64 { return &f }
