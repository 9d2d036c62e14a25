package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/KaramelBytes/sheetqa/internal/dataset"
)

// MaxSeriesPoints bounds every chart series.
const MaxSeriesPoints = 10

// ChartPoint is one plottable (label, value) pair.
type ChartPoint struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// BuildSeries projects a column into at most MaxSeriesPoints points:
// an equal-width histogram for number columns, ranked category counts
// for everything else. An absent or empty column yields an empty series.
func BuildSeries(records []dataset.Record, column string, typ dataset.ColumnType) []ChartPoint {
	if typ == dataset.TypeNumber {
		return histogram(records, column)
	}
	return topCategories(records, column)
}

func histogram(records []dataset.Record, column string) []ChartPoint {
	vals := make([]float64, 0, len(records))
	distinct := map[string]struct{}{}
	minV, maxV := math.Inf(1), math.Inf(-1)
	for _, r := range records {
		x, ok := dataset.AsNumber(r.Value(column))
		if !ok {
			continue
		}
		vals = append(vals, x)
		distinct[dataset.Stringify(x)] = struct{}{}
		if x < minV {
			minV = x
		}
		if x > maxV {
			maxV = x
		}
	}
	binCount := len(distinct)
	if binCount > MaxSeriesPoints {
		binCount = MaxSeriesPoints
	}
	if binCount == 0 {
		return []ChartPoint{}
	}
	span := maxV - minV
	if span == 0 {
		return []ChartPoint{{Name: binLabel(minV, maxV), Value: float64(len(vals))}}
	}
	binSize := span / float64(binCount)
	counts := make([]int, binCount)
	for _, x := range vals {
		idx := int(math.Floor((x - minV) / binSize))
		if idx >= binCount {
			idx = binCount - 1
		}
		if idx < 0 {
			idx = 0
		}
		counts[idx]++
	}
	out := make([]ChartPoint, binCount)
	for i, c := range counts {
		lo := minV + float64(i)*binSize
		hi := minV + float64(i+1)*binSize
		if i == binCount-1 {
			hi = maxV
		}
		out[i] = ChartPoint{Name: binLabel(lo, hi), Value: float64(c)}
	}
	return out
}

func binLabel(lo, hi float64) string {
	return fmt.Sprintf("%.2f - %.2f", lo, hi)
}

// topCategories counts non-missing values by their string form and
// keeps the MaxSeriesPoints most frequent. Equal counts keep the order
// in which the values first appeared.
func topCategories(records []dataset.Record, column string) []ChartPoint {
	counts := map[string]int{}
	var order []string
	for _, r := range records {
		v := r.Value(column)
		if dataset.IsMissing(v) {
			continue
		}
		key := dataset.Stringify(v)
		if _, ok := counts[key]; !ok {
			order = append(order, key)
		}
		counts[key]++
	}
	out := make([]ChartPoint, len(order))
	for i, k := range order {
		out[i] = ChartPoint{Name: k, Value: float64(counts[k])}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	if len(out) > MaxSeriesPoints {
		out = out[:MaxSeriesPoints]
	}
	return out
}

// Truncate caps an externally supplied series at MaxSeriesPoints.
func Truncate(points []ChartPoint) []ChartPoint {
	if len(points) > MaxSeriesPoints {
		return points[:MaxSeriesPoints]
	}
	return points
}
