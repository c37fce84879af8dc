package dataset

import (
	"math"
	"sort"
)

// Stats summarizes the numeric cells of a column.
type Stats struct {
	Count   int
	Missing int
	Min     float64
	Max     float64
	Mean    float64
	Std     float64
	Sum     float64
}

// CategoryCount is one entry of a value frequency table.
type CategoryCount struct {
	Value string
	Count int
}

// Stats computes count, min, max, mean, sample std and sum over the numeric
// cells of col using Welford's update. Non-numeric cells count as missing.
func (t *Table) Stats(col string) Stats {
	j := t.mustIndex(col)
	s := Stats{Min: math.Inf(1), Max: math.Inf(-1)}
	var m2 float64
	for _, r := range t.rows {
		x, ok := parseNumeric(r[j])
		if !ok {
			s.Missing++
			continue
		}
		s.Count++
		s.Sum += x
		if x < s.Min {
			s.Min = x
		}
		if x > s.Max {
			s.Max = x
		}
		delta := x - s.Mean
		s.Mean += delta / float64(s.Count)
		m2 += delta * (x - s.Mean)
	}
	if s.Count == 0 {
		s.Min, s.Max = math.NaN(), math.NaN()
		s.Mean = math.NaN()
		return s
	}
	if s.Count > 1 {
		s.Std = math.Sqrt(m2 / float64(s.Count-1))
	}
	return s
}

// Sum is shorthand for Stats(col).Sum.
func (t *Table) Sum(col string) float64 { return t.Stats(col).Sum }

// Mean is shorthand for Stats(col).Mean.
func (t *Table) Mean(col string) float64 { return t.Stats(col).Mean }

// ValueCounts returns value frequencies of col, most frequent first; ties
// break by value.
func (t *Table) ValueCounts(col string) []CategoryCount {
	j := t.mustIndex(col)
	counts := map[string]int{}
	for _, r := range t.rows {
		counts[r[j]]++
	}
	out := make([]CategoryCount, 0, len(counts))
	for k, v := range counts {
		out = append(out, CategoryCount{Value: k, Count: v})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Count == out[b].Count {
			return out[a].Value < out[b].Value
		}
		return out[a].Count > out[b].Count
	})
	return out
}

// GroupMean averages the numeric column valueCol per distinct key of keyCol.
// Keys come back sorted.
func (t *Table) GroupMean(keyCol, valueCol string) ([]string, []float64) {
	kj := t.mustIndex(keyCol)
	vj := t.mustIndex(valueCol)
	sum := map[string]float64{}
	cnt := map[string]int{}
	for _, r := range t.rows {
		x, ok := parseNumeric(r[vj])
		if !ok {
			continue
		}
		sum[r[kj]] += x
		cnt[r[kj]]++
	}
	keys := make([]string, 0, len(cnt))
	for k := range cnt {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	means := make([]float64, len(keys))
	for i, k := range keys {
		means[i] = sum[k] / float64(cnt[k])
	}
	return keys, means
}
