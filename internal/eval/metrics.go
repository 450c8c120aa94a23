package eval

import (
	"math"
	"sort"
	"strings"
)

// Metrics for one query and method.
type Metrics struct {
	CoverageAtK       float64 `json:"coverage_at_k"`
	PrecisionAtK      float64 `json:"precision_at_k"`
	MRRAtK            float64 `json:"mrr_at_k"`
	RelevantRetrieved int     `json:"relevant_retrieved"`
	TotalRetrieved    int     `json:"total_retrieved"`
}

// IsRelevant reports whether text contains any substring, ignoring case.
func IsRelevant(text string, substrings []string) bool {
	lower := strings.ToLower(text)
	for _, s := range substrings {
		if strings.Contains(lower, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

// Calculate scores the first k texts. Precision divides by k, not by the
// number retrieved.
func Calculate(texts []string, substrings []string, k int) Metrics {
	top := texts
	if k >= 0 && len(top) > k {
		top = top[:k]
	}
	m := Metrics{TotalRetrieved: len(top)}
	if len(substrings) == 0 {
		m.TotalRetrieved = len(texts)
		return m
	}

	first := -1
	for i, t := range top {
		if IsRelevant(t, substrings) {
			m.RelevantRetrieved++
			if first < 0 {
				first = i
			}
		}
	}
	if m.RelevantRetrieved > 0 {
		m.CoverageAtK = 1
		m.MRRAtK = 1 / float64(first+1)
	}
	if k > 0 {
		m.PrecisionAtK = float64(m.RelevantRetrieved) / float64(k)
	}
	return m
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// P95 is the 19th of 20 exclusive quantile cut points when there are at
// least ten samples, and the mean otherwise.
func P95(samples []float64) float64 {
	if len(samples) < 10 {
		return mean(samples)
	}
	data := append([]float64(nil), samples...)
	sort.Float64s(data)

	const n, i = 20, 19
	ld := len(data)
	m := ld + 1
	j := i * m / n
	j = max(1, min(j, ld-1))
	delta := i*m - j*n
	return (data[j-1]*float64(n-delta) + data[j]*float64(delta)) / n
}

// Pearson returns the correlation of xs and ys, and false when it is
// undefined (fewer than three pairs or zero variance).
func Pearson(xs, ys []float64) (float64, bool) {
	n := len(xs)
	if n != len(ys) || n < 3 {
		return 0, false
	}
	var sx, sy, sxy, sx2, sy2 float64
	for i := range xs {
		sx += xs[i]
		sy += ys[i]
		sxy += xs[i] * ys[i]
		sx2 += xs[i] * xs[i]
		sy2 += ys[i] * ys[i]
	}
	fn := float64(n)
	den := math.Sqrt((fn*sx2 - sx*sx) * (fn*sy2 - sy*sy))
	if den == 0 || math.IsNaN(den) {
		return 0, false
	}
	return (fn*sxy - sx*sy) / den, true
}
