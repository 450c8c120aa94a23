package search

// Normalize min-max scales scores into [0, 1]. When every score is equal
// (including a single score) each output is 1.
func Normalize(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		lo = min(lo, s)
		hi = max(hi, s)
	}
	span := hi - lo
	for i, s := range scores {
		if span == 0 {
			out[i] = 1
			continue
		}
		out[i] = (s - lo) / span
	}
	return out
}

// normalizePositive normalizes only the positive entries of scores. Zero and
// negative entries, which mark absence from a source, map to 0.
func normalizePositive(scores []float64) []float64 {
	var pos []float64
	var idx []int
	for i, s := range scores {
		if s > 0 {
			pos = append(pos, s)
			idx = append(idx, i)
		}
	}
	out := make([]float64, len(scores))
	for j, n := range Normalize(pos) {
		out[idx[j]] = n
	}
	return out
}
