package stats

import (
	"math"
	"sort"
)

// Quantile calculates the q-th quantile (0 <= q <= 1) using linear
// interpolation between closest ranks: index = q*(n-1). This matches numpy's
// default percentile method. values is not modified.
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	return quantileSorted(sorted, q)
}

// Percentile calculates the p-th percentile (0-100)
func Percentile(values []float64, p float64) float64 {
	return Quantile(values, p/100.0)
}

// Quantiles calculates several quantiles with a single sort
func Quantiles(values []float64, qs []float64) []float64 {
	results := make([]float64, len(qs))
	if len(values) == 0 {
		for i := range results {
			results[i] = math.NaN()
		}
		return results
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	for i, q := range qs {
		results[i] = quantileSorted(sorted, q)
	}
	return results
}

func quantileSorted(sorted []float64, q float64) float64 {
	if q < 0 {
		q = 0
	}
	if q > 1 {
		q = 1
	}

	n := float64(len(sorted))
	index := q * (n - 1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))

	if lower == upper {
		return sorted[lower]
	}

	weight := index - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

// PercentileRank returns the percentage of values less than or equal to value
func PercentileRank(values []float64, value float64) float64 {
	if len(values) == 0 {
		return 0
	}

	count := 0
	for _, v := range values {
		if v <= value {
			count++
		}
	}

	return float64(count) / float64(len(values)) * 100.0
}
