package stats

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary holds descriptive statistics of a numeric population
type Summary struct {
	Count  int
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64 // sample standard deviation, 0 for fewer than two values
	Median float64
}

// Describe summarises values. An empty input yields a zero Count and NaN fields.
func Describe(values []float64) Summary {
	if len(values) == 0 {
		nan := math.NaN()
		return Summary{Min: nan, Max: nan, Mean: nan, StdDev: nan, Median: nan}
	}

	mean, std := stat.MeanStdDev(values, nil)
	if len(values) < 2 {
		std = 0
	}

	return Summary{
		Count:  len(values),
		Min:    floats.Min(values),
		Max:    floats.Max(values),
		Mean:   mean,
		StdDev: std,
		Median: Quantile(values, 0.5),
	}
}

// Finite returns the finite entries of values; NaN and ±Inf are dropped
func Finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}
