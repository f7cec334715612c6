// Package indicator holds moving averages and cross-sectional statistics
// over float samples.
package indicator

import (
	"math"
	"slices"
)

// madScale makes the MAD a consistent estimator of the standard deviation
// for normal samples
const madScale = 1.4826

// Mean returns the arithmetic mean, or NaN for an empty sample
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev returns the sample standard deviation (n-1 denominator).
// Fewer than two values give 0.
func StdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean := Mean(xs)
	var variance float64
	for _, x := range xs {
		variance += (x - mean) * (x - mean)
	}
	return math.Sqrt(variance / float64(len(xs)-1))
}

// Median returns the middle value, averaging the two middle values for an
// even sample. xs is not modified.
func Median(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(xs)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// MAD returns the median absolute deviation from the median
func MAD(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	med := Median(xs)
	dev := make([]float64, len(xs))
	for i, x := range xs {
		dev[i] = math.Abs(x - med)
	}
	return Median(dev)
}

// Winsorize clips values to median ± n×1.4826×MAD. A zero MAD leaves the
// sample unchanged.
func Winsorize(xs []float64, n float64) []float64 {
	out := slices.Clone(xs)
	if len(xs) == 0 {
		return out
	}
	mad := MAD(xs)
	if mad == 0 || math.IsNaN(mad) {
		return out
	}
	med := Median(xs)
	lo := med - n*madScale*mad
	hi := med + n*madScale*mad
	for i, x := range out {
		out[i] = math.Min(math.Max(x, lo), hi)
	}
	return out
}

// ZScore standardizes to zero mean and unit sample standard deviation.
// A constant sample maps to zeros.
func ZScore(xs []float64) []float64 {
	out := make([]float64, len(xs))
	sd := StdDev(xs)
	if sd == 0 {
		return out
	}
	mean := Mean(xs)
	for i, x := range xs {
		out[i] = (x - mean) / sd
	}
	return out
}
