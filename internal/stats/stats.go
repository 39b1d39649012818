// Package stats holds the numeric helpers shared by every calculator.
// None of these functions return NaN or ±Inf.
package stats

import "math"

// Epsilon is the smallest denominator treated as non-zero.
const Epsilon = 1e-12

// SafeDiv returns a/b, or def when b is zero or the result is not finite.
func SafeDiv(a, b, def float64) float64 {
	if math.Abs(b) < Epsilon {
		return def
	}
	r := a / b
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return def
	}
	return r
}

// Clamp bounds v to [lo, hi]. NaN maps to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp01 bounds a proportion to [0, 1].
func Clamp01(v float64) float64 {
	return Clamp(v, 0, 1)
}

// Finite replaces NaN and ±Inf with def.
func Finite(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev returns the population standard deviation, 0 for fewer than 2 values.
func StdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var w Welford
	for _, x := range xs {
		w.Add(x)
	}
	return w.StdDev()
}

// Deltas returns successive differences xs[i]-xs[i-1].
func Deltas(xs []float64) []float64 {
	if len(xs) < 2 {
		return nil
	}
	out := make([]float64, len(xs)-1)
	for i := 1; i < len(xs); i++ {
		out[i-1] = xs[i] - xs[i-1]
	}
	return out
}
