package stats

import "math"

// Welford accumulates mean and variance in one pass.
type Welford struct {
	Count int
	Mean  float64
	M2    float64
}

func (w *Welford) Add(x float64) {
	w.Count++
	delta := x - w.Mean
	w.Mean += delta / float64(w.Count)
	delta2 := x - w.Mean
	w.M2 += delta * delta2
}

// Variance is the population variance; 0 until two values were added.
func (w *Welford) Variance() float64 {
	if w.Count < 2 {
		return 0
	}
	return math.Max(w.M2/float64(w.Count), 0)
}

// SampleVariance divides by n-1.
func (w *Welford) SampleVariance() float64 {
	if w.Count < 2 {
		return 0
	}
	return math.Max(w.M2/float64(w.Count-1), 0)
}

func (w *Welford) StdDev() float64 {
	return math.Sqrt(w.Variance())
}

// Sigma returns the population deviation floored at floor.
func (w *Welford) Sigma(floor float64) float64 {
	return math.Max(w.StdDev(), floor)
}
