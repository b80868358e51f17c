// SPDX-License-Identifier: MIT

// Package window provides analysis and synthesis windows for short-time
// spectral processing.
package window

import "math"

// Hann returns a periodic Hann window of length n.
func Hann(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n)))
	}
	return w
}

// Hamming returns a periodic Hamming window of length n.
func Hamming(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// SqrtHann returns the square root of a periodic Hann window. Used as a
// matched analysis/synthesis pair.
func SqrtHann(n int) []float64 {
	w := Hann(n)
	for i := range w {
		w[i] = math.Sqrt(w[i])
	}
	return w
}
