// SPDX-License-Identifier: MIT

// Package divergence implements the element-wise cost functions used by the
// factorization models.
package divergence

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Eps is the default numerical floor.
const Eps = 1e-12

// EUC is the squared Euclidean distance between a reconstruction and a
// target element.
func EUC(input, target float64) float64 {
	d := target - input
	return d * d
}

// GeneralizedKL is the generalized Kullback-Leibler divergence
// d(target | input) = target*log(target/input) - target + input.
func GeneralizedKL(input, target, eps float64) float64 {
	in, tgt := input+eps, target+eps
	return tgt*math.Log(tgt/in) - tgt + in
}

// IS is the Itakura-Saito divergence
// d(target | input) = target/input - log(target/input) - 1.
func IS(input, target, eps float64) float64 {
	in, tgt := input+eps, target+eps
	ratio := tgt / in
	return ratio - math.Log(ratio) - 1
}

// Sum accumulates fn over all matching elements of input and target. The
// matrices must have identical dimensions.
func Sum(fn func(input, target float64) float64, input, target *mat.Dense) float64 {
	r, c := input.Dims()
	total := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			total += fn(input.At(i, j), target.At(i, j))
		}
	}
	return total
}
