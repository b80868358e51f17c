// SPDX-License-Identifier: MIT

package nmf

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// floorInPlace clamps every element of m below eps up to eps.
func floorInPlace(m *mat.Dense, eps float64) {
	raw := m.RawMatrix()
	for i := range raw.Data {
		if raw.Data[i] < eps {
			raw.Data[i] = eps
		}
	}
}

// powElem returns a new matrix with every element of m raised to p.
func powElem(m *mat.Dense, p float64) *mat.Dense {
	var out mat.Dense
	out.CloneFrom(m)
	if p == 1 {
		return &out
	}
	raw := out.RawMatrix()
	for i := range raw.Data {
		raw.Data[i] = math.Pow(raw.Data[i], p)
	}
	return &out
}

// recipElem returns a new matrix of element-wise reciprocals.
func recipElem(m *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.CloneFrom(m)
	raw := out.RawMatrix()
	for i := range raw.Data {
		raw.Data[i] = 1 / raw.Data[i]
	}
	return &out
}

// mulUpdate applies m = m .* (num ./ den)^p in place.
func mulUpdate(m, num, den *mat.Dense, p float64) {
	var ratio mat.Dense
	ratio.DivElem(num, den)
	if p != 1 {
		raw := ratio.RawMatrix()
		for i := range raw.Data {
			raw.Data[i] = math.Pow(raw.Data[i], p)
		}
	}
	m.MulElem(m, &ratio)
}

// scaleAdd returns a*x + b*y element-wise.
func scaleAdd(a float64, x *mat.Dense, b float64, y *mat.Dense) *mat.Dense {
	var xs, ys mat.Dense
	xs.Scale(a, x)
	ys.Scale(b, y)
	xs.Add(&xs, &ys)
	return &xs
}

// hasNegative reports whether any element of m is negative.
func hasNegative(m *mat.Dense) bool {
	raw := m.RawMatrix()
	for i := range raw.Data {
		if raw.Data[i] < 0 {
			return true
		}
	}
	return false
}
