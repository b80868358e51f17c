// SPDX-License-Identifier: MIT

// Package linalg provides small dense complex matrix operations for the
// multichannel models: products, inverses, Hermitian factorizations and the
// algebraic Riccati solve used by the spatial covariance update.
package linalg

import (
	"errors"
	"fmt"
	"math/cmplx"
)

// CMat is a dense square complex matrix in row-major order. Channel counts
// are small (stereo up to a handful of microphones), so the representation
// favors clarity over blocking.
type CMat struct {
	N    int
	Data []complex128
}

// NewCMat returns a zero n x n matrix.
func NewCMat(n int) CMat {
	return CMat{N: n, Data: make([]complex128, n*n)}
}

// Identity returns the n x n identity.
func Identity(n int) CMat {
	m := NewCMat(n)
	for i := 0; i < n; i++ {
		m.Data[i*n+i] = 1
	}
	return m
}

// At returns the element at row i, column j.
func (m CMat) At(i, j int) complex128 { return m.Data[i*m.N+j] }

// Set assigns the element at row i, column j.
func (m CMat) Set(i, j int, v complex128) { m.Data[i*m.N+j] = v }

// Clone returns a deep copy.
func (m CMat) Clone() CMat {
	out := CMat{N: m.N, Data: make([]complex128, len(m.Data))}
	copy(out.Data, m.Data)
	return out
}

// Mul returns the matrix product a·b.
func Mul(a, b CMat) CMat {
	n := a.N
	out := NewCMat(n)
	for i := 0; i < n; i++ {
		for k := 0; k < n; k++ {
			aik := a.Data[i*n+k]
			if aik == 0 {
				continue
			}
			for j := 0; j < n; j++ {
				out.Data[i*n+j] += aik * b.Data[k*n+j]
			}
		}
	}
	return out
}

// Add returns a + b.
func Add(a, b CMat) CMat {
	out := a.Clone()
	for i := range out.Data {
		out.Data[i] += b.Data[i]
	}
	return out
}

// Scale returns s·a.
func Scale(s complex128, a CMat) CMat {
	out := a.Clone()
	for i := range out.Data {
		out.Data[i] *= s
	}
	return out
}

// ConjTranspose returns aᴴ.
func ConjTranspose(a CMat) CMat {
	n := a.N
	out := NewCMat(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out.Data[j*n+i] = cmplx.Conj(a.Data[i*n+j])
		}
	}
	return out
}

// Trace returns the sum of diagonal elements.
func Trace(a CMat) complex128 {
	var t complex128
	for i := 0; i < a.N; i++ {
		t += a.Data[i*a.N+i]
	}
	return t
}

// AddRidge returns a + eps·I.
func AddRidge(a CMat, eps float64) CMat {
	out := a.Clone()
	for i := 0; i < a.N; i++ {
		out.Data[i*a.N+i] += complex(eps, 0)
	}
	return out
}

// Hermitize returns (a + aᴴ)/2, forcing exact Hermitian symmetry after
// accumulated rounding.
func Hermitize(a CMat) CMat {
	return Scale(0.5, Add(a, ConjTranspose(a)))
}

// Inv returns the inverse by Gaussian elimination with partial pivoting.
func Inv(a CMat) (CMat, error) {
	n := a.N
	work := a.Clone()
	out := Identity(n)

	for col := 0; col < n; col++ {
		// Pivot on the largest magnitude in the column.
		pivot := col
		best := cmplx.Abs(work.Data[col*n+col])
		for r := col + 1; r < n; r++ {
			if v := cmplx.Abs(work.Data[r*n+col]); v > best {
				best, pivot = v, r
			}
		}
		if best == 0 {
			return CMat{}, fmt.Errorf("singular matrix at column %d", col)
		}
		if pivot != col {
			swapRows(work, col, pivot)
			swapRows(out, col, pivot)
		}

		inv := 1 / work.Data[col*n+col]
		for j := 0; j < n; j++ {
			work.Data[col*n+j] *= inv
			out.Data[col*n+j] *= inv
		}
		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			factor := work.Data[r*n+col]
			if factor == 0 {
				continue
			}
			for j := 0; j < n; j++ {
				work.Data[r*n+j] -= factor * work.Data[col*n+j]
				out.Data[r*n+j] -= factor * out.Data[col*n+j]
			}
		}
	}
	return out, nil
}

func swapRows(m CMat, a, b int) {
	n := m.N
	for j := 0; j < n; j++ {
		m.Data[a*n+j], m.Data[b*n+j] = m.Data[b*n+j], m.Data[a*n+j]
	}
}

// MulVec returns a·x for a vector x of length a.N.
func MulVec(a CMat, x []complex128) []complex128 {
	n := a.N
	out := make([]complex128, n)
	for i := 0; i < n; i++ {
		var s complex128
		for j := 0; j < n; j++ {
			s += a.Data[i*n+j] * x[j]
		}
		out[i] = s
	}
	return out
}

// ErrNotPositiveDefinite is returned by Hermitian factorizations when a
// pivot collapses.
var ErrNotPositiveDefinite = errors.New("matrix is not positive definite")
