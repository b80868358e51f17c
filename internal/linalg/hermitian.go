// SPDX-License-Identifier: MIT

package linalg

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// Cholesky returns the lower-triangular L with a = L·Lᴴ. The input must be
// Hermitian positive definite.
func Cholesky(a CMat) (CMat, error) {
	n := a.N
	l := NewCMat(n)
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			var sum complex128
			for k := 0; k < j; k++ {
				sum += l.At(i, k) * cmplx.Conj(l.At(j, k))
			}
			if i == j {
				d := real(a.At(i, i) - sum)
				if d <= 0 || math.IsNaN(d) {
					return CMat{}, fmt.Errorf("cholesky pivot %d: %w", i, ErrNotPositiveDefinite)
				}
				l.Set(i, j, complex(math.Sqrt(d), 0))
			} else {
				l.Set(i, j, (a.At(i, j)-sum)/l.At(j, j))
			}
		}
	}
	return l, nil
}

// LogDet returns log det(a) for a Hermitian positive definite matrix,
// computed from its Cholesky factor.
func LogDet(a CMat) (float64, error) {
	l, err := Cholesky(a)
	if err != nil {
		return 0, err
	}
	sum := 0.0
	for i := 0; i < a.N; i++ {
		sum += math.Log(real(l.At(i, i)))
	}
	return 2 * sum, nil
}

// embed maps a Hermitian complex matrix H = Re + i·Im to the real symmetric
// block matrix [[Re, -Im], [Im, Re]]. Eigenvalues of the embedding are those
// of H, each doubled, so spectral functions commute with the mapping.
func embed(a CMat) *mat.SymDense {
	n := a.N
	s := mat.NewSymDense(2*n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			re := real(a.At(i, j))
			im := imag(a.At(i, j))
			s.SetSym(i, j, re)
			s.SetSym(n+i, n+j, re)
			// Upper-right block is -Im; SetSym mirrors it to the lower-left.
			s.SetSym(i, n+j, -im)
			if i != j {
				s.SetSym(j, n+i, im)
			}
		}
	}
	return s
}

// spectralApply computes f(a) for Hermitian a by eigendecomposition of the
// real embedding, applying fn to each eigenvalue.
func spectralApply(a CMat, fn func(float64) float64) (CMat, error) {
	n := a.N
	var eig mat.EigenSym
	if ok := eig.Factorize(embed(a), true); !ok {
		return CMat{}, fmt.Errorf("eigendecomposition failed")
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	for i := range vals {
		vals[i] = fn(vals[i])
	}

	// F = Q·diag(fn(vals))·Qᵀ
	var scaled mat.Dense
	scaled.CloneFrom(&vecs)
	for j := range vals {
		for i := 0; i < 2*n; i++ {
			scaled.Set(i, j, scaled.At(i, j)*vals[j])
		}
	}
	var f mat.Dense
	f.Mul(&scaled, vecs.T())

	out := NewCMat(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out.Set(i, j, complex(f.At(i, j), f.At(n+i, j)))
		}
	}
	return Hermitize(out), nil
}

// InvSqrt returns a^(-1/2) for Hermitian positive semidefinite a.
// Eigenvalues are floored at eps before inversion.
func InvSqrt(a CMat, eps float64) (CMat, error) {
	return spectralApply(a, func(v float64) float64 {
		if v < eps {
			v = eps
		}
		return 1 / math.Sqrt(v)
	})
}

// Sqrt returns a^(1/2) for Hermitian positive semidefinite a. Negative
// eigenvalues from rounding are clamped to zero.
func Sqrt(a CMat) (CMat, error) {
	return spectralApply(a, func(v float64) float64 {
		if v < 0 {
			return 0
		}
		return math.Sqrt(v)
	})
}

// SolveRiccati solves X·A·X = B for Hermitian positive definite A and B:
// with B = L·Lᴴ, X = L·(Lᴴ·A·L)^(-1/2)·Lᴴ. eps floors the eigenvalues in
// the inverse square root and ridges B when its Cholesky fails.
func SolveRiccati(a, b CMat, eps float64) (CMat, error) {
	l, err := Cholesky(b)
	if err != nil {
		l, err = Cholesky(AddRidge(b, eps))
		if err != nil {
			return CMat{}, fmt.Errorf("riccati rhs: %w", err)
		}
	}

	lh := ConjTranspose(l)
	inner := Mul(lh, Mul(a, l))
	isq, err := InvSqrt(Hermitize(inner), eps)
	if err != nil {
		return CMat{}, fmt.Errorf("riccati inner inverse sqrt: %w", err)
	}
	return Hermitize(Mul(l, Mul(isq, lh))), nil
}
