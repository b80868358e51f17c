// SPDX-License-Identifier: MIT

package nmf

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// The update rules below alternate one multiplicative step on the basis with
// one on the activation, recomputing the reconstruction in between.
// Denominators are floored at eps before division, numerators are left
// untouched.

func updateEUC(st *state) {
	d, eps := st.opts.Domain, st.opts.Eps
	exp := d / (4 - d)

	// Basis step.
	var tv mat.Dense
	tv.Mul(st.T, st.A)
	floorInPlace(&tv, eps)

	var num, den mat.Dense
	var weighted mat.Dense
	weighted.MulElem(st.target, powElem(&tv, (2-d)/d))
	num.Mul(&weighted, st.A.T())
	den.Mul(powElem(&tv, (4-d)/d), st.A.T())
	floorInPlace(&den, eps)
	mulUpdate(st.T, &num, &den, exp)

	// Activation step.
	tv.Mul(st.T, st.A)
	floorInPlace(&tv, eps)
	weighted.MulElem(st.target, powElem(&tv, (2-d)/d))
	num.Reset()
	den.Reset()
	num.Mul(st.T.T(), &weighted)
	den.Mul(st.T.T(), powElem(&tv, (4-d)/d))
	floorInPlace(&den, eps)
	mulUpdate(st.A, &num, &den, exp)
}

func updateKL(st *state) {
	d, eps := st.opts.Domain, st.opts.Eps
	exp := d / 2

	var tv, div, num, den mat.Dense

	tv.Mul(st.T, st.A)
	floorInPlace(&tv, eps)
	div.DivElem(st.target, &tv)
	num.Mul(&div, st.A.T())
	den.Mul(powElem(&tv, (2-d)/d), st.A.T())
	floorInPlace(&den, eps)
	mulUpdate(st.T, &num, &den, exp)

	tv.Mul(st.T, st.A)
	floorInPlace(&tv, eps)
	div.DivElem(st.target, &tv)
	num.Reset()
	den.Reset()
	num.Mul(st.T.T(), &div)
	den.Mul(st.T.T(), powElem(&tv, (2-d)/d))
	floorInPlace(&den, eps)
	mulUpdate(st.A, &num, &den, exp)
}

func updateIS(st *state, exp func(d float64) float64) {
	d, eps := st.opts.Domain, st.opts.Eps

	var tv, div, num, den mat.Dense

	tv.Mul(st.T, st.A)
	floorInPlace(&tv, eps)
	div.DivElem(st.target, powElem(&tv, (d+2)/d))
	num.Mul(&div, st.A.T())
	den.Mul(recipElem(&tv), st.A.T())
	floorInPlace(&den, eps)
	mulUpdate(st.T, &num, &den, exp(d))

	tv.Mul(st.T, st.A)
	floorInPlace(&tv, eps)
	div.DivElem(st.target, powElem(&tv, (d+2)/d))
	num.Reset()
	den.Reset()
	num.Mul(st.T.T(), &div)
	den.Mul(st.T.T(), recipElem(&tv))
	floorInPlace(&den, eps)
	mulUpdate(st.A, &num, &den, exp(d))
}

func updateISMM(st *state) {
	updateIS(st, func(d float64) float64 { return d / (d + 2) })
}

func updateISME(st *state) {
	updateIS(st, func(float64) float64 { return 1 })
}

func updateT(st *state) {
	eps, nu := st.opts.Eps, st.opts.Nu

	// Floored copy of the target for the harmonic weight.
	zf := mat.DenseCopyOf(st.target)
	floorInPlace(zf, eps)

	step := func(basis bool) {
		var tv mat.Dense
		tv.Mul(st.T, st.A)
		floorInPlace(&tv, eps)

		// harmonic = 1 / (2/((2+nu)·TV) + nu/((2+nu)·Z))
		harmonic := mat.DenseCopyOf(&tv)
		hraw := harmonic.RawMatrix()
		zraw := zf.RawMatrix()
		tvraw := tv.RawMatrix()
		for i := range hraw.Data {
			hraw.Data[i] = 1 / (2/((2+nu)*tvraw.Data[i]) + nu/((2+nu)*zraw.Data[i]))
		}

		var div mat.Dense
		div.DivElem(harmonic, powElem(&tv, 2))

		var num, den mat.Dense
		if basis {
			num.Mul(&div, st.A.T())
			den.Mul(recipElem(&tv), st.A.T())
			floorInPlace(&den, eps)
			mulUpdate(st.T, &num, &den, 0.5)
		} else {
			num.Mul(st.T.T(), &div)
			den.Mul(st.T.T(), recipElem(&tv))
			floorInPlace(&den, eps)
			mulUpdate(st.A, &num, &den, 0.5)
		}
	}
	step(true)
	step(false)
}

// cauchyC returns C = 2·Z + TV² floored at eps.
func cauchyC(st *state, tv *mat.Dense) *mat.Dense {
	c := scaleAdd(2, st.target, 1, powElem(tv, 2))
	floorInPlace(c, st.opts.Eps)
	return c
}

func updateCauchyNaive(st *state) {
	updateCauchyRatio(st, 1)
}

func updateCauchyMM(st *state) {
	updateCauchyRatio(st, 0.5)
}

// updateCauchyRatio implements the shared naive/MM Cauchy step. exp is the
// exponent applied to the ratio (1 for naive, 1/2 for MM).
func updateCauchyRatio(st *state, exp float64) {
	eps := st.opts.Eps

	step := func(basis bool) {
		var tv mat.Dense
		tv.Mul(st.T, st.A)
		floorInPlace(&tv, eps)

		c := cauchyC(st, &tv)
		var tvc mat.Dense
		tvc.DivElem(&tv, c)

		var num, den mat.Dense
		if basis {
			num.Mul(recipElem(&tv), st.A.T())
			den.Mul(&tvc, st.A.T())
			den.Scale(3, &den)
			floorInPlace(&den, eps)
			mulUpdate(st.T, &num, &den, exp)
		} else {
			num.Mul(st.T.T(), recipElem(&tv))
			den.Mul(st.T.T(), &tvc)
			den.Scale(3, &den)
			floorInPlace(&den, eps)
			mulUpdate(st.A, &num, &den, exp)
		}
	}
	step(true)
	step(false)
}

func updateCauchyME(st *state) {
	eps := st.opts.Eps

	step := func(basis bool) {
		var tv mat.Dense
		tv.Mul(st.T, st.A)
		floorInPlace(&tv, eps)

		// TV² + Z, floored.
		tv2z := scaleAdd(1, powElem(&tv, 2), 1, st.target)
		floorInPlace(tv2z, eps)

		var ratio mat.Dense
		ratio.DivElem(&tv, tv2z)

		var a, b mat.Dense
		if basis {
			a.Mul(&ratio, st.A.T())
			a.Scale(0.75, &a)
			b.Mul(recipElem(&tv), st.A.T())
		} else {
			a.Mul(st.T.T(), &ratio)
			a.Scale(0.75, &a)
			b.Mul(st.T.T(), recipElem(&tv))
		}

		// den = A + sqrt(A² + 2·B·A)
		den := mat.DenseCopyOf(&a)
		draw := den.RawMatrix()
		araw := a.RawMatrix()
		braw := b.RawMatrix()
		for i := range draw.Data {
			av, bv := araw.Data[i], braw.Data[i]
			draw.Data[i] = av + math.Sqrt(av*av+2*bv*av)
		}
		floorInPlace(den, eps)

		if basis {
			mulUpdate(st.T, &b, den, 1)
		} else {
			mulUpdate(st.A, &b, den, 1)
		}
	}
	step(true)
	step(false)
}

func updateCauchyFast(st *state) {
	eps := st.opts.Eps

	step := func(basis bool) {
		var tv mat.Dense
		tv.Mul(st.T, st.A)
		floorInPlace(&tv, eps)

		c := cauchyC(st, &tv)

		var ctv mat.Dense
		ctv.MulElem(c, &tv)
		floorInPlace(&ctv, eps)

		var zctv, tvc mat.Dense
		zctv.DivElem(st.target, &ctv)
		tvc.DivElem(&tv, c)

		var num, den mat.Dense
		if basis {
			num.Mul(&zctv, st.A.T())
			den.Mul(&tvc, st.A.T())
			floorInPlace(&den, eps)
			mulUpdate(st.T, &num, &den, 0.5)
		} else {
			num.Mul(st.T.T(), &zctv)
			den.Mul(st.T.T(), &tvc)
			floorInPlace(&den, eps)
			mulUpdate(st.A, &num, &den, 0.5)
		}
	}
	step(true)
	step(false)
}
