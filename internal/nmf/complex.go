// SPDX-License-Identifier: MIT

package nmf

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// tensor3 is a dense bins x rank x frames tensor backed by a flat slice.
type tensor3 struct {
	bins, rank, frames int
	data               []float64
}

func newTensor3(bins, rank, frames int) *tensor3 {
	return &tensor3{bins: bins, rank: rank, frames: frames, data: make([]float64, bins*rank*frames)}
}

func (x *tensor3) at(f, k, t int) float64     { return x.data[(f*x.rank+k)*x.frames+t] }
func (x *tensor3) set(f, k, t int, v float64) { x.data[(f*x.rank+k)*x.frames+t] = v }

// ComplexOptions configures the complex EUC factorization.
type ComplexOptions struct {
	Rank        int
	Regularizer float64 // sparsity weight lambda
	P           float64 // sparsity exponent, typically 1.2
	Eps         float64
	Seed        int64
}

// ComplexResult holds the complex factorization output: magnitude basis and
// activation plus a per-(bin,basis,frame) phase.
type ComplexResult struct {
	Basis      *mat.Dense
	Activation *mat.Dense
	Phase      *tensor3
	Loss       []float64
	Iterations int
}

// Component reconstructs the complex spectrogram of basis k, indexed
// [bin][frame].
func (r *ComplexResult) Component(k int) [][]complex128 {
	bins, _ := r.Basis.Dims()
	_, frames := r.Activation.Dims()
	out := make([][]complex128, bins)
	for f := 0; f < bins; f++ {
		out[f] = make([]complex128, frames)
		for t := 0; t < frames; t++ {
			mag := r.Basis.At(f, k) * r.Activation.At(k, t)
			out[f][t] = cmplx.Rect(mag, r.Phase.at(f, k, t))
		}
	}
	return out
}

// ComplexEUC factorizes a complex spectrogram directly, fitting magnitude
// basis/activation pairs with free per-component phases under a squared
// error cost with a sparsity penalty on the activations.
type ComplexEUC struct {
	opts ComplexOptions
}

// NewComplexEUC validates options and builds the solver.
func NewComplexEUC(opts ComplexOptions) (*ComplexEUC, error) {
	if opts.Rank < 1 {
		return nil, fmt.Errorf("rank must be >= 1, got %d", opts.Rank)
	}
	if opts.Eps <= 0 {
		opts.Eps = 1e-12
	}
	if opts.P <= 0 {
		opts.P = 1.2
	}
	if opts.Regularizer < 0 {
		return nil, fmt.Errorf("regularizer must be >= 0, got %g", opts.Regularizer)
	}
	return &ComplexEUC{opts: opts}, nil
}

// DefaultRegularizer computes the data-dependent sparsity weight used
// upstream: 1e-5 * sum |S|^2 / rank^(1 - 2/p).
func DefaultRegularizer(spec [][]complex128, rank int, p float64) float64 {
	total := 0.0
	for _, row := range spec {
		for _, v := range row {
			re, im := real(v), imag(v)
			total += re*re + im*im
		}
	}
	return 1e-5 * total / math.Pow(float64(rank), 1-2/p)
}

// Factorize runs the update loop on a complex spectrogram indexed
// [bin][frame].
func (c *ComplexEUC) Factorize(ctx context.Context, spec [][]complex128, iterations int) (*ComplexResult, error) {
	if iterations < 1 {
		return nil, fmt.Errorf("iterations must be >= 1, got %d", iterations)
	}
	bins := len(spec)
	if bins == 0 || len(spec[0]) == 0 {
		return nil, errors.New("spectrogram is empty")
	}
	frames := len(spec[0])

	st := c.initComplexState(spec, bins, frames)

	res := &ComplexResult{Loss: make([]float64, 0, iterations)}
	for it := 0; it < iterations; it++ {
		if err := ctx.Err(); err != nil {
			res.Basis, res.Activation, res.Phase = st.T, st.V, st.phase
			return res, err
		}
		c.updateOnce(st, spec)
		res.Loss = append(res.Loss, st.loss(spec))
		res.Iterations = it + 1
	}
	res.Basis, res.Activation, res.Phase = st.T, st.V, st.phase
	return res, nil
}

type complexState struct {
	rank         int
	bins, frames int
	T            *mat.Dense // bins x rank
	V            *mat.Dense // rank x frames
	phase        *tensor3
	beta         *tensor3
	eps          float64
}

func (c *ComplexEUC) initComplexState(spec [][]complex128, bins, frames int) *complexState {
	rank := c.opts.Rank
	rng := newRand(c.opts.Seed)

	st := &complexState{
		rank: rank, bins: bins, frames: frames,
		T:     randomMatrix(rng, bins, rank),
		V:     randomMatrix(rng, rank, frames),
		phase: newTensor3(bins, rank, frames),
		beta:  newTensor3(bins, rank, frames),
		eps:   c.opts.Eps,
	}

	// Phase starts from the mixture phase, tiled across components.
	for f := 0; f < bins; f++ {
		for t := 0; t < frames; t++ {
			ang := cmplx.Phase(spec[f][t])
			for k := 0; k < rank; k++ {
				st.phase.set(f, k, t, ang)
			}
		}
	}
	st.updateBeta()
	return st
}

// updateBeta recomputes the auxiliary weights Beta = TV_k / sum_k TV_k.
func (st *complexState) updateBeta() {
	for f := 0; f < st.bins; f++ {
		for t := 0; t < st.frames; t++ {
			sum := 0.0
			for k := 0; k < st.rank; k++ {
				sum += st.T.At(f, k) * st.V.At(k, t)
			}
			if sum < st.eps {
				sum = st.eps
			}
			for k := 0; k < st.rank; k++ {
				st.beta.set(f, k, t, st.T.At(f, k)*st.V.At(k, t)/sum)
			}
		}
	}
}

func (st *complexState) reconstruct(f, t int) complex128 {
	var sum complex128
	for k := 0; k < st.rank; k++ {
		sum += cmplx.Rect(st.T.At(f, k)*st.V.At(k, t), st.phase.at(f, k, t))
	}
	return sum
}

func (st *complexState) loss(spec [][]complex128) float64 {
	total := 0.0
	for f := 0; f < st.bins; f++ {
		for t := 0; t < st.frames; t++ {
			d := spec[f][t] - st.reconstruct(f, t)
			total += real(d)*real(d) + imag(d)*imag(d)
		}
	}
	return total
}

func (c *ComplexEUC) updateOnce(st *complexState, spec [][]complex128) {
	eps := c.opts.Eps
	lambda, p := c.opts.Regularizer, c.opts.P

	bins, rank, frames := st.bins, st.rank, st.frames

	// Auxiliary component estimates Z_bar and their projections onto the
	// current phases.
	zbar := make([]complex128, bins*rank*frames)
	re := newTensor3(bins, rank, frames)
	idx := func(f, k, t int) int { return (f*rank+k)*frames + t }

	for f := 0; f < bins; f++ {
		for t := 0; t < frames; t++ {
			residual := spec[f][t] - st.reconstruct(f, t)
			for k := 0; k < rank; k++ {
				ephi := cmplx.Rect(1, st.phase.at(f, k, t))
				x := complex(st.T.At(f, k)*st.V.At(k, t), 0) * ephi
				beta := st.beta.at(f, k, t)
				if beta < eps {
					beta = eps
				}
				zb := x + complex(beta, 0)*residual
				zbar[idx(f, k, t)] = zb
				re.set(f, k, t, real(cmplx.Conj(zb)*ephi))
			}
		}
	}

	// Basis: exact per-element least squares under the auxiliary function.
	for f := 0; f < bins; f++ {
		for k := 0; k < rank; k++ {
			num, den := 0.0, 0.0
			for t := 0; t < frames; t++ {
				beta := st.beta.at(f, k, t)
				if beta < eps {
					beta = eps
				}
				v := st.V.At(k, t)
				num += v / beta * re.at(f, k, t)
				den += v * v / beta
			}
			if den < eps {
				den = eps
			}
			st.T.Set(f, k, num/den)
		}
	}

	// Activation with sparsity penalty lambda * p * V^(p-2).
	for k := 0; k < rank; k++ {
		for t := 0; t < frames; t++ {
			num, den := 0.0, 0.0
			for f := 0; f < bins; f++ {
				beta := st.beta.at(f, k, t)
				if beta < eps {
					beta = eps
				}
				tv := st.T.At(f, k)
				num += tv / beta * re.at(f, k, t)
				den += tv * tv / beta
			}
			vbar := st.V.At(k, t)
			if vbar < eps {
				vbar = eps
			}
			den += lambda * p * math.Pow(vbar, p-2)
			if den < eps {
				den = eps
			}
			st.V.Set(k, t, num/den)
		}
	}

	// Phase follows the auxiliary estimates.
	for f := 0; f < bins; f++ {
		for k := 0; k < rank; k++ {
			for t := 0; t < frames; t++ {
				st.phase.set(f, k, t, cmplx.Phase(zbar[idx(f, k, t)]))
			}
		}
	}

	// Normalize basis columns to unit sum; scale lives in the activations.
	for k := 0; k < rank; k++ {
		sum := 0.0
		for f := 0; f < bins; f++ {
			sum += st.T.At(f, k)
		}
		if sum != 0 {
			for f := 0; f < bins; f++ {
				st.T.Set(f, k, st.T.At(f, k)/sum)
			}
		}
	}

	st.updateBeta()
}
