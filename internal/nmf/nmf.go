// SPDX-License-Identifier: MIT

// Package nmf implements nonnegative matrix factorization of power
// spectrograms by multiplicative updates, in the EUC, KL, IS, Student-t and
// Cauchy flavors, plus a complex-valued EUC variant.
package nmf

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/nmf/divergence"
)

// Model selects the divergence family.
type Model string

const (
	ModelEUC    Model = "euc"
	ModelKL     Model = "kl"
	ModelIS     Model = "is"
	ModelT      Model = "t"
	ModelCauchy Model = "cauchy"
)

// Update algorithm names.
const (
	AlgMM    = "mm"    // majorization-minimization
	AlgME    = "me"    // majorization-equalization
	AlgNaive = "naive" // naive multiplicative (Cauchy only)
	AlgFast  = "fast"  // fast MM (Cauchy only)
)

// ErrNegativeInput is returned when the target matrix has negative entries.
var ErrNegativeInput = errors.New("target matrix has negative entries")

// Options configures a Factorizer.
type Options struct {
	Rank      int
	Domain    float64 // exponent domain, 1 <= d <= 2; the model fits (T·A)^(2/d)
	Algorithm string
	Nu        float64 // Student-t degrees of freedom (t model only)
	Eps       float64 // numerical floor, defaults to divergence.Eps
	Tolerance float64 // relative loss improvement for early stop; 0 disables
	Seed      int64

	// Optional warm starts. When set they must match the target dimensions
	// and are cloned before use.
	InitBasis      *mat.Dense
	InitActivation *mat.Dense
}

// Result holds the factorization output.
type Result struct {
	Basis      *mat.Dense // bins x rank
	Activation *mat.Dense // rank x frames
	Loss       []float64  // divergence after each iteration
	Iterations int        // iterations actually run
}

// state is the mutable solver state shared by the update rules.
type state struct {
	target *mat.Dense
	T      *mat.Dense
	A      *mat.Dense
	opts   Options
}

// Factorizer runs multiplicative updates for one model family.
type Factorizer struct {
	model  Model
	opts   Options
	update func(*state)
	loss   func(*state) float64
}

// New validates options and builds a Factorizer for the given model.
func New(model Model, opts Options) (*Factorizer, error) {
	if opts.Rank < 1 {
		return nil, fmt.Errorf("rank must be >= 1, got %d", opts.Rank)
	}
	if opts.Eps <= 0 {
		opts.Eps = divergence.Eps
	}
	if opts.Domain == 0 {
		opts.Domain = 2
	}
	if opts.Domain < 1 || opts.Domain > 2 {
		return nil, fmt.Errorf("domain must be in [1, 2], got %g", opts.Domain)
	}
	if opts.Algorithm == "" {
		opts.Algorithm = AlgMM
	}
	if opts.Tolerance < 0 {
		return nil, fmt.Errorf("tolerance must be >= 0, got %g", opts.Tolerance)
	}

	f := &Factorizer{model: model, opts: opts}
	switch model {
	case ModelEUC:
		if opts.Algorithm != AlgMM {
			return nil, fmt.Errorf("euc supports algorithm %q only", AlgMM)
		}
		f.update = updateEUC
		f.loss = lossEUC
	case ModelKL:
		if opts.Algorithm != AlgMM {
			return nil, fmt.Errorf("kl supports algorithm %q only", AlgMM)
		}
		f.update = updateKL
		f.loss = lossKL
	case ModelIS:
		switch opts.Algorithm {
		case AlgMM:
			f.update = updateISMM
		case AlgME:
			if opts.Domain != 2 {
				return nil, errors.New("is/me requires domain 2")
			}
			f.update = updateISME
		default:
			return nil, fmt.Errorf("is supports algorithms %q and %q", AlgMM, AlgME)
		}
		f.loss = lossIS
	case ModelT:
		if opts.Algorithm != AlgMM {
			return nil, fmt.Errorf("t supports algorithm %q only", AlgMM)
		}
		if opts.Domain != 2 {
			return nil, errors.New("t requires domain 2")
		}
		if opts.Nu <= 0 {
			return nil, fmt.Errorf("t requires nu > 0, got %g", opts.Nu)
		}
		f.update = updateT
		f.loss = lossT
	case ModelCauchy:
		if opts.Domain != 2 {
			return nil, errors.New("cauchy requires domain 2")
		}
		switch opts.Algorithm {
		case AlgNaive:
			f.update = updateCauchyNaive
		case AlgMM:
			f.update = updateCauchyMM
		case AlgME:
			f.update = updateCauchyME
		case AlgFast:
			f.update = updateCauchyFast
		default:
			return nil, fmt.Errorf("cauchy supports algorithms %q, %q, %q, %q",
				AlgNaive, AlgMM, AlgME, AlgFast)
		}
		f.loss = lossCauchy
	default:
		return nil, fmt.Errorf("unknown model %q", model)
	}
	return f, nil
}

// Factorize decomposes target (bins x frames, nonnegative) into basis and
// activation matrices over the requested number of iterations. The context
// is checked every iteration; on cancellation the partial result is
// returned along with the context error.
func (f *Factorizer) Factorize(ctx context.Context, target *mat.Dense, iterations int) (*Result, error) {
	if iterations < 1 {
		return nil, fmt.Errorf("iterations must be >= 1, got %d", iterations)
	}
	bins, frames := target.Dims()
	if bins == 0 || frames == 0 {
		return nil, errors.New("target matrix is empty")
	}
	if hasNegative(target) {
		return nil, ErrNegativeInput
	}

	st, err := f.initState(target, bins, frames)
	if err != nil {
		return nil, err
	}

	res := &Result{Loss: make([]float64, 0, iterations)}
	prev := math.Inf(1)
	for it := 0; it < iterations; it++ {
		if err := ctx.Err(); err != nil {
			res.Basis, res.Activation = st.T, st.A
			return res, err
		}
		f.update(st)
		cur := f.loss(st)
		res.Loss = append(res.Loss, cur)
		res.Iterations = it + 1

		if f.opts.Tolerance > 0 && it > 0 && math.Abs(prev-cur) <= f.opts.Tolerance*math.Abs(prev) {
			break
		}
		prev = cur
	}
	res.Basis, res.Activation = st.T, st.A
	return res, nil
}

func (f *Factorizer) initState(target *mat.Dense, bins, frames int) (*state, error) {
	rng := newRand(f.opts.Seed)

	st := &state{target: target, opts: f.opts}

	if f.opts.InitBasis != nil {
		r, c := f.opts.InitBasis.Dims()
		if r != bins || c != f.opts.Rank {
			return nil, fmt.Errorf("init basis must be %dx%d, got %dx%d", bins, f.opts.Rank, r, c)
		}
		st.T = mat.DenseCopyOf(f.opts.InitBasis)
	} else {
		st.T = randomMatrix(rng, bins, f.opts.Rank)
	}
	if f.opts.InitActivation != nil {
		r, c := f.opts.InitActivation.Dims()
		if r != f.opts.Rank || c != frames {
			return nil, fmt.Errorf("init activation must be %dx%d, got %dx%d", f.opts.Rank, frames, r, c)
		}
		st.A = mat.DenseCopyOf(f.opts.InitActivation)
	} else {
		st.A = randomMatrix(rng, f.opts.Rank, frames)
	}
	return st, nil
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed)) // #nosec G404 -- reproducible init, not crypto
}

func randomMatrix(rng *rand.Rand, r, c int) *mat.Dense {
	data := make([]float64, r*c)
	for i := range data {
		data[i] = rng.Float64()
	}
	return mat.NewDense(r, c, data)
}

// reconstruct returns (T·A)^(2/domain), the model's estimate of the target.
func (st *state) reconstruct() *mat.Dense {
	var tv mat.Dense
	tv.Mul(st.T, st.A)
	return powElem(&tv, 2/st.opts.Domain)
}

func lossEUC(st *state) float64 {
	return divergence.Sum(divergence.EUC, st.reconstruct(), st.target)
}

func lossKL(st *state) float64 {
	eps := st.opts.Eps
	return divergence.Sum(func(in, tgt float64) float64 {
		return divergence.GeneralizedKL(in, tgt, eps)
	}, st.reconstruct(), st.target)
}

func lossIS(st *state) float64 {
	eps := st.opts.Eps
	return divergence.Sum(func(in, tgt float64) float64 {
		return divergence.IS(in, tgt, eps)
	}, st.reconstruct(), st.target)
}

func lossT(st *state) float64 {
	eps, nu := st.opts.Eps, st.opts.Nu
	return divergence.Sum(func(in, tgt float64) float64 {
		in, tgt = in+eps, tgt+eps
		return math.Log(in) + (2+nu)/2*math.Log(1+(2/nu)*(tgt/in))
	}, st.reconstruct(), st.target)
}

func lossCauchy(st *state) float64 {
	eps := st.opts.Eps
	return divergence.Sum(func(in, tgt float64) float64 {
		in, tgt = in+eps, tgt+eps
		num := 2*tgt*tgt + in*in
		den := 3 * tgt * tgt
		return math.Log(tgt/in) + 1.5*math.Log(num/den)
	}, st.reconstruct(), st.target)
}
