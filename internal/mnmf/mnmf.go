// SPDX-License-Identifier: MIT

// Package mnmf implements multichannel Itakura-Saito NMF: spectrogram
// covariances are modeled per frequency bin as a sum of basis spectra scaled
// by activations and colored by Hermitian spatial covariance matrices. The
// spatial update solves an algebraic Riccati equation per (bin, basis).
package mnmf

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/linalg"
	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/nmf/divergence"
)

// Options configures the multichannel solver.
type Options struct {
	Rank int
	Eps  float64
	Seed int64

	// DisableNormalization skips the per-iteration trace normalization of
	// the spatial matrices. Normalization resolves the scale ambiguity
	// between spatial and spectral factors and is on by default.
	DisableNormalization bool

	// Optional warm starts; cloned before use.
	InitSpatial    *SpatialTensor
	InitBasis      *mat.Dense
	InitActivation *mat.Dense
}

// Result holds the fitted model.
type Result struct {
	Spatial    *SpatialTensor
	Basis      *mat.Dense // bins x rank
	Activation *mat.Dense // rank x frames
	Loss       []float64
	Iterations int
}

// Solver runs multiplicative updates on covariance observations.
type Solver struct {
	opts Options
}

// New validates options and builds a Solver.
func New(opts Options) (*Solver, error) {
	if opts.Rank < 1 {
		return nil, fmt.Errorf("rank must be >= 1, got %d", opts.Rank)
	}
	if opts.Eps <= 0 {
		opts.Eps = divergence.Eps
	}
	return &Solver{opts: opts}, nil
}

type state struct {
	x    *CovTensor
	h    *SpatialTensor
	t    *mat.Dense
	v    *mat.Dense
	eps  float64
	rank int

	// Per-(bin,frame) scratch recomputed before each update step.
	invXHat *CovTensor
	xxx     *CovTensor // X̂⁻¹ X X̂⁻¹
}

// Factorize fits the model to the observed covariances over the given
// number of iterations. One iteration updates basis, activation, then the
// spatial matrices, matching the reference update order.
func (s *Solver) Factorize(ctx context.Context, x *CovTensor, iterations int) (*Result, error) {
	if iterations < 1 {
		return nil, fmt.Errorf("iterations must be >= 1, got %d", iterations)
	}
	if x == nil || x.Bins == 0 || x.Frames == 0 || x.Channels == 0 {
		return nil, errors.New("covariance tensor is empty")
	}

	st, err := s.initState(x)
	if err != nil {
		return nil, err
	}

	res := &Result{Loss: make([]float64, 0, iterations)}
	for it := 0; it < iterations; it++ {
		if err := ctx.Err(); err != nil {
			s.fill(res, st)
			return res, err
		}

		if err := st.refreshScratch(); err != nil {
			return nil, fmt.Errorf("iteration %d: %w", it, err)
		}
		st.updateBasis()

		if err := st.refreshScratch(); err != nil {
			return nil, fmt.Errorf("iteration %d: %w", it, err)
		}
		st.updateActivation()

		if err := st.refreshScratch(); err != nil {
			return nil, fmt.Errorf("iteration %d: %w", it, err)
		}
		if err := st.updateSpatial(s.opts.DisableNormalization); err != nil {
			return nil, fmt.Errorf("spatial update at iteration %d: %w", it, err)
		}

		loss, err := st.loss()
		if err != nil {
			return nil, fmt.Errorf("loss at iteration %d: %w", it, err)
		}
		res.Loss = append(res.Loss, loss)
		res.Iterations = it + 1
	}
	s.fill(res, st)
	return res, nil
}

func (s *Solver) fill(res *Result, st *state) {
	res.Spatial, res.Basis, res.Activation = st.h, st.t, st.v
}

func (s *Solver) initState(x *CovTensor) (*state, error) {
	rank := s.opts.Rank
	rng := newRand(s.opts.Seed)

	st := &state{
		x: x, eps: s.opts.Eps, rank: rank,
		invXHat: NewCovTensor(x.Bins, x.Frames, x.Channels),
		xxx:     NewCovTensor(x.Bins, x.Frames, x.Channels),
	}

	if s.opts.InitSpatial != nil {
		h := s.opts.InitSpatial
		if h.Bins != x.Bins || h.Rank != rank || h.Channels != x.Channels {
			return nil, fmt.Errorf("init spatial must be %dx%dx%d", x.Bins, rank, x.Channels)
		}
		st.h = h.Clone()
	} else {
		st.h = NewSpatialTensor(x.Bins, rank, x.Channels)
	}

	if s.opts.InitBasis != nil {
		r, c := s.opts.InitBasis.Dims()
		if r != x.Bins || c != rank {
			return nil, fmt.Errorf("init basis must be %dx%d, got %dx%d", x.Bins, rank, r, c)
		}
		st.t = mat.DenseCopyOf(s.opts.InitBasis)
	} else {
		st.t = randomMatrix(rng, x.Bins, rank)
	}

	if s.opts.InitActivation != nil {
		r, c := s.opts.InitActivation.Dims()
		if r != rank || c != x.Frames {
			return nil, fmt.Errorf("init activation must be %dx%d, got %dx%d", rank, x.Frames, r, c)
		}
		st.v = mat.DenseCopyOf(s.opts.InitActivation)
	} else {
		st.v = randomMatrix(rng, rank, x.Frames)
	}
	return st, nil
}

// xhat returns the model covariance at (f, t).
func (st *state) xhat(f, t int) linalg.CMat {
	m := st.x.Channels
	out := linalg.NewCMat(m)
	for k := 0; k < st.rank; k++ {
		w := complex(st.t.At(f, k)*st.v.At(k, t), 0)
		h := st.h.At(f, k)
		for i := range out.Data {
			out.Data[i] += w * h.Data[i]
		}
	}
	return out
}

// refreshScratch recomputes X̂⁻¹ and X̂⁻¹·X·X̂⁻¹ for the current factors.
func (st *state) refreshScratch() error {
	for f := 0; f < st.x.Bins; f++ {
		for t := 0; t < st.x.Frames; t++ {
			xh := linalg.AddRidge(st.xhat(f, t), st.eps)
			inv, err := linalg.Inv(xh)
			if err != nil {
				return fmt.Errorf("model covariance at bin %d frame %d: %w", f, t, err)
			}
			st.invXHat.SetAt(f, t, inv)
			st.xxx.SetAt(f, t, linalg.Mul(inv, linalg.Mul(st.x.At(f, t), inv)))
		}
	}
	return nil
}

func (st *state) updateBasis() {
	for f := 0; f < st.x.Bins; f++ {
		for k := 0; k < st.rank; k++ {
			num, den := 0.0, 0.0
			h := st.h.At(f, k)
			for t := 0; t < st.x.Frames; t++ {
				v := st.v.At(k, t)
				num += v * real(linalg.Trace(linalg.Mul(st.xxx.At(f, t), h)))
				den += v * real(linalg.Trace(linalg.Mul(st.invXHat.At(f, t), h)))
			}
			if den < st.eps {
				den = st.eps
			}
			ratio := num / den
			if ratio < 0 {
				ratio = 0
			}
			st.t.Set(f, k, st.t.At(f, k)*math.Sqrt(ratio))
		}
	}
}

func (st *state) updateActivation() {
	for k := 0; k < st.rank; k++ {
		for t := 0; t < st.x.Frames; t++ {
			num, den := 0.0, 0.0
			for f := 0; f < st.x.Bins; f++ {
				w := st.t.At(f, k)
				h := st.h.At(f, k)
				num += w * real(linalg.Trace(linalg.Mul(st.xxx.At(f, t), h)))
				den += w * real(linalg.Trace(linalg.Mul(st.invXHat.At(f, t), h)))
			}
			if den < st.eps {
				den = st.eps
			}
			ratio := num / den
			if ratio < 0 {
				ratio = 0
			}
			st.v.Set(k, t, st.v.At(k, t)*math.Sqrt(ratio))
		}
	}
}

func (st *state) updateSpatial(skipNormalize bool) error {
	m := st.x.Channels
	for f := 0; f < st.x.Bins; f++ {
		for k := 0; k < st.rank; k++ {
			// A = Σ_t V(k,t)·X̂⁻¹,  VXXX = Σ_t V(k,t)·X̂⁻¹XX̂⁻¹
			a := linalg.NewCMat(m)
			vxxx := linalg.NewCMat(m)
			for t := 0; t < st.x.Frames; t++ {
				w := complex(st.v.At(k, t), 0)
				inv := st.invXHat.At(f, t)
				xxx := st.xxx.At(f, t)
				for i := range a.Data {
					a.Data[i] += w * inv.Data[i]
					vxxx.Data[i] += w * xxx.Data[i]
				}
			}

			h := st.h.At(f, k)
			b := linalg.Mul(h, linalg.Mul(vxxx, h))

			solved, err := linalg.SolveRiccati(linalg.Hermitize(a), linalg.Hermitize(b), st.eps)
			if err != nil {
				return fmt.Errorf("bin %d basis %d: %w", f, k, err)
			}
			solved = linalg.AddRidge(solved, st.eps)

			if !skipNormalize {
				tr := real(linalg.Trace(solved))
				if tr > st.eps {
					solved = linalg.Scale(complex(1/tr, 0), solved)
				}
			}
			st.h.SetAt(f, k, solved)
		}
	}
	return nil
}

func (st *state) loss() (float64, error) {
	total := 0.0
	for f := 0; f < st.x.Bins; f++ {
		for t := 0; t < st.x.Frames; t++ {
			d, err := divergence.MultichannelIS(st.xhat(f, t), st.x.At(f, t), st.eps)
			if err != nil {
				return 0, err
			}
			total += d
		}
	}
	return total, nil
}
