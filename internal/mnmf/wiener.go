// SPDX-License-Identifier: MIT

package mnmf

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/linalg"
)

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

// Filter applies the multichannel Wiener filter implied by a fitted model to
// the mixture spectrograms, one per channel, indexed [channel][bin][frame].
// The separated image of source k at channel c is
//
//	y_k(f,t) = T(f,k)·V(k,t)·H(f,k)·X̂(f,t)⁻¹·x(f,t)
//
// so the images of all sources sum back to the mixture. The result is
// indexed [source][channel][bin][frame].
func (r *Result) Filter(specs [][][]complex128, eps float64) ([][][][]complex128, error) {
	if r.Spatial == nil || r.Basis == nil || r.Activation == nil {
		return nil, fmt.Errorf("model is not fitted")
	}
	h := r.Spatial
	if len(specs) != h.Channels {
		return nil, fmt.Errorf("expected %d channels, got %d", h.Channels, len(specs))
	}
	bins, _ := r.Basis.Dims()
	_, frames := r.Activation.Dims()
	for c, sp := range specs {
		if len(sp) != bins {
			return nil, fmt.Errorf("channel %d: expected %d bins, got %d", c, bins, len(sp))
		}
		for f, row := range sp {
			if len(row) != frames {
				return nil, fmt.Errorf("channel %d bin %d: expected %d frames, got %d", c, f, frames, len(row))
			}
		}
	}

	out := make([][][][]complex128, h.Rank)
	for k := range out {
		out[k] = make([][][]complex128, h.Channels)
		for c := range out[k] {
			out[k][c] = make([][]complex128, bins)
			for f := range out[k][c] {
				out[k][c][f] = make([]complex128, frames)
			}
		}
	}

	m := h.Channels
	vec := make([]complex128, m)
	for f := 0; f < bins; f++ {
		for t := 0; t < frames; t++ {
			xhat := linalg.NewCMat(m)
			for k := 0; k < h.Rank; k++ {
				w := complex(r.Basis.At(f, k)*r.Activation.At(k, t), 0)
				hk := h.At(f, k)
				for i := range xhat.Data {
					xhat.Data[i] += w * hk.Data[i]
				}
			}
			inv, err := linalg.Inv(linalg.AddRidge(xhat, eps))
			if err != nil {
				return nil, fmt.Errorf("bin %d frame %d: %w", f, t, err)
			}

			for c := 0; c < m; c++ {
				vec[c] = specs[c][f][t]
			}
			filtered := linalg.MulVec(inv, vec)

			for k := 0; k < h.Rank; k++ {
				w := complex(r.Basis.At(f, k)*r.Activation.At(k, t), 0)
				y := linalg.MulVec(h.At(f, k), filtered)
				for c := 0; c < m; c++ {
					out[k][c][f][t] = w * y[c]
				}
			}
		}
	}
	return out, nil
}
