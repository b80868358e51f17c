// SPDX-License-Identifier: MIT

package mnmf

import (
	"context"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stereoMixture synthesizes per-channel spectrograms from two sources with
// distinct spectral envelopes panned to different directions.
func stereoMixture(bins, frames int) [][][]complex128 {
	rng := newRand(7)
	specs := make([][][]complex128, 2)
	for c := range specs {
		specs[c] = make([][]complex128, bins)
		for f := range specs[c] {
			specs[c][f] = make([]complex128, frames)
		}
	}
	// Source 1 lives in the low bins and mostly in the left channel,
	// source 2 in the high bins and mostly in the right.
	for f := 0; f < bins; f++ {
		for t := 0; t < frames; t++ {
			s1 := complex(rng.NormFloat64(), rng.NormFloat64())
			s2 := complex(rng.NormFloat64(), rng.NormFloat64())
			if f >= bins/2 {
				s1 *= 0.05
			} else {
				s2 *= 0.05
			}
			specs[0][f][t] = s1 + 0.2*s2
			specs[1][f][t] = 0.2*s1 + s2
		}
	}
	return specs
}

func TestCovariance(t *testing.T) {
	specs := stereoMixture(4, 5)
	cov, err := Covariance(specs)
	require.NoError(t, err)
	assert.Equal(t, 4, cov.Bins)
	assert.Equal(t, 5, cov.Frames)
	assert.Equal(t, 2, cov.Channels)

	// X(f,t) = x xᴴ: rank one, Hermitian, diagonal holds |x_c|².
	x := cov.At(1, 2)
	assert.InDelta(t, cmplx.Abs(specs[0][1][2])*cmplx.Abs(specs[0][1][2]), real(x.At(0, 0)), 1e-12)
	assert.InDelta(t, cmplx.Abs(specs[1][1][2])*cmplx.Abs(specs[1][1][2]), real(x.At(1, 1)), 1e-12)
	diff := x.At(0, 1) - cmplx.Conj(x.At(1, 0))
	assert.InDelta(t, 0, cmplx.Abs(diff), 1e-12)
}

func TestCovarianceRagged(t *testing.T) {
	specs := stereoMixture(4, 5)
	specs[1][2] = specs[1][2][:3]
	_, err := Covariance(specs)
	assert.Error(t, err)
}

func TestFactorizeLossDecreases(t *testing.T) {
	specs := stereoMixture(12, 24)
	cov, err := Covariance(specs)
	require.NoError(t, err)

	s, err := New(Options{Rank: 2, Seed: 11})
	require.NoError(t, err)

	res, err := s.Factorize(context.Background(), cov, 20)
	require.NoError(t, err)
	require.Len(t, res.Loss, 20)
	assert.Equal(t, 20, res.Iterations)

	assert.Less(t, res.Loss[len(res.Loss)-1], res.Loss[0], "loss should improve over iterations")

	r, c := res.Basis.Dims()
	assert.Equal(t, 12, r)
	assert.Equal(t, 2, c)
	r, c = res.Activation.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 24, c)

	for f := 0; f < 12; f++ {
		for k := 0; k < 2; k++ {
			assert.GreaterOrEqual(t, res.Basis.At(f, k), 0.0)
		}
	}
}

func TestFactorizeNormalizesSpatialTrace(t *testing.T) {
	specs := stereoMixture(6, 10)
	cov, err := Covariance(specs)
	require.NoError(t, err)

	s, err := New(Options{Rank: 2, Seed: 3})
	require.NoError(t, err)
	res, err := s.Factorize(context.Background(), cov, 5)
	require.NoError(t, err)

	for f := 0; f < res.Spatial.Bins; f++ {
		for k := 0; k < res.Spatial.Rank; k++ {
			h := res.Spatial.At(f, k)
			tr := real(h.At(0, 0) + h.At(1, 1))
			// Trace-normalized then ridged, so tr ≈ 1 + M·eps.
			assert.InDelta(t, 1.0, tr, 1e-6, "bin %d basis %d", f, k)
		}
	}
}

func TestFactorizeSeedDeterminism(t *testing.T) {
	specs := stereoMixture(6, 8)
	cov, err := Covariance(specs)
	require.NoError(t, err)

	run := func() *Result {
		s, err := New(Options{Rank: 2, Seed: 42})
		require.NoError(t, err)
		res, err := s.Factorize(context.Background(), cov, 5)
		require.NoError(t, err)
		return res
	}
	a, b := run(), run()
	assert.Equal(t, a.Loss, b.Loss)
}

func TestFactorizeContextCancel(t *testing.T) {
	specs := stereoMixture(6, 8)
	cov, err := Covariance(specs)
	require.NoError(t, err)

	s, err := New(Options{Rank: 2, Seed: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := s.Factorize(ctx, cov, 10)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Empty(t, res.Loss)
}

func TestFactorizeValidation(t *testing.T) {
	_, err := New(Options{Rank: 0})
	assert.Error(t, err)

	s, err := New(Options{Rank: 2})
	require.NoError(t, err)

	_, err = s.Factorize(context.Background(), nil, 5)
	assert.Error(t, err)

	specs := stereoMixture(4, 4)
	cov, err := Covariance(specs)
	require.NoError(t, err)
	_, err = s.Factorize(context.Background(), cov, 0)
	assert.Error(t, err)
}

func TestFilterImagesSumToMixture(t *testing.T) {
	specs := stereoMixture(8, 12)
	cov, err := Covariance(specs)
	require.NoError(t, err)

	s, err := New(Options{Rank: 2, Seed: 5})
	require.NoError(t, err)
	res, err := s.Factorize(context.Background(), cov, 10)
	require.NoError(t, err)

	images, err := res.Filter(specs, 1e-12)
	require.NoError(t, err)
	require.Len(t, images, 2)

	for c := 0; c < 2; c++ {
		for f := 0; f < 8; f++ {
			for t0 := 0; t0 < 12; t0++ {
				var sum complex128
				for k := range images {
					sum += images[k][c][f][t0]
				}
				diff := cmplx.Abs(sum - specs[c][f][t0])
				assert.Less(t, diff, 1e-6, "channel %d bin %d frame %d", c, f, t0)
			}
		}
	}
}

func TestFilterChannelMismatch(t *testing.T) {
	specs := stereoMixture(4, 4)
	cov, err := Covariance(specs)
	require.NoError(t, err)

	s, err := New(Options{Rank: 2, Seed: 5})
	require.NoError(t, err)
	res, err := s.Factorize(context.Background(), cov, 2)
	require.NoError(t, err)

	_, err = res.Filter(specs[:1], 1e-12)
	assert.Error(t, err)
}
