// SPDX-License-Identifier: MIT

package nmf

import (
	"context"
	"math/cmplx"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomSpectrogram(bins, frames int, seed int64) [][]complex128 {
	rng := rand.New(rand.NewSource(seed))
	spec := make([][]complex128, bins)
	for f := range spec {
		spec[f] = make([]complex128, frames)
		for t := range spec[f] {
			spec[f][t] = cmplx.Rect(rng.Float64()*5, rng.Float64()*6.28-3.14)
		}
	}
	return spec
}

func TestComplexEUCImprovesFit(t *testing.T) {
	spec := randomSpectrogram(17, 24, 31)
	lambda := DefaultRegularizer(spec, 4, 1.2)

	solver, err := NewComplexEUC(ComplexOptions{Rank: 4, Regularizer: lambda, P: 1.2, Seed: 13})
	require.NoError(t, err)

	res, err := solver.Factorize(context.Background(), spec, 25)
	require.NoError(t, err)

	require.Len(t, res.Loss, 25)
	assert.Less(t, res.Loss[len(res.Loss)-1], res.Loss[0])

	br, bc := res.Basis.Dims()
	assert.Equal(t, 17, br)
	assert.Equal(t, 4, bc)
}

func TestComplexEUCComponentsSumNearMixture(t *testing.T) {
	spec := randomSpectrogram(9, 12, 5)
	solver, err := NewComplexEUC(ComplexOptions{Rank: 3, Seed: 2})
	require.NoError(t, err)

	res, err := solver.Factorize(context.Background(), spec, 60)
	require.NoError(t, err)

	// Summed components equal the model reconstruction, whose error is the
	// final loss.
	components := make([][][]complex128, 3)
	for k := range components {
		components[k] = res.Component(k)
	}
	var sumErr float64
	for f := 0; f < 9; f++ {
		for tt := 0; tt < 12; tt++ {
			var sum complex128
			for k := 0; k < 3; k++ {
				sum += components[k][f][tt]
			}
			d := spec[f][tt] - sum
			sumErr += real(d)*real(d) + imag(d)*imag(d)
		}
	}
	assert.InDelta(t, res.Loss[len(res.Loss)-1], sumErr, 1e-6)
}

func TestNewComplexEUCValidation(t *testing.T) {
	_, err := NewComplexEUC(ComplexOptions{Rank: 0})
	assert.Error(t, err)
	_, err = NewComplexEUC(ComplexOptions{Rank: 2, Regularizer: -1})
	assert.Error(t, err)
}

func TestComplexEUCRejectsEmpty(t *testing.T) {
	solver, err := NewComplexEUC(ComplexOptions{Rank: 2})
	require.NoError(t, err)
	_, err = solver.Factorize(context.Background(), nil, 5)
	assert.Error(t, err)
}
