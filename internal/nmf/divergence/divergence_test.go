// SPDX-License-Identifier: MIT

package divergence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestNonnegativeAndZeroAtMatch(t *testing.T) {
	values := []float64{0.001, 0.5, 1, 3, 100}

	for _, v := range values {
		assert.InDelta(t, 0, EUC(v, v), 1e-12)
		assert.InDelta(t, 0, GeneralizedKL(v, v, Eps), 1e-9)
		assert.InDelta(t, 0, IS(v, v, Eps), 1e-9)
	}
	for _, in := range values {
		for _, tgt := range values {
			assert.GreaterOrEqual(t, EUC(in, tgt), 0.0)
			assert.GreaterOrEqual(t, GeneralizedKL(in, tgt, Eps), -1e-12)
			assert.GreaterOrEqual(t, IS(in, tgt, Eps), -1e-12)
		}
	}
}

func TestISScaleInvariance(t *testing.T) {
	// IS divergence is invariant under common scaling of both arguments.
	a := IS(2, 5, 0)
	b := IS(200, 500, 0)
	assert.InDelta(t, a, b, 1e-9)
}

func TestSum(t *testing.T) {
	input := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	target := mat.NewDense(2, 2, []float64{1, 3, 3, 2})

	got := Sum(EUC, input, target)
	assert.InDelta(t, 0+1+0+4, got, 1e-12)
}
