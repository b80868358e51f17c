// SPDX-License-Identifier: MIT

package divergence

import (
	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/linalg"
)

// MultichannelIS is the multichannel Itakura-Saito divergence between an
// observed covariance x and a model covariance xhat:
//
//	tr(xhat^-1 x) - log det(xhat^-1 x) - M
//
// Both matrices are ridged by eps·I so rank-one observed covariances stay
// in the domain of the log-determinant.
func MultichannelIS(xhat, x linalg.CMat, eps float64) (float64, error) {
	m := xhat.N

	xh := linalg.AddRidge(xhat, eps)
	xr := linalg.AddRidge(x, eps)

	inv, err := linalg.Inv(xh)
	if err != nil {
		return 0, err
	}
	tr := real(linalg.Trace(linalg.Mul(inv, xr)))

	ldX, err := linalg.LogDet(linalg.Hermitize(xr))
	if err != nil {
		return 0, err
	}
	ldXh, err := linalg.LogDet(linalg.Hermitize(xh))
	if err != nil {
		return 0, err
	}

	return tr - (ldX - ldXh) - float64(m), nil
}
