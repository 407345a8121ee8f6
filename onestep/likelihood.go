// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package onestep

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/validml/density"
)

// NegLogLik is the negative log-likelihood of the observed
// (response, proxy indicator) pairs under the mixture implied by theta.
// Conditional on its observed indicator, each observation mixes the
// density of a correctly labeled point with that of a flipped one:
//
//	indicator 1: w11·pdf(y; μ, σ₁)    + w10·pdf(y; μ-b₀, σ₀)
//	indicator 0: w01·pdf(y; μ+b₀, σ₁) + w00·pdf(y; μ, σ₀)
//
// where μ is the fitted mean Xhat·b. The two weighted densities of a
// branch are summed before the log is taken. pdf defaults to
// density.Normal when nil.
func NegLogLik(y []float64, xhat *mat.Dense, theta []float64, homoskedastic bool, pdf density.Density) float64 {
	if pdf == nil {
		pdf = density.Normal
	}
	n, d := xhat.Dims()
	p := ParamsFromTheta(theta, d, homoskedastic)
	b0 := p.Coef[0]

	mu := mat.NewVecDense(n, nil)
	mu.MulVec(xhat, mat.NewVecDense(d, p.Coef))

	var ll float64
	for i := 0; i < n; i++ {
		m := mu.AtVec(i)
		var f float64
		if xhat.At(i, 0) == 1 {
			f = p.W11*pdf(y[i], m, p.Sigma1) + p.W10*pdf(y[i], m-b0, p.Sigma0)
		} else {
			f = p.W01*pdf(y[i], m+b0, p.Sigma1) + p.W00*pdf(y[i], m, p.Sigma0)
		}
		ll += math.Log(f)
	}
	return -ll
}
