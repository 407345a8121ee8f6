// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package onestep implements a one-step maximum-likelihood estimator for
// linear regressions whose first regressor is a machine-generated binary
// proxy, fitted on unlabeled data alone. The joint mismatch rates between
// the observed and true indicator enter a Gaussian-mixture likelihood
// which is minimized over an unconstrained reparameterization of the
// coefficients, mixture weights and noise scales.
package onestep

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/validml/density"
	"github.com/curioloop/validml/ols"
)

// Params are the interpretable quantities packed into a raw parameter
// vector theta with layout [b (d) | v (3 logits) | log σ₀ (| log σ₁)]:
// regression coefficients, the four joint weights of the
// (observed, true) indicator pairs, and the noise scales.
type Params struct {
	// Coef is the regression coefficient vector.
	Coef []float64
	// W00..W11 are the mixture weights, indexed observed then true.
	// They lie on the open 4-simplex: all positive, summing to one.
	W00, W01, W10, W11 float64
	// Sigma0 and Sigma1 are the noise scales of the true-0 and true-1
	// components. Sigma1 equals Sigma0 under homoskedasticity.
	Sigma0, Sigma1 float64
}

// ParamsFromTheta decodes theta for a design with d columns. The weights
// come from a multinomial-logit link with W11 as the baseline category,
// sharing one denominator so the four sum to one exactly. The scales are
// exp-parameterized and therefore strictly positive.
func ParamsFromTheta(theta []float64, d int, homoskedastic bool) Params {
	e0, e1, e2 := math.Exp(theta[d]), math.Exp(theta[d+1]), math.Exp(theta[d+2])
	den := 1 + e0 + e1 + e2
	s0 := math.Exp(theta[d+3])
	s1 := s0
	if !homoskedastic {
		s1 = math.Exp(theta[d+4])
	}
	return Params{
		Coef:   theta[:d:d],
		W00:    e0 / den,
		W01:    e1 / den,
		W10:    e2 / den,
		W11:    1 / den,
		Sigma0: s0,
		Sigma1: s1,
	}
}

// thetaLen is the parameter count for a d-column design.
func thetaLen(d int, homoskedastic bool) int {
	if homoskedastic {
		return d + 4
	}
	return d + 5
}

// StartingValues builds an informed initial theta from the data alone.
// The coefficients are the least-squares fit on the proxy design. Each
// observation's true indicator is imputed by comparing the residual
// density under the observed indicator against the density after undoing
// a flip, and the joint (observed, imputed) frequencies, floored at 0.001
// and renormalized, seed the weight logits. The noise scales start at the
// residual spread of the two imputed groups.
//
// When an imputed group is empty its scale is undefined and the sibling
// group's value is substituted. This is an initialization heuristic only;
// it can start the search poorly under severe class imbalance.
func StartingValues(y []float64, xhat *mat.Dense, homoskedastic bool) ([]float64, error) {
	b, err := ols.Coef(y, xhat)
	if err != nil {
		return nil, err
	}
	n, d := xhat.Dims()

	mu := mat.NewVecDense(n, nil)
	mu.MulVec(xhat, mat.NewVecDense(d, b))
	u := make([]float64, n)
	floats.SubTo(u, y, mu.RawVector().Data)
	sigma := maskedStd(u, nil)

	imputed := make([]bool, n)
	for i := range imputed {
		m := mu.AtVec(i)
		if xhat.At(i, 0) == 1 {
			imputed[i] = density.Normal(y[i], m, sigma) > density.Normal(y[i], m-b[0], sigma)
		} else {
			imputed[i] = density.Normal(y[i], m+b[0], sigma) > density.Normal(y[i], m, sigma)
		}
	}

	// Joint (observed, imputed) frequencies in the order 00, 01, 10, 11.
	var w [4]float64
	for i, imp := range imputed {
		k := 0
		if xhat.At(i, 0) == 1 {
			k = 2
		}
		if imp {
			k++
		}
		w[k]++
	}
	sum := 0.0
	for k := range w {
		w[k] = math.Max(w[k]/float64(n), 0.001)
		sum += w[k]
	}
	for k := range w {
		w[k] /= sum
	}

	theta := make([]float64, 0, thetaLen(d, homoskedastic))
	theta = append(theta, b...)
	theta = append(theta, math.Log(w[0]/w[3]), math.Log(w[1]/w[3]), math.Log(w[2]/w[3]))

	sigma0 := maskedStd(u, func(i int) bool { return !imputed[i] })
	sigma1 := maskedStd(u, func(i int) bool { return imputed[i] })
	if math.IsNaN(sigma0) {
		sigma0 = sigma1
	}
	if math.IsNaN(sigma1) {
		sigma1 = sigma0
	}
	if homoskedastic {
		p := 0.0
		for _, imp := range imputed {
			if imp {
				p++
			}
		}
		p /= float64(n)
		return append(theta, math.Log(p*sigma1+(1-p)*sigma0)), nil
	}
	return append(theta, math.Log(sigma0), math.Log(sigma1)), nil
}

// maskedStd is the population standard deviation of x restricted to
// indexes accepted by keep (all of x when keep is nil). The result is NaN
// for an empty subset.
func maskedStd(x []float64, keep func(int) bool) float64 {
	var n, mean float64
	for i, v := range x {
		if keep == nil || keep(i) {
			n++
			mean += v
		}
	}
	mean /= n
	var ss float64
	for i, v := range x {
		if keep == nil || keep(i) {
			d := v - mean
			ss += d * d
		}
	}
	return math.Sqrt(ss / n)
}
