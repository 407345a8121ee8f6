// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ols

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// BCA is the additively bias-corrected estimator for a design whose first
// column is a binary proxy misclassified with false-positive probability
// fpr. The correction is the first-order transfer
//
//	b = b₀ + fpr·Γb₀,  Γ = sXX⁻¹A,  A[0,0] = 1 and zero elsewhere,
//
// with covariance
//
//	V = (I+fpr·Γ) V₀ (I+fpr·Γ)' + fpr(1-fpr)·Γ(V₀+bb')Γ'/m.
//
// m is the size of the labeled auxiliary sample fpr was estimated from;
// pass math.Inf(1) for an exactly known rate, which removes the
// finite-sample inflation term.
func BCA(y []float64, xhat *mat.Dense, fpr, m float64) (*Result, error) {
	base, gamma, err := correctionInputs(y, xhat, fpr, m)
	if err != nil {
		return nil, err
	}
	d := len(base.Coef)
	b0 := mat.NewVecDense(d, base.Coef)

	gb := mat.NewVecDense(d, nil)
	gb.MulVec(gamma, b0)
	bc := mat.NewVecDense(d, nil)
	bc.AddScaledVec(b0, fpr, gb)

	var t mat.Dense
	t.Scale(fpr, gamma)
	addIdentity(&t)
	v := sandwich(&t, base.Cov)
	v.Add(v, inflation(gamma, base.Cov, bc, fpr, m))

	return &Result{Coef: vecSlice(bc), Cov: symmetrize(v), SXX: base.SXX}, nil
}

// BCM is the multiplicatively bias-corrected estimator, the exact
// geometric-series counterpart of BCA:
//
//	b = (I-fpr·Γ)⁻¹ b₀,
//	V = (I-fpr·Γ)⁻¹ V₀ (I-fpr·Γ)⁻ᵀ + fpr(1-fpr)·Γ(V₀+bb')Γ'/m.
//
// A singular I-fpr·Γ (spectral radius of fpr·Γ at or above one) is
// returned as an error; no regularization is applied.
func BCM(y []float64, xhat *mat.Dense, fpr, m float64) (*Result, error) {
	base, gamma, err := correctionInputs(y, xhat, fpr, m)
	if err != nil {
		return nil, err
	}
	d := len(base.Coef)
	b0 := mat.NewVecDense(d, base.Coef)

	var t mat.Dense
	t.Scale(-fpr, gamma)
	addIdentity(&t)
	var tInv mat.Dense
	if err := condOK(tInv.Inverse(&t)); err != nil {
		return nil, fmt.Errorf("ols: singular correction matrix I-fpr*Gamma: %w", err)
	}
	bc := mat.NewVecDense(d, nil)
	bc.MulVec(&tInv, b0)

	v := sandwich(&tInv, base.Cov)
	v.Add(v, inflation(gamma, base.Cov, bc, fpr, m))

	return &Result{Coef: vecSlice(bc), Cov: symmetrize(v), SXX: base.SXX}, nil
}

// correctionInputs runs the uncorrected fit and builds the bias-transfer
// matrix Γ = sXX⁻¹A shared by both corrections.
func correctionInputs(y []float64, xhat *mat.Dense, fpr, m float64) (*Result, *mat.Dense, error) {
	if fpr < 0 || fpr >= 1 || math.IsNaN(fpr) {
		return nil, nil, fmt.Errorf("ols: false-positive rate %v outside [0,1)", fpr)
	}
	if !(m > 0) {
		return nil, nil, fmt.Errorf("ols: auxiliary sample size %v must be positive", m)
	}
	base, err := Fit(y, xhat)
	if err != nil {
		return nil, nil, err
	}
	d := len(base.Coef)
	a := mat.NewDense(d, d, nil)
	a.Set(0, 0, 1)
	var gamma mat.Dense
	if err := condOK(gamma.Solve(base.SXX, a)); err != nil {
		return nil, nil, fmt.Errorf("ols: singular cross-product matrix: %w", err)
	}
	return base, &gamma, nil
}

// sandwich computes T V T'.
func sandwich(t mat.Matrix, v mat.Symmetric) *mat.Dense {
	var tv, out mat.Dense
	tv.Mul(t, v)
	out.Mul(&tv, t.T())
	return &out
}

// inflation is the finite-sample variance term fpr(1-fpr)·Γ(V+bb')Γ'/m
// capturing the sampling noise of a rate estimated from m labeled
// observations. It vanishes as m grows.
func inflation(gamma *mat.Dense, v mat.Symmetric, b mat.Vector, fpr, m float64) *mat.Dense {
	var mid mat.Dense
	mid.Outer(1, b, b)
	mid.Add(&mid, v)
	var gm, out mat.Dense
	gm.Mul(gamma, &mid)
	out.Mul(&gm, gamma.T())
	out.Scale(fpr*(1-fpr)/m, &out)
	return &out
}

func addIdentity(a *mat.Dense) {
	n, _ := a.Dims()
	for i := 0; i < n; i++ {
		a.Set(i, i, a.At(i, i)+1)
	}
}

func vecSlice(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}
