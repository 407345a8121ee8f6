// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ols implements the least-squares primitives for regressions on
// machine-generated proxy regressors: the plain estimator with a
// heteroskedasticity-robust covariance, and the closed-form additive and
// multiplicative corrections for proxy misclassification bias.
package ols

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Result holds an estimate together with its sampling covariance and the
// scaled cross-product matrix of the design it was computed on.
type Result struct {
	// Coef is the estimated coefficient vector, one entry per design column.
	Coef []float64
	// Cov is the estimated sampling covariance of Coef.
	Cov *mat.SymDense
	// SXX is the scaled cross-product matrix X'X/n.
	SXX *mat.SymDense
}

// Coef computes the least-squares coefficients of y on x by solving the
// normal equations (X'X/n) b = X'y/n. The solve fails when the
// cross-product matrix is singular, i.e. x is rank deficient.
func Coef(y []float64, x *mat.Dense) ([]float64, error) {
	res, err := estimate(y, x, false)
	if err != nil {
		return nil, err
	}
	return res.Coef, nil
}

// Fit computes the least-squares coefficients together with the
// heteroskedasticity-robust sandwich covariance
//
//	V = sXX⁻¹ (Σᵢ uᵢ² xᵢxᵢ') sXX⁻¹ / n²
//
// where uᵢ are the fitted residuals, and the scaled cross-product matrix
// sXX = X'X/n.
func Fit(y []float64, x *mat.Dense) (*Result, error) {
	return estimate(y, x, true)
}

func estimate(y []float64, x *mat.Dense, se bool) (*Result, error) {
	n, d := x.Dims()
	if len(y) != n {
		return nil, fmt.Errorf("ols: %d responses for %d design rows", len(y), n)
	}
	if n < d {
		return nil, fmt.Errorf("ols: need at least %d observations, have %d", d, n)
	}

	inv := 1 / float64(n)
	sxx := mat.NewSymDense(d, nil)
	for i := 0; i < n; i++ {
		sxx.SymRankOne(sxx, inv, x.RowView(i))
	}
	sxy := mat.NewVecDense(d, nil)
	sxy.MulVec(x.T(), mat.NewVecDense(n, y))
	sxy.ScaleVec(inv, sxy)

	var coef mat.VecDense
	if err := condOK(coef.SolveVec(sxx, sxy)); err != nil {
		return nil, fmt.Errorf("ols: singular cross-product matrix: %w", err)
	}
	b := make([]float64, d)
	for i := range b {
		b[i] = coef.AtVec(i)
	}
	res := &Result{Coef: b, SXX: sxx}
	if !se {
		return res, nil
	}

	omega := mat.NewSymDense(d, nil)
	for i := 0; i < n; i++ {
		row := x.RowView(i)
		u := y[i] - mat.Dot(row, &coef)
		omega.SymRankOne(omega, u*u, row)
	}
	var sxxInv mat.Dense
	if err := condOK(sxxInv.Inverse(sxx)); err != nil {
		return nil, fmt.Errorf("ols: singular cross-product matrix: %w", err)
	}
	var t, v mat.Dense
	t.Mul(&sxxInv, omega)
	v.Mul(&t, &sxxInv)
	v.Scale(1/(float64(n)*float64(n)), &v)
	res.Cov = symmetrize(&v)
	return res, nil
}

// condOK discards the condition-number warnings mat attaches to solves of
// ill-conditioned but still invertible systems. An infinite condition
// number means the matrix is singular to working precision and remains an
// error.
func condOK(err error) error {
	var cond mat.Condition
	if errors.As(err, &cond) && !math.IsInf(float64(cond), 1) {
		return nil
	}
	return err
}

// symmetrize folds a dense product that is symmetric up to rounding into
// symmetric storage.
func symmetrize(a *mat.Dense) *mat.SymDense {
	d, _ := a.Dims()
	s := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			s.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}
	return s
}
