// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package onestep

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/curioloop/validml/density"
)

const (
	// maxIterations caps the quasi-Newton search.
	maxIterations = 200
	// tolerance is the optimizer stopping tolerance.
	tolerance = 1e-8
)

// Estimator fits the unlabeled mixture likelihood by quasi-Newton
// minimization and derives the coefficient covariance from the Hessian
// of the objective at the optimum. The zero value runs a heteroskedastic
// fit with a Normal mixture density and default optimizer settings.
type Estimator struct {
	// Homoskedastic pools both noise scales into a single parameter.
	Homoskedastic bool
	// Dist is the mixture component density; density.Normal when nil.
	Dist density.Density
	// Method is the optimize.Method driving the search; LBFGS when nil.
	Method optimize.Method
	// Settings overrides the optimizer settings. The default caps the
	// search at 200 major iterations with 1e-8 tolerances.
	Settings *optimize.Settings
}

// Estimate runs the one-step estimator with default settings, returning
// the coefficient vector and its estimated sampling covariance. pdf may
// be nil for the Normal mixture density.
func Estimate(y []float64, xhat *mat.Dense, homoskedastic bool, pdf density.Density) ([]float64, *mat.SymDense, error) {
	e := Estimator{Homoskedastic: homoskedastic, Dist: pdf}
	return e.Fit(y, xhat)
}

// Fit estimates the model on the observed responses and proxy design.
// The search starts from StartingValues and its terminal point is taken
// as the estimate whether or not the tolerance was met within the
// iteration cap; no convergence signal is surfaced. A non-finite
// objective shows up downstream as a singular or non-finite Hessian.
func (e *Estimator) Fit(y []float64, xhat *mat.Dense) ([]float64, *mat.SymDense, error) {
	theta0, err := StartingValues(y, xhat, e.Homoskedastic)
	if err != nil {
		return nil, nil, err
	}
	_, d := xhat.Dims()

	obj := func(theta []float64) float64 {
		return NegLogLik(y, xhat, theta, e.Homoskedastic, e.Dist)
	}
	prob := optimize.Problem{
		Func: obj,
		Grad: func(grad, theta []float64) {
			fd.Gradient(grad, obj, theta, nil)
		},
	}

	settings := e.Settings
	if settings == nil {
		settings = &optimize.Settings{
			MajorIterations:   maxIterations,
			GradientThreshold: tolerance,
			Converger: &optimize.FunctionConverge{
				Absolute:   tolerance,
				Iterations: 20,
			},
		}
	}
	method := e.Method
	if method == nil {
		method = &optimize.LBFGS{}
	}

	result, err := optimize.Minimize(prob, theta0, settings, method)
	if result == nil {
		return nil, nil, err
	}
	theta := result.X

	hess := mat.NewSymDense(len(theta), nil)
	fd.Hessian(hess, obj, theta, nil)
	var hessInv mat.Dense
	if err := condOK(hessInv.Inverse(hess)); err != nil {
		return nil, nil, fmt.Errorf("onestep: singular Hessian at the optimum: %w", err)
	}

	cov := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			cov.SetSym(i, j, 0.5*(hessInv.At(i, j)+hessInv.At(j, i)))
		}
	}
	b := make([]float64, d)
	copy(b, theta[:d])
	return b, cov, nil
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
