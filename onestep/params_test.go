// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package onestep

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/curioloop/validml/ols"
)

// makeProxyData simulates y = beta0*x + beta1 + noise where the binary
// regressor x (column 0, intercept in column 1) is observed through a
// proxy flipped on both sides with probability flip.
func makeProxyData(n int, beta [2]float64, flip, noiseSD float64, seed uint64) (y []float64, xhat *mat.Dense) {
	src := rand.NewSource(seed)
	uni := distuv.Uniform{Min: 0, Max: 1, Src: src}
	noise := distuv.Normal{Mu: 0, Sigma: noiseSD, Src: src}
	y = make([]float64, n)
	xhat = mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		ind := 0.0
		if uni.Rand() < 0.5 {
			ind = 1
		}
		obs := ind
		if uni.Rand() < flip {
			obs = 1 - obs
		}
		xhat.Set(i, 0, obs)
		xhat.Set(i, 1, 1)
		y[i] = beta[0]*ind + beta[1] + noise.Rand()
	}
	return y, xhat
}

func TestWeightsOnSimplex(t *testing.T) {
	tests := []struct {
		name          string
		theta         []float64
		homoskedastic bool
	}{
		{"centered", []float64{1, -2, 0, 0, 0, math.Log(0.5), math.Log(1.5)}, false},
		{"homoskedastic", []float64{1, -2, 0.3, -0.7, 2.1, 0}, true},
		{"extreme logits", []float64{0, 0, 30, -30, 12, 1, 1}, false},
		{"tiny logits", []float64{5, 5, -40, -40, -40, -3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ParamsFromTheta(tt.theta, 2, tt.homoskedastic)
			ws := []float64{p.W00, p.W01, p.W10, p.W11}
			sum := 0.0
			for _, w := range ws {
				assert.Greater(t, w, 0.0)
				sum += w
			}
			assert.InDelta(t, 1.0, sum, 1e-12)
			assert.Greater(t, p.Sigma0, 0.0)
			assert.Greater(t, p.Sigma1, 0.0)
			if tt.homoskedastic {
				assert.Equal(t, p.Sigma0, p.Sigma1)
			}
			assert.Equal(t, tt.theta[:2], p.Coef)
		})
	}
}

func TestParamsScaleDecoding(t *testing.T) {
	theta := []float64{0.5, -0.5, 0, 0, 0, math.Log(0.7), math.Log(1.3)}
	p := ParamsFromTheta(theta, 2, false)
	assert.InDelta(t, 0.7, p.Sigma0, 1e-15)
	assert.InDelta(t, 1.3, p.Sigma1, 1e-15)
}

func TestStartingValuesMatchOLS(t *testing.T) {
	y, xhat := makeProxyData(400, [2]float64{2.0, -1.0}, 0.1, 0.5, 11)
	b, err := ols.Coef(y, xhat)
	require.NoError(t, err)

	for _, homo := range []bool{true, false} {
		theta, err := StartingValues(y, xhat, homo)
		require.NoError(t, err)
		assert.Equal(t, b, theta[:2], "coefficients seed the search unchanged")
		assert.Len(t, theta, thetaLen(2, homo))

		p := ParamsFromTheta(theta, 2, homo)
		assert.Greater(t, p.Sigma0, 0.0)
		assert.Greater(t, p.Sigma1, 0.0)
		// On well-separated groups the imputation tracks the observed
		// indicator, so the diagonal weights dominate.
		assert.Greater(t, p.W00, p.W01)
		assert.Greater(t, p.W11, p.W10)
	}
}

func TestStartingValuesScalesNearResidualSpread(t *testing.T) {
	y, xhat := makeProxyData(600, [2]float64{2.0, -1.0}, 0.05, 0.5, 12)
	theta, err := StartingValues(y, xhat, true)
	require.NoError(t, err)
	p := ParamsFromTheta(theta, 2, true)
	// The pooled starting scale sits near the true noise level: the fit
	// residuals mix in some misclassification spread on top of sd=0.5.
	assert.Greater(t, p.Sigma0, 0.3)
	assert.Less(t, p.Sigma0, 1.2)
}

func TestStartingValuesDegenerateGroup(t *testing.T) {
	// A constant-one design far from zero imputes every observation into
	// the same group; the empty group's scale falls back to its sibling.
	y := []float64{1.9, 2.0, 2.1, 2.05, 1.95, 2.02}
	xhat := mat.NewDense(len(y), 1, []float64{1, 1, 1, 1, 1, 1})

	theta, err := StartingValues(y, xhat, false)
	require.NoError(t, err)
	p := ParamsFromTheta(theta, 1, false)
	assert.Equal(t, p.Sigma0, p.Sigma1)
	assert.False(t, math.IsNaN(p.Sigma0))
	assert.Greater(t, p.Sigma0, 0.0)
}

func TestStartingValuesShapeMismatch(t *testing.T) {
	xhat := mat.NewDense(4, 2, []float64{1, 1, 0, 1, 1, 1, 0, 1})
	_, err := StartingValues([]float64{1, 2}, xhat, false)
	require.Error(t, err)
}
