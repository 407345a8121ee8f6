// Package density provides the probability density primitives used by the
// mixture likelihood of the one-step estimator.
package density

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

const logSqrt2Pi = 0.91893853320467274178 // log(sqrt(2*pi))

// Density evaluates a location-scale probability density at x.
// Implementations must return a non-negative value and require scale > 0.
type Density func(x, loc, scale float64) float64

// LogNormal returns the log-density of a Normal(loc, scale) distribution.
// The log-space form stays finite far into the tails.
func LogNormal(x, loc, scale float64) float64 {
	z := (x - loc) / scale
	return -logSqrt2Pi - math.Log(scale) - 0.5*z*z
}

// Normal returns the density of a Normal(loc, scale) distribution.
func Normal(x, loc, scale float64) float64 {
	return math.Exp(LogNormal(x, loc, scale))
}

// LocScale lifts a standardized density f(z) into a location-scale family:
// f((x-loc)/scale)/scale.
func LocScale(std func(z float64) float64) Density {
	return func(x, loc, scale float64) float64 {
		return std((x-loc)/scale) / scale
	}
}

// StudentsT returns a location-scale Student's t density with nu degrees
// of freedom, a heavy-tailed alternative to Normal for robust fitting.
func StudentsT(nu float64) Density {
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: nu}
	return LocScale(t.Prob)
}
