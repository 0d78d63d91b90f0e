package gp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate/quad"

	"fairgp/tensor"
)

// Likelihood links a latent function value to a binary label.
type Likelihood interface {
	// LogProb returns log p(y | f).
	LogProb(y int, f float64) float64
	// ExpectedLogProb returns E[log p(y | f)] for f ~ N(mean, variance).
	ExpectedLogProb(y int, mean, variance float64) float64
	// Predict returns P(y=1) for f ~ N(mean, variance).
	Predict(mean, variance float64) float64
	Params() []*Param
}

// Logistic is the Bernoulli likelihood with a sigmoid link. Gaussian
// expectations use Gauss–Hermite quadrature with nodes fixed at
// construction.
type Logistic struct {
	nodes   []float64
	weights []float64
}

// NewLogistic precomputes an n-point Gauss–Hermite rule.
func NewLogistic(n int) (*Logistic, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: quadrature points must be positive, got %d", ErrConfig, n)
	}
	l := &Logistic{nodes: make([]float64, n), weights: make([]float64, n)}
	quad.Hermite{}.FixedLocations(l.nodes, l.weights, math.Inf(-1), math.Inf(1))
	// ∫ g(f) N(f; m, v) df = 1/√π · Σ w_i g(m + √(2v)·x_i)
	for i := range l.weights {
		l.weights[i] /= math.SqrtPi
	}
	return l, nil
}

// Params implements Likelihood. The logistic likelihood has none.
func (l *Logistic) Params() []*Param { return nil }

// LogProb implements Likelihood.
func (l *Logistic) LogProb(y int, f float64) float64 {
	if y == 1 {
		return tensor.LogSigmoid(f)
	}
	return tensor.LogSigmoid(-f)
}

// ExpectedLogProb implements Likelihood.
func (l *Logistic) ExpectedLogProb(y int, mean, variance float64) float64 {
	return l.expect(mean, variance, func(f float64) float64 { return l.LogProb(y, f) })
}

// Predict implements Likelihood.
func (l *Logistic) Predict(mean, variance float64) float64 {
	return l.expect(mean, variance, tensor.Sigmoid)
}

func (l *Logistic) expect(mean, variance float64, g func(float64) float64) float64 {
	if variance <= 0 {
		return g(mean)
	}
	scale := math.Sqrt(2 * variance)
	sum := 0.0
	for i, x := range l.nodes {
		sum += l.weights[i] * g(mean+scale*x)
	}
	return sum
}
