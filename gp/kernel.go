package gp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Kernel is a covariance function over input rows.
type Kernel interface {
	// Cov returns the cross-covariance K(a, b), shaped rows(a)×rows(b).
	Cov(a, b mat.Matrix) *mat.Dense
	// Diag returns K(x_i, x_i) for every row of a.
	Diag(a mat.Matrix) []float64
	Params() []*Param
}

// RBF is the squared exponential kernel sf²·exp(-½·Σ((a_d-b_d)/l_d)²).
// Lengthscales and signal scale are stored as logs so that any optimizer step
// keeps them positive.
type RBF struct {
	inputDim       int
	logLengthscale *Param
	logSF          *Param
}

// NewRBF builds an RBF kernel with one lengthscale per input dimension when
// ard is set and a shared one otherwise.
func NewRBF(inputDim int, lengthscale float64, ard bool) (*RBF, error) {
	if inputDim <= 0 {
		return nil, fmt.Errorf("%w: rbf input dimension must be positive, got %d", ErrConfig, inputDim)
	}
	if !(lengthscale > 0) {
		return nil, fmt.Errorf("%w: rbf lengthscale must be positive, got %v", ErrConfig, lengthscale)
	}
	n := 1
	if ard {
		n = inputDim
	}
	ls := make([]float64, n)
	for i := range ls {
		ls[i] = math.Log(lengthscale)
	}
	return &RBF{
		inputDim:       inputDim,
		logLengthscale: NewParam("rbf_log_lengthscale", ls...),
		logSF:          NewParam("rbf_log_sf", 0),
	}, nil
}

// Params implements Kernel.
func (k *RBF) Params() []*Param { return []*Param{k.logLengthscale, k.logSF} }

func (k *RBF) lengthscale(d int) float64 {
	if len(k.logLengthscale.Value) == 1 {
		return math.Exp(k.logLengthscale.Value[0])
	}
	return math.Exp(k.logLengthscale.Value[d])
}

// Cov implements Kernel.
func (k *RBF) Cov(a, b mat.Matrix) *mat.Dense {
	ra, _ := a.Dims()
	rb, _ := b.Dims()
	sf2 := math.Exp(2 * k.logSF.Value[0])
	inv := make([]float64, k.inputDim)
	for d := range inv {
		inv[d] = 1 / k.lengthscale(d)
	}
	ai := make([]float64, k.inputDim)
	bj := make([]float64, k.inputDim)
	out := mat.NewDense(ra, rb, nil)
	for i := 0; i < ra; i++ {
		mat.Row(ai, i, a)
		floats.Mul(ai, inv)
		for j := 0; j < rb; j++ {
			mat.Row(bj, j, b)
			floats.Mul(bj, inv)
			d := floats.Distance(ai, bj, 2)
			out.Set(i, j, sf2*math.Exp(-0.5*d*d))
		}
	}
	return out
}

// Diag implements Kernel.
func (k *RBF) Diag(a mat.Matrix) []float64 {
	r, _ := a.Dims()
	out := make([]float64, r)
	floats.AddConst(math.Exp(2*k.logSF.Value[0]), out)
	return out
}

// Linear is the dot-product kernel σ²·aᵀb + offset².
type Linear struct {
	logVariance *Param
	logOffset   *Param
}

// NewLinear builds a linear kernel with unit variance and a small offset.
func NewLinear(inputDim int) (*Linear, error) {
	if inputDim <= 0 {
		return nil, fmt.Errorf("%w: linear input dimension must be positive, got %d", ErrConfig, inputDim)
	}
	return &Linear{
		logVariance: NewParam("linear_log_variance", 0),
		logOffset:   NewParam("linear_log_offset", math.Log(0.1)),
	}, nil
}

// Params implements Kernel.
func (k *Linear) Params() []*Param { return []*Param{k.logVariance, k.logOffset} }

// Cov implements Kernel.
func (k *Linear) Cov(a, b mat.Matrix) *mat.Dense {
	ra, _ := a.Dims()
	rb, _ := b.Dims()
	out := mat.NewDense(ra, rb, nil)
	out.Mul(a, b.T())
	v := math.Exp(k.logVariance.Value[0])
	c := math.Exp(2 * k.logOffset.Value[0])
	out.Apply(func(_, _ int, x float64) float64 { return v*x + c }, out)
	return out
}

// Diag implements Kernel.
func (k *Linear) Diag(a mat.Matrix) []float64 {
	r, c := a.Dims()
	v := math.Exp(k.logVariance.Value[0])
	off := math.Exp(2 * k.logOffset.Value[0])
	row := make([]float64, c)
	out := make([]float64, r)
	for i := range out {
		mat.Row(row, i, a)
		out[i] = v*floats.Dot(row, row) + off
	}
	return out
}
