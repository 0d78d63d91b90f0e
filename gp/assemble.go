package gp

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"fairgp/fairness"
	"fairgp/optim"
)

// Model is an assembled classifier: one kernel per output, one likelihood
// and one inference strategy. Its structure is fixed after Assemble; the
// optimizer mutates parameter values only.
type Model struct {
	Kernels    []Kernel
	Likelihood Likelihood
	Strategy   Inference
	Name       string

	hyper []*Param
}

// Assemble resolves the names in opts against reg and builds a model for
// data of the given shape. The returned hyperparameters are the likelihood's
// followed by each kernel's, in kernel order.
func Assemble(reg *Registry, opts Options, shape Shape) (*Model, []*Param, optim.Optimizer, error) {
	if shape.OutputDim <= 0 {
		return nil, nil, nil, fmt.Errorf("%w: output dimension must be positive, got %d", ErrConfig, shape.OutputDim)
	}
	if shape.InputDim <= 0 {
		return nil, nil, nil, fmt.Errorf("%w: input dimension must be positive, got %d", ErrConfig, shape.InputDim)
	}
	kf, err := lookup(reg.kernels, "kernel", opts.Kernel)
	if err != nil {
		return nil, nil, nil, err
	}
	lf, err := lookup(reg.likelihoods, "likelihood", opts.Likelihood)
	if err != nil {
		return nil, nil, nil, err
	}
	inf, err := lookup(reg.inferences, "inference", opts.Inference)
	if err != nil {
		return nil, nil, nil, err
	}
	of, err := lookup(reg.optimizers, "optimizer", opts.Optimizer)
	if err != nil {
		return nil, nil, nil, err
	}

	kernels := make([]Kernel, shape.OutputDim)
	for i := range kernels {
		if kernels[i], err = kf(shape.InputDim, opts); err != nil {
			return nil, nil, nil, fmt.Errorf("kernel %d: %w", i, err)
		}
	}
	lik, err := lf(opts)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("likelihood: %w", err)
	}
	strategy, err := inf(kernels, lik, shape, opts)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("inference %s: %w", opts.Inference, err)
	}
	opt, err := of(opts)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("optimizer %s: %w", opts.Optimizer, err)
	}

	hyper := append([]*Param(nil), lik.Params()...)
	for _, k := range kernels {
		hyper = append(hyper, k.Params()...)
	}
	m := &Model{
		Kernels:    kernels,
		Likelihood: lik,
		Strategy:   strategy,
		Name:       opts.Inference,
		hyper:      hyper,
	}
	return m, hyper, opt, nil
}

// OutputDim returns the number of outputs, one per kernel.
func (m *Model) OutputDim() int { return len(m.Kernels) }

// Inference returns the loss of a batch.
func (m *Model) Inference(b Batch, isTrain bool) (fairness.LossReport, error) {
	return m.Strategy.Inference(b, isTrain)
}

// Prediction returns P(y=1) and the latent variance for every input row,
// one column per output.
func (m *Model) Prediction(x mat.Matrix) (mean, variance *mat.Dense, err error) {
	return m.Strategy.Prediction(x)
}

// Hyperparameters returns the likelihood and kernel parameters.
func (m *Model) Hyperparameters() []*Param { return m.hyper }

// Parameters returns everything the optimizer updates: the strategy's
// variables followed by the hyperparameters.
func (m *Model) Parameters() []*Param {
	return append(append([]*Param(nil), m.Strategy.Variables()...), m.hyper...)
}

// Gradienter returns the strategy's analytic gradient when it has one.
func (m *Model) Gradienter() (Gradienter, bool) {
	g, ok := m.Strategy.(Gradienter)
	return g, ok
}
