package gp

import (
	"fmt"
	"sort"

	"fairgp/fairness"
	"fairgp/optim"
)

// KernelFactory builds one kernel for inputs of the given dimension.
type KernelFactory func(inputDim int, opts Options) (Kernel, error)

// LikelihoodFactory builds the likelihood.
type LikelihoodFactory func(opts Options) (Likelihood, error)

// InferenceFactory builds a strategy from the assembled kernels and
// likelihood.
type InferenceFactory func(kernels []Kernel, lik Likelihood, shape Shape, opts Options) (Inference, error)

// OptimizerFactory builds an optimizer.
type OptimizerFactory func(opts Options) (optim.Optimizer, error)

// Registry maps configuration names to constructors.
type Registry struct {
	kernels     map[string]KernelFactory
	likelihoods map[string]LikelihoodFactory
	inferences  map[string]InferenceFactory
	optimizers  map[string]OptimizerFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		kernels:     map[string]KernelFactory{},
		likelihoods: map[string]LikelihoodFactory{},
		inferences:  map[string]InferenceFactory{},
		optimizers:  map[string]OptimizerFactory{},
	}
}

func (r *Registry) RegisterKernel(name string, f KernelFactory)         { r.kernels[name] = f }
func (r *Registry) RegisterLikelihood(name string, f LikelihoodFactory) { r.likelihoods[name] = f }
func (r *Registry) RegisterInference(name string, f InferenceFactory)   { r.inferences[name] = f }
func (r *Registry) RegisterOptimizer(name string, f OptimizerFactory)   { r.optimizers[name] = f }

// Names lists the registered names of every kind, sorted.
func (r *Registry) Names() (kernels, likelihoods, inferences, optimizers []string) {
	return sortedKeys(r.kernels), sortedKeys(r.likelihoods), sortedKeys(r.inferences), sortedKeys(r.optimizers)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func lookup[V any](m map[string]V, kind, name string) (V, error) {
	f, ok := m[name]
	if !ok {
		var zero V
		return zero, fmt.Errorf("%w: %s %q (known: %v)", ErrUnknownName, kind, name, sortedKeys(m))
	}
	return f, nil
}

// DefaultRegistry registers every built-in component.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.RegisterKernel("rbf", func(inputDim int, opts Options) (Kernel, error) {
		return NewRBF(inputDim, opts.Lengthscale, opts.IsARD)
	})
	r.RegisterKernel("linear", func(inputDim int, _ Options) (Kernel, error) {
		return NewLinear(inputDim)
	})

	r.RegisterLikelihood("logistic", func(opts Options) (Likelihood, error) {
		return NewLogistic(opts.QuadPoints)
	})

	r.RegisterInference("logreg", logRegFactory(""))
	r.RegisterInference("fair_logreg", logRegFactory("demographic_parity"))
	r.RegisterInference("eqodds_logreg", logRegFactory("equalized_odds"))
	r.RegisterInference("variational", variationalFactory(""))
	r.RegisterInference("fair_variational", variationalFactory("demographic_parity"))
	r.RegisterInference("eqodds_variational", variationalFactory("equalized_odds"))

	r.RegisterOptimizer("sgd", func(opts Options) (optim.Optimizer, error) { return optim.NewSGD(opts.LearningRate) })
	r.RegisterOptimizer("adagrad", func(opts Options) (optim.Optimizer, error) { return optim.NewAdagrad(opts.LearningRate) })
	r.RegisterOptimizer("adam", func(opts Options) (optim.Optimizer, error) { return optim.NewAdam(opts.LearningRate) })
	return r
}

// criterion is empty for the baseline strategies.
func logRegFactory(criterion string) InferenceFactory {
	return func(_ []Kernel, _ Likelihood, shape Shape, opts Options) (Inference, error) {
		d, err := resolveDebias(opts, criterion)
		if err != nil {
			return nil, err
		}
		return NewLogReg(shape.InputDim, shape.OutputDim, opts, d)
	}
}

func variationalFactory(criterion string) InferenceFactory {
	return func(kernels []Kernel, lik Likelihood, shape Shape, opts Options) (Inference, error) {
		if len(kernels) != 1 {
			return nil, fmt.Errorf("%w: variational inference supports one output, got %d kernels", ErrConfig, len(kernels))
		}
		if shape.Inducing != nil {
			if _, c := shape.Inducing.Dims(); c != shape.InputDim {
				return nil, fmt.Errorf("%w: inducing inputs have %d columns, input dimension is %d", ErrShape, c, shape.InputDim)
			}
		}
		d, err := resolveDebias(opts, criterion)
		if err != nil {
			return nil, err
		}
		return NewVariational(kernels[0], lik, shape.Inducing, shape.NumTrain, opts, d)
	}
}

func resolveDebias(opts Options, criterion string) (*fairness.DebiasingTensor, error) {
	if criterion == "" {
		return nil, nil
	}
	return debiasFor(opts, criterion)
}
