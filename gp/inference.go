package gp

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"fairgp/fairness"
)

// Batch is a mini-batch at the model boundary: inputs shaped
// (batch, input_dim) plus labels and groups shaped (batch,).
type Batch struct {
	X      *mat.Dense
	Labels []int
	Groups []int
}

// Len returns the number of examples.
func (b Batch) Len() int { return len(b.Labels) }

func (b Batch) check(inputDim int) error {
	if b.X == nil {
		return fmt.Errorf("%w: batch has no inputs", ErrShape)
	}
	r, c := b.X.Dims()
	if r == 0 {
		return fmt.Errorf("%w: empty batch", ErrShape)
	}
	if c != inputDim {
		return fmt.Errorf("%w: inputs have %d columns, model expects %d", ErrShape, c, inputDim)
	}
	if r != len(b.Labels) || r != len(b.Groups) {
		return fmt.Errorf("%w: %d inputs, %d labels, %d groups", ErrShape, r, len(b.Labels), len(b.Groups))
	}
	return nil
}

// Inference is a strategy that turns a batch into a loss and inputs into
// predictions.
type Inference interface {
	// Inference returns the loss of a batch. Fair strategies apply their
	// debiasing tensor only when isTrain is set.
	Inference(b Batch, isTrain bool) (fairness.LossReport, error)
	// Prediction returns P(y=1) and the latent variance, each shaped
	// (batch, 1).
	Prediction(x mat.Matrix) (mean, variance *mat.Dense, err error)
	// Variables are the strategy's own trainable values (weights,
	// variational parameters), excluding kernel and likelihood
	// hyperparameters.
	Variables() []*Param
}

// Gradienter is implemented by strategies with an analytic gradient. The
// gradient covers Variables() followed by the hyperparameters in the order
// given.
type Gradienter interface {
	Gradient(b Batch, hyper []*Param, dst []float64) (fairness.LossReport, error)
}

// Shape describes the data a model is assembled for.
type Shape struct {
	InputDim  int
	OutputDim int
	NumTrain  int
	// Inducing holds the inducing inputs, shaped (num_inducing, input_dim).
	Inducing *mat.Dense
}

// debiasFor returns the debiasing tensor a fair strategy trains with.
// want is the criterion name the strategy was registered for.
func debiasFor(opts Options, want string) (*fairness.DebiasingTensor, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("%w: inference needs a %s fairness source", ErrConfig, want)
	}
	if opts.Source.Name() != want {
		return nil, fmt.Errorf("%w: inference expects %s, got %s", ErrConfig, want, opts.Source.Name())
	}
	if opts.Debias == nil {
		return nil, fmt.Errorf("%w: fairness source %s has no debiasing tensor", ErrConfig, opts.Source.Name())
	}
	return opts.Debias, nil
}
