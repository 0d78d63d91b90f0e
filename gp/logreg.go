package gp

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"fairgp/fairness"
	"fairgp/tensor"
)

// LogReg is the linear logistic-regression baseline: a single dense layer
// with one column per output whose logits feed a Bernoulli likelihood, with
// L2 penalties on the weights and the bias. Every output models the same
// binary label. With a debiasing tensor it trains on the reweighted
// likelihood instead, which needs a single output.
type LogReg struct {
	inputDim  int
	outputDim int
	// weights is the inputDim×outputDim kernel in row-major order.
	weights  *Param
	bias     *Param // nil without a bias
	l2Kernel float64
	l2Bias   float64
	debias   *fairness.DebiasingTensor
}

// NewLogReg builds the baseline. debias may be nil.
func NewLogReg(inputDim, outputDim int, opts Options, debias *fairness.DebiasingTensor) (*LogReg, error) {
	if inputDim <= 0 {
		return nil, fmt.Errorf("%w: logreg input dimension must be positive, got %d", ErrConfig, inputDim)
	}
	if outputDim <= 0 {
		return nil, fmt.Errorf("%w: logreg output dimension must be positive, got %d", ErrConfig, outputDim)
	}
	if debias != nil && outputDim != 1 {
		return nil, fmt.Errorf("%w: fair logistic regression has one output, got %d", ErrConfig, outputDim)
	}
	if opts.L2KernelFactor < 0 || opts.L2BiasFactor < 0 {
		return nil, fmt.Errorf("%w: L2 factors must be non-negative", ErrConfig)
	}
	dist := distuv.Normal{Mu: 0, Sigma: opts.WeightInitStdDev, Src: rand.NewSource(opts.Seed)}
	w := make([]float64, inputDim*outputDim)
	if opts.WeightInitStdDev > 0 {
		for i := range w {
			w[i] = dist.Rand()
		}
	}
	m := &LogReg{
		inputDim:  inputDim,
		outputDim: outputDim,
		weights:   NewParam("logreg_kernel", w...),
		l2Kernel:  opts.L2KernelFactor,
		l2Bias:    opts.L2BiasFactor,
		debias:    debias,
	}
	if opts.UseBias {
		m.bias = NewParam("logreg_bias", make([]float64, outputDim)...)
	}
	return m, nil
}

// Variables implements Inference.
func (m *LogReg) Variables() []*Param {
	if m.bias == nil {
		return []*Param{m.weights}
	}
	return []*Param{m.weights, m.bias}
}

// Weights returns the weights and bias (0 without a bias) of output k.
func (m *LogReg) Weights(k int) ([]float64, float64) {
	return mat.Col(nil, k, m.kernel()), m.biasValue(k)
}

func (m *LogReg) kernel() *mat.Dense {
	return mat.NewDense(m.inputDim, m.outputDim, m.weights.Value)
}

func (m *LogReg) biasValue(k int) float64 {
	if m.bias == nil {
		return 0
	}
	return m.bias.Value[k]
}

// Logits returns X·W + b, shaped (batch, output_dim).
func (m *LogReg) Logits(x mat.Matrix) (*mat.Dense, error) {
	r, c := x.Dims()
	if r == 0 {
		return nil, fmt.Errorf("%w: no inputs", ErrShape)
	}
	if c != m.inputDim {
		return nil, fmt.Errorf("%w: inputs have %d columns, model expects %d", ErrShape, c, m.inputDim)
	}
	out := mat.NewDense(r, m.outputDim, nil)
	out.Mul(x, m.kernel())
	if m.bias != nil {
		out.Apply(func(_, k int, v float64) float64 { return v + m.bias.Value[k] }, out)
	}
	return out, nil
}

func (m *LogReg) l2Loss() float64 {
	loss := m.l2Kernel * floats.Dot(m.weights.Value, m.weights.Value)
	if m.bias != nil {
		loss += m.l2Bias * floats.Dot(m.bias.Value, m.bias.Value)
	}
	return loss
}

// Inference implements Inference. With several outputs the likelihood part
// is the mean over outputs.
func (m *LogReg) Inference(b Batch, isTrain bool) (fairness.LossReport, error) {
	if err := b.check(m.inputDim); err != nil {
		return fairness.LossReport{}, err
	}
	logits, err := m.Logits(b.X)
	if err != nil {
		return fairness.LossReport{}, err
	}
	if m.debias != nil && isTrain {
		fb := fairness.LogisticBatch(mat.Col(nil, 0, logits), b.Labels, b.Groups)
		return fairness.ReweightedLoss(fb, m.debias, m.l2Loss())
	}
	regr := 0.0
	for k := 0; k < m.outputDim; k++ {
		rep, err := fairness.PlainLoss(fairness.LogisticBatch(mat.Col(nil, k, logits), b.Labels, b.Groups), 0)
		if err != nil {
			return fairness.LossReport{}, err
		}
		regr += rep.RegrLoss
	}
	regr /= float64(m.outputDim)
	reg := m.l2Loss()
	return fairness.LossReport{Loss: regr + reg, RegrLoss: regr, L2Loss: reg}, nil
}

// Gradient implements Gradienter. Kernel hyperparameters do not enter the
// logistic-regression loss, so their entries are zero.
func (m *LogReg) Gradient(b Batch, hyper []*Param, dst []float64) (fairness.LossReport, error) {
	rep, err := m.Inference(b, true)
	if err != nil {
		return rep, err
	}
	n := NumValues(m.Variables()) + NumValues(hyper)
	if len(dst) != n {
		return rep, fmt.Errorf("%w: gradient buffer has %d entries, want %d", ErrShape, len(dst), n)
	}
	for i := range dst {
		dst[i] = 0
	}
	logits, err := m.Logits(b.X)
	if err != nil {
		return rep, err
	}
	nw := m.inputDim * m.outputDim
	gw := mat.NewDense(m.inputDim, m.outputDim, dst[:nw])
	col := mat.NewVecDense(m.inputDim, nil)
	for k := 0; k < m.outputDim; k++ {
		g, err := fairness.LogitGradients(mat.Col(nil, k, logits), b.Labels, b.Groups, m.debias)
		if err != nil {
			return rep, err
		}
		floats.Scale(1/float64(m.outputDim), g)
		col.MulVec(b.X.T(), mat.NewVecDense(len(g), g))
		gw.SetCol(k, col.RawVector().Data)
		if m.bias != nil {
			dst[nw+k] = floats.Sum(g) + 2*m.l2Bias*m.bias.Value[k]
		}
	}
	floats.AddScaled(dst[:nw], 2*m.l2Kernel, m.weights.Value)
	return rep, nil
}

// Prediction implements Inference. The variance columns are zero.
func (m *LogReg) Prediction(x mat.Matrix) (mean, variance *mat.Dense, err error) {
	logits, err := m.Logits(x)
	if err != nil {
		return nil, nil, err
	}
	r, c := logits.Dims()
	mean = mat.NewDense(r, c, nil)
	mean.Apply(func(_, _ int, f float64) float64 { return tensor.Sigmoid(f) }, logits)
	return mean, mat.NewDense(r, c, nil), nil
}
