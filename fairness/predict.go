package fairness

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"fairgp/tensor"
)

// PriorPolicy selects the assumed distribution of the unobserved true label
// when a debiasing tensor is applied at prediction time.
type PriorPolicy string

const (
	// PriorEmpirical uses the training base rate P(y=1 | s) of the query's group.
	PriorEmpirical PriorPolicy = "empirical"
	// PriorUniform weighs both true labels equally.
	PriorUniform PriorPolicy = "uniform"
	// PriorFixed uses Predictor.FixedPrior as P(y=1) for every group.
	PriorFixed PriorPolicy = "fixed"
)

// Predictor post-processes a trained model's probabilities with a debiasing
// tensor. It never needs the true label of the query point: the correction is
// marginalised over the configured label prior.
type Predictor struct {
	Tensor     *DebiasingTensor
	Table      *BaseRateTable
	Prior      PriorPolicy
	FixedPrior float64
}

// Adjusted is the fairness-adjusted output for one query. Positive and
// Negative need not sum to one.
type Adjusted struct {
	Positive float64
	Negative float64
	// ByLabel[y][ŷ] is the adjustment assuming the true label is y.
	ByLabel [2][2]float64
}

// Normalized rescales Positive and Negative to sum to one.
func (a Adjusted) Normalized() (pos, neg float64) {
	z := a.Positive + a.Negative
	if z == 0 {
		return math.NaN(), math.NaN()
	}
	return a.Positive / z, a.Negative / z
}

// NewPredictor validates the prior policy against the inputs it needs.
func NewPredictor(t *DebiasingTensor, table *BaseRateTable, prior PriorPolicy, fixed float64) (*Predictor, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: predictor needs a debiasing tensor", ErrConfig)
	}
	switch prior {
	case "", PriorEmpirical:
		prior = PriorEmpirical
		if table == nil || table.NumGroups() != t.NumGroups() {
			return nil, fmt.Errorf("%w: empirical prior needs a base rate table with %d groups", ErrConfig, t.NumGroups())
		}
	case PriorUniform:
	case PriorFixed:
		if math.IsNaN(fixed) || fixed < 0 || fixed > 1 {
			return nil, fmt.Errorf("%w: fixed prior must lie in [0,1], got %v", ErrConfig, fixed)
		}
	default:
		return nil, fmt.Errorf("%w: unknown label prior %q", ErrConfig, prior)
	}
	return &Predictor{Tensor: t, Table: table, Prior: prior, FixedPrior: fixed}, nil
}

// Adjust applies the correction to prob = P(ŷ=1 | x) for a query in group.
func (p *Predictor) Adjust(prob float64, group int) (Adjusted, error) {
	if math.IsNaN(prob) || prob < 0 || prob > 1 {
		return Adjusted{}, fmt.Errorf("%w: probability %v outside [0,1]", ErrShape, prob)
	}
	if err := p.Tensor.checkIndex(0, group); err != nil {
		return Adjusted{}, err
	}
	logPrior, err := p.logPrior(group)
	if err != nil {
		return Adjusted{}, err
	}
	logLik := [2]float64{math.Log1p(-prob), math.Log(prob)}

	var out Adjusted
	var marg [2]float64
	for yhat := 0; yhat < 2; yhat++ {
		terms := [2]float64{}
		for y := 0; y < 2; y++ {
			ld := p.Tensor.At(y, group, yhat)
			out.ByLabel[y][yhat] = math.Exp(ld + logLik[yhat])
			terms[y] = logPrior[y] + ld
		}
		marg[yhat] = math.Exp(tensor.LogSumExp(terms[0], terms[1]) + logLik[yhat])
	}
	out.Negative, out.Positive = marg[0], marg[1]
	return out, nil
}

// AdjustBatch applies Adjust to every entry of probs, shaped (batch,
// output_dim), using the group of each row. It returns the adjusted
// probabilities of label 1 and label 0 in the same shape.
func (p *Predictor) AdjustBatch(probs mat.Matrix, groups []int) (pos, neg *mat.Dense, err error) {
	r, c := probs.Dims()
	if len(groups) != r {
		return nil, nil, fmt.Errorf("%w: %d rows vs %d groups", ErrShape, r, len(groups))
	}
	pos = mat.NewDense(r, c, nil)
	neg = mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			a, err := p.Adjust(probs.At(i, j), groups[i])
			if err != nil {
				return nil, nil, fmt.Errorf("row %d: %w", i, err)
			}
			pos.Set(i, j, a.Positive)
			neg.Set(i, j, a.Negative)
		}
	}
	return pos, neg, nil
}

func (p *Predictor) logPrior(group int) ([2]float64, error) {
	var pi float64
	switch p.Prior {
	case PriorUniform:
		pi = 0.5
	case PriorFixed:
		pi = p.FixedPrior
	default:
		pi = p.Table.BaseRate(group)
		if math.IsNaN(pi) {
			return [2]float64{}, fmt.Errorf("%w: group %d has no training samples for the label prior", ErrConfig, group)
		}
	}
	return [2]float64{math.Log1p(-pi), math.Log(pi)}, nil
}
