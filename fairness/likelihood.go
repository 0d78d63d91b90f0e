package fairness

import (
	"fmt"
	"math"

	"fairgp/tensor"
)

// Batch is the per-example boundary between a model and the loss: the raw
// log-likelihoods of label 0 and label 1 under the current parameters, the
// observed label and the sensitive group.
type Batch struct {
	LogLik0 []float64
	LogLik1 []float64
	Labels  []int
	Groups  []int
}

// Len returns the number of examples.
func (b Batch) Len() int { return len(b.Labels) }

func (b Batch) check() error {
	n := len(b.Labels)
	if n == 0 {
		return fmt.Errorf("%w: empty batch", ErrShape)
	}
	if len(b.LogLik0) != n || len(b.LogLik1) != n || len(b.Groups) != n {
		return fmt.Errorf("%w: batch lengths loglik0=%d loglik1=%d labels=%d groups=%d",
			ErrShape, len(b.LogLik0), len(b.LogLik1), n, len(b.Groups))
	}
	return nil
}

// LossReport splits the training loss into its likelihood and regularisation
// parts. Loss = RegrLoss + L2Loss.
type LossReport struct {
	Loss     float64
	RegrLoss float64
	L2Loss   float64
}

// ReweightedLoss returns the negative mean debiased log-likelihood of the
// batch plus reg.
//
// For each example the two raw log-likelihoods are shifted by the log label
// channel the tensor row (y, s) implies and reduced with a max-shifted
// log-sum-exp. With an all-zero tensor the channel is the identity and the
// result equals PlainLoss bit for bit.
func ReweightedLoss(b Batch, d *DebiasingTensor, reg float64) (LossReport, error) {
	if err := b.check(); err != nil {
		return LossReport{}, err
	}
	sum := 0.0
	for i := range b.Labels {
		y, s := b.Labels[i], b.Groups[i]
		if err := d.checkIndex(y, s); err != nil {
			return LossReport{}, fmt.Errorf("example %d: %w", i, err)
		}
		w0, w1 := logChannel(y, d.At(y, s, 0), d.At(y, s, 1))
		sum += tensor.LogSumExp(w0+b.LogLik0[i], w1+b.LogLik1[i])
	}
	regr := -sum / float64(len(b.Labels))
	return LossReport{Loss: regr + reg, RegrLoss: regr, L2Loss: reg}, nil
}

// PlainLoss is the baseline negative mean log-likelihood of the observed
// labels plus reg.
func PlainLoss(b Batch, reg float64) (LossReport, error) {
	if err := b.check(); err != nil {
		return LossReport{}, err
	}
	sum := 0.0
	for i, y := range b.Labels {
		switch y {
		case 0:
			sum += b.LogLik0[i]
		case 1:
			sum += b.LogLik1[i]
		default:
			return LossReport{}, fmt.Errorf("%w: example %d has label %d", ErrShape, i, y)
		}
	}
	regr := -sum / float64(len(b.Labels))
	return LossReport{Loss: regr + reg, RegrLoss: regr, L2Loss: reg}, nil
}

// LogisticBatch builds a Batch from logits of a Bernoulli-logistic model.
func LogisticBatch(logits []float64, labels, groups []int) Batch {
	b := Batch{
		LogLik0: make([]float64, len(logits)),
		LogLik1: make([]float64, len(logits)),
		Labels:  labels,
		Groups:  groups,
	}
	for i, f := range logits {
		b.LogLik1[i] = tensor.LogSigmoid(f)
		b.LogLik0[i] = tensor.LogSigmoid(-f)
	}
	return b
}

// LogitGradients returns the derivative of the likelihood part of the loss
// with respect to each logit of a logistic model. A nil tensor gives the
// gradient of PlainLoss.
func LogitGradients(logits []float64, labels, groups []int, d *DebiasingTensor) ([]float64, error) {
	b := LogisticBatch(logits, labels, groups)
	if err := b.check(); err != nil {
		return nil, err
	}
	n := float64(len(logits))
	grads := make([]float64, len(logits))
	for i, f := range logits {
		y := labels[i]
		if d == nil {
			// d/df log σ(f) = σ(-f), d/df log σ(-f) = -σ(f)
			if y == 1 {
				grads[i] = -tensor.Sigmoid(-f) / n
			} else {
				grads[i] = tensor.Sigmoid(f) / n
			}
			continue
		}
		if err := d.checkIndex(y, groups[i]); err != nil {
			return nil, fmt.Errorf("example %d: %w", i, err)
		}
		w0, w1 := logChannel(y, d.At(y, groups[i], 0), d.At(y, groups[i], 1))
		w0 += b.LogLik0[i]
		w1 += b.LogLik1[i]
		c := tensor.LogSumExp(w0, w1)
		a0, a1 := math.Exp(w0-c), math.Exp(w1-c)
		grads[i] = -(a1*tensor.Sigmoid(-f) - a0*tensor.Sigmoid(f)) / n
	}
	return grads, nil
}

// logChannel converts the correction row (c0, c1) = (log_debias[y,s,0],
// log_debias[y,s,1]) into log P(observed y | latent ŷ) for ŷ = 0 and 1.
//
// A latent class with a positive correction is over-represented in the
// target relative to the data: it keeps the observed label with probability
// exp(-c) and was observed as the other label otherwise. A class without a
// positive correction passes through unchanged.
func logChannel(y int, c0, c1 float64) (w0, w1 float64) {
	return channelEntry(y, 0, c0), channelEntry(y, 1, c1)
}

func channelEntry(y, latent int, c float64) float64 {
	keep, flip := 0.0, math.Inf(-1)
	if c > 0 {
		keep, flip = -c, tensor.Log1mExp(c)
	}
	if y == latent {
		return keep
	}
	return flip
}
