// Package optim holds first-order optimizers over flat parameter vectors.
// The trainer flattens a model's parameters, takes a step and writes the
// result back.
package optim

import (
	"errors"
	"fmt"
	"math"
)

// ErrShape marks a step whose weights and gradients differ in length, or a
// step whose length changed since the optimizer's state was created.
var ErrShape = errors.New("optim: shape error")

// Optimizer updates weights in place from their gradients.
type Optimizer interface {
	Step(weights, grads []float64) error
	Name() string
}

func checkStep(weights, grads []float64, state int) error {
	if len(weights) != len(grads) {
		return fmt.Errorf("%w: %d weights, %d gradients", ErrShape, len(weights), len(grads))
	}
	if state >= 0 && state != len(weights) {
		return fmt.Errorf("%w: optimizer state has %d entries, step has %d", ErrShape, state, len(weights))
	}
	return nil
}

func checkRate(lr float64) error {
	if !(lr > 0) || math.IsInf(lr, 1) {
		return fmt.Errorf("optim: learning rate must be positive and finite, got %v", lr)
	}
	return nil
}

// SGD is plain stochastic gradient descent.
type SGD struct{ LearningRate float64 }

// NewSGD returns an SGD optimizer.
func NewSGD(lr float64) (*SGD, error) {
	if err := checkRate(lr); err != nil {
		return nil, err
	}
	return &SGD{LearningRate: lr}, nil
}

func (o *SGD) Name() string { return "sgd" }

func (o *SGD) Step(weights, grads []float64) error {
	if err := checkStep(weights, grads, -1); err != nil {
		return err
	}
	for i := range weights {
		weights[i] -= o.LearningRate * grads[i]
	}
	return nil
}

// Adagrad scales each coordinate by the root of its accumulated squared
// gradients. The accumulator starts at InitialAccumulator.
type Adagrad struct {
	LearningRate       float64
	InitialAccumulator float64

	acc []float64
}

// NewAdagrad returns an Adagrad optimizer with the usual 0.1 initial
// accumulator.
func NewAdagrad(lr float64) (*Adagrad, error) {
	if err := checkRate(lr); err != nil {
		return nil, err
	}
	return &Adagrad{LearningRate: lr, InitialAccumulator: 0.1}, nil
}

func (o *Adagrad) Name() string { return "adagrad" }

func (o *Adagrad) Step(weights, grads []float64) error {
	if o.acc == nil {
		o.acc = make([]float64, len(weights))
		for i := range o.acc {
			o.acc[i] = o.InitialAccumulator
		}
	}
	if err := checkStep(weights, grads, len(o.acc)); err != nil {
		return err
	}
	for i, g := range grads {
		o.acc[i] += g * g
		weights[i] -= o.LearningRate * g / math.Sqrt(o.acc[i])
	}
	return nil
}

// Adam keeps bias-corrected running moments of the gradient.
type Adam struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64

	t    int
	m, v []float64
}

// NewAdam returns Adam with β1=0.9, β2=0.999, ε=1e-8.
func NewAdam(lr float64) (*Adam, error) {
	if err := checkRate(lr); err != nil {
		return nil, err
	}
	return &Adam{LearningRate: lr, Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-8}, nil
}

func (o *Adam) Name() string { return "adam" }

func (o *Adam) Step(weights, grads []float64) error {
	if o.m == nil {
		o.m = make([]float64, len(weights))
		o.v = make([]float64, len(weights))
	}
	if err := checkStep(weights, grads, len(o.m)); err != nil {
		return err
	}
	o.t++
	c1 := 1 - math.Pow(o.Beta1, float64(o.t))
	c2 := 1 - math.Pow(o.Beta2, float64(o.t))
	lr := o.LearningRate * math.Sqrt(c2) / c1
	for i, g := range grads {
		o.m[i] = o.Beta1*o.m[i] + (1-o.Beta1)*g
		o.v[i] = o.Beta2*o.v[i] + (1-o.Beta2)*g*g
		weights[i] -= lr * o.m[i] / (math.Sqrt(o.v[i]) + o.Epsilon)
	}
	return nil
}
