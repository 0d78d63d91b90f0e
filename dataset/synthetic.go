package dataset

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"fairgp/tensor"
)

// Synthetic describes a two-group dataset whose groups differ in their
// positive rate. Inputs are Gaussian with a group-dependent shift along
// the first axis, and labels follow a logistic model of the inputs.
type Synthetic struct {
	NumTrain int
	NumTest  int
	InputDim int
	// GroupShift moves group 1's inputs along the first axis.
	GroupShift float64
	// Group1Prob is P(s=1).
	Group1Prob float64
	Seed       uint64
}

// DefaultSynthetic is a small biased problem with a visible parity gap.
func DefaultSynthetic() Synthetic {
	return Synthetic{NumTrain: 400, NumTest: 200, InputDim: 2, GroupShift: 1.5, Group1Prob: 0.5, Seed: 1}
}

// Generate draws a dataset.
func (c Synthetic) Generate() (*Dataset, error) {
	if c.NumTrain <= 0 || c.NumTest <= 0 {
		return nil, fmt.Errorf("%w: synthetic sizes must be positive (train %d, test %d)", ErrFormat, c.NumTrain, c.NumTest)
	}
	if c.InputDim <= 0 {
		return nil, fmt.Errorf("%w: synthetic input dimension must be positive, got %d", ErrFormat, c.InputDim)
	}
	if c.Group1Prob <= 0 || c.Group1Prob >= 1 {
		return nil, fmt.Errorf("%w: group probability must lie in (0, 1), got %v", ErrFormat, c.Group1Prob)
	}
	src := rand.NewSource(c.Seed)
	noise := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	group := distuv.Bernoulli{P: c.Group1Prob, Src: src}
	weights := make([]float64, c.InputDim)
	for i := range weights {
		weights[i] = 1 / float64(i+1)
	}
	draw := func(n int) Split {
		x := mat.NewDense(n, c.InputDim, nil)
		labels := make([]int, n)
		groups := make([]int, n)
		row := make([]float64, c.InputDim)
		for i := 0; i < n; i++ {
			s := int(group.Rand())
			for j := range row {
				row[j] = noise.Rand()
			}
			row[0] += float64(s) * c.GroupShift
			x.SetRow(i, row)
			p := tensor.Sigmoid(2 * floats.Dot(weights, row))
			labels[i] = int(distuv.Bernoulli{P: p, Src: src}.Rand())
			groups[i] = s
		}
		return Split{X: x, Labels: labels, Groups: groups}
	}
	return &Dataset{Train: draw(c.NumTrain), Test: draw(c.NumTest), NumGroups: 2}, nil
}
