// Package dataset loads labelled data with a sensitive attribute and picks
// inducing inputs for the variational GP.
package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"

	"fairgp/fairness"
	"fairgp/gp"
)

// ErrFormat marks a dataset file with missing or inconsistent arrays.
var ErrFormat = errors.New("dataset: format error")

// Split is one partition of a dataset.
type Split struct {
	X      *mat.Dense
	Labels []int
	Groups []int
}

// Len returns the number of examples.
func (s Split) Len() int { return len(s.Labels) }

// Samples converts the split for the statistics collector.
func (s Split) Samples() ([]fairness.Sample, error) {
	return fairness.SamplesFrom(s.Labels, s.Groups)
}

// Batch returns the examples at idx as a model batch.
func (s Split) Batch(idx []int) gp.Batch {
	_, c := s.X.Dims()
	x := mat.NewDense(len(idx), c, nil)
	labels := make([]int, len(idx))
	groups := make([]int, len(idx))
	for i, j := range idx {
		x.SetRow(i, s.X.RawRowView(j))
		labels[i] = s.Labels[j]
		groups[i] = s.Groups[j]
	}
	return gp.Batch{X: x, Labels: labels, Groups: groups}
}

// All returns the whole split as one batch.
func (s Split) All() gp.Batch {
	return gp.Batch{X: s.X, Labels: s.Labels, Groups: s.Groups}
}

// Dataset is a train/test pair over the same inputs and groups.
type Dataset struct {
	Train     Split
	Test      Split
	NumGroups int
}

// InputDim returns the number of input columns.
func (d *Dataset) InputDim() int {
	_, c := d.Train.X.Dims()
	return c
}

// WithGroupInput returns a copy of d whose inputs carry the sensitive group
// as an extra last column. Batches, inducing inputs and the input dimension
// of the copy all include it.
func (d *Dataset) WithGroupInput() *Dataset {
	return &Dataset{Train: d.Train.withGroupColumn(), Test: d.Test.withGroupColumn(), NumGroups: d.NumGroups}
}

func (s Split) withGroupColumn() Split {
	r, c := s.X.Dims()
	x := mat.NewDense(r, c+1, nil)
	x.Slice(0, r, 0, c).(*mat.Dense).Copy(s.X)
	for i, g := range s.Groups {
		x.Set(i, c, float64(g))
	}
	return Split{X: x, Labels: s.Labels, Groups: s.Groups}
}

// file is the on-disk layout: the arrays xtrain, ytrain, strain, xtest,
// ytest and stest.
type file struct {
	XTrain [][]float64 `json:"xtrain"`
	YTrain []int       `json:"ytrain"`
	STrain []int       `json:"strain"`
	XTest  [][]float64 `json:"xtest"`
	YTest  []int       `json:"ytest"`
	STest  []int       `json:"stest"`
}

// Load reads a JSON dataset file. The number of groups is one more than the
// largest group index seen in either split.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dataset: %w", err)
	}
	train, err := toSplit("train", f.XTrain, f.YTrain, f.STrain, 0)
	if err != nil {
		return nil, err
	}
	_, dim := train.X.Dims()
	test, err := toSplit("test", f.XTest, f.YTest, f.STest, dim)
	if err != nil {
		return nil, err
	}
	groups := 0
	for _, s := range append(append([]int(nil), train.Groups...), test.Groups...) {
		if s+1 > groups {
			groups = s + 1
		}
	}
	if groups < 2 {
		return nil, fmt.Errorf("%w: need at least two sensitive groups, found %d", ErrFormat, groups)
	}
	return &Dataset{Train: train, Test: test, NumGroups: groups}, nil
}

func toSplit(name string, x [][]float64, y, s []int, dim int) (Split, error) {
	if len(x) == 0 {
		return Split{}, fmt.Errorf("%w: x%s is empty", ErrFormat, name)
	}
	if len(y) != len(x) || len(s) != len(x) {
		return Split{}, fmt.Errorf("%w: x%s has %d rows, y%s %d, s%s %d", ErrFormat, name, len(x), name, len(y), name, len(s))
	}
	if dim == 0 {
		dim = len(x[0])
	}
	if dim == 0 {
		return Split{}, fmt.Errorf("%w: x%s has no columns", ErrFormat, name)
	}
	m := mat.NewDense(len(x), dim, nil)
	for i, row := range x {
		if len(row) != dim {
			return Split{}, fmt.Errorf("%w: x%s row %d has %d columns, want %d", ErrFormat, name, i, len(row), dim)
		}
		m.SetRow(i, row)
	}
	for i := range y {
		if y[i] != 0 && y[i] != 1 {
			return Split{}, fmt.Errorf("%w: y%s[%d] = %d is not a binary label", ErrFormat, name, i, y[i])
		}
		if s[i] < 0 {
			return Split{}, fmt.Errorf("%w: s%s[%d] = %d is negative", ErrFormat, name, i, s[i])
		}
	}
	return Split{X: m, Labels: y, Groups: s}, nil
}

// Save writes d in the layout Load reads.
func Save(path string, d *Dataset) error {
	f := file{
		XTrain: rows(d.Train.X), YTrain: d.Train.Labels, STrain: d.Train.Groups,
		XTest: rows(d.Test.X), YTest: d.Test.Labels, STest: d.Test.Groups,
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal dataset: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func rows(m *mat.Dense) [][]float64 {
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}

// Inducing picks every (numTrain/num)-th training input, starting with the
// first. num is capped at the training size.
func Inducing(train Split, num int) (*mat.Dense, error) {
	n := train.Len()
	if n == 0 {
		return nil, fmt.Errorf("%w: no training inputs", ErrFormat)
	}
	if num <= 0 {
		return nil, fmt.Errorf("%w: number of inducing inputs must be positive, got %d", ErrFormat, num)
	}
	if num > n {
		num = n
	}
	step := n / num
	_, c := train.X.Dims()
	out := mat.NewDense((n+step-1)/step, c, nil)
	for i := 0; i*step < n; i++ {
		out.SetRow(i, train.X.RawRowView(i*step))
	}
	return out, nil
}
