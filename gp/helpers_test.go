package gp

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"fairgp/fairness"
)

// toyBatch draws inputs from N(0,1) and labels from the sign of the first
// input, with groups assigned at random.
func toyBatch(rng *rand.Rand, n, dim int) Batch {
	x := mat.NewDense(n, dim, nil)
	labels := make([]int, n)
	groups := make([]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < dim; j++ {
			x.Set(i, j, rng.NormFloat64())
		}
		if x.At(i, 0)+0.3*rng.NormFloat64() > 0 {
			labels[i] = 1
		}
		groups[i] = rng.Intn(2)
	}
	return Batch{X: x, Labels: labels, Groups: groups}
}

func parityOptions(t *testing.T, b Batch) Options {
	t.Helper()
	samples, err := fairness.SamplesFrom(b.Labels, b.Groups)
	require.NoError(t, err)
	table, err := fairness.CollectRates(samples, 2)
	require.NoError(t, err)
	opts := DefaultOptions()
	opts.Source = fairness.DemographicParity{TargetRate: 0.5, Clip: 0.05}
	opts.Debias, err = opts.Source.Params(table)
	require.NoError(t, err)
	return opts
}

func firstRows(x *mat.Dense, n int) *mat.Dense {
	_, c := x.Dims()
	return mat.DenseCopyOf(x.Slice(0, n, 0, c))
}

func logit(p float64) float64 { return math.Log(p / (1 - p)) }
