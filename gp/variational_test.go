package gp

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"fairgp/covariance"
	"fairgp/fairness"
)

func newVariational(t *testing.T, b Batch, numInducing int, d *fairness.DebiasingTensor) *Variational {
	t.Helper()
	_, dim := b.X.Dims()
	k, err := NewRBF(dim, 1.5, true)
	require.NoError(t, err)
	lik, err := NewLogistic(20)
	require.NoError(t, err)
	v, err := NewVariational(k, lik, firstRows(b.X, numInducing), b.Len(), DefaultOptions(), d)
	require.NoError(t, err)
	return v
}

// matchPrior sets q(u) to the prior N(0, Kzz + noise·I).
func matchPrior(t *testing.T, v *Variational) {
	t.Helper()
	p, err := v.posterior()
	require.NoError(t, err)
	var l mat.TriDense
	p.kzz.LTo(&l)
	copy(v.chol.Value, covariance.TriToVec(&l))
	for i := range v.mean.Value {
		v.mean.Value[i] = 0
	}
}

func TestVariationalKLZeroAtPrior(t *testing.T) {
	b := toyBatch(rand.New(rand.NewSource(11)), 20, 2)
	v := newVariational(t, b, 6, nil)

	kl, err := v.KL()
	require.NoError(t, err)
	assert.Greater(t, kl, 0.0)

	matchPrior(t, v)
	kl, err = v.KL()
	require.NoError(t, err)
	assert.InDelta(t, 0, kl, 1e-8)
}

func TestVariationalKLIgnoresColumnSigns(t *testing.T) {
	b := toyBatch(rand.New(rand.NewSource(12)), 20, 2)
	v := newVariational(t, b, 4, nil)
	copy(v.mean.Value, []float64{0.3, -0.2, 0.1, 0.5})
	copy(v.chol.Value, []float64{0.9, 0.1, 0.8, -0.2, 0.3, 0.7, 0.05, 0.1, 0.2, 1.1})
	want, err := v.KL()
	require.NoError(t, err)

	// negate column 1: entries (1,1), (2,1), (3,1)
	for _, k := range []int{2, 4, 7} {
		v.chol.Value[k] = -v.chol.Value[k]
	}
	got, err := v.KL()
	require.NoError(t, err)
	assert.InDelta(t, want, got, 1e-10)
}

func TestVariationalSingularCovariance(t *testing.T) {
	b := toyBatch(rand.New(rand.NewSource(13)), 20, 2)
	v := newVariational(t, b, 3, nil)
	v.chol.Value[0] = 0
	_, err := v.Inference(b, true)
	require.ErrorIs(t, err, ErrNumeric)
}

func TestVariationalPriorPrediction(t *testing.T) {
	b := toyBatch(rand.New(rand.NewSource(14)), 20, 2)
	v := newVariational(t, b, 6, nil)
	matchPrior(t, v)

	mean, variance, err := v.Prediction(b.X)
	require.NoError(t, err)
	for i := 0; i < b.Len(); i++ {
		// q(f) equals the prior, N(0, sf²) with sf = 1
		assert.InDelta(t, 1, variance.At(i, 0), 1e-6)
		assert.InDelta(t, 0.5, mean.At(i, 0), 1e-9)
	}

	rep, err := v.Inference(b, false)
	require.NoError(t, err)
	assert.InDelta(t, 0, rep.L2Loss, 1e-8)
	assert.Greater(t, rep.RegrLoss, math.Log(2))
}

func TestVariationalZeroTensorMatchesBaseline(t *testing.T) {
	b := toyBatch(rand.New(rand.NewSource(15)), 20, 2)
	plain := newVariational(t, b, 5, nil)
	fair := newVariational(t, b, 5, fairness.NewZeroTensor(2))
	copy(plain.mean.Value, []float64{0.4, -0.3, 0.2, 0.9, -1})
	copy(fair.mean.Value, plain.mean.Value)

	want, err := plain.Inference(b, true)
	require.NoError(t, err)
	got, err := fair.Inference(b, true)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestVariationalShapeErrors(t *testing.T) {
	b := toyBatch(rand.New(rand.NewSource(16)), 10, 2)
	v := newVariational(t, b, 3, nil)
	wide := toyBatch(rand.New(rand.NewSource(16)), 10, 3)
	_, err := v.Inference(wide, true)
	require.ErrorIs(t, err, ErrShape)
	_, _, err = v.Prediction(wide.X)
	require.ErrorIs(t, err, ErrShape)
}
