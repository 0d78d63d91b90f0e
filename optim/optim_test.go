package optim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimise (w-3)² from w=0 and report the final weight.
func minimise(t *testing.T, o Optimizer, steps int) float64 {
	t.Helper()
	w := []float64{0}
	g := make([]float64, 1)
	for i := 0; i < steps; i++ {
		g[0] = 2 * (w[0] - 3)
		require.NoError(t, o.Step(w, g))
	}
	return w[0]
}

func TestSGDStep(t *testing.T) {
	o, err := NewSGD(0.5)
	require.NoError(t, err)
	w := []float64{1, 2}
	require.NoError(t, o.Step(w, []float64{2, -4}))
	assert.Equal(t, []float64{0, 4}, w)
	assert.Equal(t, "sgd", o.Name())
}

func TestOptimizersConverge(t *testing.T) {
	sgd, err := NewSGD(0.1)
	require.NoError(t, err)
	ada, err := NewAdagrad(1)
	require.NoError(t, err)
	adam, err := NewAdam(0.1)
	require.NoError(t, err)

	for _, o := range []Optimizer{sgd, ada, adam} {
		t.Run(o.Name(), func(t *testing.T) {
			assert.InDelta(t, 3, minimise(t, o, 2000), 1e-2)
		})
	}
}

func TestAdamFirstStepIsLearningRate(t *testing.T) {
	o, err := NewAdam(0.01)
	require.NoError(t, err)
	w := []float64{1, 1}
	require.NoError(t, o.Step(w, []float64{5, -0.001}))
	// bias correction makes the first step ±lr regardless of gradient scale
	assert.InDelta(t, 0.99, w[0], 1e-6)
	assert.InDelta(t, 1.01, w[1], 1e-4)
}

func TestAdagradInitialAccumulator(t *testing.T) {
	o, err := NewAdagrad(1)
	require.NoError(t, err)
	w := []float64{0}
	require.NoError(t, o.Step(w, []float64{0.3}))
	// acc = 0.1 + 0.09
	assert.InDelta(t, -0.3/0.4358898943540674, w[0], 1e-12)
}

func TestShapeErrors(t *testing.T) {
	o, err := NewAdam(0.1)
	require.NoError(t, err)
	require.ErrorIs(t, o.Step([]float64{1}, []float64{1, 2}), ErrShape)
	require.NoError(t, o.Step([]float64{1}, []float64{1}))
	require.ErrorIs(t, o.Step([]float64{1, 2}, []float64{1, 2}), ErrShape)
}

func TestBadLearningRate(t *testing.T) {
	_, err := NewSGD(0)
	require.Error(t, err)
	_, err = NewAdam(-1)
	require.Error(t, err)
}
