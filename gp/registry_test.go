package gp

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistryNames(t *testing.T) {
	k, l, inf, o := DefaultRegistry().Names()
	assert.Equal(t, []string{"linear", "rbf"}, k)
	assert.Equal(t, []string{"logistic"}, l)
	assert.Equal(t, []string{"eqodds_logreg", "eqodds_variational", "fair_logreg", "fair_variational", "logreg", "variational"}, inf)
	assert.Equal(t, []string{"adagrad", "adam", "sgd"}, o)
}

func TestAssembleUnknownNames(t *testing.T) {
	shape := Shape{InputDim: 2, OutputDim: 1, NumTrain: 10}
	for _, tc := range []struct {
		name string
		edit func(*Options)
	}{
		{"kernel", func(o *Options) { o.Kernel = "matern" }},
		{"likelihood", func(o *Options) { o.Likelihood = "probit" }},
		{"inference", func(o *Options) { o.Inference = "exact" }},
		{"optimizer", func(o *Options) { o.Optimizer = "lbfgs" }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			tc.edit(&opts)
			_, _, _, err := Assemble(DefaultRegistry(), opts, shape)
			require.ErrorIs(t, err, ErrUnknownName)
			require.ErrorIs(t, err, ErrConfig)
		})
	}
}

func TestAssembleHyperparameterOrder(t *testing.T) {
	opts := DefaultOptions()
	m, hyper, opt, err := Assemble(DefaultRegistry(), opts, Shape{InputDim: 3, OutputDim: 1, NumTrain: 10})
	require.NoError(t, err)
	assert.Equal(t, "adam", opt.Name())
	assert.Equal(t, []string{"rbf_log_lengthscale", "rbf_log_sf"}, Names(hyper))
	assert.Len(t, hyper[0].Value, 3)
	assert.Equal(t, []string{"logreg_kernel", "logreg_bias", "rbf_log_lengthscale", "rbf_log_sf"}, Names(m.Parameters()))
	_, ok := m.Gradienter()
	assert.True(t, ok)
}

func TestAssembleSharedLengthscale(t *testing.T) {
	opts := DefaultOptions()
	opts.IsARD = false
	opts.UseBias = false
	m, hyper, _, err := Assemble(DefaultRegistry(), opts, Shape{InputDim: 3, OutputDim: 1, NumTrain: 10})
	require.NoError(t, err)
	assert.Len(t, hyper[0].Value, 1)
	assert.Equal(t, []string{"logreg_kernel", "rbf_log_lengthscale", "rbf_log_sf"}, Names(m.Parameters()))
}

func TestAssembleOneKernelPerOutput(t *testing.T) {
	m, hyper, _, err := Assemble(DefaultRegistry(), DefaultOptions(), Shape{InputDim: 3, OutputDim: 2, NumTrain: 10})
	require.NoError(t, err)
	require.Len(t, m.Kernels, 2)
	assert.Equal(t, 2, m.OutputDim())
	assert.NotSame(t, m.Kernels[0], m.Kernels[1])

	// likelihood parameters first, then each kernel in index order
	want := append(append([]*Param(nil), m.Likelihood.Params()...), m.Kernels[0].Params()...)
	want = append(want, m.Kernels[1].Params()...)
	require.Len(t, hyper, len(want))
	for i := range want {
		assert.Same(t, want[i], hyper[i], "hyperparameter %d", i)
	}
	assert.Equal(t, []string{"rbf_log_lengthscale", "rbf_log_sf", "rbf_log_lengthscale", "rbf_log_sf"}, Names(hyper))

	vars := m.Strategy.Variables()
	assert.Len(t, vars[0].Value, 6, "kernel is input_dim×output_dim")
	assert.Len(t, vars[1].Value, 2, "one bias per output")

	b := toyBatch(rand.New(rand.NewSource(9)), 12, 3)
	mean, variance, err := m.Prediction(b.X)
	require.NoError(t, err)
	r, c := mean.Dims()
	assert.Equal(t, [2]int{12, 2}, [2]int{r, c})
	r, c = variance.Dims()
	assert.Equal(t, [2]int{12, 2}, [2]int{r, c})
}

func TestAssembleOutputLimits(t *testing.T) {
	_, _, _, err := Assemble(DefaultRegistry(), DefaultOptions(), Shape{InputDim: 3, OutputDim: 0, NumTrain: 10})
	require.ErrorIs(t, err, ErrConfig)

	b := toyBatch(rand.New(rand.NewSource(10)), 20, 2)
	opts := parityOptions(t, b)
	opts.Inference = "fair_logreg"
	_, _, _, err = Assemble(DefaultRegistry(), opts, Shape{InputDim: 2, OutputDim: 2, NumTrain: 20})
	require.ErrorIs(t, err, ErrConfig, "the reweighted likelihood has one output")

	opts = DefaultOptions()
	opts.Inference = "variational"
	shape := Shape{InputDim: 2, OutputDim: 2, NumTrain: 20, Inducing: firstRows(b.X, 4)}
	_, _, _, err = Assemble(DefaultRegistry(), opts, shape)
	require.ErrorIs(t, err, ErrConfig)
}

func TestAssembleFairNeedsSource(t *testing.T) {
	opts := DefaultOptions()
	opts.Inference = "fair_logreg"
	_, _, _, err := Assemble(DefaultRegistry(), opts, Shape{InputDim: 2, OutputDim: 1, NumTrain: 10})
	require.ErrorIs(t, err, ErrConfig)

	b := toyBatch(rand.New(rand.NewSource(1)), 40, 2)
	opts = parityOptions(t, b)
	opts.Inference = "eqodds_logreg"
	_, _, _, err = Assemble(DefaultRegistry(), opts, Shape{InputDim: 2, OutputDim: 1, NumTrain: 40})
	require.ErrorIs(t, err, ErrConfig, "demographic parity source cannot drive an equalized odds strategy")

	opts.Inference = "fair_logreg"
	model, _, _, err := Assemble(DefaultRegistry(), opts, Shape{InputDim: 2, OutputDim: 1, NumTrain: 40})
	require.NoError(t, err)
	lr, ok := model.Strategy.(*LogReg)
	require.True(t, ok)
	assert.Same(t, opts.Debias, lr.debias, "the assembled strategy uses the tensor it was given")

	opts.Debias = nil
	_, _, _, err = Assemble(DefaultRegistry(), opts, Shape{InputDim: 2, OutputDim: 1, NumTrain: 40})
	require.ErrorIs(t, err, ErrConfig, "a source without its tensor is not rebuilt")
}

func TestAssembleVariational(t *testing.T) {
	b := toyBatch(rand.New(rand.NewSource(2)), 30, 2)
	opts := DefaultOptions()
	opts.Inference = "variational"
	opts.Kernel = "linear"
	shape := Shape{InputDim: 2, OutputDim: 1, NumTrain: 30, Inducing: firstRows(b.X, 5)}
	m, hyper, _, err := Assemble(DefaultRegistry(), opts, shape)
	require.NoError(t, err)
	assert.Equal(t, []string{"linear_log_variance", "linear_log_offset"}, Names(hyper))
	assert.Equal(t, []string{"vi_mean", "vi_chol", "linear_log_variance", "linear_log_offset"}, Names(m.Parameters()))
	_, ok := m.Gradienter()
	assert.False(t, ok)

	shape.Inducing = nil
	_, _, _, err = Assemble(DefaultRegistry(), opts, shape)
	require.ErrorIs(t, err, ErrConfig)
}
