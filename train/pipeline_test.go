package train

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"fairgp/fairness"
	"fairgp/gp"
)

func pipeline(inference string, src fairness.Source) Pipeline {
	opts := gp.DefaultOptions()
	opts.Inference = inference
	opts.LearningRate = 0.05
	return Pipeline{
		Registry: gp.DefaultRegistry(),
		Options:  opts,
		Source:   src,
		Train:    Config{Epochs: 20, BatchSize: 50, Seed: 3},
		Logger:   quiet,
	}
}

func TestBaselineName(t *testing.T) {
	assert.Equal(t, "logreg", BaselineName("fair_logreg"))
	assert.Equal(t, "variational", BaselineName("eqodds_variational"))
	assert.Equal(t, "logreg", BaselineName("logreg"))
}

func TestPipelinePlain(t *testing.T) {
	ds := synthetic(t, 200, 100)
	out, err := pipeline("logreg", nil).Run(context.Background(), ds)
	require.NoError(t, err)
	assert.Nil(t, out.Tensor)
	assert.Nil(t, out.PostProcessed)
	assert.False(t, out.Rates.HasOdds())
	r, _ := out.Mean.Dims()
	assert.Equal(t, 100, r)
	assert.Positive(t, out.Steps)
	assert.GreaterOrEqual(t, out.Timing.TotalTime, out.Timing.GradientTime)
}

func TestPipelineDemographicParityNarrowsGap(t *testing.T) {
	ds := synthetic(t, 400, 400)
	plain, err := pipeline("logreg", nil).Run(context.Background(), ds)
	require.NoError(t, err)

	fair, err := pipeline("fair_logreg", fairness.DemographicParity{TargetRate: 0.6, Clip: 0.01}).Run(context.Background(), ds)
	require.NoError(t, err)
	require.NotNil(t, fair.Tensor)
	// the groups differ along the first input, so debiasing flattens the
	// model's mean response across groups
	assert.Less(t, softGap(fair.Mean, ds.Test.Groups), softGap(plain.Mean, ds.Test.Groups))
}

// softGap is the difference of mean predicted probabilities between
// groups 1 and 0.
func softGap(mean *mat.Dense, groups []int) float64 {
	var sum, n [2]float64
	for i, s := range groups {
		sum[s] += mean.At(i, 0)
		n[s]++
	}
	return sum[1]/n[1] - sum[0]/n[0]
}

func TestPipelineEqualizedOddsTrainsBaseline(t *testing.T) {
	ds := synthetic(t, 200, 100)
	src := fairness.EqualizedOdds{TargetTPR: [2]float64{0.3, 0.8}, Clip: 0.01}
	out, err := pipeline("eqodds_logreg", src).Run(context.Background(), ds)
	require.NoError(t, err)
	assert.True(t, out.Rates.HasOdds())
	assert.Positive(t, out.Timing.BaselineTime)
}

func TestPipelinePostProcess(t *testing.T) {
	ds := synthetic(t, 200, 100)
	p := pipeline("logreg", fairness.DemographicParity{TargetRate: 0.6, Clip: 0.01})
	p.PostProcess = true
	p.Prior = fairness.PriorUniform
	out, err := p.Run(context.Background(), ds)
	require.NoError(t, err)
	require.NotNil(t, out.PostProcessed)
	r, _ := out.Adjusted.Dims()
	assert.Equal(t, 100, r)
	for i := 0; i < r; i++ {
		v := out.Adjusted.At(i, 0)
		assert.True(t, v >= 0 && v <= 1, "adjusted probability %v", v)
	}

	p.Source = nil
	_, err = p.Run(context.Background(), ds)
	require.ErrorIs(t, err, fairness.ErrConfig)
}

// countingSource records how often the debiasing tensor is built.
type countingSource struct {
	fairness.Source
	calls int
}

func (c *countingSource) Params(table *fairness.BaseRateTable) (*fairness.DebiasingTensor, error) {
	c.calls++
	return c.Source.Params(table)
}

func TestPipelineBuildsTensorOnce(t *testing.T) {
	ds := synthetic(t, 200, 100)
	src := &countingSource{Source: fairness.DemographicParity{TargetRate: 0.5, Clip: 0.05}}
	p := pipeline("fair_logreg", src)
	p.Train.Epochs = 2
	out, err := p.Run(context.Background(), ds)
	require.NoError(t, err)
	require.NotNil(t, out.Tensor)
	assert.Equal(t, 1, src.calls)
}

func TestPipelineGroupAsInput(t *testing.T) {
	ds := synthetic(t, 200, 100).WithGroupInput()
	p := pipeline("fair_logreg", fairness.DemographicParity{TargetRate: 0.5, Clip: 0.05})
	p.Train.Epochs = 2
	out, err := p.Run(context.Background(), ds)
	require.NoError(t, err)
	lr, ok := out.Model.Strategy.(*gp.LogReg)
	require.True(t, ok)
	w, _ := lr.Weights(0)
	assert.Len(t, w, 3, "two inputs plus the group column")

	vp := pipeline("variational", nil)
	vp.Train.Epochs = 1
	vp.NumInducing = 10
	vout, err := vp.Run(context.Background(), ds)
	require.NoError(t, err)
	r, _ := vout.Mean.Dims()
	assert.Equal(t, 100, r)
}
