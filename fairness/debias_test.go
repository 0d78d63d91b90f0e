package fairness

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoGroupTable(t *testing.T, n0, pos0, n1, pos1 int) *BaseRateTable {
	t.Helper()
	table, err := CollectRates(append(groupSamples(0, n0, pos0), groupSamples(1, n1, pos1)...), 2)
	require.NoError(t, err)
	return table
}

// oddsTable builds a table whose P(ŷ=1|s,y) equals pos/10 for every entry of rates.
func oddsTable(t *testing.T, rates [2][2]int) *BaseRateTable {
	t.Helper()
	var samples []Sample
	var preds []int
	for s := 0; s < 2; s++ {
		for y := 0; y < 2; y++ {
			for i := 0; i < 10; i++ {
				samples = append(samples, Sample{Label: y, Group: s})
				if i < rates[s][y] {
					preds = append(preds, 1)
				} else {
					preds = append(preds, 0)
				}
			}
		}
	}
	table, err := CollectOdds(samples, preds, 2)
	require.NoError(t, err)
	return table
}

func TestDemographicParityOddsRatio(t *testing.T) {
	table := twoGroupTable(t, 10, 3, 10, 7)
	d, err := DemographicParity{TargetRate: 0.5}.Params(table)
	require.NoError(t, err)

	want := (0.5 / 0.5) / (0.3 / 0.7)
	for y := 0; y < 2; y++ {
		got := math.Exp(d.At(y, 0, 1)) / math.Exp(d.At(y, 0, 0))
		assert.InEpsilon(t, want, got, 1e-6)
	}
	want1 := (0.5 / 0.5) / (0.7 / 0.3)
	assert.InEpsilon(t, want1, math.Exp(d.At(1, 1, 1))/math.Exp(d.At(1, 1, 0)), 1e-6)

	assert.InDelta(t, math.Log(0.5/0.3), d.At(0, 0, 1), 1e-12)
	assert.InDelta(t, math.Log(0.5/0.7), d.At(0, 0, 0), 1e-12)
}

func TestDemographicParityBroadcastsOverTrueLabel(t *testing.T) {
	d, err := DemographicParity{TargetRate: 0.4}.Params(twoGroupTable(t, 10, 3, 10, 7))
	require.NoError(t, err)
	for s := 0; s < 2; s++ {
		for yhat := 0; yhat < 2; yhat++ {
			assert.Equal(t, d.At(0, s, yhat), d.At(1, s, yhat))
		}
	}
}

func TestDemographicParityMonotone(t *testing.T) {
	table := twoGroupTable(t, 10, 3, 10, 7)
	prev, err := DemographicParity{TargetRate: 0.1}.Params(table)
	require.NoError(t, err)
	for _, target := range []float64{0.2, 0.35, 0.5, 0.65, 0.9} {
		cur, err := DemographicParity{TargetRate: target}.Params(table)
		require.NoError(t, err)
		for s := 0; s < 2; s++ {
			assert.Greater(t, cur.At(0, s, 1), prev.At(0, s, 1), "target %v group %d", target, s)
			assert.Less(t, cur.At(0, s, 0), prev.At(0, s, 0), "target %v group %d", target, s)
		}
		prev = cur
	}
}

func TestDemographicParityZeroWhenTargetMatches(t *testing.T) {
	table := twoGroupTable(t, 10, 4, 5, 2)
	d, err := DemographicParity{TargetRate: table.BaseRate(0)}.Params(table)
	require.NoError(t, err)
	assert.True(t, d.IsZero(), "values: %v", d.Values())
}

func TestDemographicParityEmptyGroup(t *testing.T) {
	table, err := CollectRates(groupSamples(0, 10, 3), 2)
	require.NoError(t, err)
	_, err = DemographicParity{TargetRate: 0.5}.Params(table)
	require.ErrorIs(t, err, ErrConfig)
	assert.Contains(t, err.Error(), "group 1")
}

func TestDemographicParityDegenerateRate(t *testing.T) {
	table := twoGroupTable(t, 10, 0, 10, 5)
	_, err := DemographicParity{TargetRate: 0.5}.Params(table)
	require.ErrorIs(t, err, ErrDegenerate)
	assert.ErrorIs(t, err, ErrConfig)
	assert.Contains(t, err.Error(), "group 0")

	d, err := DemographicParity{TargetRate: 0.5, Clip: 0.01}.Params(table)
	require.NoError(t, err)
	for _, v := range d.Values() {
		assert.False(t, math.IsInf(v, 0) || math.IsNaN(v))
	}
	assert.InDelta(t, math.Log(0.5/0.01), d.At(0, 0, 1), 1e-12)
}

func TestDemographicParityBadTarget(t *testing.T) {
	table := twoGroupTable(t, 10, 3, 10, 7)
	for _, target := range []float64{0, 1, -0.2, 1.5, math.NaN()} {
		_, err := DemographicParity{TargetRate: target}.Params(table)
		assert.ErrorIs(t, err, ErrConfig, "target %v", target)
	}
	_, err := DemographicParity{TargetRate: 0.5, Clip: 0.5}.Params(table)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestEqualizedOddsPerLabel(t *testing.T) {
	table := oddsTable(t, [2][2]int{{2, 6}, {4, 8}})
	d, err := EqualizedOdds{TargetTPR: [2]float64{0.3, 0.7}}.Params(table)
	require.NoError(t, err)

	assert.InDelta(t, math.Log(0.7/0.6), d.At(1, 0, 1), 1e-12)
	assert.InDelta(t, math.Log(0.3/0.4), d.At(1, 0, 0), 1e-12)
	assert.InDelta(t, math.Log(0.3/0.2), d.At(0, 0, 1), 1e-12)
	assert.InDelta(t, math.Log(0.7/0.8), d.At(0, 0, 0), 1e-12)
	assert.InDelta(t, math.Log(0.7/0.8), d.At(1, 1, 1), 1e-12)
	assert.NotEqual(t, d.At(0, 0, 1), d.At(1, 0, 1))
}

func TestEqualizedOddsZeroWhenTargetsMatch(t *testing.T) {
	table := oddsTable(t, [2][2]int{{3, 6}, {3, 6}})
	d, err := EqualizedOdds{TargetTPR: [2]float64{table.OddsRate(0, 0), table.OddsRate(0, 1)}}.Params(table)
	require.NoError(t, err)
	assert.True(t, d.IsZero())
}

func TestEqualizedOddsMissingStratum(t *testing.T) {
	labels := []int{1, 1, 0, 0, 1, 1}
	groups := []int{0, 0, 0, 0, 1, 1}
	samples, err := SamplesFrom(labels, groups)
	require.NoError(t, err)
	table, err := CollectOdds(samples, []int{1, 0, 1, 0, 1, 0}, 2)
	require.NoError(t, err)
	_, err = EqualizedOdds{TargetTPR: [2]float64{0.2, 0.8}}.Params(table)
	require.ErrorIs(t, err, ErrConfig)
	assert.Contains(t, err.Error(), "group 1, label 0")
}

func TestEqualizedOddsNeedsOdds(t *testing.T) {
	_, err := EqualizedOdds{TargetTPR: [2]float64{0.2, 0.8}}.Params(twoGroupTable(t, 10, 3, 10, 7))
	assert.ErrorIs(t, err, ErrConfig)
	assert.True(t, EqualizedOdds{}.NeedsPredictions())
	assert.False(t, DemographicParity{}.NeedsPredictions())
}

func TestTensorFromValues(t *testing.T) {
	d, err := DemographicParity{TargetRate: 0.5}.Params(twoGroupTable(t, 10, 3, 10, 7))
	require.NoError(t, err)
	back, err := TensorFromValues(2, d.Values())
	require.NoError(t, err)
	assert.Equal(t, d.Values(), back.Values())

	_, err = TensorFromValues(2, make([]float64, 6))
	assert.ErrorIs(t, err, ErrShape)
	_, err = TensorFromValues(1, []float64{0, math.Inf(1), 0, 0})
	assert.ErrorIs(t, err, ErrConfig)
}
