package fairness

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Report summarises a classifier's accuracy and per-group behaviour on
// labeled data.
type Report struct {
	Accuracy float64
	// PredRate[s] = P(ŷ=1 | s)
	PredRate []float64
	// BaseRate[s] = P(y=1 | s)
	BaseRate []float64
	// PredOdds[s][y] = P(ŷ=1 | s, y)
	PredOdds [][2]float64
}

// Evaluate thresholds probs at 0.5 and collects the report.
func Evaluate(probs []float64, labels, groups []int, numGroups int) (Report, error) {
	if len(probs) != len(labels) {
		return Report{}, fmt.Errorf("%w: %d probabilities for %d labels", ErrShape, len(probs), len(labels))
	}
	samples, err := SamplesFrom(labels, groups)
	if err != nil {
		return Report{}, err
	}
	predicted := make([]int, len(probs))
	correct := make([]float64, len(probs))
	for i, p := range probs {
		if p >= 0.5 {
			predicted[i] = 1
		}
		if predicted[i] == labels[i] {
			correct[i] = 1
		}
	}
	table, err := CollectOdds(samples, predicted, numGroups)
	if err != nil {
		return Report{}, err
	}
	rep := Report{
		Accuracy: stat.Mean(correct, nil),
		PredRate: make([]float64, numGroups),
		BaseRate: make([]float64, numGroups),
		PredOdds: make([][2]float64, numGroups),
	}
	for s := 0; s < numGroups; s++ {
		var predPos, n int
		for y := 0; y < 2; y++ {
			predPos += table.Odds[s][y].Positives
			n += table.Odds[s][y].Count
			rep.PredOdds[s][y] = table.OddsRate(s, y)
		}
		rep.PredRate[s] = Stratum{Count: n, Positives: predPos}.Rate()
		rep.BaseRate[s] = table.BaseRate(s)
	}
	return rep, nil
}

// ParityGap is the spread of positive-prediction rates across groups.
// Empty groups are ignored.
func (r Report) ParityGap() float64 {
	return spread(r.PredRate)
}

// TPRGap is the spread of true-positive rates across groups.
func (r Report) TPRGap() float64 {
	tpr := make([]float64, len(r.PredOdds))
	for s := range r.PredOdds {
		tpr[s] = r.PredOdds[s][1]
	}
	return spread(tpr)
}

// Metrics flattens the report into named values.
func (r Report) Metrics() map[string]float64 {
	m := map[string]float64{"logistic_accuracy": r.Accuracy}
	for s := range r.PredRate {
		m[fmt.Sprintf("pred_rate_y1_s%d", s)] = r.PredRate[s]
		m[fmt.Sprintf("base_rate_y1_s%d", s)] = r.BaseRate[s]
		for y := 0; y < 2; y++ {
			m[fmt.Sprintf("pred_odds_yhaty%d_s%d", y, s)] = r.PredOdds[s][y]
		}
	}
	return m
}

func spread(vals []float64) float64 {
	kept := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return math.NaN()
	}
	return floats.Max(kept) - floats.Min(kept)
}
