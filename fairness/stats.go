package fairness

import (
	"fmt"
	"math"
)

// Sample is one labeled training example with its sensitive group.
type Sample struct {
	Input []float64
	Label int
	Group int
}

// Stratum holds the counts behind one empirical rate.
type Stratum struct {
	Count     int
	Positives int
}

// Rate returns Positives/Count, or NaN when the stratum is empty.
func (s Stratum) Rate() float64 {
	if s.Count == 0 {
		return math.NaN()
	}
	return float64(s.Positives) / float64(s.Count)
}

// BaseRateTable collects the empirical rates the debiasing engine works from.
//
// Groups[g] counts positive labels within group g. Odds[g][y] counts positive
// predictions within group g and true label y; it is nil unless the table was
// built with CollectOdds.
type BaseRateTable struct {
	Groups []Stratum
	Odds   [][2]Stratum
}

// NumGroups returns the number of sensitive groups the table was built for.
func (b *BaseRateTable) NumGroups() int { return len(b.Groups) }

// BaseRate returns P(y=1 | s=g).
func (b *BaseRateTable) BaseRate(g int) float64 { return b.Groups[g].Rate() }

// OddsRate returns P(ŷ=1 | s=g, y).
func (b *BaseRateTable) OddsRate(g, y int) float64 { return b.Odds[g][y].Rate() }

// HasOdds reports whether the table carries equalized-odds strata.
func (b *BaseRateTable) HasOdds() bool { return b.Odds != nil }

// CollectRates computes P(y=1 | s) for every group in [0, numGroups).
// A group without samples keeps a zero count, so its rate is NaN.
func CollectRates(samples []Sample, numGroups int) (*BaseRateTable, error) {
	if numGroups <= 0 {
		return nil, fmt.Errorf("%w: number of groups must be positive, got %d", ErrConfig, numGroups)
	}
	table := &BaseRateTable{Groups: make([]Stratum, numGroups)}
	for i, s := range samples {
		if err := checkSample(i, s, numGroups); err != nil {
			return nil, err
		}
		table.Groups[s.Group].Count++
		table.Groups[s.Group].Positives += s.Label
	}
	return table, nil
}

// CollectOdds computes the base rates plus P(ŷ=1 | s, y), where predicted
// holds a reference classifier's hard predictions for the same samples.
func CollectOdds(samples []Sample, predicted []int, numGroups int) (*BaseRateTable, error) {
	if len(predicted) != len(samples) {
		return nil, fmt.Errorf("%w: %d predictions for %d samples", ErrShape, len(predicted), len(samples))
	}
	table, err := CollectRates(samples, numGroups)
	if err != nil {
		return nil, err
	}
	table.Odds = make([][2]Stratum, numGroups)
	for i, s := range samples {
		p := predicted[i]
		if p != 0 && p != 1 {
			return nil, fmt.Errorf("%w: prediction %d is %d, want 0 or 1", ErrShape, i, p)
		}
		table.Odds[s.Group][s.Label].Count++
		table.Odds[s.Group][s.Label].Positives += p
	}
	return table, nil
}

// SamplesFrom zips parallel label and group slices into samples without inputs.
func SamplesFrom(labels, groups []int) ([]Sample, error) {
	if len(labels) != len(groups) {
		return nil, fmt.Errorf("%w: %d labels vs %d groups", ErrShape, len(labels), len(groups))
	}
	out := make([]Sample, len(labels))
	for i := range labels {
		out[i] = Sample{Label: labels[i], Group: groups[i]}
	}
	return out, nil
}

func checkSample(i int, s Sample, numGroups int) error {
	if s.Label != 0 && s.Label != 1 {
		return fmt.Errorf("%w: sample %d has label %d, want 0 or 1", ErrShape, i, s.Label)
	}
	if s.Group < 0 || s.Group >= numGroups {
		return fmt.Errorf("%w: sample %d has group %d outside [0,%d)", ErrShape, i, s.Group, numGroups)
	}
	return nil
}
