package fairness

import (
	"fmt"
	"log/slog"
	"math"

	"fairgp/tensor"
)

// DebiasingTensor holds log-domain correction factors indexed by
// (true label, sensitive group, observed label). The factors are not a
// distribution: exponentiating and summing over the observed label need not
// give one. The tensor is never mutated after a Source builds it, so it can be
// shared by concurrent readers.
type DebiasingTensor struct {
	t *tensor.Tensor
}

// NewZeroTensor returns the tensor that applies no correction.
func NewZeroTensor(numGroups int) *DebiasingTensor {
	return &DebiasingTensor{t: tensor.New(2, numGroups, 2)}
}

// TensorFromValues rebuilds a tensor from the flat data Values returned.
func TensorFromValues(numGroups int, values []float64) (*DebiasingTensor, error) {
	if numGroups <= 0 || len(values) != 4*numGroups {
		return nil, fmt.Errorf("%w: %d values for %d groups", ErrShape, len(values), numGroups)
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: entry %d is %v", ErrConfig, i, v)
		}
	}
	t := tensor.New(2, numGroups, 2)
	copy(t.Data, values)
	return &DebiasingTensor{t: t}, nil
}

// At returns log_debias[y, s, yhat].
func (d *DebiasingTensor) At(y, s, yhat int) float64 { return d.t.At(y, s, yhat) }

// NumGroups returns the size of the group axis.
func (d *DebiasingTensor) NumGroups() int { return d.t.Shape[1] }

// IsZero reports whether the tensor applies no correction at all.
func (d *DebiasingTensor) IsZero() bool { return d.t.IsZero() }

// Values returns a copy of the flat (y, s, yhat) row-major data.
func (d *DebiasingTensor) Values() []float64 { return append([]float64(nil), d.t.Data...) }

func (d *DebiasingTensor) checkIndex(y, s int) error {
	if y != 0 && y != 1 {
		return fmt.Errorf("%w: label %d, want 0 or 1", ErrShape, y)
	}
	if s < 0 || s >= d.NumGroups() {
		return fmt.Errorf("%w: group %d outside [0,%d)", ErrShape, s, d.NumGroups())
	}
	return nil
}

// Source turns empirical rates into a debiasing tensor. Implementations are
// the interchangeable fairness criteria.
type Source interface {
	Params(table *BaseRateTable) (*DebiasingTensor, error)
	// NeedsPredictions reports whether the table must be built with
	// CollectOdds from a reference classifier's predictions.
	NeedsPredictions() bool
	Name() string
}

// DemographicParity targets the same positive rate in every group.
type DemographicParity struct {
	TargetRate float64
	// Clip, when positive, clamps empirical rates into [Clip, 1-Clip]
	// instead of failing on rates of exactly 0 or 1.
	Clip   float64
	Logger *slog.Logger
}

// Name implements Source.
func (DemographicParity) Name() string { return "demographic_parity" }

// NeedsPredictions implements Source.
func (DemographicParity) NeedsPredictions() bool { return false }

// Params implements Source. The correction depends only on the group and the
// observed label and is broadcast across the true label.
func (dp DemographicParity) Params(table *BaseRateTable) (*DebiasingTensor, error) {
	if err := checkTarget("target rate", dp.TargetRate); err != nil {
		return nil, err
	}
	if err := checkClip(dp.Clip); err != nil {
		return nil, err
	}
	out := NewZeroTensor(table.NumGroups())
	for s := 0; s < table.NumGroups(); s++ {
		st := table.Groups[s]
		if st.Count == 0 {
			return nil, fmt.Errorf("%w: group %d has no training samples", ErrConfig, s)
		}
		r, err := clampRate(st.Rate(), dp.Clip, logger(dp.Logger), "group", s, -1)
		if err != nil {
			return nil, err
		}
		pos, neg := logCorrection(dp.TargetRate, r)
		for y := 0; y < 2; y++ {
			out.t.Set(neg, y, s, 0)
			out.t.Set(pos, y, s, 1)
		}
	}
	return out, nil
}

// EqualizedOdds targets P(ŷ=1 | y) per true label in every group.
// TargetTPR[1] is the target true-positive rate and TargetTPR[0] the target
// false-positive rate P(ŷ=1 | y=0).
type EqualizedOdds struct {
	TargetTPR [2]float64
	Clip      float64
	Logger    *slog.Logger
}

// Name implements Source.
func (EqualizedOdds) Name() string { return "equalized_odds" }

// NeedsPredictions implements Source.
func (EqualizedOdds) NeedsPredictions() bool { return true }

// Params implements Source.
func (eo EqualizedOdds) Params(table *BaseRateTable) (*DebiasingTensor, error) {
	for y, t := range eo.TargetTPR {
		if err := checkTarget(fmt.Sprintf("target rate for y=%d", y), t); err != nil {
			return nil, err
		}
	}
	if err := checkClip(eo.Clip); err != nil {
		return nil, err
	}
	if !table.HasOdds() {
		return nil, fmt.Errorf("%w: equalized odds needs per-label prediction rates", ErrConfig)
	}
	out := NewZeroTensor(table.NumGroups())
	for s := 0; s < table.NumGroups(); s++ {
		for y := 0; y < 2; y++ {
			st := table.Odds[s][y]
			if st.Count == 0 {
				return nil, fmt.Errorf("%w: stratum (group %d, label %d) has no training samples", ErrConfig, s, y)
			}
			r, err := clampRate(st.Rate(), eo.Clip, logger(eo.Logger), "stratum", s, y)
			if err != nil {
				return nil, err
			}
			pos, neg := logCorrection(eo.TargetTPR[y], r)
			out.t.Set(neg, y, s, 0)
			out.t.Set(pos, y, s, 1)
		}
	}
	return out, nil
}

// logCorrection returns log(t/r) and log((1-t)/(1-r)).
func logCorrection(target, empirical float64) (pos, neg float64) {
	pos = math.Log(target) - math.Log(empirical)
	neg = math.Log1p(-target) - math.Log1p(-empirical)
	return pos, neg
}

func checkTarget(name string, t float64) error {
	if math.IsNaN(t) || t <= 0 || t >= 1 {
		return fmt.Errorf("%w: %s must lie in (0,1), got %v", ErrConfig, name, t)
	}
	return nil
}

func checkClip(c float64) error {
	if math.IsNaN(c) || c < 0 || c >= 0.5 {
		return fmt.Errorf("%w: clip must lie in [0,0.5), got %v", ErrConfig, c)
	}
	return nil
}

// clampRate enforces the clipping policy. y < 0 means the rate is not label
// conditional.
func clampRate(r, clip float64, log *slog.Logger, kind string, s, y int) (float64, error) {
	where := fmt.Sprintf("group %d", s)
	if y >= 0 {
		where = fmt.Sprintf("group %d, label %d", s, y)
	}
	if clip == 0 {
		if r <= 0 || r >= 1 {
			return 0, fmt.Errorf("%w: %w: empirical rate of %s is %v", ErrConfig, ErrDegenerate, where, r)
		}
		return r, nil
	}
	c := math.Min(math.Max(r, clip), 1-clip)
	if c != r {
		log.Warn("clipped empirical rate", "kind", kind, "where", where, "rate", r, "clipped", c)
	}
	return c, nil
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
