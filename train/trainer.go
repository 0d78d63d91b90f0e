// Package train fits assembled models with mini-batch optimization and
// evaluates them. It owns the training loop; the fairness core only supplies
// losses and statistics.
package train

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"time"

	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"fairgp/dataset"
	"fairgp/fairness"
	"fairgp/gp"
	"fairgp/optim"
	"fairgp/utils"
)

// Config controls the training loop.
type Config struct {
	Epochs      int
	BatchSize   int
	DisplayStep int
	Seed        uint64
	// Workers bounds parallel evaluation; zero means GOMAXPROCS.
	Workers int
	Logger  *slog.Logger
}

// Trainer runs an optimizer over one model.
type Trainer struct {
	cfg    Config
	model  *gp.Model
	opt    optim.Optimizer
	log    *slog.Logger
	params []*gp.Param
	timing utils.TimingStats
	steps  int
}

// New returns a trainer for model. The optimizer updates every value of
// model.Parameters().
func New(model *gp.Model, opt optim.Optimizer, cfg Config) (*Trainer, error) {
	if cfg.Epochs <= 0 {
		return nil, fmt.Errorf("epochs must be positive, got %d", cfg.Epochs)
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Trainer{
		cfg:    cfg,
		model:  model,
		opt:    opt,
		log:    log.With("model", model.Name, "optimizer", opt.Name()),
		params: model.Parameters(),
	}, nil
}

// Timing returns the time spent in gradients and updates so far.
func (t *Trainer) Timing() utils.TimingStats { return t.timing }

// Steps returns the number of optimizer steps taken.
func (t *Trainer) Steps() int { return t.steps }

// Fit trains on the split for the configured number of epochs and returns
// the last mini-batch loss report. Batches are reshuffled every epoch.
func (t *Trainer) Fit(ctx context.Context, train dataset.Split) (fairness.LossReport, error) {
	n := train.Len()
	if n == 0 {
		return fairness.LossReport{}, errors.New("no training examples")
	}
	rng := rand.New(rand.NewSource(t.cfg.Seed))
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	grad := make([]float64, gp.NumValues(t.params))
	var last fairness.LossReport

	t.log.Info("training started", "examples", n, "epochs", t.cfg.Epochs, "batch_size", t.cfg.BatchSize,
		"parameters", gp.Names(t.params))
	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		start := time.Now()
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
		for lo := 0; lo < n; lo += t.cfg.BatchSize {
			if err := ctx.Err(); err != nil {
				return last, err
			}
			hi := min(lo+t.cfg.BatchSize, n)
			rep, err := t.step(train.Batch(order[lo:hi]), grad)
			if err != nil {
				return last, fmt.Errorf("epoch %d: %w", epoch, err)
			}
			last = rep
		}
		epochDuration.WithLabelValues(t.model.Name).Observe(time.Since(start).Seconds())
		trainLoss.WithLabelValues(t.model.Name, "total").Set(last.Loss)
		trainLoss.WithLabelValues(t.model.Name, "likelihood").Set(last.RegrLoss)
		trainLoss.WithLabelValues(t.model.Name, "regulariser").Set(last.L2Loss)
		if t.cfg.DisplayStep > 0 && epoch%t.cfg.DisplayStep == 0 {
			t.log.Info("epoch", "epoch", epoch, "loss", last.Loss, "regr_loss", last.RegrLoss,
				"l2_loss", last.L2Loss, "took", time.Since(start))
		}
	}
	return last, nil
}

func (t *Trainer) step(b gp.Batch, grad []float64) (fairness.LossReport, error) {
	start := time.Now()
	rep, err := t.gradient(b, grad)
	t.timing.GradientTime += time.Since(start)
	if err != nil {
		return rep, err
	}
	for i, g := range grad {
		if math.IsNaN(g) || math.IsInf(g, 0) {
			return rep, fmt.Errorf("gradient entry %d is %v at loss %v", i, g, rep.Loss)
		}
	}

	start = time.Now()
	x := gp.Flatten(t.params)
	if err := t.opt.Step(x, grad); err != nil {
		return rep, err
	}
	if err := gp.SetFlat(t.params, x); err != nil {
		return rep, err
	}
	t.timing.UpdateTime += time.Since(start)
	t.steps++
	trainSteps.WithLabelValues(t.model.Name).Inc()
	return rep, nil
}

// gradient fills grad with ∂loss/∂params. Strategies without an analytic
// gradient are differentiated with central finite differences.
func (t *Trainer) gradient(b gp.Batch, grad []float64) (fairness.LossReport, error) {
	if g, ok := t.model.Gradienter(); ok {
		return g.Gradient(b, t.model.Hyperparameters(), grad)
	}
	x := gp.Flatten(t.params)
	var evalErr error
	loss := func(v []float64) float64 {
		if evalErr != nil {
			return math.NaN()
		}
		if err := gp.SetFlat(t.params, v); err != nil {
			evalErr = err
			return math.NaN()
		}
		rep, err := t.model.Inference(b, true)
		if err != nil {
			evalErr = err
			return math.NaN()
		}
		return rep.Loss
	}
	fd.Gradient(grad, loss, x, &fd.Settings{Formula: fd.Central})
	if err := gp.SetFlat(t.params, x); err != nil {
		return fairness.LossReport{}, err
	}
	if evalErr != nil {
		return fairness.LossReport{}, evalErr
	}
	return t.model.Inference(b, true)
}

// Predict returns P(y=1) and the latent variance for every row of x,
// evaluating row chunks in parallel.
func (t *Trainer) Predict(ctx context.Context, x *mat.Dense) (mean, variance *mat.Dense, err error) {
	start := time.Now()
	defer func() { t.timing.PredictionTime += time.Since(start) }()
	return Predict(ctx, t.model, x, t.cfg.BatchSize, t.cfg.Workers)
}

// Predict runs model.Prediction over chunks of at most chunk rows with up to
// workers chunks in flight.
func Predict(ctx context.Context, model *gp.Model, x *mat.Dense, chunk, workers int) (mean, variance *mat.Dense, err error) {
	n, c := x.Dims()
	if chunk <= 0 {
		chunk = n
	}
	outs := model.OutputDim()
	mean = mat.NewDense(n, outs, nil)
	variance = mat.NewDense(n, outs, nil)
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for lo := 0; lo < n; lo += chunk {
		lo := lo
		hi := min(lo+chunk, n)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m, v, err := model.Prediction(x.Slice(lo, hi, 0, c))
			if err != nil {
				return fmt.Errorf("rows %d-%d: %w", lo, hi, err)
			}
			// chunks write disjoint rows
			mean.Slice(lo, hi, 0, outs).(*mat.Dense).Copy(m)
			variance.Slice(lo, hi, 0, outs).(*mat.Dense).Copy(v)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return mean, variance, nil
}

// Evaluate predicts the split, reports the fairness metrics and the
// evaluation loss (plain likelihood, no debiasing).
func (t *Trainer) Evaluate(ctx context.Context, split dataset.Split, numGroups int) (fairness.Report, fairness.LossReport, error) {
	start := time.Now()
	defer func() { t.timing.EvaluationTime += time.Since(start) }()

	mean, _, err := Predict(ctx, t.model, split.X, t.cfg.BatchSize, t.cfg.Workers)
	if err != nil {
		return fairness.Report{}, fairness.LossReport{}, err
	}
	rep, err := fairness.Evaluate(mat.Col(nil, 0, mean), split.Labels, split.Groups, numGroups)
	if err != nil {
		return fairness.Report{}, fairness.LossReport{}, err
	}
	loss, err := t.model.Inference(split.All(), false)
	if err != nil {
		return rep, fairness.LossReport{}, err
	}
	for name, v := range rep.Metrics() {
		evalMetric.WithLabelValues(t.model.Name, name).Set(v)
	}
	t.log.Info("evaluation", "examples", split.Len(), "loss", loss.Loss, "accuracy", rep.Accuracy,
		"parity_gap", rep.ParityGap(), "tpr_gap", rep.TPRGap())
	return rep, loss, nil
}
