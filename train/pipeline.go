package train

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"

	"fairgp/dataset"
	"fairgp/fairness"
	"fairgp/gp"
	"fairgp/utils"
)

// Pipeline runs one experiment: base rate statistics, an optional baseline
// for equalized odds, assembly, training, evaluation and optional
// post-processing of the test predictions.
type Pipeline struct {
	Registry *gp.Registry
	// Options names the components. Source and Debias are filled in by Run.
	Options gp.Options
	// Source is nil for runs without a fairness criterion.
	Source      fairness.Source
	Train       Config
	NumInducing int
	// PostProcess adjusts test predictions with the source's tensor.
	PostProcess bool
	Prior       fairness.PriorPolicy
	FixedPrior  float64
	Logger      *slog.Logger
}

// Outcome is what a run produced.
type Outcome struct {
	Model     *gp.Model
	Rates     *fairness.BaseRateTable
	Tensor    *fairness.DebiasingTensor
	TrainLoss fairness.LossReport
	TestLoss  fairness.LossReport
	Test      fairness.Report
	Mean      *mat.Dense
	Variance  *mat.Dense
	// Adjusted and PostProcessed are set when the pipeline post-processes.
	Adjusted      *mat.Dense
	PostProcessed *fairness.Report
	Steps         int
	Timing        utils.TimingStats
}

// BaselineName strips the fairness prefix from an inference name.
func BaselineName(inference string) string {
	for _, p := range []string{"fair_", "eqodds_"} {
		if s, ok := strings.CutPrefix(inference, p); ok {
			return s
		}
	}
	return inference
}

func (p Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// Run executes the pipeline on ds.
func (p Pipeline) Run(ctx context.Context, ds *dataset.Dataset) (*Outcome, error) {
	log := p.logger()
	out := &Outcome{}
	begin := time.Now()

	start := time.Now()
	samples, err := ds.Train.Samples()
	if err != nil {
		return nil, err
	}
	rates, err := fairness.CollectRates(samples, ds.NumGroups)
	if err != nil {
		return nil, err
	}
	for g := 0; g < ds.NumGroups; g++ {
		log.Info("base rate", "group", g, "count", rates.Groups[g].Count, "rate", rates.BaseRate(g))
	}
	out.Timing.StatisticsTime = time.Since(start)

	if p.Source != nil && p.Source.NeedsPredictions() {
		start = time.Now()
		if rates, err = p.baselineOdds(ctx, ds, samples); err != nil {
			return nil, fmt.Errorf("baseline for %s: %w", p.Source.Name(), err)
		}
		out.Timing.BaselineTime = time.Since(start)
	}
	out.Rates = rates
	if p.Source != nil {
		if out.Tensor, err = p.Source.Params(rates); err != nil {
			return nil, err
		}
		log.Info("debiasing tensor", "criterion", p.Source.Name(), "values", out.Tensor.Values())
	}

	start = time.Now()
	opts := p.Options
	opts.Source, opts.Debias = p.Source, out.Tensor
	trainer, err := p.assemble(ds, opts)
	if err != nil {
		return nil, err
	}
	out.Model = trainer.model
	out.Timing.AssemblyTime = time.Since(start)

	if out.TrainLoss, err = trainer.Fit(ctx, ds.Train); err != nil {
		return nil, err
	}
	if out.Test, out.TestLoss, err = trainer.Evaluate(ctx, ds.Test, ds.NumGroups); err != nil {
		return nil, err
	}
	if out.Mean, out.Variance, err = trainer.Predict(ctx, ds.Test.X); err != nil {
		return nil, err
	}

	if p.PostProcess {
		start = time.Now()
		if err := p.postProcess(out, ds); err != nil {
			return nil, err
		}
		out.Timing.PostProcessTime = time.Since(start)
	}

	out.Steps = trainer.Steps()
	out.Timing.Add(trainer.Timing())
	out.Timing.TotalTime = time.Since(begin)
	return out, nil
}

func (p Pipeline) assemble(ds *dataset.Dataset, opts gp.Options) (*Trainer, error) {
	shape := gp.Shape{InputDim: ds.InputDim(), OutputDim: 1, NumTrain: ds.Train.Len()}
	if p.NumInducing > 0 {
		z, err := dataset.Inducing(ds.Train, p.NumInducing)
		if err != nil {
			return nil, err
		}
		shape.Inducing = z
	}
	model, _, opt, err := gp.Assemble(p.Registry, opts, shape)
	if err != nil {
		return nil, err
	}
	cfg := p.Train
	if cfg.Logger == nil {
		cfg.Logger = p.logger()
	}
	return New(model, opt, cfg)
}

// baselineOdds trains the plain counterpart of the configured strategy and
// collects P(ŷ=1 | s, y) from its training-set predictions.
func (p Pipeline) baselineOdds(ctx context.Context, ds *dataset.Dataset, samples []fairness.Sample) (*fairness.BaseRateTable, error) {
	opts := p.Options
	opts.Inference = BaselineName(opts.Inference)
	opts.Source, opts.Debias = nil, nil
	p.logger().Info("training baseline for prediction rates", "inference", opts.Inference)

	trainer, err := p.assemble(ds, opts)
	if err != nil {
		return nil, err
	}
	if _, err := trainer.Fit(ctx, ds.Train); err != nil {
		return nil, err
	}
	mean, _, err := trainer.Predict(ctx, ds.Train.X)
	if err != nil {
		return nil, err
	}
	preds := make([]int, ds.Train.Len())
	for i := range preds {
		if mean.At(i, 0) > 0.5 {
			preds[i] = 1
		}
	}
	return fairness.CollectOdds(samples, preds, ds.NumGroups)
}

func (p Pipeline) postProcess(out *Outcome, ds *dataset.Dataset) error {
	if out.Tensor == nil {
		return fmt.Errorf("%w: post-processing needs a fairness criterion", fairness.ErrConfig)
	}
	pred, err := fairness.NewPredictor(out.Tensor, out.Rates, p.Prior, p.FixedPrior)
	if err != nil {
		return err
	}
	pos, neg, err := pred.AdjustBatch(out.Mean, ds.Test.Groups)
	if err != nil {
		return err
	}
	n, _ := pos.Dims()
	adjusted := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		adjusted.Set(i, 0, pos.At(i, 0)/(pos.At(i, 0)+neg.At(i, 0)))
	}
	rep, err := fairness.Evaluate(mat.Col(nil, 0, adjusted), ds.Test.Labels, ds.Test.Groups, ds.NumGroups)
	if err != nil {
		return err
	}
	p.logger().Info("post-processed evaluation", "prior", pred.Prior, "accuracy", rep.Accuracy,
		"parity_gap", rep.ParityGap(), "tpr_gap", rep.TPRGap())
	out.Adjusted = adjusted
	out.PostProcessed = &rep
	return nil
}
