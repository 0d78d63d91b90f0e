package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"fairgp/dataset"
	"fairgp/fairness"
	"fairgp/gp"
	"fairgp/secure"
	"fairgp/train"
	"fairgp/utils"
)

func (a *app) predictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Restore exported weights and predict the test split",
		RunE:  a.runPredict,
	}
	cmd.Flags().StringVar(&a.weightsPath, "weights", "", "Weights file written by train")
	cmd.Flags().BoolVar(&a.encrypted, "encrypted", false, "Also score logistic regression over CKKS-encrypted inputs")
	cmd.Flags().IntVar(&a.encryptedRows, "encrypted_rows", 16, "Test rows scored under encryption")
	_ = cmd.MarkFlagRequired("weights")
	return cmd
}

func (a *app) runPredict(cmd *cobra.Command, _ []string) error {
	cfg, logger := a.cfg, a.logger
	saved, err := utils.LoadWeights(a.weightsPath)
	if err != nil {
		return err
	}
	ds, err := a.loadDataset()
	if err != nil {
		return err
	}
	model, err := a.restore(saved, ds)
	if err != nil {
		return err
	}

	mean, variance, err := train.Predict(cmd.Context(), model, ds.Test.X, cfg.BatchSize, cfg.Workers)
	if err != nil {
		return err
	}
	rep, err := fairness.Evaluate(mat.Col(nil, 0, mean), ds.Test.Labels, ds.Test.Groups, ds.NumGroups)
	if err != nil {
		return err
	}
	logger.Info("restored model", "run", saved.RunID, "inference", saved.Inference, "accuracy", rep.Accuracy,
		"parity_gap", rep.ParityGap(), "tpr_gap", rep.TPRGap())
	var adjusted *mat.Dense
	if cfg.PostProcess {
		if adjusted, err = a.postProcess(saved, ds, mean); err != nil {
			return err
		}
	}
	predsPath, err := a.savePredictions(utils.NewPredictions(saved.RunID, mean, variance, adjusted, ds.Test.Groups))
	if err != nil {
		return err
	}
	if predsPath != "" {
		logger.Info("saved predictions", "path", predsPath)
	}

	if a.encrypted {
		return a.scoreEncrypted(model, ds.Test.X)
	}
	return nil
}

// restore rebuilds the plain form of the saved strategy. Prediction does not
// depend on the debiasing tensor, so no fairness source is needed.
func (a *app) restore(saved *utils.ModelWeights, ds *dataset.Dataset) (*gp.Model, error) {
	cfg := a.cfg
	opts := cfg.Options()
	opts.Inference = train.BaselineName(saved.Inference)
	shape := gp.Shape{InputDim: ds.InputDim(), OutputDim: 1, NumTrain: ds.Train.Len()}
	if strings.Contains(opts.Inference, "variational") {
		z, err := dataset.Inducing(ds.Train, cfg.NumInducing)
		if err != nil {
			return nil, err
		}
		shape.Inducing = z
	}
	model, _, _, err := gp.Assemble(gp.DefaultRegistry(), opts, shape)
	if err != nil {
		return nil, err
	}
	if err := utils.RestoreParams(model.Parameters(), saved.Params); err != nil {
		return nil, err
	}
	return model, nil
}

// postProcess adjusts test probabilities with the saved debiasing tensor and
// the label prior of the training split.
func (a *app) postProcess(saved *utils.ModelWeights, ds *dataset.Dataset, mean *mat.Dense) (*mat.Dense, error) {
	if saved.Debias == nil {
		return nil, fmt.Errorf("weights of %s carry no debiasing tensor to post-process with", saved.Inference)
	}
	d, err := utils.WeightDataToDebias(saved.Debias)
	if err != nil {
		return nil, err
	}
	samples, err := ds.Train.Samples()
	if err != nil {
		return nil, err
	}
	rates, err := fairness.CollectRates(samples, ds.NumGroups)
	if err != nil {
		return nil, err
	}
	pred, err := fairness.NewPredictor(d, rates, fairness.PriorPolicy(a.cfg.LabelPrior), a.cfg.FixedPrior)
	if err != nil {
		return nil, err
	}
	n, _ := mean.Dims()
	adjusted := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		a, err := pred.Adjust(mean.At(i, 0), ds.Test.Groups[i])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		pos, _ := a.Normalized()
		adjusted.Set(i, 0, pos)
	}
	rep, err := fairness.Evaluate(mat.Col(nil, 0, adjusted), ds.Test.Labels, ds.Test.Groups, ds.NumGroups)
	if err != nil {
		return nil, err
	}
	a.logger.Info("post-processed", "prior", pred.Prior, "accuracy", rep.Accuracy, "parity_gap", rep.ParityGap())
	return adjusted, nil
}

func (a *app) scoreEncrypted(model *gp.Model, x *mat.Dense) error {
	lr, ok := model.Strategy.(*gp.LogReg)
	if !ok {
		return fmt.Errorf("encrypted scoring supports logreg models, got %s", model.Name)
	}
	n, c := x.Dims()
	rows := min(a.encryptedRows, n)
	if rows <= 0 {
		return nil
	}
	sub := x.Slice(0, rows, 0, c)

	params, err := secure.DefaultParameters()
	if err != nil {
		return err
	}
	scorer, err := secure.NewScorer(params, c+1)
	if err != nil {
		return err
	}
	w, b := lr.Weights(0)
	enc, err := scorer.Logits(sub, w, b)
	if err != nil {
		return err
	}
	logits, err := lr.Logits(sub)
	if err != nil {
		return err
	}
	plain := mat.Col(nil, 0, logits)
	worst := 0.0
	for i := range enc {
		worst = math.Max(worst, math.Abs(enc[i]-plain[i]))
	}
	a.logger.Info("encrypted scoring", "rows", rows, "max_abs_error", worst)
	return nil
}
