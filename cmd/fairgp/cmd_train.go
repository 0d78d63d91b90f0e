package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"fairgp/fairness"
	"fairgp/gp"
	"fairgp/train"
	"fairgp/utils"
)

func (a *app) trainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Train a model, evaluate it on the test split and export the results",
		RunE:  a.runTrain,
	}
}

func (a *app) runTrain(cmd *cobra.Command, _ []string) error {
	cfg := a.cfg
	runID := utils.NewRunID()
	logger := a.logger.With("run", runID)

	start := time.Now()
	ds, err := a.loadDataset()
	if err != nil {
		return err
	}
	loadTime := time.Since(start)

	p := train.Pipeline{
		Registry: gp.DefaultRegistry(),
		Options:  cfg.Options(),
		Source:   cfg.Source(logger),
		Train: train.Config{
			Epochs:      cfg.Epochs,
			BatchSize:   cfg.BatchSize,
			DisplayStep: cfg.DisplayStep,
			Seed:        cfg.Seed,
			Workers:     cfg.Workers,
			Logger:      logger,
		},
		PostProcess: cfg.PostProcess,
		Prior:       fairness.PriorPolicy(cfg.LabelPrior),
		FixedPrior:  cfg.FixedPrior,
		Logger:      logger,
	}
	if strings.Contains(cfg.Inference, "variational") {
		p.NumInducing = cfg.NumInducing
	}

	var out *train.Outcome
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return train.ServeMetrics(ctx, cfg.MetricsAddr, logger) })
	}
	g.Go(func() error {
		defer cancel()
		var err error
		out, err = p.Run(ctx, ds)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	out.Timing.DataLoadingTime = loadTime

	logger.Info("finished", "accuracy", out.Test.Accuracy, "parity_gap", out.Test.ParityGap(),
		"tpr_gap", out.Test.TPRGap(), "test_loss", out.TestLoss.Loss, "steps", out.Steps)
	for s := range out.Test.PredRate {
		logger.Info("test group", "group", s, "pred_rate", out.Test.PredRate[s], "base_rate", out.Test.BaseRate[s],
			"fpr", out.Test.PredOdds[s][0], "tpr", out.Test.PredOdds[s][1])
	}
	if err := a.export(logger, runID, out, ds.Test.Groups); err != nil {
		return err
	}
	utils.PrintTimingStats(&out.Timing, out.Steps)
	return nil
}

func (a *app) export(logger *slog.Logger, runID string, out *train.Outcome, groups []int) error {
	cfg := a.cfg
	if err := os.MkdirAll(cfg.SaveDir, 0755); err != nil {
		return fmt.Errorf("failed to create save dir: %w", err)
	}
	flagsPath := filepath.Join(cfg.SaveDir, fmt.Sprintf("flag_%s.yaml", cfg.ModelName))
	if err := utils.SaveConfig(flagsPath, *cfg); err != nil {
		return err
	}

	weights := &utils.ModelWeights{
		Version:   "1.0",
		RunID:     runID,
		Model:     cfg.ModelName,
		Inference: cfg.Inference,
		Created:   time.Now().UTC(),
		Params:    utils.ParamsToWeights(out.Model.Parameters()),
	}
	if out.Tensor != nil {
		weights.Debias = utils.DebiasToWeightData(out.Tensor)
	}
	weightsPath := filepath.Join(cfg.SaveDir, fmt.Sprintf("weights_%s.json", cfg.ModelName))
	if err := utils.SaveWeights(weightsPath, weights); err != nil {
		return err
	}

	predsPath, err := a.savePredictions(utils.NewPredictions(runID, out.Mean, out.Variance, out.Adjusted, groups))
	if err != nil {
		return err
	}
	logger.Info("exported", "config", flagsPath, "weights", weightsPath, "predictions", predsPath)
	return nil
}

// savePredictions writes preds to preds_path under save_dir and returns the
// file it wrote. An empty preds_path writes nothing.
func (a *app) savePredictions(preds *utils.Predictions) (string, error) {
	if a.cfg.PredsPath == "" {
		return "", nil
	}
	if err := os.MkdirAll(a.cfg.SaveDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create save dir: %w", err)
	}
	path := filepath.Join(a.cfg.SaveDir, a.cfg.PredsPath)
	return path, utils.SavePredictions(path, preds)
}
