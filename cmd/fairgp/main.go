// fairgp trains fairness-aware probabilistic classifiers.
//
// Usage:
//
//	fairgp train --inf=fair_logreg --target_rate=0.5 --epochs=100
//	fairgp stats --config=flag_local.yaml
//	fairgp predict --weights=weights_local.json --encrypted
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"fairgp/dataset"
	"fairgp/utils"
)

// app carries the state of one command tree. Flags bind to its fields, so a
// fresh tree starts from clean flag state.
type app struct {
	cfg        *utils.Config
	configPath string
	targetTPR  []float64
	logger     *slog.Logger

	weightsPath   string
	encrypted     bool
	encryptedRows int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg := utils.DefaultConfig()
	if err := newRootCmd(&cfg).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree with every flag bound to cfg.
func newRootCmd(cfg *utils.Config) *cobra.Command {
	a := &app{cfg: cfg}
	root := &cobra.Command{
		Use:               "fairgp",
		Short:             "Fairness-aware logistic regression and sparse GP classification",
		SilenceUsage:      true,
		PersistentPreRunE: a.loadConfig,
	}

	f := root.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "YAML file with run settings; flags override it")

	f.StringVar(&cfg.Kernel, "kernel", cfg.Kernel, "Kernel: rbf, linear")
	f.StringVar(&cfg.Inference, "inf", cfg.Inference, "Inference: logreg, variational and their fair_/eqodds_ forms")
	f.StringVar(&cfg.Likelihood, "lik", cfg.Likelihood, "Likelihood")
	f.StringVar(&cfg.Optimizer, "optimizer", cfg.Optimizer, "Optimizer: sgd, adagrad, adam")
	f.Float64Var(&cfg.LR, "lr", cfg.LR, "Learning rate")

	f.BoolVar(&cfg.UseBias, "use_bias", cfg.UseBias, "Fit a bias in logistic regression")
	f.Float64Var(&cfg.L2KernelFactor, "lr_l2_kernel_factor", cfg.L2KernelFactor, "L2 factor on the weights")
	f.Float64Var(&cfg.L2BiasFactor, "lr_l2_bias_factor", cfg.L2BiasFactor, "L2 factor on the bias")
	f.Float64Var(&cfg.WeightInitStdDev, "weight_init_std", cfg.WeightInitStdDev, "Std dev of the initial weights")

	f.StringVar(&cfg.Criterion, "criterion", cfg.Criterion, "demographic_parity or equalized_odds; defaults from --inf")
	f.Float64Var(&cfg.TargetRate, "target_rate", cfg.TargetRate, "Target positive rate for demographic parity")
	f.Float64SliceVar(&a.targetTPR, "target_tpr", cfg.TargetTPR[:], "Target FPR,TPR for equalized odds")
	f.Float64Var(&cfg.Clip, "clip", cfg.Clip, "Clamp empirical rates into [clip, 1-clip]; 0 rejects degenerate rates")
	f.StringVar(&cfg.LabelPrior, "label_prior", cfg.LabelPrior, "Prior over the true label: empirical, uniform, fixed")
	f.Float64Var(&cfg.FixedPrior, "fixed_prior", cfg.FixedPrior, "P(y=1) for --label_prior=fixed")
	f.BoolVar(&cfg.PostProcess, "post_process", cfg.PostProcess, "Adjust test predictions with the debiasing tensor")

	f.IntVar(&cfg.BatchSize, "batch_size", cfg.BatchSize, "Batch size")
	f.IntVar(&cfg.Epochs, "epochs", cfg.Epochs, "Number of passes through the data")
	f.IntVar(&cfg.NumInducing, "num_inducing", cfg.NumInducing, "Number of inducing points")
	f.Float64Var(&cfg.Lengthscale, "lengthscale", cfg.Lengthscale, "Initial lengthscale")
	f.BoolVar(&cfg.IsARD, "is_ard", cfg.IsARD, "One lengthscale per input dimension")
	f.Float64Var(&cfg.LatentNoise, "latent_noise", cfg.LatentNoise, "Jitter added to kernel matrices")
	f.IntVar(&cfg.QuadPoints, "quad_points", cfg.QuadPoints, "Gauss-Hermite points for expected log-likelihoods")
	f.IntVar(&cfg.DisplayStep, "display_step", cfg.DisplayStep, "Log progress every this many epochs")
	f.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed")
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "Parallel prediction workers; 0 uses GOMAXPROCS")

	f.StringVar(&cfg.DatasetPath, "dataset_path", cfg.DatasetPath, "JSON dataset file")
	f.BoolVar(&cfg.Synthetic, "synthetic", cfg.Synthetic, "Use a generated two-group dataset")
	f.BoolVar(&cfg.SAsInput, "s_as_input", cfg.SAsInput, "Append the sensitive group to the model inputs")
	f.StringVar(&cfg.SaveDir, "save_dir", cfg.SaveDir, "Directory for the resolved config, weights and predictions")
	f.StringVar(&cfg.PredsPath, "preds_path", cfg.PredsPath, "Predictions file under save_dir; empty skips it")
	f.StringVar(&cfg.ModelName, "model_name", cfg.ModelName, "Name used in output files")

	f.StringVar(&cfg.MetricsAddr, "metrics_addr", cfg.MetricsAddr, "Serve Prometheus metrics on this address while training")
	f.StringVar(&cfg.LogLevel, "log_level", cfg.LogLevel, "debug, info, warn or error")
	f.BoolVar(&cfg.LogJSON, "log_json", cfg.LogJSON, "Log JSON lines")

	root.AddCommand(a.trainCmd(), a.statsCmd(), a.predictCmd())
	return root
}

// loadConfig layers the config file under the explicitly set flags.
func (a *app) loadConfig(cmd *cobra.Command, _ []string) error {
	changed := map[string]string{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = f.Value.String() })

	if a.configPath != "" {
		loaded, err := utils.LoadConfig(a.configPath)
		if err != nil {
			return err
		}
		*a.cfg = loaded
	}
	for name, v := range changed {
		if name == "target_tpr" || name == "config" {
			continue
		}
		if err := cmd.Flags().Set(name, v); err != nil {
			return fmt.Errorf("flag --%s: %w", name, err)
		}
	}
	if _, ok := changed["target_tpr"]; ok {
		if len(a.targetTPR) != 2 {
			return fmt.Errorf("--target_tpr needs two values (FPR,TPR), got %d", len(a.targetTPR))
		}
		copy(a.cfg.TargetTPR[:], a.targetTPR)
	}

	if err := utils.ValidateConfig(a.cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	var err error
	if a.logger, err = utils.NewLogger(cmd.ErrOrStderr(), a.cfg.LogLevel, a.cfg.LogJSON); err != nil {
		return err
	}
	slog.SetDefault(a.logger)
	return nil
}

func (a *app) loadDataset() (*dataset.Dataset, error) {
	var (
		ds  *dataset.Dataset
		err error
	)
	if a.cfg.Synthetic {
		syn := dataset.DefaultSynthetic()
		syn.Seed = a.cfg.Seed
		a.logger.Info("generating synthetic dataset", "train", syn.NumTrain, "test", syn.NumTest, "seed", syn.Seed)
		ds, err = syn.Generate()
	} else {
		a.logger.Info("loading dataset", "path", a.cfg.DatasetPath)
		ds, err = dataset.Load(a.cfg.DatasetPath)
	}
	if err != nil {
		return nil, err
	}
	if a.cfg.SAsInput {
		ds = ds.WithGroupInput()
	}
	return ds, nil
}
