package utils

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"fairgp/fairness"
	"fairgp/gp"
)

// Config holds the settings of one run. Keys match the command line flags.
type Config struct {
	Kernel     string  `yaml:"kernel"`
	Inference  string  `yaml:"inf"`
	Likelihood string  `yaml:"lik"`
	Optimizer  string  `yaml:"optimizer"`
	LR         float64 `yaml:"lr"`

	UseBias          bool    `yaml:"use_bias"`
	L2KernelFactor   float64 `yaml:"lr_l2_kernel_factor"`
	L2BiasFactor     float64 `yaml:"lr_l2_bias_factor"`
	WeightInitStdDev float64 `yaml:"weight_init_std"`

	// Criterion is demographic_parity or equalized_odds. When empty it
	// follows the inference name (fair_* or eqodds_*).
	Criterion   string     `yaml:"criterion"`
	TargetRate  float64    `yaml:"target_rate"`
	TargetTPR   [2]float64 `yaml:"target_tpr,flow"`
	Clip        float64    `yaml:"clip"`
	LabelPrior  string     `yaml:"label_prior"`
	FixedPrior  float64    `yaml:"fixed_prior"`
	PostProcess bool       `yaml:"post_process"`

	BatchSize   int     `yaml:"batch_size"`
	Epochs      int     `yaml:"epochs"`
	NumInducing int     `yaml:"num_inducing"`
	Lengthscale float64 `yaml:"lengthscale"`
	IsARD       bool    `yaml:"is_ard"`
	LatentNoise float64 `yaml:"latent_noise"`
	QuadPoints  int     `yaml:"quad_points"`
	DisplayStep int     `yaml:"display_step"`
	Seed        uint64  `yaml:"seed"`
	Workers     int     `yaml:"workers"`

	DatasetPath string `yaml:"dataset_path"`
	Synthetic   bool   `yaml:"synthetic"`
	// SAsInput appends the sensitive group as an extra input column.
	SAsInput  bool   `yaml:"s_as_input"`
	SaveDir   string `yaml:"save_dir"`
	PredsPath string `yaml:"preds_path"`
	ModelName string `yaml:"model_name"`

	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	LogJSON     bool   `yaml:"log_json"`
}

// DefaultConfig returns the settings used when neither a file nor a flag
// sets a key.
func DefaultConfig() Config {
	o := gp.DefaultOptions()
	return Config{
		Kernel:           o.Kernel,
		Inference:        o.Inference,
		Likelihood:       o.Likelihood,
		Optimizer:        o.Optimizer,
		LR:               o.LearningRate,
		UseBias:          o.UseBias,
		L2KernelFactor:   o.L2KernelFactor,
		L2BiasFactor:     o.L2BiasFactor,
		WeightInitStdDev: o.WeightInitStdDev,
		TargetRate:       0.5,
		TargetTPR:        [2]float64{0.3, 0.7},
		LabelPrior:       string(fairness.PriorEmpirical),
		FixedPrior:       0.5,
		BatchSize:        500,
		Epochs:           100,
		NumInducing:      50,
		Lengthscale:      o.Lengthscale,
		IsARD:            o.IsARD,
		LatentNoise:      o.LatentNoise,
		QuadPoints:       o.QuadPoints,
		DisplayStep:      10,
		Seed:             o.Seed,
		Synthetic:        true,
		SaveDir:          ".",
		ModelName:        "local",
		LogLevel:         "info",
	}
}

// LoadConfig reads a YAML file over the defaults. Keys missing from the
// file keep their default value.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes the resolved configuration as YAML.
func SaveConfig(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// ResolvedCriterion returns the fairness criterion of the run, or "" for a
// run without one.
func (c Config) ResolvedCriterion() string {
	if c.Criterion != "" {
		return c.Criterion
	}
	switch {
	case strings.HasPrefix(c.Inference, "fair_"):
		return "demographic_parity"
	case strings.HasPrefix(c.Inference, "eqodds_"):
		return "equalized_odds"
	}
	return ""
}

// ValidateConfig validates the run configuration
func ValidateConfig(config *Config) error {
	if config.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if config.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive")
	}
	if !(config.LR > 0) {
		return fmt.Errorf("learning rate must be positive")
	}
	if config.Inference != "" && strings.Contains(config.Inference, "variational") && config.NumInducing <= 0 {
		return fmt.Errorf("variational inference needs num_inducing > 0")
	}
	if !config.Synthetic && config.DatasetPath == "" {
		return fmt.Errorf("dataset_path is required unless synthetic is set")
	}
	if config.ModelName == "" {
		return fmt.Errorf("model name must not be empty")
	}

	criterion := config.ResolvedCriterion()
	switch criterion {
	case "", "demographic_parity", "equalized_odds":
	default:
		return fmt.Errorf("unknown fairness criterion %q", criterion)
	}
	implied := Config{Inference: config.Inference}.ResolvedCriterion()
	if implied != "" && implied != criterion {
		return fmt.Errorf("inference %s trains for %s, criterion is %s", config.Inference, implied, criterion)
	}
	if config.PostProcess && criterion == "" {
		return fmt.Errorf("post_process needs a fairness criterion")
	}
	switch fairness.PriorPolicy(config.LabelPrior) {
	case fairness.PriorEmpirical, fairness.PriorUniform, fairness.PriorFixed:
	default:
		return fmt.Errorf("label prior must be empirical, uniform or fixed, got %q", config.LabelPrior)
	}
	if _, err := ParseLevel(config.LogLevel); err != nil {
		return err
	}
	return nil
}

// Source builds the fairness criterion, or nil for a run without one.
func (c Config) Source(logger *slog.Logger) fairness.Source {
	switch c.ResolvedCriterion() {
	case "demographic_parity":
		return fairness.DemographicParity{TargetRate: c.TargetRate, Clip: c.Clip, Logger: logger}
	case "equalized_odds":
		return fairness.EqualizedOdds{TargetTPR: c.TargetTPR, Clip: c.Clip, Logger: logger}
	}
	return nil
}

// Options converts the configuration for model assembly.
func (c Config) Options() gp.Options {
	o := gp.DefaultOptions()
	o.Kernel = c.Kernel
	o.Likelihood = c.Likelihood
	o.Inference = c.Inference
	o.Optimizer = c.Optimizer
	o.LearningRate = c.LR
	o.Seed = c.Seed
	o.Lengthscale = c.Lengthscale
	o.IsARD = c.IsARD
	o.UseBias = c.UseBias
	o.L2KernelFactor = c.L2KernelFactor
	o.L2BiasFactor = c.L2BiasFactor
	o.WeightInitStdDev = c.WeightInitStdDev
	o.LatentNoise = c.LatentNoise
	o.QuadPoints = c.QuadPoints
	return o
}
