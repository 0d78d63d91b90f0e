package gp

import "fairgp/fairness"

// Options carries every setting a registered constructor may read. It is
// assembled once from the run configuration and passed by value.
type Options struct {
	Kernel     string
	Likelihood string
	Inference  string
	Optimizer  string

	LearningRate float64
	Seed         uint64

	// rbf kernel
	Lengthscale float64
	IsARD       bool

	// logistic regression
	UseBias          bool
	L2KernelFactor   float64
	L2BiasFactor     float64
	WeightInitStdDev float64

	// variational inference
	LatentNoise float64
	QuadPoints  int

	// Source names the criterion a fair strategy trains for and Debias is
	// the tensor it produced. Both are nil for the baseline strategies.
	Source fairness.Source
	Debias *fairness.DebiasingTensor
}

// DefaultOptions mirrors the defaults of the command line.
func DefaultOptions() Options {
	return Options{
		Kernel:           "rbf",
		Likelihood:       "logistic",
		Inference:        "logreg",
		Optimizer:        "adam",
		LearningRate:     0.01,
		Lengthscale:      1,
		IsARD:            true,
		UseBias:          true,
		L2KernelFactor:   0.1,
		L2BiasFactor:     0.1,
		WeightInitStdDev: 0.01,
		LatentNoise:      1e-3,
		QuadPoints:       20,
		Seed:             1,
	}
}
