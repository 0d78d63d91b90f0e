// Package gp assembles probabilistic binary classifiers from named parts.
//
// A Registry maps configuration names to kernels (rbf, linear), likelihoods
// (logistic), inference strategies and optimizers. The strategies are a
// linear logistic regression and a sparse variational GP, each in a plain
// form and in fair forms that train on the reweighted likelihood of package
// fairness:
//
//	logreg          variational
//	fair_logreg     fair_variational      demographic parity
//	eqodds_logreg   eqodds_variational    equalized odds
//
// Assemble resolves the names and returns the model, its hyperparameters
// and the optimizer.
package gp
