package fairness

import "errors"

var (
	// ErrConfig marks a malformed fairness target or a stratum without support.
	ErrConfig = errors.New("fairness: configuration error")
	// ErrShape marks inputs whose lengths or indices do not line up.
	ErrShape = errors.New("fairness: shape error")
	// ErrDegenerate marks an empirical rate of exactly 0 or 1, which makes a
	// log-odds correction infinite.
	ErrDegenerate = errors.New("fairness: numerical degeneracy")
)
