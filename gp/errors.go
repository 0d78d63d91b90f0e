package gp

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig marks an unresolvable name or an inconsistent option.
	ErrConfig = errors.New("gp: configuration error")
	// ErrUnknownName marks a kernel, likelihood, inference or optimizer name
	// missing from the registry. It matches ErrConfig under errors.Is.
	ErrUnknownName = fmt.Errorf("%w: unknown name", ErrConfig)
	// ErrShape marks inputs whose dimensions do not match the model.
	ErrShape = errors.New("gp: shape error")
	// ErrNumeric marks a covariance that is not positive definite.
	ErrNumeric = errors.New("gp: numerical error")
)
