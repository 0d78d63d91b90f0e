package gp

import "fmt"

// Param is a named block of trainable values. Optimizers update Value in
// place; the slice itself is never reallocated after construction.
type Param struct {
	Name  string
	Value []float64
}

// NewParam copies init into a new Param.
func NewParam(name string, init ...float64) *Param {
	return &Param{Name: name, Value: append([]float64(nil), init...)}
}

// NumValues counts the scalar values across params.
func NumValues(params []*Param) int {
	n := 0
	for _, p := range params {
		n += len(p.Value)
	}
	return n
}

// Flatten concatenates the values of params in order.
func Flatten(params []*Param) []float64 {
	out := make([]float64, 0, NumValues(params))
	for _, p := range params {
		out = append(out, p.Value...)
	}
	return out
}

// SetFlat writes x back into params in the order Flatten produced it.
func SetFlat(params []*Param, x []float64) error {
	if len(x) != NumValues(params) {
		return fmt.Errorf("%w: %d values for %d parameters", ErrShape, len(x), NumValues(params))
	}
	k := 0
	for _, p := range params {
		k += copy(p.Value, x[k:k+len(p.Value)])
	}
	return nil
}

// Names lists parameter names, useful for logging the optimisation order.
func Names(params []*Param) []string {
	out := make([]string, len(params))
	for i, p := range params {
		out[i] = p.Name
	}
	return out
}
