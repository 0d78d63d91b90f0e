package tensor

import "math"

// LogSumExp computes log(sum(exp(vals))) by shifting with the maximum first,
// the same trick Softmax uses to keep exponentials in range.
// An empty input or one where every value is -Inf returns -Inf.
func LogSumExp(vals ...float64) float64 {
	if len(vals) == 0 {
		return math.Inf(-1)
	}
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	if math.IsInf(m, 0) {
		return m
	}
	sum := 0.0
	for _, v := range vals {
		sum += math.Exp(v - m)
	}
	return m + math.Log(sum)
}

// LogSigmoid returns log(1/(1+exp(-x))) without overflow for large |x|.
func LogSigmoid(x float64) float64 {
	return -Softplus(-x)
}

// Softplus returns log(1+exp(x)).
func Softplus(x float64) float64 {
	if x > 0 {
		return x + math.Log1p(math.Exp(-x))
	}
	return math.Log1p(math.Exp(x))
}

// Sigmoid is the logistic function.
func Sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// Log1mExp returns log(1-exp(-a)) for a >= 0. It returns -Inf at a == 0
// and NaN for negative a.
func Log1mExp(a float64) float64 {
	switch {
	case a < 0:
		return math.NaN()
	case a == 0:
		return math.Inf(-1)
	case a <= math.Ln2:
		return math.Log(-math.Expm1(-a))
	default:
		return math.Log1p(-math.Exp(-a))
	}
}
