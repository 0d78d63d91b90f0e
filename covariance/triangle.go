// Package covariance packs lower-triangular covariance factors into compact
// vectors and back, and evaluates log-determinants from Cholesky factors.
//
// A triangle vector of an N×N lower-triangular matrix holds the N(N+1)/2
// entries on and below the diagonal in row-major order:
//
//	| a . . |
//	| b c . |   ->   [a b c d e f]
//	| d e f |
package covariance

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrShape marks a vector whose length is not N(N+1)/2 for the requested N.
	ErrShape = errors.New("covariance: shape error")
	// ErrNotPositive marks a Cholesky factor with a non-positive diagonal entry.
	ErrNotPositive = errors.New("covariance: non-positive Cholesky diagonal")
)

// TriVecLen returns N(N+1)/2.
func TriVecLen(n int) int { return n * (n + 1) / 2 }

// TriDim inverts TriVecLen. It fails when m is not a triangular number.
func TriDim(m int) (int, error) {
	if m < 0 {
		return 0, fmt.Errorf("%w: negative length %d", ErrShape, m)
	}
	n := int(math.Floor(0.5*math.Sqrt(float64(m)*8+1) - 0.5))
	if TriVecLen(n) != m {
		return 0, fmt.Errorf("%w: %d is not a triangular number", ErrShape, m)
	}
	return n, nil
}

// VecToTri unpacks v into an n×n lower-triangular matrix. The strict upper
// triangle is zero. An empty vector with n=0 gives an empty triangle.
func VecToTri(v []float64, n int) (*mat.TriDense, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative dimension %d", ErrShape, n)
	}
	if len(v) != TriVecLen(n) {
		return nil, fmt.Errorf("%w: vector of length %d cannot fill a %d×%d triangle (need %d)",
			ErrShape, len(v), n, n, TriVecLen(n))
	}
	if n == 0 {
		// mat.NewTriDense panics on a zero dimension.
		return &mat.TriDense{}, nil
	}
	t := mat.NewTriDense(n, mat.Lower, nil)
	k := 0
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			t.SetTri(i, j, v[k])
			k++
		}
	}
	return t, nil
}

// TriToVec packs the lower triangle of t, diagonal included, in the order
// VecToTri reads it.
func TriToVec(t mat.Matrix) []float64 {
	n, _ := t.Dims()
	out := make([]float64, 0, TriVecLen(n))
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			out = append(out, t.At(i, j))
		}
	}
	return out
}

// VecsToTris unpacks every row of vectors (D×M) into its own triangle.
func VecsToTris(vectors mat.Matrix) ([]*mat.TriDense, error) {
	d, m := vectors.Dims()
	n, err := TriDim(m)
	if err != nil {
		return nil, err
	}
	out := make([]*mat.TriDense, d)
	row := make([]float64, m)
	for i := 0; i < d; i++ {
		mat.Row(row, i, vectors)
		if out[i], err = VecToTri(row, n); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// LogCholeskyDet returns log|L·Lᵀ| = 2·Σ log L_ii for a lower Cholesky factor.
func LogCholeskyDet(chol mat.Matrix) (float64, error) {
	n, c := chol.Dims()
	if n != c {
		return 0, fmt.Errorf("%w: Cholesky factor must be square, got %d×%d", ErrShape, n, c)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		d := chol.At(i, i)
		if !(d > 0) {
			return math.Inf(-1), fmt.Errorf("%w: L[%d,%d] = %v", ErrNotPositive, i, i, d)
		}
		sum += math.Log(d)
	}
	return 2 * sum, nil
}

// MatSquare returns L·Lᵀ.
func MatSquare(l mat.Matrix) *mat.SymDense {
	n, _ := l.Dims()
	out := mat.NewSymDense(n, nil)
	out.SymOuterK(1, l)
	return out
}

// DiagMul returns the diagonal of a·bᵀ without forming the product.
func DiagMul(a, b mat.Matrix) ([]float64, error) {
	ra, ca := a.Dims()
	rb, cb := b.Dims()
	if ra != rb || ca != cb {
		return nil, fmt.Errorf("%w: %d×%d vs %d×%d", ErrShape, ra, ca, rb, cb)
	}
	out := make([]float64, ra)
	for i := 0; i < ra; i++ {
		for j := 0; j < ca; j++ {
			out[i] += a.At(i, j) * b.At(i, j)
		}
	}
	return out, nil
}
