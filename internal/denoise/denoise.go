// Package denoise implements covariance matrix denoising transforms:
// the identity baseline, bootstrap-averaged hierarchical clustering (BAHC),
// and eigenvalue clipping of the correlation matrix.
package denoise

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"covbench/internal/domain"
)

// Denoiser transforms a raw sample covariance matrix into a denoised one.
// The in-sample return window that produced the matrix is passed alongside;
// BAHC resamples it, clipping reads its length, the baseline checks it for
// degeneracy. Randomized methods must derive all randomness from seed, so the
// same (matrix, window, seed) triple yields bit-identical output.
type Denoiser interface {
	Name() domain.Method
	Denoise(cov *mat.SymDense, window [][]float64, seed int64) (*mat.SymDense, error)
}

// validate checks the shared input contract: a square symmetric matrix whose
// dimension matches the window's asset count, with finite entries throughout.
func validate(cov *mat.SymDense, window [][]float64) (n, t int, err error) {
	if cov == nil {
		return 0, 0, &domain.InvalidInputError{Reason: "nil covariance matrix"}
	}
	n = cov.SymmetricDim()
	t = len(window)
	if n == 0 {
		return 0, 0, &domain.InvalidInputError{Reason: "empty covariance matrix"}
	}
	if t == 0 {
		return 0, 0, &domain.InvalidInputError{Reason: "empty in-sample window"}
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := cov.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, 0, &domain.InvalidInputError{Reason: fmt.Sprintf("non-finite covariance at (%d,%d)", i, j)}
			}
		}
	}
	for ti, row := range window {
		if len(row) != n {
			return 0, 0, &domain.InvalidInputError{Reason: fmt.Sprintf("window row %d has %d values, expected %d", ti, len(row), n)}
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, 0, &domain.InvalidInputError{Reason: fmt.Sprintf("non-finite return at (%d,%d)", ti, j)}
			}
		}
	}
	return n, t, nil
}

// Identity is the control condition: it returns the sample covariance matrix
// unchanged. Unlike the clipping and BAHC estimators it cannot cope with more
// assets than observations, so that regime is reported as an error.
type Identity struct{}

// NewIdentity creates the baseline pass-through denoiser.
func NewIdentity() Identity { return Identity{} }

func (Identity) Name() domain.Method { return domain.MethodBaseline }

func (Identity) Denoise(cov *mat.SymDense, window [][]float64, _ int64) (*mat.SymDense, error) {
	n, t, err := validate(cov, window)
	if err != nil {
		return nil, err
	}
	if n > t {
		return nil, &domain.DegenerateEstimationError{Assets: n, Samples: t}
	}
	out := mat.NewSymDense(n, nil)
	out.CopySym(cov)
	return out, nil
}
