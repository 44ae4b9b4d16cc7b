// Package solver computes global minimum-variance portfolio weights.
package solver

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"covbench/internal/domain"
)

// DefaultMaxCond is the condition-number threshold above which a covariance
// matrix is treated as numerically singular.
const DefaultMaxCond = 1e12

// MinVariance solves for the global minimum-variance weights
// w = C^-1 1 / (1' C^-1 1), the closed form of min w'Cw subject to sum(w)=1.
type MinVariance struct {
	maxCond float64
}

// New creates a solver. maxCond <= 0 selects DefaultMaxCond.
func New(maxCond float64) *MinVariance {
	if maxCond <= 0 {
		maxCond = DefaultMaxCond
	}
	return &MinVariance{maxCond: maxCond}
}

// Weights computes the minimum-variance weight vector for one covariance
// matrix. A matrix that fails to factorize, or whose condition number exceeds
// the threshold, yields a SingularMatrixError; recovery (skip, pseudo-inverse,
// abort) is the caller's decision.
func (s *MinVariance) Weights(cov *mat.SymDense) ([]float64, error) {
	if cov == nil || cov.SymmetricDim() == 0 {
		return nil, &domain.InvalidInputError{Reason: "empty covariance matrix"}
	}
	n := cov.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := cov.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &domain.InvalidInputError{Reason: "non-finite covariance matrix"}
			}
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok {
		return nil, &domain.SingularMatrixError{Cond: math.Inf(1)}
	}
	if cond := chol.Cond(); cond > s.maxCond {
		return nil, &domain.SingularMatrixError{Cond: cond}
	}

	ones := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		ones.SetVec(i, 1.0)
	}

	var x mat.VecDense
	if err := chol.SolveVecTo(&x, ones); err != nil {
		return nil, &domain.SingularMatrixError{Cond: math.Inf(1)}
	}

	total := 0.0
	for i := 0; i < n; i++ {
		total += x.AtVec(i)
	}
	if total == 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return nil, &domain.SingularMatrixError{Cond: math.Inf(1)}
	}

	weights := make([]float64, n)
	for i := 0; i < n; i++ {
		weights[i] = x.AtVec(i) / total
	}
	return weights, nil
}
