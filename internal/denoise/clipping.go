package denoise

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"covbench/internal/domain"
	"covbench/internal/estimator"
)

// ClippingConfig configures the eigenvalue clipping denoiser.
type ClippingConfig struct {
	// Threshold overrides the eigenvalue noise band. When 0, the
	// Marchenko-Pastur upper edge (1 + sqrt(N/T))^2 is used.
	Threshold float64
}

// Clipping denoises a covariance matrix by clipping the eigenvalues of its
// correlation matrix: eigenvalues inside the theoretical noise band are
// replaced by their average, which preserves the trace, and the matrix is
// reconstructed from the modified spectrum with the diagonal rescaled to 1
// before converting back to covariance.
type Clipping struct {
	threshold float64
}

// NewClipping validates the configuration and creates the denoiser.
func NewClipping(cfg ClippingConfig) (*Clipping, error) {
	if cfg.Threshold < 0 {
		return nil, &domain.ConfigurationError{Field: "clipping.eigenvalue_threshold", Reason: fmt.Sprintf("must be non-negative, got %g", cfg.Threshold)}
	}
	return &Clipping{threshold: cfg.Threshold}, nil
}

func (c *Clipping) Name() domain.Method { return domain.MethodClipping }

func (c *Clipping) Denoise(cov *mat.SymDense, window [][]float64, _ int64) (*mat.SymDense, error) {
	n, t, err := validate(cov, window)
	if err != nil {
		return nil, err
	}

	corr, stds, err := estimator.CorrelationFromCovariance(cov)
	if err != nil {
		return nil, err
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(corr, true); !ok {
		return nil, &domain.InvalidInputError{Reason: "eigen-decomposition of correlation matrix failed"}
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	edge := c.threshold
	if edge == 0 {
		q := float64(n) / float64(t)
		edge = (1.0 + math.Sqrt(q)) * (1.0 + math.Sqrt(q))
	}

	// Replace every eigenvalue inside the noise band with the band average,
	// which keeps the spectrum sum (the trace) unchanged.
	sum := 0.0
	count := 0
	for _, v := range vals {
		if v < edge {
			sum += v
			count++
		}
	}
	if count > 0 {
		replacement := sum / float64(count)
		for i, v := range vals {
			if v < edge {
				vals[i] = replacement
			}
		}
	}

	rebuilt := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := 0.0
			for k := 0; k < n; k++ {
				v += vals[k] * vecs.At(i, k) * vecs.At(j, k)
			}
			rebuilt.SetSym(i, j, v)
		}
	}

	// Restore correlation form: rescale the diagonal back to 1.
	diag := make([]float64, n)
	for i := 0; i < n; i++ {
		d := rebuilt.At(i, i)
		if d <= 0 {
			return nil, &domain.InvalidInputError{Reason: fmt.Sprintf("clipped matrix has non-positive diagonal at %d", i)}
		}
		diag[i] = math.Sqrt(d)
	}
	clipped := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		clipped.SetSym(i, i, 1.0)
		for j := i + 1; j < n; j++ {
			clipped.SetSym(i, j, rebuilt.At(i, j)/(diag[i]*diag[j]))
		}
	}

	return estimator.CovarianceFromCorrelation(clipped, stds), nil
}
