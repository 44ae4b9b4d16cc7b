package denoise

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"covbench/internal/domain"
	"covbench/internal/estimator"
)

// DefaultBootstrapDraws is the number of bootstrap resamples used when the
// configuration does not specify one.
const DefaultBootstrapDraws = 100

// BAHCConfig configures the bootstrap-averaged hierarchical clustering
// denoiser.
type BAHCConfig struct {
	Draws   int     // number of bootstrap resamples, >= 1
	Linkage Linkage // clustering linkage rule
}

// BAHC denoises a covariance matrix by averaging hierarchically filtered
// correlation matrices across bootstrap resamples of the in-sample window,
// then rescaling back to covariance with the window's standard deviations.
// All randomness comes from the seed passed to Denoise; the process-global
// rand source is never touched.
type BAHC struct {
	draws   int
	linkage Linkage

	// rawAverage skips the clustering filter and averages plain resampled
	// covariances instead. Diagnostic pathway, reachable only from tests.
	rawAverage bool
}

// NewBAHC validates the configuration and creates the denoiser.
func NewBAHC(cfg BAHCConfig) (*BAHC, error) {
	if cfg.Draws < 1 {
		return nil, &domain.ConfigurationError{Field: "bahc.draws", Reason: fmt.Sprintf("must be at least 1, got %d", cfg.Draws)}
	}
	linkage := cfg.Linkage
	if linkage == "" {
		linkage = LinkageAverage
	}
	if _, ok := ParseLinkage(string(linkage)); !ok {
		return nil, &domain.ConfigurationError{Field: "bahc.linkage", Reason: fmt.Sprintf("unknown linkage %q", linkage)}
	}
	return &BAHC{draws: cfg.Draws, linkage: linkage}, nil
}

func (b *BAHC) Name() domain.Method { return domain.MethodBAHC }

func (b *BAHC) Denoise(cov *mat.SymDense, window [][]float64, seed int64) (*mat.SymDense, error) {
	n, t, err := validate(cov, window)
	if err != nil {
		return nil, err
	}
	if t < 2 {
		return nil, &domain.InvalidInputError{Reason: "bootstrap needs at least 2 in-sample periods"}
	}

	stds := make([]float64, n)
	for i := 0; i < n; i++ {
		v := cov.At(i, i)
		if v <= 0 {
			return nil, &domain.InvalidInputError{Reason: fmt.Sprintf("non-positive variance for asset %d", i)}
		}
		stds[i] = math.Sqrt(v)
	}

	rng := rand.New(rand.NewSource(seed))
	acc := mat.NewSymDense(n, nil)
	resampled := make([][]float64, t)

	for d := 0; d < b.draws; d++ {
		for i := range resampled {
			resampled[i] = window[rng.Intn(t)]
		}

		resampleCov, err := estimator.SampleCovariance(resampled)
		if err != nil {
			return nil, fmt.Errorf("bootstrap draw %d: %w", d, err)
		}

		if b.rawAverage {
			addSym(acc, resampleCov)
			continue
		}

		corr, _, err := estimator.CorrelationFromCovariance(resampleCov)
		if err != nil {
			return nil, fmt.Errorf("bootstrap draw %d: %w", d, err)
		}
		addSym(acc, filterCorrelation(corr, b.linkage))
	}

	scaleSym(acc, 1.0/float64(b.draws))
	if b.rawAverage {
		return acc, nil
	}
	for i := 0; i < n; i++ {
		acc.SetSym(i, i, 1.0)
	}
	return estimator.CovarianceFromCorrelation(acc, stds), nil
}

func addSym(dst, src *mat.SymDense) {
	n := dst.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			dst.SetSym(i, j, dst.At(i, j)+src.At(i, j))
		}
	}
}

func scaleSym(m *mat.SymDense, f float64) {
	n := m.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			m.SetSym(i, j, m.At(i, j)*f)
		}
	}
}
