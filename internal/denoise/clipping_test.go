package denoise

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"covbench/internal/domain"
	"covbench/internal/solver"
)

func TestNewClipping_RejectsNegativeThreshold(t *testing.T) {
	_, err := NewClipping(ClippingConfig{Threshold: -1})
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestClipping_EquicorrelatedMatrixUnchanged(t *testing.T) {
	// Unit variances with pairwise correlation 0.5: the spectrum is
	// {2.0, 0.5, 0.5}. With N=3, T=100 the Marchenko-Pastur edge is about
	// 1.38, so both noise eigenvalues are replaced by their own mean and
	// the matrix comes back unchanged.
	cov := mat.NewSymDense(3, []float64{
		1.0, 0.5, 0.5,
		0.5, 1.0, 0.5,
		0.5, 0.5, 1.0,
	})

	c, err := NewClipping(ClippingConfig{})
	require.NoError(t, err)

	out, err := c.Denoise(cov, zeroWindow(100, 3), 0)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.InDelta(t, cov.At(i, j), out.At(i, j), 1e-10)
		}
	}
}

func TestClipping_FullClipYieldsDiagonalCovariance(t *testing.T) {
	// A threshold above every eigenvalue averages the whole spectrum. For a
	// correlation matrix that average is 1, so the reconstruction is the
	// identity and the covariance collapses to its diagonal.
	cov := mat.NewSymDense(3, []float64{
		4.0, 1.2, -0.6,
		1.2, 9.0, 2.1,
		-0.6, 2.1, 1.0,
	})

	c, err := NewClipping(ClippingConfig{Threshold: 100})
	require.NoError(t, err)

	out, err := c.Denoise(cov, zeroWindow(50, 3), 0)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.InDelta(t, cov.At(i, i), out.At(i, i), 1e-10)
		for j := i + 1; j < 3; j++ {
			assert.InDelta(t, 0.0, out.At(i, j), 1e-10)
		}
	}
}

func TestClipping_NoiselessMatrixGivesSameWeightsAsBaseline(t *testing.T) {
	// 3 assets, 100 periods, constant correlation 0.5, equal variances:
	// there is no noise to remove, so clipping and the baseline must agree,
	// and the minimum-variance weights are 1/3 each.
	cov := mat.NewSymDense(3, []float64{
		0.04, 0.02, 0.02,
		0.02, 0.04, 0.02,
		0.02, 0.02, 0.04,
	})
	window := zeroWindow(100, 3)

	base, err := NewIdentity().Denoise(cov, window, 0)
	require.NoError(t, err)
	c, err := NewClipping(ClippingConfig{})
	require.NoError(t, err)
	clipped, err := c.Denoise(cov, window, 0)
	require.NoError(t, err)

	s := solver.New(0)
	baseW, err := s.Weights(base)
	require.NoError(t, err)
	clippedW, err := s.Weights(clipped)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.InDelta(t, 1.0/3.0, baseW[i], 1e-9)
		assert.InDelta(t, baseW[i], clippedW[i], 1e-9)
	}
}

func TestClipping_PreservesVariancesAndSymmetry(t *testing.T) {
	cov := mat.NewSymDense(4, []float64{
		2.0, 0.3, 0.1, -0.2,
		0.3, 1.5, 0.4, 0.0,
		0.1, 0.4, 1.0, 0.2,
		-0.2, 0.0, 0.2, 0.8,
	})

	c, err := NewClipping(ClippingConfig{})
	require.NoError(t, err)

	out, err := c.Denoise(cov, zeroWindow(60, 4), 0)
	require.NoError(t, err)

	n := out.SymmetricDim()
	require.Equal(t, 4, n)
	for i := 0; i < n; i++ {
		// Rescaling the correlation diagonal to 1 keeps the variances.
		assert.InDelta(t, cov.At(i, i), out.At(i, i), 1e-12)
		for j := 0; j < n; j++ {
			assert.Equal(t, out.At(i, j), out.At(j, i))
			assert.False(t, math.IsNaN(out.At(i, j)))
		}
	}
}
