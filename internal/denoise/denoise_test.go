package denoise

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"covbench/internal/domain"
)

func zeroWindow(t, n int) [][]float64 {
	rows := make([][]float64, t)
	for i := range rows {
		rows[i] = make([]float64, n)
	}
	return rows
}

func TestIdentity_ReturnsMatrixUnchanged(t *testing.T) {
	cov := mat.NewSymDense(2, []float64{0.04, 0.01, 0.01, 0.03})
	id := NewIdentity()

	out, err := id.Denoise(cov, zeroWindow(10, 2), 1)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			assert.Equal(t, cov.At(i, j), out.At(i, j))
		}
	}

	// The output is a copy: mutating it leaves the input untouched.
	out.SetSym(0, 0, 99)
	assert.Equal(t, 0.04, cov.At(0, 0))
}

func TestIdentity_DegenerateWhenAssetsExceedSamples(t *testing.T) {
	cov := mat.NewSymDense(3, []float64{
		0.04, 0.01, 0.00,
		0.01, 0.03, 0.01,
		0.00, 0.01, 0.02,
	})
	id := NewIdentity()

	_, err := id.Denoise(cov, zeroWindow(2, 3), 1)
	var degenerate *domain.DegenerateEstimationError
	require.ErrorAs(t, err, &degenerate)
	assert.Equal(t, 3, degenerate.Assets)
	assert.Equal(t, 2, degenerate.Samples)
}

func TestValidate_RejectsNonFiniteMatrix(t *testing.T) {
	cov := mat.NewSymDense(2, []float64{0.04, math.NaN(), math.NaN(), 0.03})
	id := NewIdentity()

	_, err := id.Denoise(cov, zeroWindow(10, 2), 1)
	var invalid *domain.InvalidInputError
	require.ErrorAs(t, err, &invalid)
}

func TestValidate_RejectsNonFiniteWindow(t *testing.T) {
	cov := mat.NewSymDense(2, []float64{0.04, 0.01, 0.01, 0.03})
	window := zeroWindow(10, 2)
	window[4][1] = math.Inf(1)
	id := NewIdentity()

	_, err := id.Denoise(cov, window, 1)
	var invalid *domain.InvalidInputError
	require.ErrorAs(t, err, &invalid)
}

func TestParseLinkage(t *testing.T) {
	for _, name := range []string{"single", "complete", "average"} {
		l, ok := ParseLinkage(name)
		assert.True(t, ok)
		assert.Equal(t, Linkage(name), l)
	}
	_, ok := ParseLinkage("ward")
	assert.False(t, ok)
}

func TestFilterCorrelation_BlockStructure(t *testing.T) {
	// Two tight pairs (A,B) and (C,D) with weak cross links. The filter
	// should keep the within-pair level and flatten the cross block to a
	// single value.
	corr := mat.NewSymDense(4, []float64{
		1.0, 0.9, 0.1, 0.2,
		0.9, 1.0, 0.15, 0.1,
		0.1, 0.15, 1.0, 0.8,
		0.2, 0.1, 0.8, 1.0,
	})

	filtered := filterCorrelation(corr, LinkageSingle)

	assert.InDelta(t, 0.9, filtered.At(0, 1), 1e-12)
	assert.InDelta(t, 0.8, filtered.At(2, 3), 1e-12)
	// Cross-block entries are all set at the final merge level.
	cross := filtered.At(0, 2)
	assert.InDelta(t, cross, filtered.At(0, 3), 1e-12)
	assert.InDelta(t, cross, filtered.At(1, 2), 1e-12)
	assert.InDelta(t, cross, filtered.At(1, 3), 1e-12)
	// Single linkage merges at the strongest cross correlation.
	assert.InDelta(t, 0.2, cross, 1e-12)

	for i := 0; i < 4; i++ {
		assert.Equal(t, 1.0, filtered.At(i, i))
		for j := 0; j < 4; j++ {
			assert.Equal(t, filtered.At(i, j), filtered.At(j, i))
		}
	}
}
