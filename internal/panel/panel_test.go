package panel

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"covbench/internal/domain"
)

func day(n int) time.Time {
	return time.Date(2004, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestNew_Valid(t *testing.T) {
	p, err := New(
		[]time.Time{day(0), day(1), day(2)},
		[]string{"AAPL", "MSFT"},
		[][]float64{{0.01, -0.02}, {0.00, 0.01}, {-0.01, 0.03}},
	)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Len())
	assert.Equal(t, 2, p.NumAssets())
	assert.Equal(t, day(1), p.Date(1))
	assert.Equal(t, [][]float64{{0.00, 0.01}, {-0.01, 0.03}}, p.Rows(1, 3))
}

func TestNew_RejectsNonFinite(t *testing.T) {
	_, err := New(
		[]time.Time{day(0), day(1)},
		[]string{"AAPL"},
		[][]float64{{0.01}, {math.NaN()}},
	)
	var invalid *domain.InvalidInputError
	require.ErrorAs(t, err, &invalid)
}

func TestNew_RejectsNonIncreasingDates(t *testing.T) {
	_, err := New(
		[]time.Time{day(1), day(1)},
		[]string{"AAPL"},
		[][]float64{{0.01}, {0.02}},
	)
	var invalid *domain.InvalidInputError
	require.ErrorAs(t, err, &invalid)
}

func TestNew_RejectsDuplicateAssets(t *testing.T) {
	_, err := New(
		[]time.Time{day(0)},
		[]string{"AAPL", "AAPL"},
		[][]float64{{0.01, 0.02}},
	)
	var invalid *domain.InvalidInputError
	require.ErrorAs(t, err, &invalid)
}

func TestFillMissing(t *testing.T) {
	series := []float64{math.NaN(), 2.0, math.NaN(), math.NaN(), 5.0}
	filled := FillMissing(series)
	assert.Equal(t, 3, filled)
	assert.Equal(t, []float64{2.0, 2.0, 2.0, 2.0, 5.0}, series)
}

func TestFillMissing_AllMissing(t *testing.T) {
	series := []float64{math.NaN(), math.NaN()}
	FillMissing(series)
	assert.True(t, math.IsNaN(series[0]))
	assert.True(t, math.IsNaN(series[1]))
}

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "panel.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoader_LoadReturns(t *testing.T) {
	path := writeTempCSV(t, "date,AAPL,MSFT\n2004-01-02,0.01,-0.02\n2004-01-05,,0.01\n2004-01-06,-0.01,0.03\n")

	loader := NewLoader(zerolog.Nop())
	p, err := loader.LoadReturns(path)
	require.NoError(t, err)

	assert.Equal(t, 3, p.Len())
	assert.Equal(t, []string{"AAPL", "MSFT"}, p.Assets())
	// Missing AAPL value on the second day is forward-filled.
	assert.InDelta(t, 0.01, p.Rows(1, 2)[0][0], 1e-12)
}

func TestLoader_LoadPrices(t *testing.T) {
	path := writeTempCSV(t, "date,AAPL\n2004-01-02,100\n2004-01-05,110\n2004-01-06,99\n")

	loader := NewLoader(zerolog.Nop())
	p, err := loader.LoadPrices(path)
	require.NoError(t, err)

	require.Equal(t, 2, p.Len())
	assert.InDelta(t, 0.10, p.Rows(0, 1)[0][0], 1e-12)
	assert.InDelta(t, -0.10, p.Rows(1, 2)[0][0], 1e-12)
}

func TestLoader_RejectsMalformedRow(t *testing.T) {
	path := writeTempCSV(t, "date,AAPL\n2004-01-02,abc\n")

	loader := NewLoader(zerolog.Nop())
	_, err := loader.LoadReturns(path)
	var invalid *domain.InvalidInputError
	require.ErrorAs(t, err, &invalid)
}
