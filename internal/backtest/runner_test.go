package backtest

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"covbench/internal/denoise"
	"covbench/internal/domain"
	"covbench/internal/panel"
	"covbench/internal/risk"
	"covbench/internal/solver"
)

func testPanel(t *testing.T, periods, assets int) *panel.ReturnPanel {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	names := make([]string, assets)
	for j := range names {
		names[j] = string(rune('A' + j))
	}
	dates := make([]time.Time, periods)
	rows := make([][]float64, periods)
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range rows {
		dates[i] = start.AddDate(0, 0, i)
		row := make([]float64, assets)
		common := 0.01 * rng.NormFloat64()
		for j := range row {
			row[j] = common + 0.01*rng.NormFloat64()
		}
		rows[i] = row
	}
	p, err := panel.New(dates, names, rows)
	require.NoError(t, err)
	return p
}

func testRunner(t *testing.T, opts Options, denoisers []denoise.Denoiser) *Runner {
	t.Helper()
	e, err := risk.NewEvaluator(risk.MetricVariance)
	require.NoError(t, err)
	r, err := NewRunner(opts, denoisers, solver.New(0), e, zerolog.Nop())
	require.NoError(t, err)
	return r
}

// failingDenoiser always errors; used to verify window-level fault isolation.
type failingDenoiser struct{}

func (failingDenoiser) Name() domain.Method { return domain.Method("broken") }

func (failingDenoiser) Denoise(*mat.SymDense, [][]float64, int64) (*mat.SymDense, error) {
	return nil, errors.New("deliberate failure")
}

func TestRun_WindowAndRecordCounts(t *testing.T) {
	p := testPanel(t, 30, 3)
	r := testRunner(t, Options{WindowLen: 10, Step: 5, Seed: 42}, []denoise.Denoiser{denoise.NewIdentity()})

	result, err := r.Run(p)
	require.NoError(t, err)

	// (30-10)/5+1 = 5 windows; the last one ends at the panel edge with no
	// out-of-sample periods left, so it is skipped.
	assert.Equal(t, 5, result.Windows)
	assert.Len(t, result.Records, 4)
	assert.Len(t, result.Weights, 4)
	require.Len(t, result.Skips, 1)
	assert.Equal(t, 4, result.Skips[0].WindowIndex)
	assert.Equal(t, "no out-of-sample periods", result.Skips[0].Reason)

	for _, rec := range result.Records {
		assert.GreaterOrEqual(t, rec.InSample, 0.0)
		assert.GreaterOrEqual(t, rec.OutOfSample, 0.0)
	}
	for _, w := range result.Weights {
		sum := 0.0
		for _, v := range w.Weights {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-8)
	}
}

func TestRun_RecordDatesAreWindowEndDates(t *testing.T) {
	p := testPanel(t, 25, 2)
	r := testRunner(t, Options{WindowLen: 10, Step: 5, Seed: 42}, []denoise.Denoiser{denoise.NewIdentity()})

	result, err := r.Run(p)
	require.NoError(t, err)
	require.NotEmpty(t, result.Records)

	// First window covers rows [0,10); its record is stamped with date(9).
	assert.True(t, result.Records[0].Date.Equal(p.Date(9)))
}

func TestRun_FailingMethodDoesNotAffectOthers(t *testing.T) {
	p := testPanel(t, 30, 3)
	r := testRunner(t, Options{WindowLen: 10, Step: 5, Seed: 42},
		[]denoise.Denoiser{denoise.NewIdentity(), failingDenoiser{}})

	result, err := r.Run(p)
	require.NoError(t, err)

	baseline := 0
	for _, rec := range result.Records {
		if rec.Method == domain.MethodBaseline {
			baseline++
		}
	}
	assert.Equal(t, 4, baseline)

	broken := 0
	for _, s := range result.Skips {
		if s.Method == domain.Method("broken") {
			broken++
			assert.Contains(t, s.Reason, "deliberate failure")
		}
	}
	assert.Equal(t, 4, broken)
}

func TestRun_DeterministicAcrossRuns(t *testing.T) {
	p := testPanel(t, 60, 4)
	b, err := denoise.NewBAHC(denoise.BAHCConfig{Draws: 10, Linkage: denoise.LinkageAverage})
	require.NoError(t, err)

	opts := Options{WindowLen: 20, Step: 10, Seed: 7}
	first, err := testRunner(t, opts, []denoise.Denoiser{b}).Run(p)
	require.NoError(t, err)
	second, err := testRunner(t, opts, []denoise.Denoiser{b}).Run(p)
	require.NoError(t, err)

	require.Equal(t, len(first.Weights), len(second.Weights))
	for i := range first.Weights {
		assert.Equal(t, first.Weights[i].Weights, second.Weights[i].Weights)
	}
	require.Equal(t, len(first.Records), len(second.Records))
	for i := range first.Records {
		assert.Equal(t, first.Records[i].OutOfSample, second.Records[i].OutOfSample)
	}
}

func TestNewRunner_Validation(t *testing.T) {
	e, err := risk.NewEvaluator(risk.MetricVariance)
	require.NoError(t, err)

	var cfgErr *domain.ConfigurationError
	_, err = NewRunner(Options{WindowLen: 10, Step: 5}, nil, solver.New(0), e, zerolog.Nop())
	require.ErrorAs(t, err, &cfgErr)

	_, err = NewRunner(Options{WindowLen: 10, Step: 5, OutOfSample: -1},
		[]denoise.Denoiser{denoise.NewIdentity()}, solver.New(0), e, zerolog.Nop())
	require.ErrorAs(t, err, &cfgErr)
}
