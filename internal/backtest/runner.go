// Package backtest rolls the estimation window over a return panel and
// compares denoising methods on out-of-sample portfolio risk.
package backtest

import (
	"fmt"

	"github.com/rs/zerolog"

	"covbench/internal/denoise"
	"covbench/internal/domain"
	"covbench/internal/estimator"
	"covbench/internal/panel"
	"covbench/internal/risk"
	"covbench/internal/solver"
)

// Options configures a run.
type Options struct {
	WindowLen   int
	Step        int
	OutOfSample int   // out-of-sample segment length; 0 defaults to Step
	Seed        int64 // base seed; each window derives its own
}

// Runner executes the full pipeline per (window, method) pair: sample
// covariance, denoising, weight solving, risk evaluation. Failures are
// isolated at the window boundary and collected as skips; they never abort
// the run.
type Runner struct {
	opts      Options
	denoisers []denoise.Denoiser
	solver    *solver.MinVariance
	evaluator *risk.Evaluator
	log       zerolog.Logger
}

// Result aggregates everything a run produces. All slices are ordered by
// window index, then by method in the order the runner was configured with.
type Result struct {
	Assets  []string
	Methods []domain.Method
	Records []domain.RiskRecord
	Weights []domain.WeightRecord
	Skips   []domain.SkipRecord
	Windows int
}

// NewRunner wires the pipeline components.
func NewRunner(opts Options, denoisers []denoise.Denoiser, s *solver.MinVariance, e *risk.Evaluator, log zerolog.Logger) (*Runner, error) {
	if len(denoisers) == 0 {
		return nil, &domain.ConfigurationError{Field: "methods", Reason: "no denoising methods configured"}
	}
	if opts.OutOfSample < 0 {
		return nil, &domain.ConfigurationError{Field: "window.out_of_sample", Reason: fmt.Sprintf("must be non-negative, got %d", opts.OutOfSample)}
	}
	if opts.OutOfSample == 0 {
		opts.OutOfSample = opts.Step
	}
	return &Runner{
		opts:      opts,
		denoisers: denoisers,
		solver:    s,
		evaluator: e,
		log:       log.With().Str("component", "backtest").Logger(),
	}, nil
}

// Run walks the panel once. Each window's computation is independent; a
// failed (window, method) pair is logged, recorded as a skip, and excluded
// from the risk series.
func (r *Runner) Run(p *panel.ReturnPanel) (*Result, error) {
	roller, err := estimator.NewRoller(p, r.opts.WindowLen, r.opts.Step, estimator.ModeCovariance)
	if err != nil {
		return nil, err
	}

	methods := make([]domain.Method, len(r.denoisers))
	for i, d := range r.denoisers {
		methods[i] = d.Name()
	}

	result := &Result{
		Assets:  p.Assets(),
		Methods: methods,
	}

	r.log.Info().
		Int("periods", p.Len()).
		Int("assets", p.NumAssets()).
		Int("window", r.opts.WindowLen).
		Int("step", r.opts.Step).
		Int("out_of_sample", r.opts.OutOfSample).
		Int("windows", roller.Count()).
		Msg("Starting risk comparison run")

	for {
		pos, ok, err := roller.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		result.Windows++

		w := pos.Window
		oosEnd := w.End + r.opts.OutOfSample
		if oosEnd > p.Len() {
			oosEnd = p.Len()
		}
		if oosEnd == w.End {
			r.log.Warn().Int("window", w.Index).Msg("No out-of-sample periods remain, skipping window")
			for _, m := range methods {
				result.Skips = append(result.Skips, domain.SkipRecord{WindowIndex: w.Index, Method: m, Reason: "no out-of-sample periods"})
			}
			continue
		}

		inSampleRows := p.Rows(w.Start, w.End)
		oosRows := p.Rows(w.End, oosEnd)
		date := p.Date(w.End - 1)
		seed := windowSeed(r.opts.Seed, w.Index)

		for _, d := range r.denoisers {
			record, weights, err := r.evaluateWindow(d, pos, inSampleRows, oosRows, seed)
			if err != nil {
				r.log.Warn().
					Int("window", w.Index).
					Str("method", string(d.Name())).
					Err(err).
					Msg("Window excluded from risk series")
				result.Skips = append(result.Skips, domain.SkipRecord{WindowIndex: w.Index, Method: d.Name(), Reason: err.Error()})
				continue
			}
			record.WindowIndex = w.Index
			record.Date = date
			result.Records = append(result.Records, record)
			result.Weights = append(result.Weights, domain.WeightRecord{
				WindowIndex: w.Index,
				Date:        date,
				Method:      d.Name(),
				Weights:     weights,
			})
		}
	}

	r.log.Info().
		Int("windows", result.Windows).
		Int("records", len(result.Records)).
		Int("skips", len(result.Skips)).
		Msg("Run complete")
	return result, nil
}

func (r *Runner) evaluateWindow(
	d denoise.Denoiser,
	pos estimator.Position,
	inSampleRows, oosRows [][]float64,
	seed int64,
) (domain.RiskRecord, []float64, error) {
	denoised, err := d.Denoise(pos.Matrix, inSampleRows, seed)
	if err != nil {
		return domain.RiskRecord{}, nil, fmt.Errorf("denoise: %w", err)
	}

	weights, err := r.solver.Weights(denoised)
	if err != nil {
		return domain.RiskRecord{}, nil, fmt.Errorf("solve weights: %w", err)
	}

	measured, err := r.evaluator.Evaluate(weights, denoised, oosRows)
	if err != nil {
		return domain.RiskRecord{}, nil, fmt.Errorf("evaluate risk: %w", err)
	}

	return domain.RiskRecord{
		Method:      d.Name(),
		InSample:    measured.InSample,
		OutOfSample: measured.OutOfSample,
	}, weights, nil
}

// windowSeed derives a deterministic per-window seed from the base seed, so
// reruns of the same configuration resample identically per (window, method).
func windowSeed(base int64, windowIndex int) int64 {
	return base + int64(windowIndex)*1_000_003
}
