// Package risk measures in-sample analytic and out-of-sample realized
// portfolio risk for a weight vector.
package risk

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"covbench/internal/domain"
	"covbench/pkg/formulas"
)

// Metric selects how risk is reported.
type Metric string

const (
	MetricVariance Metric = "variance"
	MetricStdDev   Metric = "stddev"
)

// ParseMetric validates a metric name from configuration.
func ParseMetric(s string) (Metric, bool) {
	switch Metric(s) {
	case MetricVariance, MetricStdDev:
		return Metric(s), true
	}
	return "", false
}

// Result pairs the analytic in-sample risk with the realized out-of-sample
// risk for one window. Both are non-negative.
type Result struct {
	InSample    float64
	OutOfSample float64
}

// Evaluator computes portfolio risk under a configured metric.
type Evaluator struct {
	metric Metric
}

// NewEvaluator creates an evaluator; an empty metric defaults to variance.
func NewEvaluator(metric Metric) (*Evaluator, error) {
	if metric == "" {
		metric = MetricVariance
	}
	if _, ok := ParseMetric(string(metric)); !ok {
		return nil, &domain.ConfigurationError{Field: "risk_metric", Reason: fmt.Sprintf("unknown metric %q", metric)}
	}
	return &Evaluator{metric: metric}, nil
}

// InSample computes the analytic portfolio risk w'Cw under the covariance
// matrix that produced the weights. Tiny negative values from floating
// arithmetic are clamped to 0.
func (e *Evaluator) InSample(weights []float64, cov *mat.SymDense) (float64, error) {
	n := cov.SymmetricDim()
	if len(weights) != n {
		return 0, &domain.InvalidInputError{Reason: fmt.Sprintf("%d weights for %dx%d matrix", len(weights), n, n)}
	}
	variance := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			variance += weights[i] * cov.At(i, j) * weights[j]
		}
	}
	return e.report(math.Max(variance, 0)), nil
}

// OutOfSample computes the realized risk of the weighted portfolio return
// series over the out-of-sample rows. The biased (N) variance is used so a
// single-period segment is well-defined and the result is never negative.
func (e *Evaluator) OutOfSample(weights []float64, rows [][]float64) (float64, error) {
	if len(rows) == 0 {
		return 0, &domain.InvalidInputError{Reason: "empty out-of-sample segment"}
	}
	portfolio := make([]float64, len(rows))
	for t, row := range rows {
		if len(row) != len(weights) {
			return 0, &domain.InvalidInputError{Reason: fmt.Sprintf("row %d has %d returns for %d weights", t, len(row), len(weights))}
		}
		r := 0.0
		for j, w := range weights {
			r += w * row[j]
		}
		portfolio[t] = r
	}
	return e.report(formulas.PopulationVariance(portfolio)), nil
}

// Evaluate runs both measurements for one window.
func (e *Evaluator) Evaluate(weights []float64, cov *mat.SymDense, oosRows [][]float64) (Result, error) {
	inSample, err := e.InSample(weights, cov)
	if err != nil {
		return Result{}, err
	}
	outOfSample, err := e.OutOfSample(weights, oosRows)
	if err != nil {
		return Result{}, err
	}
	return Result{InSample: inSample, OutOfSample: outOfSample}, nil
}

func (e *Evaluator) report(variance float64) float64 {
	if e.metric == MetricStdDev {
		return math.Sqrt(variance)
	}
	return variance
}
