// Package estimator computes rolling sample covariance and correlation
// matrices over a return panel.
package estimator

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"covbench/internal/domain"
	"covbench/internal/panel"
)

// Mode selects the matrix the roller emits per window.
type Mode int

const (
	ModeCovariance Mode = iota
	ModeCorrelation
)

// Window is one rolling in-sample position: rows [Start, End) of the panel.
type Window struct {
	Index int
	Start int
	End   int
}

// Position is one element of the rolling sequence.
type Position struct {
	Window Window
	Matrix *mat.SymDense
}

// Roller lazily walks a panel with a fixed window length and step size,
// producing one sample covariance (or correlation) matrix per position.
// A roller holds no hidden state beyond its cursor and can be Reset.
type Roller struct {
	panel     *panel.ReturnPanel
	windowLen int
	step      int
	mode      Mode
	next      int // index of the next window
}

// NewRoller validates the window parameters against the panel.
func NewRoller(p *panel.ReturnPanel, windowLen, step int, mode Mode) (*Roller, error) {
	if windowLen < 2 {
		return nil, &domain.ConfigurationError{Field: "window.length", Reason: fmt.Sprintf("must be at least 2, got %d", windowLen)}
	}
	if step < 1 {
		return nil, &domain.ConfigurationError{Field: "window.step", Reason: fmt.Sprintf("must be at least 1, got %d", step)}
	}
	return &Roller{panel: p, windowLen: windowLen, step: step, mode: mode}, nil
}

// Count returns the number of full windows of length w stepping by s over a
// panel of length l: floor((l-w)/s)+1, or 0 when l < w.
func Count(l, w, s int) int {
	if l < w {
		return 0
	}
	return (l-w)/s + 1
}

// Count returns the total number of positions this roller will produce.
func (r *Roller) Count() int {
	return Count(r.panel.Len(), r.windowLen, r.step)
}

// Reset rewinds the roller to the first position.
func (r *Roller) Reset() { r.next = 0 }

// Next computes the next position. ok is false once the remaining periods no
// longer hold a full window; the trailing partial window is dropped.
func (r *Roller) Next() (Position, bool, error) {
	start := r.next * r.step
	if start+r.windowLen > r.panel.Len() {
		return Position{}, false, nil
	}

	w := Window{Index: r.next, Start: start, End: start + r.windowLen}
	rows := r.panel.Rows(w.Start, w.End)

	m, err := SampleCovariance(rows)
	if err != nil {
		return Position{}, false, fmt.Errorf("window %d: %w", w.Index, err)
	}
	if r.mode == ModeCorrelation {
		m, _, err = CorrelationFromCovariance(m)
		if err != nil {
			return Position{}, false, fmt.Errorf("window %d: %w", w.Index, err)
		}
	}

	r.next++
	return Position{Window: w, Matrix: m}, true, nil
}

// SampleCovariance computes the unbiased (N-1) sample covariance of the given
// return rows, one row per period, one column per asset.
func SampleCovariance(rows [][]float64) (*mat.SymDense, error) {
	if len(rows) < 2 {
		return nil, &domain.InvalidInputError{Reason: fmt.Sprintf("need at least 2 observations, got %d", len(rows))}
	}
	n := len(rows[0])
	if n == 0 {
		return nil, &domain.InvalidInputError{Reason: "no assets in window"}
	}
	for t, row := range rows {
		if len(row) != n {
			return nil, &domain.InvalidInputError{Reason: fmt.Sprintf("row %d has %d values, expected %d", t, len(row), n)}
		}
	}

	cols := make([][]float64, n)
	for j := 0; j < n; j++ {
		col := make([]float64, len(rows))
		for t := range rows {
			col[t] = rows[t][j]
		}
		cols[j] = col
	}

	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, stat.Covariance(cols[i], cols[j], nil))
		}
	}
	return cov, nil
}

// CorrelationFromCovariance normalizes a covariance matrix by the outer
// product of its standard deviations, yielding a unit-diagonal correlation
// matrix. The standard deviations are returned alongside for converting back.
func CorrelationFromCovariance(cov *mat.SymDense) (*mat.SymDense, []float64, error) {
	n := cov.SymmetricDim()
	stds := make([]float64, n)
	for i := 0; i < n; i++ {
		v := cov.At(i, i)
		if v <= 0 || math.IsNaN(v) {
			return nil, nil, &domain.InvalidInputError{Reason: fmt.Sprintf("non-positive variance for asset %d", i)}
		}
		stds[i] = math.Sqrt(v)
	}

	corr := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		corr.SetSym(i, i, 1.0)
		for j := i + 1; j < n; j++ {
			corr.SetSym(i, j, cov.At(i, j)/(stds[i]*stds[j]))
		}
	}
	return corr, stds, nil
}

// CovarianceFromCorrelation rescales a correlation matrix back to covariance
// form using the given standard deviations.
func CovarianceFromCorrelation(corr *mat.SymDense, stds []float64) *mat.SymDense {
	n := corr.SymmetricDim()
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, corr.At(i, j)*stds[i]*stds[j])
		}
	}
	return cov
}
