package domain

import "fmt"

// InvalidInputError reports malformed or non-finite matrix/panel data.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

// DegenerateEstimationError reports that the asset count exceeds the sample
// length, so the sample covariance estimator is rank-deficient.
type DegenerateEstimationError struct {
	Assets  int
	Samples int
}

func (e *DegenerateEstimationError) Error() string {
	return fmt.Sprintf("degenerate estimation: %d assets exceed %d samples", e.Assets, e.Samples)
}

// SingularMatrixError reports that a covariance matrix cannot be inverted
// within numerical tolerance. Cond is +Inf when factorization failed outright.
type SingularMatrixError struct {
	Cond float64
}

func (e *SingularMatrixError) Error() string {
	return fmt.Sprintf("singular covariance matrix: condition number %g", e.Cond)
}

// ConfigurationError reports an invalid run configuration. Fatal at startup.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}
