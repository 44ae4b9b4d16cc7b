// Package domain holds the shared value types of the risk comparison
// pipeline. It has no infrastructure dependencies.
package domain

import "time"

// Method identifies a covariance denoising method.
type Method string

const (
	MethodBaseline Method = "baseline"
	MethodBAHC     Method = "bahc"
	MethodClipping Method = "clipping"
)

// Methods returns all known methods in canonical order.
func Methods() []Method {
	return []Method{MethodBaseline, MethodBAHC, MethodClipping}
}

// ParseMethod validates a method name from configuration.
func ParseMethod(s string) (Method, bool) {
	switch Method(s) {
	case MethodBaseline, MethodBAHC, MethodClipping:
		return Method(s), true
	}
	return "", false
}

// RiskRecord is one row of the comparison output: the analytic in-sample risk
// and the realized out-of-sample risk for one window under one method.
// Records are value objects and never mutated after creation.
type RiskRecord struct {
	WindowIndex int
	Date        time.Time // date of the last in-sample observation
	Method      Method
	InSample    float64
	OutOfSample float64
}

// WeightRecord holds the solved portfolio weights for one window under one
// method, ordered like the panel's asset list.
type WeightRecord struct {
	WindowIndex int
	Date        time.Time
	Method      Method
	Weights     []float64
}

// SkipRecord reports a (window, method) pair that was excluded from the
// aggregated results, and why.
type SkipRecord struct {
	WindowIndex int
	Method      Method
	Reason      string
}
