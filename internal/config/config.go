// Package config loads and validates experiment configuration.
//
// Configuration comes from a YAML experiment file, with a few operational
// settings (log level, output directory) overridable from the environment.
// A .env file is honored when present.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"covbench/internal/denoise"
	"covbench/internal/domain"
	"covbench/internal/risk"
)

// DataConfig locates the input panel.
type DataConfig struct {
	ReturnsCSV string `yaml:"returns_csv"` // wide CSV of returns
	PricesCSV  string `yaml:"prices_csv"`  // wide CSV of prices, converted to returns
}

// WindowConfig sets the rolling window geometry.
type WindowConfig struct {
	Length      int `yaml:"length"`
	Step        int `yaml:"step"`
	OutOfSample int `yaml:"out_of_sample"` // 0 defaults to Step
}

// BAHCConfig holds bootstrap parameters.
type BAHCConfig struct {
	Draws   int    `yaml:"draws"`
	Linkage string `yaml:"linkage"`
}

// ClippingConfig holds eigenvalue clipping parameters.
type ClippingConfig struct {
	EigenvalueThreshold float64 `yaml:"eigenvalue_threshold"` // 0 = Marchenko-Pastur edge
}

// SolverConfig holds weight solver parameters.
type SolverConfig struct {
	MaxConditionNumber float64 `yaml:"max_condition_number"`
}

// OutputConfig locates run artifacts.
type OutputConfig struct {
	Dir           string `yaml:"dir"`
	Database      string `yaml:"database"` // optional sqlite path
	MovingAverage int    `yaml:"moving_average"`
}

// Config is the full experiment configuration.
type Config struct {
	Data       DataConfig     `yaml:"data"`
	Window     WindowConfig   `yaml:"window"`
	Methods    []string       `yaml:"methods"`
	BAHC       BAHCConfig     `yaml:"bahc"`
	Clipping   ClippingConfig `yaml:"clipping"`
	Solver     SolverConfig   `yaml:"solver"`
	RiskMetric string         `yaml:"risk_metric"`
	Seed       int64          `yaml:"seed"`
	Output     OutputConfig   `yaml:"output"`

	LogLevel string `yaml:"-"`
	Pretty   bool   `yaml:"-"`

	raw []byte
}

// Load reads the YAML experiment file, applies defaults and environment
// overrides, and validates. Validation failures are fatal at startup.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{
		Window:     WindowConfig{Length: 252, Step: 21},
		Methods:    []string{"baseline", "bahc", "clipping"},
		BAHC:       BAHCConfig{Draws: denoise.DefaultBootstrapDraws, Linkage: string(denoise.LinkageAverage)},
		RiskMetric: string(risk.MetricVariance),
		Seed:       42,
		Output:     OutputConfig{Dir: "out"},
		raw:        raw,
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.LogLevel = getEnv("COVBENCH_LOG_LEVEL", "info")
	cfg.Pretty = getEnvAsBool("COVBENCH_LOG_PRETTY", true)
	if dir := os.Getenv("COVBENCH_OUTPUT_DIR"); dir != "" {
		cfg.Output.Dir = dir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Raw returns the original YAML document, stored alongside persisted runs.
func (c *Config) Raw() string { return string(c.raw) }

// Validate checks the configuration surface.
func (c *Config) Validate() error {
	if c.Data.ReturnsCSV == "" && c.Data.PricesCSV == "" {
		return &domain.ConfigurationError{Field: "data", Reason: "either returns_csv or prices_csv is required"}
	}
	if c.Data.ReturnsCSV != "" && c.Data.PricesCSV != "" {
		return &domain.ConfigurationError{Field: "data", Reason: "returns_csv and prices_csv are mutually exclusive"}
	}
	if c.Window.Length < 2 {
		return &domain.ConfigurationError{Field: "window.length", Reason: fmt.Sprintf("must be at least 2, got %d", c.Window.Length)}
	}
	if c.Window.Step < 1 {
		return &domain.ConfigurationError{Field: "window.step", Reason: fmt.Sprintf("must be at least 1, got %d", c.Window.Step)}
	}
	if c.Window.OutOfSample < 0 {
		return &domain.ConfigurationError{Field: "window.out_of_sample", Reason: fmt.Sprintf("must be non-negative, got %d", c.Window.OutOfSample)}
	}
	if len(c.Methods) == 0 {
		return &domain.ConfigurationError{Field: "methods", Reason: "at least one method is required"}
	}
	for _, m := range c.Methods {
		if _, ok := domain.ParseMethod(m); !ok {
			return &domain.ConfigurationError{Field: "methods", Reason: fmt.Sprintf("unknown method %q", m)}
		}
	}
	if c.BAHC.Draws < 1 {
		return &domain.ConfigurationError{Field: "bahc.draws", Reason: fmt.Sprintf("must be at least 1, got %d", c.BAHC.Draws)}
	}
	if _, ok := denoise.ParseLinkage(c.BAHC.Linkage); !ok {
		return &domain.ConfigurationError{Field: "bahc.linkage", Reason: fmt.Sprintf("unknown linkage %q", c.BAHC.Linkage)}
	}
	if c.Clipping.EigenvalueThreshold < 0 {
		return &domain.ConfigurationError{Field: "clipping.eigenvalue_threshold", Reason: "must be non-negative"}
	}
	if c.Solver.MaxConditionNumber < 0 {
		return &domain.ConfigurationError{Field: "solver.max_condition_number", Reason: "must be non-negative"}
	}
	if _, ok := risk.ParseMetric(c.RiskMetric); !ok {
		return &domain.ConfigurationError{Field: "risk_metric", Reason: fmt.Sprintf("unknown metric %q", c.RiskMetric)}
	}
	if c.Output.Dir == "" {
		return &domain.ConfigurationError{Field: "output.dir", Reason: "is required"}
	}
	return nil
}

// Denoisers builds the configured denoising transforms in configuration
// order.
func (c *Config) Denoisers() ([]denoise.Denoiser, error) {
	denoisers := make([]denoise.Denoiser, 0, len(c.Methods))
	for _, name := range c.Methods {
		method, _ := domain.ParseMethod(name)
		switch method {
		case domain.MethodBaseline:
			denoisers = append(denoisers, denoise.NewIdentity())
		case domain.MethodBAHC:
			d, err := denoise.NewBAHC(denoise.BAHCConfig{
				Draws:   c.BAHC.Draws,
				Linkage: denoise.Linkage(c.BAHC.Linkage),
			})
			if err != nil {
				return nil, err
			}
			denoisers = append(denoisers, d)
		case domain.MethodClipping:
			d, err := denoise.NewClipping(denoise.ClippingConfig{
				Threshold: c.Clipping.EigenvalueThreshold,
			})
			if err != nil {
				return nil, err
			}
			denoisers = append(denoisers, d)
		}
	}
	return denoisers, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
