// Package main is the entry point for covbench, a research harness comparing
// covariance denoising methods on rolling minimum-variance portfolio risk.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"covbench/internal/backtest"
	"covbench/internal/config"
	"covbench/internal/domain"
	"covbench/internal/panel"
	"covbench/internal/report"
	"covbench/internal/risk"
	"covbench/internal/solver"
	"covbench/internal/store"
	"covbench/pkg/logger"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "covbench",
	Short: "Compare covariance denoising methods on out-of-sample portfolio risk",
	Long: `covbench rolls an estimation window over a return panel, denoises each
sample covariance matrix with the configured methods (baseline, BAHC,
eigenvalue clipping), solves minimum-variance weights, and compares
in-sample against realized out-of-sample risk.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the experiment described by the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(configFile)
	},
}

var methodsCmd = &cobra.Command{
	Use:   "methods",
	Short: "List available denoising methods",
	Run: func(cmd *cobra.Command, args []string) {
		for _, m := range domain.Methods() {
			fmt.Println(m)
		}
	},
}

func init() {
	runCmd.Flags().StringVarP(&configFile, "config", "c", "experiment.yaml", "experiment config file")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(methodsCmd)
}

func run(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.Pretty})
	logger.SetGlobalLogger(log)

	loader := panel.NewLoader(log)
	var p *panel.ReturnPanel
	if cfg.Data.ReturnsCSV != "" {
		p, err = loader.LoadReturns(cfg.Data.ReturnsCSV)
	} else {
		p, err = loader.LoadPrices(cfg.Data.PricesCSV)
	}
	if err != nil {
		return err
	}

	denoisers, err := cfg.Denoisers()
	if err != nil {
		return err
	}
	evaluator, err := risk.NewEvaluator(risk.Metric(cfg.RiskMetric))
	if err != nil {
		return err
	}

	runner, err := backtest.NewRunner(backtest.Options{
		WindowLen:   cfg.Window.Length,
		Step:        cfg.Window.Step,
		OutOfSample: cfg.Window.OutOfSample,
		Seed:        cfg.Seed,
	}, denoisers, solver.New(cfg.Solver.MaxConditionNumber), evaluator, log)
	if err != nil {
		return err
	}

	result, err := runner.Run(p)
	if err != nil {
		return err
	}

	writer := report.NewWriter(cfg.Output.Dir, cfg.Output.MovingAverage, log)
	if err := writer.Write(result); err != nil {
		return err
	}

	if cfg.Output.Database != "" {
		st, err := store.Open(cfg.Output.Database, log)
		if err != nil {
			return err
		}
		defer st.Close()
		runID, err := st.SaveRun(result, cfg.Raw())
		if err != nil {
			return err
		}
		log.Info().Str("run_id", runID).Str("database", cfg.Output.Database).Msg("Persisted run")
	}

	for _, s := range report.Summarize(result) {
		log.Info().
			Str("method", s.Method).
			Int("windows", s.Windows).
			Int("skips", s.Skips).
			Float64("mean_in_sample_risk", s.MeanInSample).
			Float64("mean_out_of_sample_risk", s.MeanOutOfSample).
			Msg("Method summary")
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
