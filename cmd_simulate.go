package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"abtest-cohorts/pkg/output"
	"abtest-cohorts/pkg/simulator"
)

type studyReport struct {
	Days         int                    `json:"days"`
	Checkpoints  []int                  `json:"checkpoints"`
	Variants     []string               `json:"variants"`
	Scenarios    []string               `json:"scenarios"`
	Comparisons  []simulator.Comparison `json:"comparisons"`
	Lifts        []simulator.Lift       `json:"lifts"`
	BestScenario string                 `json:"best_scenario"`
	Files        []string               `json:"files"`
}

func newSimulateCmd(a *app) *cobra.Command {
	var (
		days       int
		showSeries bool
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate every variant under the baseline and each scenario",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if days > 0 {
				cfg.Days = days
			}
			log := a.logger.With(zap.String("cmd", "simulate"))

			res, err := simulator.RunStudy(cmd.Context(), cfg, log)
			if err != nil {
				return fmt.Errorf("simulate: %w", err)
			}

			w, err := output.NewWriter(cfg.OutputDir, log)
			if err != nil {
				return err
			}
			log = log.With(zap.String("run_id", w.RunID))

			out := cmd.OutOrStdout()
			report := studyReport{
				Days:         res.Days,
				Checkpoints:  res.Checkpoints,
				Variants:     res.Variants,
				Scenarios:    res.Scenarios,
				Comparisons:  res.Comparisons(),
				Lifts:        res.Lifts(),
				BestScenario: res.BestScenario(),
			}
			for _, run := range res.Runs {
				path, err := w.Series(run.Variant, run.Scenario, run.Series)
				if err != nil {
					return err
				}
				report.Files = append(report.Files, path)
				if showSeries {
					fmt.Fprintln(out, output.Series(run.Variant, run.Scenario, run.Series))
				}
			}

			fmt.Fprintln(out, output.Comparisons(report.Comparisons))
			if len(report.Lifts) > 0 {
				fmt.Fprintln(out, output.Lifts(report.Lifts))
				fmt.Fprintf(out, "\nBest scenario: %s\n", report.BestScenario)
			}

			path, err := w.JSON("study", report)
			if err != nil {
				return err
			}
			log.Info("simulation written", zap.String("dir", cfg.OutputDir), zap.String("summary", path))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "simulation horizon in days (default from config)")
	cmd.Flags().BoolVar(&showSeries, "series", false, "print the day-by-day table of every run")
	return cmd
}
