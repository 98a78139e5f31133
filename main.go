package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"abtest-cohorts/pkg/config"
	"abtest-cohorts/pkg/logging"
	"abtest-cohorts/pkg/models"
)

// app regroupe l'état partagé par les sous-commandes.
type app struct {
	configPath string
	envFile    string
	outDir     string
	verbose    bool
	quiet      bool

	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "abtest",
		Short: "A/B cohort simulator and player-metrics reporter",
		Long: `abtest compares game variants over a fixed horizon.

  simulate  projects daily installs, active users and revenue for each
            variant, with and without the configured scenarios
  report    describes an exported daily user-metrics dataset`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadEnvFile(a.envFile); err != nil {
				return err
			}
			if a.logger != nil {
				return nil
			}
			logger, err := logging.New(a.verbose)
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "study file (YAML); the built-in study when empty")
	pf.StringVar(&a.envFile, "env-file", ".env", "optional dotenv file")
	pf.StringVarP(&a.outDir, "out", "o", "", "artifact directory (default from config)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	pf.BoolVarP(&a.quiet, "quiet", "q", false, "no progress bar")

	root.AddCommand(newSimulateCmd(a), newReportCmd(a))
	return root
}

// loadConfig lit le fichier d'étude puis applique les flags communs.
func (a *app) loadConfig() (models.Config, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return models.Config{}, err
	}
	if a.outDir != "" {
		cfg.OutputDir = a.outDir
	}
	cfg.Verbose = a.verbose
	cfg.Quiet = a.quiet
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
