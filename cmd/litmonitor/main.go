// Package main is the entry point for the litmonitor CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"LitMonitor/internal/app"
	"LitMonitor/internal/config"
	"LitMonitor/internal/logging"
)

const defaultConfigFile = "config.yaml"

var (
	cfgFile string
	verbose bool
	cfg     config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "litmonitor",
	Short: "Scholarly literature monitor",
	Long: `litmonitor watches PubMed and the bioRxiv/medRxiv preprint servers for
new papers, scores them against the researcher's active projects, and
delivers a prioritized digest with one-click feedback links.

Example usage:
  litmonitor run                 # fetch, rank, and build a digest
  litmonitor search --days 3     # fetch only, no ranking
  litmonitor seed add 38309168   # star a known-good paper by PMID
  litmonitor daemon              # cron schedule plus the config web UI`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default $LITMONITOR_CONFIG, then ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// initConfig loads .env and the config file, then sets up logging. It runs
// before every command.
func initConfig() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "warning: cannot load .env:", err)
	}

	if cfgFile == "" {
		cfgFile = os.Getenv("LITMONITOR_CONFIG")
	}
	if cfgFile == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			cfgFile = defaultConfigFile
		}
	}
	cfg = config.LoadPath(cfgFile)
	if cfgFile == "" {
		// Web edits still need somewhere to land on a fresh install.
		cfgFile = defaultConfigFile
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logger = logging.New(level)
}

// buildApp wires the application with per-command options applied.
func buildApp(opts app.Options) (*app.Application, error) {
	opts.ConfigPath = cfgFile
	return app.New(cfg, opts, logger)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
