package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cosim-bridge/eplusfmu/cosim"
)

var (
	logLevel   string // Log verbosity level
	configPath string // Adapter configuration file
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "eplusfmu",
	Short: "Co-simulation master and tooling for EnergyPlus slaves",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// loadAdapterConfig returns the defaults, overlaid with --config when given.
func loadAdapterConfig() (cosim.Config, error) {
	if configPath == "" {
		return cosim.DefaultConfig(), nil
	}
	return cosim.LoadConfig(configPath)
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Adapter configuration YAML (defaults when empty)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(versionCmd)
}
