package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/crosschain/internal/config"
	"github.com/aretw0/crosschain/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "crosschain",
	Short: "Crosschain routes messages and shares state between independent chains",
	Long: `Crosschain hosts a mesh of chains that exchange typed messages,
share key/value state and report their health.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", config.DefaultPath, "Path to the crosschain configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn or error")
}

// loadConfig reads the --config file.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// newLogger builds the stderr logger for the --log-level flag.
func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	raw, _ := cmd.Flags().GetString("log-level")
	level, err := logging.ParseLevel(raw)
	if err != nil {
		return nil, err
	}
	logger := logging.ForTerminal(level)
	slog.SetDefault(logger)
	return logger, nil
}
