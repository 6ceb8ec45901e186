package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hochfrequenz/nf-ci-console/internal/config"
	"github.com/hochfrequenz/nf-ci-console/internal/logger"
)

var (
	configPath string
	logLevel   string
	rootCmd    = &cobra.Command{
		Use:   "nfci",
		Short: "NF CI Console - test dashboard for free5gc network functions",
		Long: `nfci drives a CI backend that runs test suites against review requests
of free5gc network functions. It stages {component, request} pairs,
submits them as one batch, follows the queue and history, and previews
or downloads the logs of failed tests.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides [log] level)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveConfigPath picks the explicit path, then a local .nfci.toml, then
// the per-user default
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if local := config.FindLocalConfig(); local != "" {
		return local
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	return config.Load(resolveConfigPath())
}

// setupLogging applies [log] with the --log-level override. logFile replaces
// the configured file when not empty.
func setupLogging(cfg *config.Config, logFile string) (io.Closer, error) {
	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	file := cfg.Log.File
	if logFile != "" && file == "" {
		file = logFile
	}
	closer, err := logger.Setup(level, file)
	if err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	return closer, nil
}
