// Package cli implements the Cobra-based command-line interface for
// reconwave: ad-hoc scans from the terminal and the long-running daemon
// that serves the REST API and the scan scheduler.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kvist/reconwave/internal/config"
	"github.com/kvist/reconwave/internal/conscience"
	"github.com/kvist/reconwave/internal/logging"
	"github.com/kvist/reconwave/internal/scanning"
)

var (
	cfgFile string
	verbose bool
)

// Build information, set by ldflags.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "reconwave",
	Short: "Network reconnaissance scan engine",
	Long: `Reconwave is a network reconnaissance engine with policy-gated scan
admission, rate-paced probing, and live progress streaming. Scans run
either ad hoc from this CLI or through the daemon's REST API.`,
	Version: getVersion(),
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./reconwave.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	if err := viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to bind verbose flag: %v\n", err)
	}
}

// initConfig reads the config file and environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("reconwave")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("RECONWAVE")

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}

	initLogging()
}

// loadConfig loads the effective configuration for a command run.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.ConfigFileUsed())
}

// buildGate constructs the conscience gate selected by configuration.
func buildGate(cfg *config.Config) (scanning.ConscienceGate, error) {
	if cfg.Gate.Mode == "http" {
		return conscience.NewHTTPGate(cfg.Gate.URL, cfg.Gate.Timeout), nil
	}
	return conscience.NewPolicyGate(cfg.Gate.BlockedNetworks, cfg.Gate.AllowInternetScan)
}

// buildOrchestrator wires an orchestrator from configuration with the
// real TCP connect probe.
func buildOrchestrator(cfg *config.Config) (*scanning.Orchestrator, error) {
	gate, err := buildGate(cfg)
	if err != nil {
		return nil, fmt.Errorf("building conscience gate: %w", err)
	}

	probe := scanning.NewConnectProbe(cfg.Scanning.ProbeTimeout, cfg.Scanning.BannerWait)
	orchestrator := scanning.NewOrchestrator(scanning.Config{
		MaxConcurrentScans: cfg.Scanning.MaxConcurrentScans,
		DefaultPorts:       cfg.Scanning.DefaultPorts,
		ProgressInterval:   cfg.Scanning.ProgressInterval,
		DefaultRateLimit:   cfg.Scanning.DefaultRateLimit,
	}, gate, probe)
	orchestrator.SetResolver(scanning.NewResolver(""))

	return orchestrator, nil
}

func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}

// SetVersion sets build information, called from main.
func SetVersion(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
	rootCmd.Version = getVersion()
}

// initLogging initializes structured logging from configuration.
func initLogging() {
	cfg, err := config.Load(viper.ConfigFileUsed())
	if err != nil {
		logging.SetDefault(logging.NewDefault())
		return
	}

	logConfig := cfg.Logging
	if verbose {
		logConfig.Level = logging.LevelDebug
	}

	logger, err := logging.New(logConfig)
	if err != nil {
		logger = logging.NewDefault()
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}
	logging.SetDefault(logger)
}
