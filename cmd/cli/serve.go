package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kvist/reconwave/internal/api"
	"github.com/kvist/reconwave/internal/logging"
	"github.com/kvist/reconwave/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reconwave daemon",
	Long: `Run the long-lived daemon: the REST API for scan submission and
status, the WebSocket event stream, and the cron scheduler for recurring
scans. Shuts down gracefully on SIGINT or SIGTERM.`,
	RunE: runServeCommand,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	orchestrator, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.Default().WithComponent("daemon")
	logger.Info("Starting reconwave daemon",
		"version", version,
		"gate_mode", cfg.Gate.Mode,
		"max_concurrent_scans", cfg.Scanning.MaxConcurrentScans)

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(cfg.Scheduler, orchestrator)
		if err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	if !cfg.IsAPIEnabled() {
		logger.Info("API disabled, running scheduler only")
		<-ctx.Done()
		return nil
	}

	server := api.New(cfg, orchestrator)
	if err := server.Start(ctx); err != nil && ctx.Err() == nil {
		return err
	}

	logger.Info("Daemon stopped")
	return nil
}
