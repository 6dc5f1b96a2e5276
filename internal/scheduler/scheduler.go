// Package scheduler runs recurring scans on cron schedules. Each
// configured entry submits a fresh scan request when its schedule fires;
// submissions that lose the concurrency race are skipped, not queued.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/kvist/reconwave/internal/config"
	"github.com/kvist/reconwave/internal/errors"
	"github.com/kvist/reconwave/internal/logging"
	"github.com/kvist/reconwave/internal/scanning"
)

// Scheduler drives recurring scans from configuration.
type Scheduler struct {
	cron         *cron.Cron
	orchestrator *scanning.Orchestrator
	logger       *logging.Logger
}

// New creates a scheduler and registers every configured entry. Invalid
// cron expressions fail registration rather than being skipped.
func New(cfg config.SchedulerConfig, orchestrator *scanning.Orchestrator) (*Scheduler, error) {
	s := &Scheduler{
		cron:         cron.New(),
		orchestrator: orchestrator,
		logger:       logging.Default().WithComponent("scheduler"),
	}

	for _, job := range cfg.Jobs {
		job := job
		_, err := s.cron.AddFunc(job.Cron, func() {
			s.runScheduledScan(job)
		})
		if err != nil {
			return nil, fmt.Errorf("scheduled scan %q: invalid cron expression %q: %w",
				job.Name, job.Cron, err)
		}
		s.logger.Info("Registered scheduled scan",
			"name", job.Name,
			"cron", job.Cron,
			"target", job.Target)
	}

	return s, nil
}

// Start begins firing schedules.
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler", "entries", len(s.cron.Entries()))
	s.cron.Start()
}

// Stop stops the scheduler and waits for in-flight submissions. Scans
// already admitted keep running under the orchestrator.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	<-s.cron.Stop().Done()
}

// runScheduledScan submits one occurrence of a recurring scan.
func (s *Scheduler) runScheduledScan(job config.ScheduledScanConfig) {
	scanType := scanning.ScanType(job.ScanType)
	if scanType == "" {
		scanType = scanning.ScanTypePortDiscovery
	}

	receipt, err := s.orchestrator.StartScan(context.Background(), scanning.ScanRequest{
		Target:    job.Target,
		ScanType:  scanType,
		Ports:     job.Ports,
		RateLimit: job.RateLimit,
	})
	if err != nil {
		if errors.IsCode(err, errors.CodeConcurrencyLimit) {
			s.logger.Warn("Skipping scheduled scan, concurrency limit reached",
				"name", job.Name)
			return
		}
		s.logger.Error("Scheduled scan submission failed",
			"name", job.Name,
			"target", job.Target,
			"error", err)
		return
	}

	s.logger.InfoScan("Scheduled scan started", receipt.ScanID.String(),
		"name", job.Name,
		"target", job.Target)
}
