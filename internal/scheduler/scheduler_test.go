package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvist/reconwave/internal/config"
	"github.com/kvist/reconwave/internal/scanning"
)

type approveAllGate struct{}

func (approveAllGate) Evaluate(_ context.Context, _ *scanning.ScanRequest) (*scanning.GateDecision, error) {
	return &scanning.GateDecision{Approved: true}, nil
}

func newTestOrchestrator() *scanning.Orchestrator {
	return scanning.NewOrchestrator(scanning.Config{
		MaxConcurrentScans: 5,
		DefaultPorts:       "80",
		ProgressInterval:   100,
	}, approveAllGate{}, scanning.NewStubProbe())
}

func TestNewRegistersJobs(t *testing.T) {
	sched, err := New(config.SchedulerConfig{
		Jobs: []config.ScheduledScanConfig{
			{Name: "nightly", Cron: "0 2 * * *", Target: "10.0.0.0/24", ScanType: "PortDiscovery"},
			{Name: "hourly", Cron: "@hourly", Target: "10.0.1.0/24", ScanType: "ServiceDetection"},
		},
	}, newTestOrchestrator())
	require.NoError(t, err)
	require.NotNil(t, sched)
}

func TestNewRejectsBadCron(t *testing.T) {
	_, err := New(config.SchedulerConfig{
		Jobs: []config.ScheduledScanConfig{
			{Name: "broken", Cron: "not a cron", Target: "10.0.0.0/24"},
		},
	}, newTestOrchestrator())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestRunScheduledScanSubmits(t *testing.T) {
	orchestrator := newTestOrchestrator()
	sched, err := New(config.SchedulerConfig{}, orchestrator)
	require.NoError(t, err)

	sched.runScheduledScan(config.ScheduledScanConfig{
		Name:     "adhoc",
		Target:   "10.0.0.1",
		ScanType: "PortDiscovery",
	})

	// The scan is tiny and finishes almost immediately; it must exist in
	// the registry either way.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if orchestrator.ClearFinished() == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("scheduled scan never reached the orchestrator")
}

func TestRunScheduledScanDefaultsScanType(t *testing.T) {
	orchestrator := newTestOrchestrator()
	sched, err := New(config.SchedulerConfig{}, orchestrator)
	require.NoError(t, err)

	sched.runScheduledScan(config.ScheduledScanConfig{
		Name:   "typeless",
		Target: "10.0.0.1",
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if orchestrator.ClearFinished() == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("scheduled scan never reached the orchestrator")
}
