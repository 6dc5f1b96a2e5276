// Package scanning provides the reconnaissance scanning engine for
// reconwave: target and port parsing, the pluggable probe layer, the scan
// job lifecycle, and the orchestrator that admits, runs, and cancels scans.
package scanning

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/kvist/reconwave/internal/errors"
	"github.com/kvist/reconwave/internal/logging"
	"github.com/kvist/reconwave/internal/metrics"
)

// Orchestrator defaults.
const (
	defaultMaxConcurrentScans = 10
	defaultPortSpec           = "22,80,443,8080,8443"
	defaultProgressInterval   = 1000
)

// Config holds orchestrator settings.
type Config struct {
	// MaxConcurrentScans bounds the number of jobs in Running state.
	MaxConcurrentScans int

	// DefaultPorts is scanned when a request names no ports.
	DefaultPorts string

	// ProgressInterval is the probe count between Progress events. Small
	// scans use a tighter interval so the stream stays informative.
	ProgressInterval int

	// DefaultRateLimit is applied to requests that set none. Zero leaves
	// them unpaced.
	DefaultRateLimit uint
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentScans <= 0 {
		c.MaxConcurrentScans = defaultMaxConcurrentScans
	}
	if c.DefaultPorts == "" {
		c.DefaultPorts = defaultPortSpec
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = defaultProgressInterval
	}
	return c
}

// Orchestrator owns the scan job registry. It enforces the conscience gate
// and the concurrency admission policy, spawns one scanning goroutine per
// admitted job, and is the only component that mutates shared job state.
// The registry lock is held only for metadata reads and writes, never
// across a probe.
type Orchestrator struct {
	cfg      Config
	gate     ConscienceGate
	probe    ProbeEngine
	resolver *Resolver
	logger   *logging.Logger

	mu      sync.Mutex
	jobs    map[uuid.UUID]*ScanJob
	running int
}

// NewOrchestrator creates an orchestrator with the given gate and probe
// engine.
func NewOrchestrator(cfg Config, gate ConscienceGate, probe ProbeEngine) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg.withDefaults(),
		gate:   gate,
		probe:  probe,
		logger: logging.Default().WithComponent("orchestrator"),
		jobs:   make(map[uuid.UUID]*ScanJob),
	}
}

// SetResolver enables reverse-DNS enrichment for requests that ask for it.
func (o *Orchestrator) SetResolver(r *Resolver) {
	o.resolver = r
}

// StartScan validates and admits a scan request. On success the scan loop
// runs as an independent goroutine and the receipt is returned immediately;
// StartScan never waits for scan completion.
//
// Rejections, in order: conscience gate, concurrency limit, target parse,
// port parse. None of them creates a job.
func (o *Orchestrator) StartScan(ctx context.Context, req ScanRequest) (*ScanReceipt, error) {
	if !req.ScanType.Valid() {
		return nil, errors.NewScanError(errors.CodeValidation,
			fmt.Sprintf("invalid scan type %q", req.ScanType))
	}

	decision, err := o.gate.Evaluate(ctx, &req)
	if err != nil {
		return nil, errors.ErrGateUnavailable(err)
	}
	if !decision.Approved {
		o.logger.InfoGate("Scan request rejected", req.Target, "violations", decision.Violations)
		return nil, errors.ErrConscienceRejected(decision.Violations)
	}

	// Early capacity check so a saturated orchestrator rejects cheaply,
	// before parsing. Admission re-checks under the same lock that flips
	// the job to Running, so the limit cannot be exceeded by concurrent
	// callers.
	o.mu.Lock()
	atCapacity := o.running >= o.cfg.MaxConcurrentScans
	o.mu.Unlock()
	if atCapacity {
		return nil, errors.ErrConcurrencyLimit(o.cfg.MaxConcurrentScans)
	}

	targets, err := ParseTarget(req.Target)
	if err != nil {
		return nil, err
	}

	portSpec := req.Ports
	if portSpec == "" {
		portSpec = o.cfg.DefaultPorts
	}
	ports, err := ParsePorts(portSpec)
	if err != nil {
		return nil, err
	}

	if req.RateLimit == 0 {
		req.RateLimit = o.cfg.DefaultRateLimit
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	job := &ScanJob{
		ID:        uuid.New(),
		Request:   req,
		Status:    StatusPending,
		Warnings:  decision.Warnings,
		CreatedAt: time.Now(),
		ctx:       jobCtx,
		cancel:    cancel,
		reporter:  NewProgressReporter(),
	}

	o.mu.Lock()
	if o.running >= o.cfg.MaxConcurrentScans {
		o.mu.Unlock()
		cancel()
		job.reporter.Close()
		return nil, errors.ErrConcurrencyLimit(o.cfg.MaxConcurrentScans)
	}
	now := time.Now()
	job.Status = StatusRunning
	job.StartedAt = &now
	o.jobs[job.ID] = job
	o.running++
	active := o.running
	o.mu.Unlock()

	metrics.GetGlobalMetrics().SetActiveScans(active)
	o.logger.InfoScan("Scan admitted", job.ID.String(),
		"target", req.Target,
		"scan_type", req.ScanType,
		"addresses", targets.Size(),
		"ports", len(ports),
		"rate_limit", req.RateLimit)

	go o.runScan(job, targets, ports)

	return &ScanReceipt{ScanID: job.ID, Warnings: decision.Warnings}, nil
}

// GetScanStatus returns a consistent point-in-time copy of a job. It never
// blocks on the running scan loop beyond acquiring the registry lock.
func (o *Orchestrator) GetScanStatus(scanID uuid.UUID) (*ScanJobSnapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	job, ok := o.jobs[scanID]
	if !ok {
		return nil, errors.ErrScanNotFound(scanID.String())
	}
	snapshot := o.snapshotLocked(job)
	return &snapshot, nil
}

// CancelScan requests cooperative cancellation. The scan loop observes the
// flag at address granularity, so in the worst case the cancel takes effect
// after one address's full port list. Cancelling a job already in a
// terminal state is a no-op, not an error.
func (o *Orchestrator) CancelScan(scanID uuid.UUID) error {
	o.mu.Lock()
	job, ok := o.jobs[scanID]
	if !ok {
		o.mu.Unlock()
		return errors.ErrScanNotFound(scanID.String())
	}
	if job.Status.Terminal() {
		o.mu.Unlock()
		return nil
	}
	job.cancelled.Store(true)
	o.mu.Unlock()

	// Wake pacing sleeps and in-flight probes early; the loop still
	// transitions status itself.
	job.cancel()

	o.logger.InfoScan("Scan cancellation requested", scanID.String())
	return nil
}

// ActiveScans returns snapshots of all jobs currently in Running state.
func (o *Orchestrator) ActiveScans() []ScanJobSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	var active []ScanJobSnapshot
	for _, job := range o.jobs {
		if job.Status == StatusRunning {
			active = append(active, o.snapshotLocked(job))
		}
	}
	return active
}

// Events returns the progress stream for a scan. The channel is closed
// once the job reaches a terminal state and all queued events have been
// delivered.
func (o *Orchestrator) Events(scanID uuid.UUID) (<-chan ProgressEvent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	job, ok := o.jobs[scanID]
	if !ok {
		return nil, errors.ErrScanNotFound(scanID.String())
	}
	return job.reporter.Events(), nil
}

// ClearFinished evicts terminal jobs from the registry and returns how
// many were removed. Nothing evicts automatically; jobs stay queryable
// until a caller clears them.
func (o *Orchestrator) ClearFinished() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	removed := 0
	for id, job := range o.jobs {
		if job.Status.Terminal() {
			delete(o.jobs, id)
			removed++
		}
	}
	return removed
}

// snapshotLocked deep-copies a job. Callers must hold o.mu.
func (o *Orchestrator) snapshotLocked(job *ScanJob) ScanJobSnapshot {
	hosts := make([]HostResult, len(job.Hosts))
	for i, host := range job.Hosts {
		copied := host
		copied.Ports = make([]PortResult, len(host.Ports))
		copy(copied.Ports, host.Ports)
		hosts[i] = copied
	}

	return ScanJobSnapshot{
		ScanID:        job.ID.String(),
		Target:        job.Request.Target,
		ScanType:      job.Request.ScanType,
		Status:        job.Status,
		FailureReason: job.FailureReason,
		Warnings:      job.Warnings,
		Hosts:         hosts,
		ScannedCount:  job.scanned.Load(),
		OpenCount:     job.openPorts.Load(),
		CreatedAt:     job.CreatedAt,
		StartedAt:     job.StartedAt,
		EndedAt:       job.EndedAt,
	}
}

// runScan is the scan loop: addresses in ascending order, ports in
// ascending request order per address. The cancellation flag is polled
// before each address; the timeout rides on the scan context's deadline,
// so it also interrupts limiter waits and probes mid-port-list.
func (o *Orchestrator) runScan(job *ScanJob, targets TargetRange, ports []uint16) {
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			o.logger.ErrorScan("Scan loop panicked", job.ID.String(),
				fmt.Errorf("panic: %v", p))
			o.finishScan(job, StatusFailed, fmt.Sprintf("panic: %v", p))
		}
	}()

	bannerGrab := job.Request.BannerGrab()

	var limiter *rate.Limiter
	if job.Request.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(job.Request.RateLimit), 1)
	}

	var timeout time.Duration
	scanCtx := job.ctx
	if job.Request.TimeoutSeconds > 0 {
		timeout = time.Duration(job.Request.TimeoutSeconds) * time.Second
		var cancelTimeout context.CancelFunc
		scanCtx, cancelTimeout = context.WithDeadline(job.ctx, start.Add(timeout))
		defer cancelTimeout()
	}

	every := progressEvery(o.cfg.ProgressInterval, targets.Size()*uint64(len(ports)))

	var scanned, open uint64
	for i := uint64(0); i < targets.Size(); i++ {
		if job.cancelRequested() {
			o.publishSummary(job, scanned, open, start)
			o.finishScan(job, StatusCancelled, "")
			return
		}
		if timeout > 0 && time.Since(start) > timeout {
			o.finishScan(job, StatusFailed, "timeout")
			return
		}

		addr := targets.Addr(i)
		hostIdx := -1

		for _, port := range ports {
			if limiter != nil {
				if err := limiter.Wait(scanCtx); err != nil {
					if job.cancelRequested() || job.ctx.Err() != nil {
						// Cancelled mid-port-list; the per-address
						// check above performs the transition.
						break
					}
					o.finishScan(job, StatusFailed, "timeout")
					return
				}
			}

			outcome, err := o.probe.Probe(scanCtx, addr, port, bannerGrab)
			scanned++
			job.scanned.Store(scanned)

			if err != nil {
				if job.cancelRequested() || job.ctx.Err() != nil {
					break
				}
				if scanCtx.Err() != nil {
					o.finishScan(job, StatusFailed, "timeout")
					return
				}
				o.finishScan(job, StatusFailed,
					fmt.Sprintf("probe %s:%d failed: %v", addr, port, err))
				return
			}

			if outcome.State == StateOpen {
				open++
				job.openPorts.Store(open)
				// Event first, then registry write: the PortOpen event
				// must never trail the result's visibility in status.
				job.reporter.Publish(ProgressEvent{
					Kind:         EventPortOpen,
					IP:           addr.String(),
					Port:         port,
					ScannedCount: scanned,
					OpenCount:    open,
					Elapsed:      time.Since(start),
				})
				o.recordOpenPort(job, &hostIdx, addr, port, outcome.Banner)
				metrics.GetGlobalMetrics().IncrementOpenPorts()
			}

			if scanned%every == 0 {
				elapsed := time.Since(start)
				job.reporter.Publish(ProgressEvent{
					Kind:         EventProgress,
					ScannedCount: scanned,
					OpenCount:    open,
					Rate:         throughput(scanned, elapsed),
					Elapsed:      elapsed,
				})
			}
		}

		if hostIdx >= 0 {
			o.resolveHost(job, hostIdx, addr)
		}
	}

	o.publishSummary(job, scanned, open, start)
	o.finishScan(job, StatusCompleted, "")
}

// recordOpenPort appends an open port to the job under the registry lock,
// creating the address's HostResult on first discovery.
func (o *Orchestrator) recordOpenPort(job *ScanJob, hostIdx *int, addr netip.Addr, port uint16, banner *string) {
	result := PortResult{
		Port:     port,
		Protocol: ProtocolTCP,
		State:    StateOpen,
		Banner:   banner,
	}

	o.mu.Lock()
	if *hostIdx < 0 {
		job.Hosts = append(job.Hosts, HostResult{
			IPAddr:       addr.String(),
			Ports:        []PortResult{result},
			DiscoveredAt: time.Now(),
		})
		*hostIdx = len(job.Hosts) - 1
	} else {
		job.Hosts[*hostIdx].Ports = append(job.Hosts[*hostIdx].Ports, result)
	}
	o.mu.Unlock()
}

// resolveHost attaches a PTR name to a discovered host when the request
// asked for resolution. Lookup failures leave the hostname absent.
func (o *Orchestrator) resolveHost(job *ScanJob, hostIdx int, addr netip.Addr) {
	if o.resolver == nil || !job.Request.ResolveHostnames() {
		return
	}
	name, err := o.resolver.ReverseLookup(job.ctx, addr)
	if err != nil {
		return
	}
	o.mu.Lock()
	job.Hosts[hostIdx].Hostname = &name
	o.mu.Unlock()
}

// publishSummary emits the Complete-shaped summary event. Cancelled scans
// emit it too, with partial counts, so late subscribers still see totals.
func (o *Orchestrator) publishSummary(job *ScanJob, scanned, open uint64, start time.Time) {
	elapsed := time.Since(start)
	job.reporter.Publish(ProgressEvent{
		Kind:         EventComplete,
		ScannedCount: scanned,
		OpenCount:    open,
		Rate:         throughput(scanned, elapsed),
		Elapsed:      elapsed,
	})
}

// finishScan performs the single transition into a terminal state. It is
// idempotent; every exit path of the scan loop funnels through it, so the
// running counter and the registry stay consistent even on panic.
func (o *Orchestrator) finishScan(job *ScanJob, status ScanStatus, reason string) {
	o.mu.Lock()
	if job.Status.Terminal() {
		o.mu.Unlock()
		return
	}
	wasRunning := job.Status == StatusRunning
	job.Status = status
	job.FailureReason = reason
	now := time.Now()
	job.EndedAt = &now
	if wasRunning {
		o.running--
	}
	active := o.running
	o.mu.Unlock()

	job.cancel()
	job.reporter.Close()

	m := metrics.GetGlobalMetrics()
	m.SetActiveScans(active)
	m.AddProbes(job.scanned.Load())
	scanType := string(job.Request.ScanType)
	m.IncrementScansTotal(scanType, strings.ToLower(string(status)))
	if status == StatusFailed {
		errReason := "runtime"
		if reason == "timeout" {
			errReason = "timeout"
		}
		m.IncrementScanErrors(scanType, errReason)
	}
	if job.StartedAt != nil {
		m.RecordScanDuration(scanType, now.Sub(*job.StartedAt).Seconds())
	}

	o.logger.InfoScan("Scan finished", job.ID.String(),
		"status", status,
		"reason", reason,
		"scanned", job.scanned.Load(),
		"open_ports", job.openPorts.Load())
}

// progressEvery picks the Progress event interval: the configured count,
// tightened for small scans so short jobs still report.
func progressEvery(configured int, totalProbes uint64) uint64 {
	every := uint64(configured)
	if totalProbes/10 > 0 && totalProbes/10 < every {
		every = totalProbes / 10
	}
	if every == 0 {
		every = 1
	}
	return every
}

func throughput(scanned uint64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(scanned) / elapsed.Seconds()
}
