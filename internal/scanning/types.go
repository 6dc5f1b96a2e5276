package scanning

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ScanType determines the kind of reconnaissance performed.
type ScanType string

const (
	ScanTypePassive          ScanType = "Passive"
	ScanTypePortDiscovery    ScanType = "PortDiscovery"
	ScanTypeServiceDetection ScanType = "ServiceDetection"
	ScanTypeOSFingerprint    ScanType = "OsFingerprint"
)

// Valid reports whether the scan type is one of the known kinds.
func (t ScanType) Valid() bool {
	switch t {
	case ScanTypePassive, ScanTypePortDiscovery, ScanTypeServiceDetection, ScanTypeOSFingerprint:
		return true
	default:
		return false
	}
}

// ScanStatus is the lifecycle state of a scan job. Transitions form a DAG:
// Pending -> Running -> {Completed | Cancelled | Failed}. There is no
// transition out of a terminal state.
type ScanStatus string

const (
	StatusPending   ScanStatus = "Pending"
	StatusRunning   ScanStatus = "Running"
	StatusCompleted ScanStatus = "Completed"
	StatusCancelled ScanStatus = "Cancelled"
	StatusFailed    ScanStatus = "Failed"
)

// Terminal reports whether the status is final.
func (s ScanStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

// Protocol is the transport protocol of a probed port.
type Protocol string

const (
	ProtocolTCP Protocol = "Tcp"
	ProtocolUDP Protocol = "Udp"
)

// PortState is the observed state of a probed port.
type PortState string

const (
	StateOpen     PortState = "Open"
	StateClosed   PortState = "Closed"
	StateFiltered PortState = "Filtered"
)

// ScanRequest describes one scan to run. Immutable once submitted.
type ScanRequest struct {
	// Target is a single IP, a CIDR block, or the "internet" alias.
	Target string `json:"target" validate:"required"`

	// ScanType selects the reconnaissance mode.
	ScanType ScanType `json:"scan_type" validate:"required,oneof=Passive PortDiscovery ServiceDetection OsFingerprint"`

	// Ports is a comma-separated port list. Empty means the orchestrator's
	// configured default ports.
	Ports string `json:"ports,omitempty"`

	// RateLimit bounds probe throughput in probes per second. Zero leaves
	// the scan unpaced.
	RateLimit uint `json:"rate_limit,omitempty"`

	// TimeoutSeconds bounds total scan duration. Zero means no timeout.
	TimeoutSeconds uint `json:"timeout,omitempty"`

	// Options carries auxiliary request options such as "resolve".
	Options map[string]string `json:"options,omitempty"`
}

// BannerGrab reports whether this request should attempt banner grabs on
// open ports. Service detection and OS fingerprinting both read banners.
func (r *ScanRequest) BannerGrab() bool {
	return r.ScanType == ScanTypeServiceDetection || r.ScanType == ScanTypeOSFingerprint
}

// ResolveHostnames reports whether discovered hosts should get a reverse
// DNS lookup.
func (r *ScanRequest) ResolveHostnames() bool {
	return r.Options["resolve"] == "true"
}

// PortResult is the outcome of probing a single port.
type PortResult struct {
	Port     uint16    `json:"port"`
	Protocol Protocol  `json:"protocol"`
	State    PortState `json:"state"`
	Banner   *string   `json:"banner"`
}

// HostResult collects the findings for one address.
type HostResult struct {
	IPAddr       string       `json:"ip_addr"`
	Hostname     *string      `json:"hostname,omitempty"`
	Ports        []PortResult `json:"ports"`
	DiscoveredAt time.Time    `json:"discovered_at"`
}

// EventKind tags a progress event.
type EventKind string

const (
	EventPortOpen EventKind = "port_open"
	EventProgress EventKind = "progress"
	EventComplete EventKind = "complete"
)

// ProgressEvent is one entry in a scan's progress stream. Events carry
// scanned counts and elapsed time so consumers can derive throughput
// without querying the orchestrator.
type ProgressEvent struct {
	Kind         EventKind     `json:"kind"`
	IP           string        `json:"ip,omitempty"`
	Port         uint16        `json:"port,omitempty"`
	ScannedCount uint64        `json:"scanned_count"`
	OpenCount    uint64        `json:"open_count"`
	Rate         float64       `json:"rate,omitempty"`
	Elapsed      time.Duration `json:"elapsed"`
}

// ScanJob is the mutable state of one scan. It is owned exclusively by the
// Orchestrator and mutated only while holding the registry lock.
type ScanJob struct {
	ID            uuid.UUID
	Request       ScanRequest
	Status        ScanStatus
	FailureReason string
	Warnings      []string
	Hosts         []HostResult
	CreatedAt     time.Time
	StartedAt     *time.Time
	EndedAt       *time.Time

	scanned   atomic.Uint64
	openPorts atomic.Uint64

	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
	reporter  *ProgressReporter
}

// cancelRequested reports whether CancelScan has been called for this job.
func (j *ScanJob) cancelRequested() bool {
	return j.cancelled.Load()
}

// ScanJobSnapshot is a consistent point-in-time copy of a job, safe to use
// after the registry lock is released.
type ScanJobSnapshot struct {
	ScanID        string       `json:"scan_id"`
	Target        string       `json:"target"`
	ScanType      ScanType     `json:"scan_type"`
	Status        ScanStatus   `json:"status"`
	FailureReason string       `json:"failure_reason,omitempty"`
	Warnings      []string     `json:"warnings,omitempty"`
	Hosts         []HostResult `json:"hosts"`
	ScannedCount  uint64       `json:"scanned_count"`
	OpenCount     uint64       `json:"open_count"`
	CreatedAt     time.Time    `json:"created_at"`
	StartedAt     *time.Time   `json:"started_at,omitempty"`
	EndedAt       *time.Time   `json:"ended_at,omitempty"`
}

// ScanReceipt is returned by StartScan: the allocated scan ID plus any
// advisory warnings from the conscience gate.
type ScanReceipt struct {
	ScanID   uuid.UUID `json:"scan_id"`
	Warnings []string  `json:"warnings,omitempty"`
}

// GateDecision is the conscience gate's verdict on a scan request.
// Approved == false is a hard rejection; warnings never block a scan.
type GateDecision struct {
	Approved   bool     `json:"approved"`
	Warnings   []string `json:"warnings,omitempty"`
	Violations []string `json:"violations,omitempty"`
}

// ConscienceGate is the external policy-approval step consulted once per
// scan request before admission.
type ConscienceGate interface {
	Evaluate(ctx context.Context, req *ScanRequest) (*GateDecision, error)
}
