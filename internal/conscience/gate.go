// Package conscience implements the policy-approval gate consulted before
// every scan is admitted. Two implementations are provided: a local
// PolicyGate driven by configuration, and an HTTPGate that defers the
// decision to an external approval service.
package conscience

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"github.com/kvist/reconwave/internal/logging"
	"github.com/kvist/reconwave/internal/scanning"
)

const (
	defaultHTTPTimeout = 5 * time.Second

	// Ranges at or above this size draw an advisory warning.
	largeRangeThreshold = 1 << 16
)

// PolicyGate evaluates scan requests against a locally configured policy:
// a blocklist of networks plus an opt-in for internet-wide scans. It is
// the default gate when no external approval service is configured.
type PolicyGate struct {
	blocked           []netip.Prefix
	allowInternetScan bool
	logger            *logging.Logger
}

// NewPolicyGate builds a gate from CIDR blocklist entries. Entries that do
// not parse are rejected up front so a typo cannot silently open a hole.
func NewPolicyGate(blockedNetworks []string, allowInternetScan bool) (*PolicyGate, error) {
	blocked := make([]netip.Prefix, 0, len(blockedNetworks))
	for _, network := range blockedNetworks {
		prefix, err := netip.ParsePrefix(network)
		if err != nil {
			return nil, fmt.Errorf("blocked network %q: %w", network, err)
		}
		blocked = append(blocked, prefix.Masked())
	}
	return &PolicyGate{
		blocked:           blocked,
		allowInternetScan: allowInternetScan,
		logger:            logging.Default().WithComponent("conscience"),
	}, nil
}

// Evaluate implements scanning.ConscienceGate.
func (g *PolicyGate) Evaluate(_ context.Context, req *scanning.ScanRequest) (*scanning.GateDecision, error) {
	targets, err := scanning.ParseTarget(req.Target)
	if err != nil {
		// Let the orchestrator's own parse step produce the error; an
		// unparseable target is not a policy violation.
		return &scanning.GateDecision{Approved: true}, nil
	}

	decision := &scanning.GateDecision{Approved: true}

	if targets.Size() == 1<<32 && !g.allowInternetScan {
		decision.Approved = false
		decision.Violations = append(decision.Violations,
			"internet-wide scans are disabled by policy")
	}

	for _, prefix := range g.blocked {
		if rangeOverlapsPrefix(targets, prefix) {
			decision.Approved = false
			decision.Violations = append(decision.Violations,
				fmt.Sprintf("target overlaps blocked network %s", prefix))
		}
	}

	if decision.Approved && targets.Size() >= largeRangeThreshold {
		decision.Warnings = append(decision.Warnings,
			fmt.Sprintf("large target range (%d addresses); consider a rate limit", targets.Size()))
	}

	if !decision.Approved {
		g.logger.InfoGate("Policy gate rejected request", req.Target,
			"violations", decision.Violations)
	}
	return decision, nil
}

// rangeOverlapsPrefix reports whether any address of the range falls inside
// the prefix. Both are contiguous, so checking the prefix endpoints against
// the range and vice versa covers every overlap case.
func rangeOverlapsPrefix(targets scanning.TargetRange, prefix netip.Prefix) bool {
	if targets.Contains(prefix.Addr()) {
		return true
	}
	return prefix.Contains(targets.First()) || prefix.Contains(targets.Last())
}

// gateRequest is the wire shape sent to an external approval service.
type gateRequest struct {
	Target   string            `json:"target"`
	ScanType scanning.ScanType `json:"scan_type"`
	Options  map[string]string `json:"options,omitempty"`
}

// HTTPGate defers approval to an external service speaking a small JSON
// protocol: POST the request, receive a GateDecision. Transport failures
// and non-200 responses surface as errors so the orchestrator can report
// the gate as unavailable rather than silently approving.
type HTTPGate struct {
	url    string
	client *http.Client
	logger *logging.Logger
}

// NewHTTPGate creates a gate client for the given endpoint URL.
func NewHTTPGate(url string, timeout time.Duration) *HTTPGate {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPGate{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logging.Default().WithComponent("conscience"),
	}
}

// Evaluate implements scanning.ConscienceGate.
func (g *HTTPGate) Evaluate(ctx context.Context, req *scanning.ScanRequest) (*scanning.GateDecision, error) {
	body, err := json.Marshal(gateRequest{
		Target:   req.Target,
		ScanType: req.ScanType,
		Options:  req.Options,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding gate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building gate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("conscience gate request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("conscience gate returned status %d", resp.StatusCode)
	}

	var decision scanning.GateDecision
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		return nil, fmt.Errorf("decoding gate decision: %w", err)
	}

	if !decision.Approved {
		g.logger.InfoGate("External gate rejected request", req.Target,
			"violations", decision.Violations)
	}
	return &decision, nil
}
