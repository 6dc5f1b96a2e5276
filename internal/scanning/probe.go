package scanning

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultProbeTimeout = 2 * time.Second
	defaultBannerWait   = 500 * time.Millisecond
	maxBannerBytes      = 1024
)

// ProbeOutcome is the result of probing one (address, port) pair. Banner is
// nil unless a banner grab was requested and succeeded; failing to read a
// banner from an open port is not an error.
type ProbeOutcome struct {
	State  PortState
	Banner *string
}

// ProbeEngine determines the state of a single port on a single address.
// Implementations must be safe for concurrent use and must not keep global
// mutable state; the scan loop injects whichever engine it was built with,
// so tests can substitute a deterministic stub.
type ProbeEngine interface {
	Probe(ctx context.Context, addr netip.Addr, port uint16, bannerGrab bool) (ProbeOutcome, error)
}

// ConnectProbe probes ports with a full TCP connect, the portable scan
// primitive. A refused connection reports Closed, a timeout reports
// Filtered, and an accepted connection reports Open with an optional
// banner read.
type ConnectProbe struct {
	timeout    time.Duration
	bannerWait time.Duration
}

// NewConnectProbe creates a connect prober. Zero durations fall back to
// the package defaults.
func NewConnectProbe(timeout, bannerWait time.Duration) *ConnectProbe {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	if bannerWait <= 0 {
		bannerWait = defaultBannerWait
	}
	return &ConnectProbe{timeout: timeout, bannerWait: bannerWait}
}

// Probe implements ProbeEngine.
func (p *ConnectProbe) Probe(ctx context.Context, addr netip.Addr, port uint16, bannerGrab bool) (ProbeOutcome, error) {
	dialer := net.Dialer{Timeout: p.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", netip.AddrPortFrom(addr, port).String())
	if err != nil {
		if ctx.Err() != nil {
			return ProbeOutcome{}, ctx.Err()
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ProbeOutcome{State: StateFiltered}, nil
		}
		// Refused or unreachable
		return ProbeOutcome{State: StateClosed}, nil
	}
	defer func() { _ = conn.Close() }()

	outcome := ProbeOutcome{State: StateOpen}
	if bannerGrab {
		outcome.Banner = p.readBanner(conn)
	}
	return outcome, nil
}

// readBanner reads whatever the service volunteers after connect.
func (p *ConnectProbe) readBanner(conn net.Conn) *string {
	if err := conn.SetReadDeadline(time.Now().Add(p.bannerWait)); err != nil {
		return nil
	}
	buf := make([]byte, maxBannerBytes)
	n, _ := conn.Read(buf)
	if n <= 0 {
		return nil
	}
	banner := strings.TrimSpace(string(buf[:n]))
	if banner == "" {
		return nil
	}
	return &banner
}

// StubProbe is a deterministic probe engine for tests and dry runs.
// Outcomes are pre-programmed per (address, port) pair; everything not
// programmed reports Closed.
type StubProbe struct {
	mu       sync.RWMutex
	outcomes map[netip.AddrPort]ProbeOutcome
	failures map[netip.AddrPort]error
	delay    time.Duration
	probes   atomic.Uint64
}

// NewStubProbe creates an empty stub engine.
func NewStubProbe() *StubProbe {
	return &StubProbe{
		outcomes: make(map[netip.AddrPort]ProbeOutcome),
		failures: make(map[netip.AddrPort]error),
	}
}

// SetOpen programs an open port. An empty banner means no banner.
func (s *StubProbe) SetOpen(addr string, port uint16, banner string) {
	outcome := ProbeOutcome{State: StateOpen}
	if banner != "" {
		outcome.Banner = &banner
	}
	s.SetOutcome(addr, port, outcome)
}

// SetOutcome programs an arbitrary outcome.
func (s *StubProbe) SetOutcome(addr string, port uint16, outcome ProbeOutcome) {
	key := netip.AddrPortFrom(netip.MustParseAddr(addr), port)
	s.mu.Lock()
	s.outcomes[key] = outcome
	s.mu.Unlock()
}

// SetError programs a probe failure.
func (s *StubProbe) SetError(addr string, port uint16, err error) {
	key := netip.AddrPortFrom(netip.MustParseAddr(addr), port)
	s.mu.Lock()
	s.failures[key] = err
	s.mu.Unlock()
}

// SetDelay makes every probe take at least d, for pacing and cancellation
// tests.
func (s *StubProbe) SetDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

// Probes returns how many probes have been issued.
func (s *StubProbe) Probes() uint64 {
	return s.probes.Load()
}

// Probe implements ProbeEngine.
func (s *StubProbe) Probe(ctx context.Context, addr netip.Addr, port uint16, bannerGrab bool) (ProbeOutcome, error) {
	s.probes.Add(1)

	s.mu.RLock()
	delay := s.delay
	key := netip.AddrPortFrom(addr, port)
	failure := s.failures[key]
	outcome, programmed := s.outcomes[key]
	s.mu.RUnlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ProbeOutcome{}, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return ProbeOutcome{}, err
	}
	if failure != nil {
		return ProbeOutcome{}, failure
	}
	if !programmed {
		return ProbeOutcome{State: StateClosed}, nil
	}
	if !bannerGrab {
		outcome.Banner = nil
	}
	return outcome, nil
}
