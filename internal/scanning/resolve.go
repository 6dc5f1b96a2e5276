package scanning

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const (
	defaultResolveTimeout = 2 * time.Second
	resolvConfPath        = "/etc/resolv.conf"
	fallbackDNSServer     = "1.1.1.1:53"
)

// Resolver performs reverse DNS (PTR) lookups used to attach hostnames to
// discovered hosts when a request sets options["resolve"] = "true".
type Resolver struct {
	client *dns.Client
	server string
}

// NewResolver creates a resolver against the given "host:port" DNS server.
// An empty server uses the first nameserver from /etc/resolv.conf, or a
// public resolver if that file is unavailable.
func NewResolver(server string) *Resolver {
	if server == "" {
		server = systemDNSServer()
	}
	return &Resolver{
		client: &dns.Client{Timeout: defaultResolveTimeout},
		server: server,
	}
}

// ReverseLookup returns the PTR name for addr, without the trailing dot.
func (r *Resolver) ReverseLookup(ctx context.Context, addr netip.Addr) (string, error) {
	reverse, err := dns.ReverseAddr(addr.String())
	if err != nil {
		return "", fmt.Errorf("reverse address for %s: %w", addr, err)
	}

	msg := new(dns.Msg)
	msg.SetQuestion(reverse, dns.TypePTR)
	msg.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return "", fmt.Errorf("PTR query for %s: %w", addr, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return "", fmt.Errorf("PTR query for %s: rcode %s", addr, dns.RcodeToString[resp.Rcode])
	}

	for _, answer := range resp.Answer {
		if ptr, ok := answer.(*dns.PTR); ok {
			return strings.TrimSuffix(ptr.Ptr, "."), nil
		}
	}
	return "", fmt.Errorf("no PTR record for %s", addr)
}

// systemDNSServer picks the machine's first configured nameserver.
func systemDNSServer() string {
	conf, err := dns.ClientConfigFromFile(resolvConfPath)
	if err != nil || len(conf.Servers) == 0 {
		return fallbackDNSServer
	}
	return conf.Servers[0] + ":" + conf.Port
}
