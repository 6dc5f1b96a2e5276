package scanning

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startPTRServer runs a local DNS server that answers PTR queries for
// 10.0.0.1 and NXDOMAINs everything else.
func startPTRServer(t *testing.T) string {
	t.Helper()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	mux := dns.NewServeMux()
	mux.HandleFunc(".", func(w dns.ResponseWriter, req *dns.Msg) {
		reply := new(dns.Msg)
		reply.SetReply(req)

		question := req.Question[0]
		if question.Qtype == dns.TypePTR && question.Name == "1.0.0.10.in-addr.arpa." {
			reply.Answer = append(reply.Answer, &dns.PTR{
				Hdr: dns.RR_Header{
					Name:   question.Name,
					Rrtype: dns.TypePTR,
					Class:  dns.ClassINET,
					Ttl:    60,
				},
				Ptr: "gateway.internal.example.",
			})
		} else {
			reply.Rcode = dns.RcodeNameError
		}
		_ = w.WriteMsg(reply)
	})

	server := &dns.Server{PacketConn: conn, Handler: mux}
	go func() { _ = server.ActivateAndServe() }()
	t.Cleanup(func() { _ = server.Shutdown() })

	return conn.LocalAddr().String()
}

func TestReverseLookup(t *testing.T) {
	resolver := NewResolver(startPTRServer(t))

	name, err := resolver.ReverseLookup(context.Background(), netip.MustParseAddr("10.0.0.1"))
	require.NoError(t, err)
	assert.Equal(t, "gateway.internal.example", name)
}

func TestReverseLookupNoRecord(t *testing.T) {
	resolver := NewResolver(startPTRServer(t))

	_, err := resolver.ReverseLookup(context.Background(), netip.MustParseAddr("10.0.0.2"))
	require.Error(t, err)
}

func TestReverseLookupUnreachableServer(t *testing.T) {
	resolver := NewResolver("127.0.0.1:1")
	resolver.client.Timeout = 200 * time.Millisecond

	_, err := resolver.ReverseLookup(context.Background(), netip.MustParseAddr("10.0.0.1"))
	require.Error(t, err)
}

func TestNewResolverDefaultServer(t *testing.T) {
	resolver := NewResolver("")
	assert.NotEmpty(t, resolver.server)
}
