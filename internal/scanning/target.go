package scanning

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/kvist/reconwave/internal/errors"
)

const ipv4Bits = 32

// TargetRange is an ordered, enumerable IPv4 address range. Addresses are
// generated on demand from a numeric cursor, so even 0.0.0.0/0 costs two
// words of memory.
type TargetRange struct {
	first uint32
	last  uint32
}

// ParseTarget parses a target string into an address range.
//
// Accepted forms:
//   - a single IPv4 literal ("10.0.0.1")
//   - a CIDR block ("192.168.1.0/24"), expanded from network address to
//     broadcast address inclusive, in ascending order
//   - the aliases "internet" and "0.0.0.0/0", the full IPv4 space
//
// ParseTarget is a pure function: it never rejects a large range. Bounding
// the cost of scanning one is the caller's job.
func ParseTarget(target string) (TargetRange, error) {
	trimmed := strings.TrimSpace(target)
	if strings.EqualFold(trimmed, "internet") {
		trimmed = "0.0.0.0/0"
	}

	if slash := strings.IndexByte(trimmed, '/'); slash >= 0 {
		return parseCIDR(trimmed, slash)
	}

	addr, err := parseIPv4(trimmed)
	if err != nil {
		return TargetRange{}, errors.ErrInvalidTarget(target, err)
	}
	v := addrToUint32(addr)
	return TargetRange{first: v, last: v}, nil
}

// parseCIDR expands A.B.C.D/N into [network, broadcast].
func parseCIDR(s string, slash int) (TargetRange, error) {
	addr, err := parseIPv4(s[:slash])
	if err != nil {
		return TargetRange{}, errors.ErrInvalidTarget(s, err)
	}

	bits, err := strconv.Atoi(s[slash+1:])
	if err != nil {
		return TargetRange{}, errors.ErrInvalidTarget(s, fmt.Errorf("invalid prefix length %q", s[slash+1:]))
	}
	if bits < 0 || bits > ipv4Bits {
		return TargetRange{}, errors.ErrInvalidTarget(s,
			fmt.Errorf("prefix length %d out of range [0,%d]", bits, ipv4Bits))
	}

	var mask uint32
	if bits > 0 {
		mask = ^uint32(0) << (ipv4Bits - bits)
	}

	network := addrToUint32(addr) & mask
	broadcast := network | ^mask
	return TargetRange{first: network, last: broadcast}, nil
}

// parseIPv4 parses a dotted-quad IPv4 literal, rejecting IPv6 and
// 4-in-6 forms.
func parseIPv4(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("address %q is not IPv4", s)
	}
	return addr, nil
}

// Size returns the number of addresses in the range.
func (r TargetRange) Size() uint64 {
	return uint64(r.last) - uint64(r.first) + 1
}

// Addr returns the i-th address of the range in ascending numeric order.
// i must be < Size().
func (r TargetRange) Addr(i uint64) netip.Addr {
	return uint32ToAddr(r.first + uint32(i))
}

// First returns the lowest address of the range.
func (r TargetRange) First() netip.Addr {
	return uint32ToAddr(r.first)
}

// Last returns the highest address of the range.
func (r TargetRange) Last() netip.Addr {
	return uint32ToAddr(r.last)
}

// Contains reports whether addr falls inside the range.
func (r TargetRange) Contains(addr netip.Addr) bool {
	if !addr.Is4() {
		return false
	}
	v := addrToUint32(addr)
	return v >= r.first && v <= r.last
}

// String renders the range for logs.
func (r TargetRange) String() string {
	if r.first == r.last {
		return r.First().String()
	}
	return fmt.Sprintf("%s-%s", r.First(), r.Last())
}

func addrToUint32(addr netip.Addr) uint32 {
	b := addr.As4()
	return binary.BigEndian.Uint32(b[:])
}

func uint32ToAddr(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}
