package scanning

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvist/reconwave/internal/errors"
)

func TestParseTargetSingleAddress(t *testing.T) {
	targets, err := ParseTarget("10.0.0.1")
	require.NoError(t, err)

	assert.Equal(t, uint64(1), targets.Size())
	assert.Equal(t, "10.0.0.1", targets.Addr(0).String())
}

func TestParseTargetCIDR(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		size     uint64
		first    string
		last     string
		contains []string
	}{
		{
			name:     "slash 24",
			target:   "192.168.1.0/24",
			size:     256,
			first:    "192.168.1.0",
			last:     "192.168.1.255",
			contains: []string{"192.168.1.1", "192.168.1.254"},
		},
		{
			name:   "slash 30",
			target: "10.0.0.0/30",
			size:   4,
			first:  "10.0.0.0",
			last:   "10.0.0.3",
		},
		{
			name:   "slash 32",
			target: "172.16.5.9/32",
			size:   1,
			first:  "172.16.5.9",
			last:   "172.16.5.9",
		},
		{
			name:   "host bits are masked off",
			target: "192.168.1.77/24",
			size:   256,
			first:  "192.168.1.0",
			last:   "192.168.1.255",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			targets, err := ParseTarget(tt.target)
			require.NoError(t, err)

			assert.Equal(t, tt.size, targets.Size())
			assert.Equal(t, tt.first, targets.First().String())
			assert.Equal(t, tt.last, targets.Last().String())
			for _, addr := range tt.contains {
				assert.True(t, targets.Contains(netip.MustParseAddr(addr)),
					"range should contain %s", addr)
			}
		})
	}
}

func TestParseTargetInternetAlias(t *testing.T) {
	for _, target := range []string{"internet", "Internet", "0.0.0.0/0"} {
		targets, err := ParseTarget(target)
		require.NoError(t, err, "target %q", target)

		assert.Equal(t, uint64(1)<<32, targets.Size())
		assert.Equal(t, "0.0.0.0", targets.First().String())
		assert.Equal(t, "255.255.255.255", targets.Last().String())
	}
}

func TestParseTargetInvalid(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{"prefix too long", "192.168.1.0/33"},
		{"negative prefix", "192.168.1.0/-1"},
		{"non-numeric prefix", "192.168.1.0/abc"},
		{"octet out of range", "300.168.1.0"},
		{"not an address", "not-an-ip"},
		{"empty", ""},
		{"ipv6", "::1"},
		{"ipv6 cidr", "2001:db8::/32"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTarget(tt.target)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.CodeTargetInvalid),
				"expected TARGET_INVALID, got %v", err)
		})
	}
}

func TestTargetRangeEnumeration(t *testing.T) {
	targets, err := ParseTarget("10.0.0.0/30")
	require.NoError(t, err)

	want := []string{"10.0.0.0", "10.0.0.1", "10.0.0.2", "10.0.0.3"}
	for i, expected := range want {
		assert.Equal(t, expected, targets.Addr(uint64(i)).String())
	}
}

func TestTargetRangeAscendingAcrossOctets(t *testing.T) {
	targets, err := ParseTarget("10.0.0.254/23")
	require.NoError(t, err)

	require.Equal(t, uint64(512), targets.Size())
	assert.Equal(t, "10.0.0.255", targets.Addr(255).String())
	assert.Equal(t, "10.0.1.0", targets.Addr(256).String())
}

func TestTargetRangeString(t *testing.T) {
	single, err := ParseTarget("10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", single.String())

	block, err := ParseTarget("10.0.0.0/24")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.0-10.0.0.255", block.String())
}
