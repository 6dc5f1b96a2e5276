package scanning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvist/reconwave/internal/errors"
)

func TestParsePorts(t *testing.T) {
	tests := []struct {
		name string
		spec string
		want []uint16
	}{
		{"simple list", "80,443", []uint16{80, 443}},
		{"single port", "22", []uint16{22}},
		{"whitespace tolerated", " 80 , 443 ", []uint16{80, 443}},
		{"duplicates removed, order kept", "443,80,443,80", []uint16{443, 80}},
		{"bad tokens skipped", "80,nope,443,70000", []uint16{80, 443}},
		{"empty tokens skipped", "80,,443,", []uint16{80, 443}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ports, err := ParsePorts(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ports)
		})
	}
}

func TestParsePortsNoValidPorts(t *testing.T) {
	for _, spec := range []string{"not,a,port", "", ",,,", "70000,99999"} {
		_, err := ParsePorts(spec)
		require.Error(t, err, "spec %q", spec)
		assert.True(t, errors.IsCode(err, errors.CodeNoValidPorts),
			"spec %q: expected NO_VALID_PORTS, got %v", spec, err)
	}
}
