package conscience

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvist/reconwave/internal/scanning"
)

func TestPolicyGateApprovesCleanTarget(t *testing.T) {
	gate, err := NewPolicyGate([]string{"192.168.0.0/16"}, false)
	require.NoError(t, err)

	decision, err := gate.Evaluate(context.Background(), &scanning.ScanRequest{
		Target:   "10.0.0.0/24",
		ScanType: scanning.ScanTypePortDiscovery,
	})
	require.NoError(t, err)
	assert.True(t, decision.Approved)
	assert.Empty(t, decision.Violations)
}

func TestPolicyGateBlockedNetwork(t *testing.T) {
	gate, err := NewPolicyGate([]string{"192.168.0.0/16"}, false)
	require.NoError(t, err)

	tests := []struct {
		name   string
		target string
	}{
		{"inside blocked block", "192.168.1.5"},
		{"blocked block itself", "192.168.0.0/16"},
		{"range containing blocked block", "192.0.0.0/8"},
		{"partial overlap", "192.168.255.0/23"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := gate.Evaluate(context.Background(), &scanning.ScanRequest{
				Target:   tt.target,
				ScanType: scanning.ScanTypePortDiscovery,
			})
			require.NoError(t, err)
			assert.False(t, decision.Approved)
			assert.NotEmpty(t, decision.Violations)
		})
	}
}

func TestPolicyGateInternetScan(t *testing.T) {
	gate, err := NewPolicyGate(nil, false)
	require.NoError(t, err)

	decision, err := gate.Evaluate(context.Background(), &scanning.ScanRequest{
		Target:   "internet",
		ScanType: scanning.ScanTypePassive,
	})
	require.NoError(t, err)
	assert.False(t, decision.Approved)

	permissive, err := NewPolicyGate(nil, true)
	require.NoError(t, err)

	decision, err = permissive.Evaluate(context.Background(), &scanning.ScanRequest{
		Target:   "internet",
		ScanType: scanning.ScanTypePassive,
	})
	require.NoError(t, err)
	assert.True(t, decision.Approved)
	assert.NotEmpty(t, decision.Warnings, "internet sweep should draw a size warning")
}

func TestPolicyGateLargeRangeWarning(t *testing.T) {
	gate, err := NewPolicyGate(nil, false)
	require.NoError(t, err)

	decision, err := gate.Evaluate(context.Background(), &scanning.ScanRequest{
		Target:   "10.0.0.0/16",
		ScanType: scanning.ScanTypePortDiscovery,
	})
	require.NoError(t, err)
	assert.True(t, decision.Approved)
	assert.NotEmpty(t, decision.Warnings)
}

func TestPolicyGatePassesUnparseableTargets(t *testing.T) {
	gate, err := NewPolicyGate(nil, false)
	require.NoError(t, err)

	// Target validation is the orchestrator's job; the gate only judges
	// policy.
	decision, err := gate.Evaluate(context.Background(), &scanning.ScanRequest{
		Target:   "not-a-target",
		ScanType: scanning.ScanTypePortDiscovery,
	})
	require.NoError(t, err)
	assert.True(t, decision.Approved)
}

func TestNewPolicyGateRejectsBadBlocklist(t *testing.T) {
	_, err := NewPolicyGate([]string{"192.168.0.0/33"}, false)
	require.Error(t, err)
}

func TestHTTPGate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body gateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "10.0.0.0/24", body.Target)
		assert.Equal(t, scanning.ScanTypePortDiscovery, body.ScanType)

		decision := scanning.GateDecision{
			Approved:   false,
			Violations: []string{"engagement window closed"},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(decision)
	}))
	defer server.Close()

	gate := NewHTTPGate(server.URL, time.Second)

	decision, err := gate.Evaluate(context.Background(), &scanning.ScanRequest{
		Target:   "10.0.0.0/24",
		ScanType: scanning.ScanTypePortDiscovery,
	})
	require.NoError(t, err)
	assert.False(t, decision.Approved)
	assert.Equal(t, []string{"engagement window closed"}, decision.Violations)
}

func TestHTTPGateServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	gate := NewHTTPGate(server.URL, time.Second)

	_, err := gate.Evaluate(context.Background(), &scanning.ScanRequest{
		Target:   "10.0.0.1",
		ScanType: scanning.ScanTypePortDiscovery,
	})
	require.Error(t, err)
}

func TestHTTPGateUnreachable(t *testing.T) {
	gate := NewHTTPGate("http://127.0.0.1:1", 200*time.Millisecond)

	_, err := gate.Evaluate(context.Background(), &scanning.ScanRequest{
		Target:   "10.0.0.1",
		ScanType: scanning.ScanTypePortDiscovery,
	})
	require.Error(t, err)
}
