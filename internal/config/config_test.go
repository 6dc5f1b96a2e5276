package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10, cfg.Scanning.MaxConcurrentScans)
	assert.Equal(t, "22,80,443,8080,8443", cfg.Scanning.DefaultPorts)
	assert.Equal(t, "policy", cfg.Gate.Mode)
	assert.True(t, cfg.IsAPIEnabled())
	assert.Equal(t, "127.0.0.1:8420", cfg.GetAPIAddress())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Scanning, cfg.Scanning)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reconwave.yaml")
	content := `
scanning:
  max_concurrent_scans: 3
  default_ports: "22,8022"
  default_rate_limit: 500
gate:
  mode: http
  url: http://gate.internal/approve
  timeout: 2s
scheduler:
  enabled: true
  jobs:
    - name: nightly
      cron: "0 2 * * *"
      target: 10.0.0.0/24
      scan_type: PortDiscovery
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Scanning.MaxConcurrentScans)
	assert.Equal(t, "22,8022", cfg.Scanning.DefaultPorts)
	assert.Equal(t, uint(500), cfg.Scanning.DefaultRateLimit)
	assert.Equal(t, "http", cfg.Gate.Mode)
	assert.Equal(t, 2*time.Second, cfg.Gate.Timeout)
	require.Len(t, cfg.Scheduler.Jobs, 1)
	assert.Equal(t, "nightly", cfg.Scheduler.Jobs[0].Name)

	// Untouched sections keep their defaults.
	assert.Equal(t, Default().API.Port, cfg.API.Port)
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero concurrent scans", func(c *Config) { c.Scanning.MaxConcurrentScans = 0 }},
		{"zero probe timeout", func(c *Config) { c.Scanning.ProbeTimeout = 0 }},
		{"unknown gate mode", func(c *Config) { c.Gate.Mode = "oracle" }},
		{"http gate without url", func(c *Config) { c.Gate.Mode = "http"; c.Gate.URL = "" }},
		{"bad blocked network", func(c *Config) { c.Gate.BlockedNetworks = []string{"10.0.0.0/99"} }},
		{"bad api port", func(c *Config) { c.API.Port = 70000 }},
		{"scheduled scan without cron", func(c *Config) {
			c.Scheduler.Jobs = []ScheduledScanConfig{{Name: "x", Target: "10.0.0.1"}}
		}},
		{"bad log level", func(c *Config) { c.Logging.Level = "chatty" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "reconwave.yaml")

	cfg := Default()
	cfg.Scanning.MaxConcurrentScans = 7
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Scanning.MaxConcurrentScans)
}
