package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kvist/reconwave/internal/logging"
)

// Config represents the complete reconwave configuration.
type Config struct {
	// Scanning engine configuration
	Scanning ScanningConfig `yaml:"scanning" json:"scanning"`

	// Conscience gate configuration
	Gate GateConfig `yaml:"gate" json:"gate"`

	// API configuration
	API APIConfig `yaml:"api" json:"api"`

	// Scheduled scan configuration
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler"`

	// Logging configuration
	Logging logging.Config `yaml:"logging" json:"logging"`
}

// ScanningConfig holds scan orchestration settings.
type ScanningConfig struct {
	// Maximum number of scans allowed to run concurrently
	MaxConcurrentScans int `yaml:"max_concurrent_scans" json:"max_concurrent_scans"`

	// Default ports scanned when a request does not name any
	DefaultPorts string `yaml:"default_ports" json:"default_ports"`

	// Timeout for a single probe
	ProbeTimeout time.Duration `yaml:"probe_timeout" json:"probe_timeout"`

	// How long to wait for a banner after connecting
	BannerWait time.Duration `yaml:"banner_wait" json:"banner_wait"`

	// Emit a progress event every this many probes
	ProgressInterval int `yaml:"progress_interval" json:"progress_interval"`

	// Default probes-per-second pacing applied when a request sets none
	// (0 leaves the scan unpaced)
	DefaultRateLimit uint `yaml:"default_rate_limit" json:"default_rate_limit"`
}

// GateConfig holds conscience gate settings.
type GateConfig struct {
	// Gate mode: "policy" evaluates local rules, "http" consults an
	// external service
	Mode string `yaml:"mode" json:"mode"`

	// External gate endpoint, required in http mode
	URL string `yaml:"url" json:"url"`

	// Timeout for external gate calls
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// Networks the policy gate refuses to scan
	BlockedNetworks []string `yaml:"blocked_networks" json:"blocked_networks"`

	// Allow full 0.0.0.0/0 sweeps
	AllowInternetScan bool `yaml:"allow_internet_scan" json:"allow_internet_scan"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	// Enable API server
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Listen address
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`

	// Listen port
	Port int `yaml:"port" json:"port"`

	// Request timeout
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`

	// CORS settings
	CORS CORSConfig `yaml:"cors" json:"cors"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
}

// SchedulerConfig holds recurring scan settings.
type SchedulerConfig struct {
	// Enable the cron scheduler
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Recurring scan entries
	Jobs []ScheduledScanConfig `yaml:"jobs" json:"jobs"`
}

// ScheduledScanConfig describes one recurring scan.
type ScheduledScanConfig struct {
	Name      string `yaml:"name" json:"name"`
	Cron      string `yaml:"cron" json:"cron"`
	Target    string `yaml:"target" json:"target"`
	Ports     string `yaml:"ports" json:"ports"`
	ScanType  string `yaml:"scan_type" json:"scan_type"`
	RateLimit uint   `yaml:"rate_limit" json:"rate_limit"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Scanning: ScanningConfig{
			MaxConcurrentScans: 10,
			DefaultPorts:       "22,80,443,8080,8443",
			ProbeTimeout:       2 * time.Second,
			BannerWait:         500 * time.Millisecond,
			ProgressInterval:   1000,
			DefaultRateLimit:   0,
		},
		Gate: GateConfig{
			Mode:              "policy",
			URL:               "",
			Timeout:           5 * time.Second,
			BlockedNetworks:   []string{},
			AllowInternetScan: false,
		},
		API: APIConfig{
			Enabled:        true,
			ListenAddr:     "127.0.0.1",
			Port:           8420,
			RequestTimeout: 30 * time.Second,
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "Authorization"},
			},
		},
		Scheduler: SchedulerConfig{
			Enabled: false,
			Jobs:    nil,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load loads configuration from a file, applying defaults for anything
// the file does not set.
func Load(path string) (*Config, error) {
	config := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil // Return defaults if no config file
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Save saves configuration to a file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Scanning.MaxConcurrentScans <= 0 {
		return fmt.Errorf("max concurrent scans must be positive")
	}
	if c.Scanning.ProbeTimeout <= 0 {
		return fmt.Errorf("probe timeout must be positive")
	}
	if c.Scanning.ProgressInterval <= 0 {
		return fmt.Errorf("progress interval must be positive")
	}

	switch c.Gate.Mode {
	case "policy":
	case "http":
		if c.Gate.URL == "" {
			return fmt.Errorf("gate URL is required in http mode")
		}
	default:
		return fmt.Errorf("invalid gate mode: %s", c.Gate.Mode)
	}

	for _, blocked := range c.Gate.BlockedNetworks {
		if _, _, err := net.ParseCIDR(blocked); err != nil {
			return fmt.Errorf("invalid blocked network %q: %w", blocked, err)
		}
	}

	if c.API.Enabled {
		if c.API.Port <= 0 || c.API.Port > 65535 {
			return fmt.Errorf("API port must be between 1 and 65535")
		}
		if c.API.ListenAddr == "" {
			return fmt.Errorf("API listen address is required when API is enabled")
		}
	}

	for _, job := range c.Scheduler.Jobs {
		if job.Name == "" {
			return fmt.Errorf("scheduled scan entries require a name")
		}
		if job.Cron == "" {
			return fmt.Errorf("scheduled scan %q requires a cron expression", job.Name)
		}
		if job.Target == "" {
			return fmt.Errorf("scheduled scan %q requires a target", job.Name)
		}
	}

	validLogLevels := map[logging.LogLevel]bool{
		logging.LevelDebug: true,
		logging.LevelInfo:  true,
		logging.LevelWarn:  true,
		logging.LevelError: true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[logging.LogFormat]bool{
		logging.FormatText: true,
		logging.FormatJSON: true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// GetAPIAddress returns the full API address.
func (c *Config) GetAPIAddress() string {
	return fmt.Sprintf("%s:%d", c.API.ListenAddr, c.API.Port)
}

// IsAPIEnabled returns true if the API server is enabled.
func (c *Config) IsAPIEnabled() bool {
	return c.API.Enabled
}
