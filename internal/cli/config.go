package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the runtime configuration for the dashboard.
// It can be populated from CLI flags, config files, or both.
// Files may be JSON or YAML; the extension decides.
type Config struct {
	// Comment field for user documentation (ignored by the application)
	Comment string `json:"comment,omitempty" yaml:"comment,omitempty"`

	// Platform API the dashboard reads from
	APIURL string `json:"api_url,omitempty" yaml:"api_url,omitempty"`

	// Web UI configuration
	HTTPHost string `json:"http_host,omitempty" yaml:"http_host,omitempty"`
	HTTPPort int    `json:"http_port,omitempty" yaml:"http_port,omitempty"`

	// View tuning. Durations use Go syntax ("5s", "8m").
	PollInterval string `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`
	StatsWindow  string `json:"stats_window,omitempty" yaml:"stats_window,omitempty"`
	PageSize     int    `json:"page_size,omitempty" yaml:"page_size,omitempty"`
	Distribution string `json:"distribution,omitempty" yaml:"distribution,omitempty"` // "series" or "linear"

	// Local span source: OTLP gRPC receiver
	OTLPEnabled bool   `json:"otlp_enabled,omitempty" yaml:"otlp_enabled,omitempty"`
	OTLPHost    string `json:"otlp_host,omitempty" yaml:"otlp_host,omitempty"`
	OTLPPort    int    `json:"otlp_port,omitempty" yaml:"otlp_port,omitempty"`

	// Local span source: collector file exporter output
	TraceDirs       []string `json:"trace_dirs,omitempty" yaml:"trace_dirs,omitempty"`
	OtelConfig      string   `json:"otel_config,omitempty" yaml:"otel_config,omitempty"` // collector config to discover trace dirs from
	ActiveOnly      bool     `json:"active_only,omitempty" yaml:"active_only,omitempty"`
	TraceBufferSize int      `json:"trace_buffer_size,omitempty" yaml:"trace_buffer_size,omitempty"`

	// Logging configuration
	Verbose bool `json:"verbose,omitempty" yaml:"verbose,omitempty"`
}

// DefaultConfig returns a Config with sensible default values:
// - platform API on localhost:8080
// - web UI on 127.0.0.1:8082
// - 5s stats polling over an 8 minute window
// - local span sources off, 10,000 spans when enabled
func DefaultConfig() *Config {
	return &Config{
		APIURL:          "http://localhost:8080",
		HTTPHost:        "127.0.0.1",
		HTTPPort:        8082,
		PollInterval:    "5s",
		StatsWindow:     "8m",
		PageSize:        10,
		Distribution:    "series",
		OTLPEnabled:     false,
		OTLPHost:        "127.0.0.1",
		OTLPPort:        4317,
		TraceBufferSize: 10_000,
		Verbose:         false,
	}
}

// PollEvery returns PollInterval as a duration.
func (c *Config) PollEvery() (time.Duration, error) {
	return parseDuration("poll_interval", c.PollInterval)
}

// Window returns StatsWindow as a duration.
func (c *Config) Window() (time.Duration, error) {
	return parseDuration("stats_window", c.StatsWindow)
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", field, s)
	}
	return d, nil
}

// Validate checks the fields that cannot be checked by type alone.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("api_url is required")
	}
	if _, err := c.PollEvery(); err != nil {
		return err
	}
	if _, err := c.Window(); err != nil {
		return err
	}
	if c.Distribution != "" && c.Distribution != "series" && c.Distribution != "linear" {
		return fmt.Errorf("invalid distribution %q: must be series or linear", c.Distribution)
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port %d", c.HTTPPort)
	}
	if c.OTLPPort < 0 || c.OTLPPort > 65535 {
		return fmt.Errorf("invalid otlp_port %d", c.OTLPPort)
	}
	return nil
}

// LoadConfigFromFile loads configuration from a JSON or YAML file at the
// given path. Files ending in .yaml or .yml are YAML, anything else JSON.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &config, nil
}

// configExts are the extensions tried in each config location, in order.
var configExts = []string{".json", ".yaml", ".yml"}

// firstExisting returns the first base+ext that exists.
func firstExisting(base string) (string, bool) {
	for _, ext := range configExts {
		if _, err := os.Stat(base + ext); err == nil {
			return base + ext, true
		}
	}
	return "", false
}

// FindProjectConfig searches for a .microdash.(json|yaml|yml) config file.
// It starts in the current directory and walks up looking for the file,
// stopping when it finds a .git directory (project root) or reaches root.
func FindProjectConfig() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return findProjectConfigFrom(dir)
}

func findProjectConfigFrom(dir string) (string, error) {
	for {
		if path, ok := firstExisting(filepath.Join(dir, ".microdash")); ok {
			return path, nil
		}

		// Stop at the git repo root even if no config was found
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", os.ErrNotExist
}

// GlobalConfigPath returns the path to the global config file,
// ~/.config/microdash/config.json unless a YAML variant exists.
func GlobalConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	base := filepath.Join(home, ".config", "microdash", "config")
	if path, ok := firstExisting(base); ok {
		return path
	}
	return base + ".json"
}

// MergeConfigs merges two configs with the overlay taking precedence.
// Fields in overlay override corresponding fields in base.
// Returns a new Config with the merged values.
func MergeConfigs(base, overlay *Config) *Config {
	if base == nil {
		base = &Config{}
	}
	if overlay == nil {
		return base
	}

	merged := *base

	if overlay.APIURL != "" {
		merged.APIURL = overlay.APIURL
	}
	if overlay.Verbose {
		merged.Verbose = overlay.Verbose
	}

	// Web UI
	if overlay.HTTPHost != "" {
		merged.HTTPHost = overlay.HTTPHost
	}
	if overlay.HTTPPort > 0 {
		merged.HTTPPort = overlay.HTTPPort
	}
	if overlay.PollInterval != "" {
		merged.PollInterval = overlay.PollInterval
	}
	if overlay.StatsWindow != "" {
		merged.StatsWindow = overlay.StatsWindow
	}
	if overlay.PageSize > 0 {
		merged.PageSize = overlay.PageSize
	}
	if overlay.Distribution != "" {
		merged.Distribution = overlay.Distribution
	}

	// OTLP receiver
	if overlay.OTLPEnabled {
		merged.OTLPEnabled = overlay.OTLPEnabled
	}
	if overlay.OTLPHost != "" {
		merged.OTLPHost = overlay.OTLPHost
	}
	if overlay.OTLPPort > 0 {
		merged.OTLPPort = overlay.OTLPPort
	}

	// File sources
	if len(overlay.TraceDirs) > 0 {
		merged.TraceDirs = append([]string(nil), overlay.TraceDirs...)
	}
	if overlay.OtelConfig != "" {
		merged.OtelConfig = overlay.OtelConfig
	}
	if overlay.ActiveOnly {
		merged.ActiveOnly = overlay.ActiveOnly
	}
	if overlay.TraceBufferSize > 0 {
		merged.TraceBufferSize = overlay.TraceBufferSize
	}

	return &merged
}

// LoadEffectiveConfig loads the effective configuration by merging:
// 1. Built-in defaults
// 2. Global config file (if exists)
// 3. Project config file (if exists and no explicit path)
// 4. Explicit config file (if specified via configPath)
// Later sources override earlier ones.
func LoadEffectiveConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if globalPath := GlobalConfigPath(); globalPath != "" {
		if globalCfg, err := LoadConfigFromFile(globalPath); err == nil {
			config = MergeConfigs(config, globalCfg)
		}
		// Ignore errors for global config (it's optional)
	}

	if configPath == "" {
		if projectPath, err := FindProjectConfig(); err == nil {
			projectCfg, err := LoadConfigFromFile(projectPath)
			if err != nil {
				return nil, fmt.Errorf("failed to load project config: %w", err)
			}
			config = MergeConfigs(config, projectCfg)
		}
	} else {
		explicitCfg, err := LoadConfigFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		config = MergeConfigs(config, explicitCfg)
	}

	return config, nil
}
