// Package config provides configuration loading and management for the sync agent.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// API configures the remote backend the agent syncs against
	API APIConfig `yaml:"api"`

	// Database configures the local record store
	Database DatabaseConfig `yaml:"database"`

	// Sync configures sync scheduling and per-step timeouts
	Sync SyncConfig `yaml:"sync,omitempty"`

	// Cleanup configures the periodic cleanup job
	Cleanup CleanupConfig `yaml:"cleanup,omitempty"`

	// Metrics optionally exposes a Prometheus endpoint
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
}

// APIConfig defines the remote API settings
type APIConfig struct {
	// Endpoint is the base API URL (without path), e.g. "https://api.maquinaplus.mx"
	Endpoint string `yaml:"endpoint"`

	// ProbeURL is the URL used for the internet reachability probe.
	// Defaults to the API endpoint when empty.
	ProbeURL string `yaml:"probeURL,omitempty"`

	// RequestTimeout is the per-request HTTP timeout (e.g. "30s")
	RequestTimeout string `yaml:"requestTimeout,omitempty"`
}

// DatabaseConfig defines the local sqlite store settings
type DatabaseConfig struct {
	// Path is the path to the sqlite database file
	Path string `yaml:"path"`
}

// SyncConfig defines synchronization scheduling settings
type SyncConfig struct {
	// Interval is the periodic full-sync interval (e.g. "15m")
	Interval string `yaml:"interval,omitempty"`

	// SessionTimeout bounds the session validation step
	SessionTimeout string `yaml:"sessionTimeout,omitempty"`

	// FetchTimeout bounds each pending-batch fetch from the local store
	FetchTimeout string `yaml:"fetchTimeout,omitempty"`

	// ItemTimeout bounds each per-item remote submission
	ItemTimeout string `yaml:"itemTimeout,omitempty"`

	// MasterDataTimeout bounds each master-data refresh call
	MasterDataTimeout string `yaml:"masterDataTimeout,omitempty"`

	// ImageBatchSize caps how many images a single image-sync run uploads
	ImageBatchSize int `yaml:"imageBatchSize,omitempty"`
}

// CleanupConfig defines the periodic cleanup settings
type CleanupConfig struct {
	// Interval is the cleanup period. Must be long enough that no
	// legitimate sync run is still active when cleanup fires.
	Interval string `yaml:"interval,omitempty"`

	// TrackingRetention is how long sync-tracking rows are kept
	TrackingRetention string `yaml:"trackingRetention,omitempty"`
}

// MetricsConfig defines the Prometheus metrics endpoint settings
type MetricsConfig struct {
	// Address is the listen address for the metrics endpoint, e.g. ":9090"
	Address string `yaml:"address"`
}

// Defaults applied when the corresponding setting is absent.
const (
	DefaultSyncInterval      = 15 * time.Minute
	DefaultSessionTimeout    = 10 * time.Second
	DefaultFetchTimeout      = 30 * time.Second
	DefaultItemTimeout       = 30 * time.Second
	DefaultMasterDataTimeout = 60 * time.Second
	DefaultRequestTimeout    = 30 * time.Second
	DefaultCleanupInterval   = 24 * time.Hour
	DefaultTrackingRetention = 7 * 24 * time.Hour
	DefaultImageBatchSize    = 20
)

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if c.API.Endpoint == "" {
		return fmt.Errorf("api.endpoint is required")
	}
	parsed, err := url.Parse(c.API.Endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("api.endpoint must be an absolute URL, got %q", c.API.Endpoint)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if err := validateDurations(map[string]string{
		"api.requestTimeout":        c.API.RequestTimeout,
		"sync.interval":             c.Sync.Interval,
		"sync.sessionTimeout":       c.Sync.SessionTimeout,
		"sync.fetchTimeout":         c.Sync.FetchTimeout,
		"sync.itemTimeout":          c.Sync.ItemTimeout,
		"sync.masterDataTimeout":    c.Sync.MasterDataTimeout,
		"cleanup.interval":          c.Cleanup.Interval,
		"cleanup.trackingRetention": c.Cleanup.TrackingRetention,
	}); err != nil {
		return err
	}

	if c.Sync.ImageBatchSize < 0 {
		return fmt.Errorf("sync.imageBatchSize must not be negative")
	}

	if c.Metrics != nil && c.Metrics.Address == "" {
		return fmt.Errorf("metrics.address is required when metrics is configured")
	}

	return nil
}

// validateDurations checks that every non-empty value parses as a duration
func validateDurations(fields map[string]string) error {
	for name, value := range fields {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s must be a valid duration (e.g. '30s', '15m'): %w", name, err)
		}
	}
	return nil
}

// durationOr parses value, returning fallback when empty or invalid
func durationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// SyncInterval returns the periodic full-sync interval
func (c *Config) SyncInterval() time.Duration {
	return durationOr(c.Sync.Interval, DefaultSyncInterval)
}

// SessionTimeout returns the session validation step timeout
func (c *Config) SessionTimeout() time.Duration {
	return durationOr(c.Sync.SessionTimeout, DefaultSessionTimeout)
}

// FetchTimeout returns the pending-batch fetch timeout
func (c *Config) FetchTimeout() time.Duration {
	return durationOr(c.Sync.FetchTimeout, DefaultFetchTimeout)
}

// ItemTimeout returns the per-item submission timeout
func (c *Config) ItemTimeout() time.Duration {
	return durationOr(c.Sync.ItemTimeout, DefaultItemTimeout)
}

// MasterDataTimeout returns the master-data refresh timeout
func (c *Config) MasterDataTimeout() time.Duration {
	return durationOr(c.Sync.MasterDataTimeout, DefaultMasterDataTimeout)
}

// RequestTimeout returns the per-request HTTP timeout
func (c *Config) RequestTimeout() time.Duration {
	return durationOr(c.API.RequestTimeout, DefaultRequestTimeout)
}

// CleanupInterval returns the periodic cleanup interval
func (c *Config) CleanupInterval() time.Duration {
	return durationOr(c.Cleanup.Interval, DefaultCleanupInterval)
}

// TrackingRetention returns the sync-tracking retention window
func (c *Config) TrackingRetention() time.Duration {
	return durationOr(c.Cleanup.TrackingRetention, DefaultTrackingRetention)
}

// ImageBatchSize returns the image-sync batch cap
func (c *Config) ImageBatchSize() int {
	if c.Sync.ImageBatchSize <= 0 {
		return DefaultImageBatchSize
	}
	return c.Sync.ImageBatchSize
}

// ProbeURL returns the reachability probe URL, falling back to the API endpoint
func (c *Config) ProbeURL() string {
	if c.API.ProbeURL != "" {
		return c.API.ProbeURL
	}
	return c.API.Endpoint
}
