package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// AppConfig holds the runtime configuration that is not part of the
// positional command line: where to publish, where to serve the viewer and
// optional logging sinks. Every field is optional; the Get* accessors supply
// defaults for fields omitted from the JSON file.
type AppConfig struct {
	// Key-value publication
	RedisAddr     *string `json:"redis_addr,omitempty"`
	RedisPassword *string `json:"redis_password,omitempty"`
	RedisDB       *int    `json:"redis_db,omitempty"`
	KeyPrefix     *string `json:"key_prefix,omitempty"`

	// Viewer
	ViewerListen *string `json:"viewer_listen,omitempty"`
	PointStride  *int    `json:"point_stride,omitempty"`

	// Tracking
	TrackerQueueSize *int `json:"tracker_queue_size,omitempty"`

	// Diagnostics
	SkeletonLogPath *string `json:"skeleton_log_path,omitempty"`
	StatsInterval   *string `json:"stats_interval,omitempty"` // duration string like "5s"
	DebugLog        *bool   `json:"debug_log,omitempty"`
}

// Defaults
const (
	DefaultRedisAddr        = "localhost:6379"
	DefaultKeyPrefix        = "kinect"
	DefaultViewerListen     = "localhost:8090"
	DefaultPointStride      = 4
	DefaultTrackerQueueSize = 3
	DefaultStatsInterval    = 5 * time.Second
)

// Empty returns an AppConfig with all fields unset.
func Empty() *AppConfig {
	return &AppConfig{}
}

// Load reads an AppConfig from a JSON file. The path must have a .json
// extension and the file must be under 1MB.
func Load(path string) (*AppConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *AppConfig) Validate() error {
	if c.RedisDB != nil && *c.RedisDB < 0 {
		return fmt.Errorf("redis_db must be non-negative, got %d", *c.RedisDB)
	}
	if c.KeyPrefix != nil && *c.KeyPrefix == "" {
		return fmt.Errorf("key_prefix must not be empty")
	}
	if c.PointStride != nil && *c.PointStride < 1 {
		return fmt.Errorf("point_stride must be at least 1, got %d", *c.PointStride)
	}
	if c.TrackerQueueSize != nil && *c.TrackerQueueSize < 1 {
		return fmt.Errorf("tracker_queue_size must be at least 1, got %d", *c.TrackerQueueSize)
	}
	if c.StatsInterval != nil && *c.StatsInterval != "" {
		d, err := time.ParseDuration(*c.StatsInterval)
		if err != nil {
			return fmt.Errorf("invalid stats_interval '%s': %w", *c.StatsInterval, err)
		}
		if d < 0 {
			return fmt.Errorf("stats_interval must be non-negative, got %s", d)
		}
	}
	return nil
}

// GetRedisAddr returns the redis address or the default.
func (c *AppConfig) GetRedisAddr() string {
	if c.RedisAddr == nil || *c.RedisAddr == "" {
		return DefaultRedisAddr
	}
	return *c.RedisAddr
}

// GetRedisPassword returns the redis password, empty by default.
func (c *AppConfig) GetRedisPassword() string {
	if c.RedisPassword == nil {
		return ""
	}
	return *c.RedisPassword
}

// GetRedisDB returns the redis database number, 0 by default.
func (c *AppConfig) GetRedisDB() int {
	if c.RedisDB == nil {
		return 0
	}
	return *c.RedisDB
}

// GetKeyPrefix returns the published key prefix or the default.
func (c *AppConfig) GetKeyPrefix() string {
	if c.KeyPrefix == nil || *c.KeyPrefix == "" {
		return DefaultKeyPrefix
	}
	return *c.KeyPrefix
}

// GetViewerListen returns the viewer listen address or the default.
func (c *AppConfig) GetViewerListen() string {
	if c.ViewerListen == nil || *c.ViewerListen == "" {
		return DefaultViewerListen
	}
	return *c.ViewerListen
}

// GetPointStride returns the point cloud decimation stride or the default.
func (c *AppConfig) GetPointStride() int {
	if c.PointStride == nil {
		return DefaultPointStride
	}
	return *c.PointStride
}

// GetTrackerQueueSize returns the tracker input queue size or the default.
func (c *AppConfig) GetTrackerQueueSize() int {
	if c.TrackerQueueSize == nil {
		return DefaultTrackerQueueSize
	}
	return *c.TrackerQueueSize
}

// GetSkeletonLogPath returns the skeleton log path. Empty disables the log.
func (c *AppConfig) GetSkeletonLogPath() string {
	if c.SkeletonLogPath == nil {
		return ""
	}
	return *c.SkeletonLogPath
}

// GetStatsInterval returns the stats logging interval. Zero disables
// periodic stats logging.
func (c *AppConfig) GetStatsInterval() time.Duration {
	if c.StatsInterval == nil || *c.StatsInterval == "" {
		return DefaultStatsInterval
	}
	d, err := time.ParseDuration(*c.StatsInterval)
	if err != nil {
		return DefaultStatsInterval // default on parse error
	}
	return d
}

// GetDebugLog reports whether per-frame debug logging is enabled.
func (c *AppConfig) GetDebugLog() bool {
	if c.DebugLog == nil {
		return false
	}
	return *c.DebugLog
}
