package server

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/iliastsa/httpd"
	"gopkg.in/yaml.v3"
)

const (
	DefaultWorkers             = 4                // default worker pool size.
	DefaultHTTPTimeout         = 5 * time.Second  // default per-read timeout for request headers.
	DefaultWriteTimeout        = 5 * time.Second  // default write timeout for responses.
	DefaultCommandTimeout      = 10 * time.Second // default per-read timeout for control commands.
	DefaultHTTPChunkSize       = 1024             // default read chunk for request headers.
	DefaultCommandChunkSize    = 512              // default read chunk for control commands.
	DefaultMaxHeaderSize       = 64 * 1024        // default cap on a request header block.
	DefaultMaxCommandSize      = 4 * 1024         // default cap on a control command line.
	DefaultHealthCheckInterval = 5 * time.Second  // default worker supervision period.
	DefaultShutdownTimeout     = 5 * time.Second  // default grace period for listener teardown.
	DefaultKeepAliveInterval   = 30 * time.Second // default TCP keepalive period.
)

// ErrInvalidConfig is returned for unusable configuration values.
var ErrInvalidConfig = errors.New("invalid configuration")

// ServerConfig holds the settings of a Server. Zero values fall back to the
// Default* constants; negative timeouts mean no deadline.
type ServerConfig struct {
	ServiceAddr         string        `yaml:"service_addr"`          // HTTP listen address.
	ControlAddr         string        `yaml:"control_addr"`          // control channel listen address.
	RootDir             string        `yaml:"root_dir"`              // directory served to clients.
	Workers             int           `yaml:"workers"`               // worker pool size.
	HTTPTimeout         time.Duration `yaml:"http_timeout"`          // per-read timeout for request headers.
	WriteTimeout        time.Duration `yaml:"write_timeout"`         // write timeout for responses.
	CommandTimeout      time.Duration `yaml:"command_timeout"`       // per-read timeout for control commands.
	HTTPChunkSize       int           `yaml:"http_chunk_size"`       // read chunk for request headers.
	CommandChunkSize    int           `yaml:"command_chunk_size"`    // read chunk for control commands.
	MaxHeaderSize       int           `yaml:"max_header_size"`       // cap on a request header block.
	MaxCommandSize      int           `yaml:"max_command_size"`      // cap on a control command line.
	HealthCheckInterval time.Duration `yaml:"health_check_interval"` // worker supervision period.
	ShutdownTimeout     time.Duration `yaml:"shutdown_timeout"`      // grace period for listener teardown.
	KeepAliveInterval   time.Duration `yaml:"keepalive_interval"`    // interval for TCP keepalive probes.
	MetricsAddr         string        `yaml:"metrics_addr"`          // optional Prometheus endpoint address.
	Debug               bool          `yaml:"debug"`                 // enables debug logging in cmd/httpd.
	Logger              httpd.Logger  `yaml:"-"`                     // optional logger for server events.
}

func (c *ServerConfig) applyDefaults() {
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}

	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}

	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}

	if c.CommandTimeout == 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}

	if c.HTTPChunkSize == 0 {
		c.HTTPChunkSize = DefaultHTTPChunkSize
	}

	if c.CommandChunkSize == 0 {
		c.CommandChunkSize = DefaultCommandChunkSize
	}

	if c.MaxHeaderSize == 0 {
		c.MaxHeaderSize = DefaultMaxHeaderSize
	}

	if c.MaxCommandSize == 0 {
		c.MaxCommandSize = DefaultMaxCommandSize
	}

	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = DefaultHealthCheckInterval
	}

	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.KeepAliveInterval == 0 {
		c.KeepAliveInterval = DefaultKeepAliveInterval
	}

	if c.Logger == nil {
		c.Logger = &httpd.NoopLogger{}
	}
}

// validate checks the values applyDefaults cannot repair.
func (c *ServerConfig) validate() error {
	switch {
	case c.RootDir == "":
		return fmt.Errorf("%w: root directory is required", ErrInvalidConfig)
	case c.ServiceAddr == "" || c.ControlAddr == "":
		return fmt.Errorf("%w: service and control addresses are required", ErrInvalidConfig)
	case c.Workers < 0:
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidConfig, c.Workers)
	case c.HTTPChunkSize < 0 || c.CommandChunkSize < 0:
		return fmt.Errorf("%w: chunk sizes must be positive", ErrInvalidConfig)
	case c.HealthCheckInterval < 0:
		return fmt.Errorf("%w: health check interval must be positive", ErrInvalidConfig)
	}

	return nil
}

// LoadConfig reads a YAML configuration file. Missing fields keep their zero
// value and are filled in by NewServer.
func LoadConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg ServerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}
