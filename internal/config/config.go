// Package config loads and validates the hostsweep configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/hostsweep/internal/db"
	"github.com/anstrom/hostsweep/internal/errors"
	"github.com/anstrom/hostsweep/internal/iprange"
	"github.com/anstrom/hostsweep/internal/logging"
	"github.com/anstrom/hostsweep/internal/registry"
	"github.com/anstrom/hostsweep/internal/resolve"
)

const (
	defaultConcurrency    = 50
	defaultPortTimeout    = time.Second
	defaultAPIPort        = 8080
	defaultRequestTimeout = 30 * time.Second
	defaultShutdown       = 30 * time.Second
	defaultMaxRequestSize = 1024 * 1024
	maxPort               = 65535
	configDirPerm         = 0o755
	configFilePerm        = 0o600
)

// Config represents the complete hostsweep configuration.
type Config struct {
	Scanning ScanningConfig `yaml:"scanning" json:"scanning"`
	Resolver ResolverConfig `yaml:"resolver" json:"resolver"`
	API      APIConfig      `yaml:"api" json:"api"`
	Database db.Config      `yaml:"database" json:"database"`
	Registry RegistryConfig `yaml:"registry" json:"registry"`
	Schedule ScheduleConfig `yaml:"schedule" json:"schedule"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// ScanningConfig holds scan engine settings.
type ScanningConfig struct {
	// Number of addresses probed at once
	Concurrency int `yaml:"concurrency" json:"concurrency"`

	// Ports tried on each address; any open port marks the host active
	Ports []int `yaml:"ports" json:"ports"`

	// Timeout for a single connect attempt
	PortTimeout time.Duration `yaml:"port_timeout" json:"port_timeout"`

	// Largest range a single scan may expand to
	MaxAddresses int `yaml:"max_addresses" json:"max_addresses"`

	// Addresses dispatched per second, 0 for no limit
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit"`
}

// ResolverConfig holds hostname resolution settings.
type ResolverConfig struct {
	MaxConcurrent   int           `yaml:"max_concurrent" json:"max_concurrent"`
	DNSTimeout      time.Duration `yaml:"dns_timeout" json:"dns_timeout"`
	OSLookupTimeout time.Duration `yaml:"os_lookup_timeout" json:"os_lookup_timeout"`
	DisableOSLookup bool          `yaml:"disable_os_lookup" json:"disable_os_lookup"`

	// Nameservers for PTR queries; empty means /etc/resolv.conf
	Nameservers []string `yaml:"nameservers" json:"nameservers"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	ListenAddr      string        `yaml:"listen_addr" json:"listen_addr"`
	Port            int           `yaml:"port" json:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	MaxRequestSize  int64         `yaml:"max_request_size" json:"max_request_size"`

	// bcrypt hashes of accepted API keys; empty disables authentication
	APIKeyHashes []string `yaml:"api_key_hashes" json:"-"`

	CORS CORSConfig `yaml:"cors" json:"cors"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
}

// RegistryConfig seeds the in-memory known-device registry. It is ignored
// when the database is enabled.
type RegistryConfig struct {
	Known []registry.KnownDevice `yaml:"known" json:"known"`
}

// ScheduleConfig describes a recurring scan.
type ScheduleConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Cron    string `yaml:"cron" json:"cron"`
	Range   string `yaml:"range" json:"range"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level" json:"level"`

	// Log format (text, json)
	Format string `yaml:"format" json:"format"`

	// Log output (stdout, stderr, file path)
	Output string `yaml:"output" json:"output"`

	// Include source file and line
	AddSource bool `yaml:"add_source" json:"add_source"`

	// Log file rotation
	Rotation RotationConfig `yaml:"rotation" json:"rotation"`

	// Enable request logging for API
	RequestLogging bool `yaml:"request_logging" json:"request_logging"`
}

// RotationConfig holds log rotation settings.
type RotationConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	MaxSizeMB  int  `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days" json:"max_age_days"`
	Compress   bool `yaml:"compress" json:"compress"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Scanning: ScanningConfig{
			Concurrency:  defaultConcurrency,
			Ports:        []int{80, 443, 135},
			PortTimeout:  defaultPortTimeout,
			MaxAddresses: iprange.DefaultMaxAddresses,
			RateLimit:    0,
		},
		Resolver: ResolverConfig{
			MaxConcurrent:   resolve.DefaultMaxConcurrent,
			DNSTimeout:      resolve.DefaultDNSTimeout,
			OSLookupTimeout: resolve.DefaultOSLookupTimeout,
		},
		API: APIConfig{
			ListenAddr:      "127.0.0.1",
			Port:            defaultAPIPort,
			ReadTimeout:     defaultRequestTimeout,
			WriteTimeout:    defaultRequestTimeout,
			IdleTimeout:     2 * defaultRequestTimeout,
			ShutdownTimeout: defaultShutdown,
			MaxRequestSize:  defaultMaxRequestSize,
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-Key"},
			},
		},
		Database: db.DefaultConfig(),
		Schedule: ScheduleConfig{
			Cron: "@every 1h",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
			Rotation: RotationConfig{
				MaxSizeMB:  100,
				MaxBackups: 5,
				MaxAgeDays: 30,
				Compress:   true,
			},
			RequestLogging: true,
		},
	}
}

// Load loads configuration from a file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// JSON is a subset of YAML, so one decoder covers .yaml, .yml and .json.
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filepath.Base(path), err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), configDirPerm); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, configFilePerm); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.validateScanning(); err != nil {
		return err
	}
	if err := c.validateResolver(); err != nil {
		return err
	}

	if c.API.Port <= 0 || c.API.Port > maxPort {
		return errors.ErrConfigInvalid("api.port", c.API.Port)
	}
	if c.API.ListenAddr == "" {
		return errors.ErrConfigInvalid("api.listen_addr", c.API.ListenAddr)
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			return errors.ErrConfigInvalid("database.host", c.Database.Host)
		}
		if c.Database.Database == "" {
			return errors.ErrConfigInvalid("database.database", c.Database.Database)
		}
		if c.Database.Username == "" {
			return errors.ErrConfigInvalid("database.username", c.Database.Username)
		}
	}

	if _, err := registry.NewMemory(c.Registry.Known); err != nil {
		return errors.WrapConfigError(errors.CodeValidation, "invalid registry.known entry", err)
	}

	if c.Schedule.Enabled {
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			return errors.NewConfigFieldError(errors.CodeValidation,
				fmt.Sprintf("invalid cron expression: %v", err), "schedule.cron", c.Schedule.Cron)
		}
		parser := iprange.Parser{MaxAddresses: c.Scanning.MaxAddresses}
		if _, err := parser.Parse(c.Schedule.Range); err != nil {
			return errors.NewConfigFieldError(errors.CodeValidation,
				"invalid schedule range", "schedule.range", c.Schedule.Range)
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return errors.ErrConfigInvalid("logging.level", c.Logging.Level)
	}
	validLogFormats := map[string]bool{"text": true, "json": true}
	if !validLogFormats[c.Logging.Format] {
		return errors.ErrConfigInvalid("logging.format", c.Logging.Format)
	}

	return nil
}

func (c *Config) validateScanning() error {
	s := c.Scanning
	if s.Concurrency <= 0 {
		return errors.ErrConfigInvalid("scanning.concurrency", s.Concurrency)
	}
	if len(s.Ports) == 0 {
		return errors.ErrConfigInvalid("scanning.ports", s.Ports)
	}
	for _, p := range s.Ports {
		if p <= 0 || p > maxPort {
			return errors.ErrConfigInvalid("scanning.ports", p)
		}
	}
	if s.PortTimeout <= 0 {
		return errors.ErrConfigInvalid("scanning.port_timeout", s.PortTimeout)
	}
	if s.RateLimit < 0 {
		return errors.ErrConfigInvalid("scanning.rate_limit", s.RateLimit)
	}
	return nil
}

func (c *Config) validateResolver() error {
	r := c.Resolver
	if r.MaxConcurrent <= 0 {
		return errors.ErrConfigInvalid("resolver.max_concurrent", r.MaxConcurrent)
	}
	if r.DNSTimeout <= 0 {
		return errors.ErrConfigInvalid("resolver.dns_timeout", r.DNSTimeout)
	}
	if r.OSLookupTimeout <= 0 {
		return errors.ErrConfigInvalid("resolver.os_lookup_timeout", r.OSLookupTimeout)
	}
	return nil
}

// GetAPIAddress returns the full API address.
func (c *Config) GetAPIAddress() string {
	return fmt.Sprintf("%s:%d", c.API.ListenAddr, c.API.Port)
}

// ResolveConfig converts the resolver section for resolve.New.
func (c *Config) ResolveConfig() resolve.Config {
	return resolve.Config{
		MaxConcurrent:   c.Resolver.MaxConcurrent,
		DNSTimeout:      c.Resolver.DNSTimeout,
		OSLookupTimeout: c.Resolver.OSLookupTimeout,
		DisableOSLookup: c.Resolver.DisableOSLookup,
		Nameservers:     c.Resolver.Nameservers,
	}
}

// LoggerConfig converts the logging section for logging.New.
func (c *Config) LoggerConfig() logging.Config {
	return logging.Config{
		Level:     logging.LogLevel(c.Logging.Level),
		Format:    logging.LogFormat(c.Logging.Format),
		Output:    c.Logging.Output,
		AddSource: c.Logging.AddSource,
		Rotation: logging.RotationConfig{
			Enabled:    c.Logging.Rotation.Enabled,
			MaxSizeMB:  c.Logging.Rotation.MaxSizeMB,
			MaxBackups: c.Logging.Rotation.MaxBackups,
			MaxAgeDays: c.Logging.Rotation.MaxAgeDays,
			Compress:   c.Logging.Rotation.Compress,
		},
	}
}
