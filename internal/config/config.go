package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Devices         []string          `yaml:"devices"` // speaker addresses to manage
	Poll            PollConfig        `yaml:"poll"`
	Volume          VolumeConfig      `yaml:"volume"`
	Database        DatabaseConfig    `yaml:"database"`
	Ledger          LedgerConfig      `yaml:"ledger"`
	Log             LogConfig         `yaml:"log"`
	Healthcheck     HealthcheckConfig `yaml:"healthcheck"`
	EventBus        EventBusConfig    `yaml:"eventbus"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// PollConfig contains the per-device polling settings
type PollConfig struct {
	Interval         Duration `yaml:"interval"`          // Fixed inter-poll delay (default: 5s, range 1s-60s)
	Timeout          Duration `yaml:"timeout"`           // HTTP timeout per device request (default: 10s)
	FailureThreshold int      `yaml:"failure_threshold"` // Consecutive failures before unavailable (default: 3)
}

// VolumeConfig contains volume-step settings
type VolumeConfig struct {
	Step int `yaml:"step"` // Volume step in percent (default: 5, range 1-50)
}

// StepLevel returns the configured step on the canonical 0.0-1.0 scale.
func (c VolumeConfig) StepLevel() float64 {
	return float64(c.Step) / 100
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LedgerConfig contains event ledger settings
type LedgerConfig struct {
	Enabled         bool     `yaml:"enabled"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	JSON   bool   `yaml:"json"`
	Colors bool   `yaml:"colors"`
}

// HealthcheckConfig contains health check server settings
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	// Poll defaults, clamped to the documented ranges
	if cfg.Poll.Interval == 0 {
		cfg.Poll.Interval = Duration(5 * time.Second)
	}
	if cfg.Poll.Interval < Duration(1*time.Second) {
		cfg.Poll.Interval = Duration(1 * time.Second)
	}
	if cfg.Poll.Interval > Duration(60*time.Second) {
		cfg.Poll.Interval = Duration(60 * time.Second)
	}
	if cfg.Poll.Timeout == 0 {
		cfg.Poll.Timeout = Duration(10 * time.Second)
	}
	if cfg.Poll.FailureThreshold <= 0 {
		cfg.Poll.FailureThreshold = 3
	}

	// Volume step defaults
	if cfg.Volume.Step == 0 {
		cfg.Volume.Step = 5
	}
	if cfg.Volume.Step < 1 {
		cfg.Volume.Step = 1
	}
	if cfg.Volume.Step > 50 {
		cfg.Volume.Step = 50
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./wiimd.sqlite"
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// Healthcheck defaults
	if cfg.Healthcheck.Port == 0 {
		cfg.Healthcheck.Port = 9090
	}
	if cfg.Healthcheck.Host == "" {
		cfg.Healthcheck.Host = "0.0.0.0"
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

func (cfg *Config) validate() error {
	seen := make(map[string]bool, len(cfg.Devices))
	for _, host := range cfg.Devices {
		if host == "" {
			return fmt.Errorf("devices: empty address")
		}
		if seen[host] {
			return fmt.Errorf("devices: duplicate address %q", host)
		}
		seen[host] = true
	}
	return nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
