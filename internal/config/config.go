// Package config loads the Link-Chat agent's configuration via viper,
// generalizing internal/config.Load's YAML-root-wrapper + env-var +
// defaults + validation pattern from the capture agent's sprawling
// per-task config tree down to the small set of knobs Link-Chat needs:
// interface selection, discovery/retry tuning, logging, metrics, and the
// optional Kafka audit sink.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level Link-Chat agent configuration. Maps to the
// `linkchat:` root key in YAML.
type Config struct {
	Interface string          `mapstructure:"interface"`
	Demo      bool            `mapstructure:"demo"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Transport TransportConfig `mapstructure:"transport"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Sink      SinkConfig      `mapstructure:"sink"`
}

// DiscoveryConfig tunes the neighbor-discovery sweep.
type DiscoveryConfig struct {
	ProbeInterval string `mapstructure:"probe_interval"` // e.g. "30s"
	TTL           string `mapstructure:"ttl"`            // e.g. "300s"
}

// TransportConfig tunes the sender's retry/timeout behavior. Exposed for
// experimentation; spec.md's Timeout=2s/MaxRetries=8/SweepInterval=500ms
// remain the protocol defaults wire-compatible with the reference design.
type TransportConfig struct {
	FragmentTimeout string `mapstructure:"fragment_timeout"`
	SweepInterval   string `mapstructure:"sweep_interval"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level    string `mapstructure:"level"`
	JSON     bool   `mapstructure:"json"`
	FilePath string `mapstructure:"file_path"`
}

// MetricsConfig contains Prometheus metrics server settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// SinkConfig selects and configures the optional Kafka audit sink.
type SinkConfig struct {
	Kafka KafkaSinkConfig `mapstructure:"kafka"`
}

// KafkaSinkConfig mirrors internal/sink.KafkaConfig's shape.
type KafkaSinkConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Brokers      []string `mapstructure:"brokers"`
	Topic        string   `mapstructure:"topic"`
	BatchSize    int      `mapstructure:"batch_size"`
	BatchTimeout string   `mapstructure:"batch_timeout"`
	Compression  string   `mapstructure:"compression"`
	MaxAttempts  int      `mapstructure:"max_attempts"`
}

type configRoot struct {
	LinkChat Config `mapstructure:"linkchat"`
}

// Load reads configuration from path, applying LINKCHAT_-prefixed
// environment variable overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg := root.LinkChat

	if err := cfg.validateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("linkchat.discovery.probe_interval", "30s")
	v.SetDefault("linkchat.discovery.ttl", "300s")

	v.SetDefault("linkchat.transport.fragment_timeout", "2s")
	v.SetDefault("linkchat.transport.sweep_interval", "500ms")
	v.SetDefault("linkchat.transport.max_retries", 8)

	v.SetDefault("linkchat.log.level", "info")
	v.SetDefault("linkchat.log.json", false)

	v.SetDefault("linkchat.metrics.enabled", true)
	v.SetDefault("linkchat.metrics.listen", ":9090")
	v.SetDefault("linkchat.metrics.path", "/metrics")

	v.SetDefault("linkchat.sink.kafka.compression", "none")
	v.SetDefault("linkchat.sink.kafka.batch_size", 100)
	v.SetDefault("linkchat.sink.kafka.batch_timeout", "50ms")
	v.SetDefault("linkchat.sink.kafka.max_attempts", 3)
}

func (c *Config) validateAndApplyDefaults() error {
	if !c.Demo && c.Interface == "" {
		return fmt.Errorf("interface is required unless demo mode is enabled")
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	if _, err := time.ParseDuration(c.Discovery.ProbeInterval); err != nil {
		return fmt.Errorf("discovery.probe_interval: %w", err)
	}
	if _, err := time.ParseDuration(c.Discovery.TTL); err != nil {
		return fmt.Errorf("discovery.ttl: %w", err)
	}
	if _, err := time.ParseDuration(c.Transport.FragmentTimeout); err != nil {
		return fmt.Errorf("transport.fragment_timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.Transport.SweepInterval); err != nil {
		return fmt.Errorf("transport.sweep_interval: %w", err)
	}

	if c.Sink.Kafka.Enabled {
		if len(c.Sink.Kafka.Brokers) == 0 {
			return fmt.Errorf("sink.kafka.brokers is required when sink.kafka.enabled=true")
		}
		if c.Sink.Kafka.Topic == "" {
			return fmt.Errorf("sink.kafka.topic is required when sink.kafka.enabled=true")
		}
	}

	return nil
}
