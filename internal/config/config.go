package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds the management gRPC server configuration.
type ServerConfig struct {
	NodeID          string        `yaml:"node_id"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	MaxConnections  int           `yaml:"max_connections"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// HandoffConfig holds the operator-tunable knobs for hint delivery.
type HandoffConfig struct {
	MaxHintThreads          int           `yaml:"max_hint_threads"`
	MaxHintTTL              time.Duration `yaml:"max_hint_ttl_seconds"`
	HintedHandoffThrottleKB int           `yaml:"hinted_handoff_throttle_kb"`
	InMemoryCompactionLimit int64         `yaml:"in_memory_compaction_limit"`
	TombstoneWarnThreshold  int           `yaml:"tombstone_warn_threshold"`
	RingDelay               time.Duration `yaml:"ring_delay"`
	SweepInterval           time.Duration `yaml:"sweep_interval"`
}

// StoreConfig holds Hint Store Adapter configuration.
type StoreConfig struct {
	DataDir string `yaml:"data_dir"`
	DBFile  string `yaml:"db_file"`
}

// TransportConfig holds the RPC contract's client/server configuration.
type TransportConfig struct {
	SendTimeout time.Duration `yaml:"send_timeout"`
}

// GossipConfig holds gossip protocol configuration.
type GossipConfig struct {
	Enabled        bool          `yaml:"enabled"`
	BindPort       int           `yaml:"bind_port"`
	SeedNodes      []string      `yaml:"seed_nodes"`
	GossipInterval time.Duration `yaml:"gossip_interval"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	ProbeInterval  time.Duration `yaml:"probe_interval"`
}

// MetricsConfig holds metrics server configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config represents the complete configuration for the hinted handoff
// manager daemon.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Handoff   HandoffConfig   `yaml:"handoff"`
	Store     StoreConfig     `yaml:"store"`
	Transport TransportConfig `yaml:"transport"`
	Gossip    GossipConfig    `yaml:"gossip"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoadConfig loads configuration from a file.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for unspecified configuration.
func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 50060
	}
	if cfg.Server.MaxConnections == 0 {
		cfg.Server.MaxConnections = 1000
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Handoff.MaxHintThreads == 0 {
		cfg.Handoff.MaxHintThreads = 8
	}
	if cfg.Handoff.MaxHintTTL == 0 {
		cfg.Handoff.MaxHintTTL = time.Duration(1<<31-1) * time.Second // effectively unbounded
	}
	if cfg.Handoff.InMemoryCompactionLimit == 0 {
		cfg.Handoff.InMemoryCompactionLimit = 64 * 1024 * 1024
	}
	if cfg.Handoff.TombstoneWarnThreshold == 0 {
		cfg.Handoff.TombstoneWarnThreshold = 1000
	}
	if cfg.Handoff.RingDelay == 0 {
		cfg.Handoff.RingDelay = 30 * time.Second
	}
	if cfg.Handoff.SweepInterval == 0 {
		cfg.Handoff.SweepInterval = 10 * time.Minute
	}

	if cfg.Store.DataDir == "" {
		cfg.Store.DataDir = "/var/lib/hintmgr"
	}
	if cfg.Store.DBFile == "" {
		cfg.Store.DBFile = cfg.Store.DataDir + "/hints.db"
	}

	if cfg.Transport.SendTimeout == 0 {
		cfg.Transport.SendTimeout = 10 * time.Second
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9102
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Server.NodeID == "" {
		result = multierror.Append(result, fmt.Errorf("server.node_id is required"))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("server.port must be between 1 and 65535"))
	}
	if c.Handoff.MaxHintThreads < 1 {
		result = multierror.Append(result, fmt.Errorf("handoff.max_hint_threads must be positive"))
	}
	if c.Handoff.HintedHandoffThrottleKB < 0 {
		result = multierror.Append(result, fmt.Errorf("handoff.hinted_handoff_throttle_kb must not be negative"))
	}
	if c.Store.DataDir == "" {
		result = multierror.Append(result, fmt.Errorf("store.data_dir is required"))
	}

	return result.ErrorOrNil()
}
