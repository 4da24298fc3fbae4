// Package config holds the driver's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ClusterConfig holds cluster contact configuration
type ClusterConfig struct {
	ContactPoints  []string      `yaml:"contact_points"`
	Port           int           `yaml:"port"`
	Keyspace       string        `yaml:"keyspace"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// IOConfig holds I/O worker configuration
type IOConfig struct {
	Workers                int `yaml:"workers"`
	QueueSizeCommand       int `yaml:"queue_size_command"`
	QueueSizeEvent         int `yaml:"queue_size_event"`
	QueueSizeWorker        int `yaml:"queue_size_worker"`
	CoreConnectionsPerHost int `yaml:"core_connections_per_host"`
}

// TLSConfig holds optional transport security configuration
type TLSConfig struct {
	Enabled            bool   `yaml:"enabled"`
	CertFile           string `yaml:"cert_file"`
	KeyFile            string `yaml:"key_file"`
	CAFile             string `yaml:"ca_file"`
	ServerName         string `yaml:"server_name"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// DiscoveryConfig holds gossip topology discovery configuration
type DiscoveryConfig struct {
	Enabled        bool          `yaml:"enabled"`
	NodeName       string        `yaml:"node_name"`
	BindPort       int           `yaml:"bind_port"`
	SeedNodes      []string      `yaml:"seed_nodes"`
	GossipInterval time.Duration `yaml:"gossip_interval"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	ProbeInterval  time.Duration `yaml:"probe_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config represents the complete configuration for a driver session
type Config struct {
	Cluster   ClusterConfig   `yaml:"cluster"`
	IO        IOConfig        `yaml:"io"`
	TLS       TLSConfig       `yaml:"tls"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// Load loads configuration from a file
func Load(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every field at its default.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults sets default values for unspecified configuration
func (c *Config) SetDefaults() {
	if c.Cluster.Port == 0 {
		c.Cluster.Port = 50052
	}
	if c.Cluster.ConnectTimeout == 0 {
		c.Cluster.ConnectTimeout = 10 * time.Second
	}
	if c.Cluster.RequestTimeout == 0 {
		c.Cluster.RequestTimeout = 10 * time.Second
	}

	if c.IO.Workers == 0 {
		c.IO.Workers = 1
	}
	if c.IO.QueueSizeCommand == 0 {
		c.IO.QueueSizeCommand = 4096
	}
	if c.IO.QueueSizeEvent == 0 {
		c.IO.QueueSizeEvent = 256
	}
	if c.IO.QueueSizeWorker == 0 {
		c.IO.QueueSizeWorker = 1024
	}
	if c.IO.CoreConnectionsPerHost == 0 {
		c.IO.CoreConnectionsPerHost = 1
	}

	if c.Discovery.GossipInterval == 0 {
		c.Discovery.GossipInterval = 200 * time.Millisecond
	}
	if c.Discovery.ProbeTimeout == 0 {
		c.Discovery.ProbeTimeout = 500 * time.Millisecond
	}
	if c.Discovery.ProbeInterval == 0 {
		c.Discovery.ProbeInterval = time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if len(c.Cluster.ContactPoints) == 0 {
		return fmt.Errorf("cluster.contact_points is required")
	}
	if c.Cluster.Port < 1 || c.Cluster.Port > 65535 {
		return fmt.Errorf("cluster.port must be between 1 and 65535")
	}
	if c.IO.Workers < 1 {
		return fmt.Errorf("io.workers must be at least 1")
	}
	if c.IO.CoreConnectionsPerHost < 1 {
		return fmt.Errorf("io.core_connections_per_host must be at least 1")
	}
	if c.TLS.Enabled && (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return fmt.Errorf("tls.cert_file and tls.key_file must be set together")
	}
	return nil
}
