package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	content := `
cluster:
  contact_points: ["10.0.0.1", "db.internal"]
  port: 9000
  keyspace: app
io:
  workers: 4
  core_connections_per_host: 2
logging:
  level: debug
  format: console
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"10.0.0.1", "db.internal"}, cfg.Cluster.ContactPoints)
	assert.Equal(t, 9000, cfg.Cluster.Port)
	assert.Equal(t, "app", cfg.Cluster.Keyspace)
	assert.Equal(t, 4, cfg.IO.Workers)
	assert.Equal(t, 2, cfg.IO.CoreConnectionsPerHost)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// unspecified fields got defaults
	assert.Equal(t, 10*time.Second, cfg.Cluster.ConnectTimeout)
	assert.Equal(t, 4096, cfg.IO.QueueSizeCommand)
	assert.Equal(t, 256, cfg.IO.QueueSizeEvent)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cluster: ["), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSetDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()

	assert.Equal(t, 50052, cfg.Cluster.Port)
	assert.Equal(t, 1, cfg.IO.Workers)
	assert.Equal(t, 1, cfg.IO.CoreConnectionsPerHost)
	assert.Equal(t, 1024, cfg.IO.QueueSizeWorker)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 200*time.Millisecond, cfg.Discovery.GossipInterval)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.Cluster.ContactPoints = []string{"10.0.0.1"}
		cfg.SetDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"no contact points", func(c *Config) { c.Cluster.ContactPoints = nil }, true},
		{"port too high", func(c *Config) { c.Cluster.Port = 70000 }, true},
		{"port zero", func(c *Config) { c.Cluster.Port = 0 }, true},
		{"no workers", func(c *Config) { c.IO.Workers = -1 }, true},
		{"no core connections", func(c *Config) { c.IO.CoreConnectionsPerHost = -1 }, true},
		{"tls cert without key", func(c *Config) {
			c.TLS.Enabled = true
			c.TLS.CertFile = "client.crt"
		}, true},
		{"tls cert with key", func(c *Config) {
			c.TLS.Enabled = true
			c.TLS.CertFile = "client.crt"
			c.TLS.KeyFile = "client.key"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
