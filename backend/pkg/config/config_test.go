package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("WORKSPACE_DIR", "/tmp/ws")
	t.Setenv("MEMORY_DIR", "")
	t.Setenv("GATEWAY_URL", "http://gw.local/api/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreSQLite, cfg.StoreBackend)
	assert.Equal(t, "/tmp/ws/memory", cfg.MemoryDir)
	assert.Equal(t, "/tmp/ws/MEMORY.md", cfg.MemoryMDPath)
	assert.Equal(t, "http://gw.local/api", cfg.GatewayURL)
	assert.Equal(t, 15*time.Second, cfg.GatewayTimeout)
	assert.True(t, cfg.WatchSources)
}

func TestLoad_Neo4jRequiresPassword(t *testing.T) {
	t.Setenv("STORE_BACKEND", "neo4j")
	t.Setenv("NEO4J_PASSWORD", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			StoreBackend:   StoreSQLite,
			SQLitePath:     "x.db",
			GraphID:        "default",
			WorkspaceDir:   ".",
			GatewayTimeout: time.Second,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown backend", mutate: func(c *Config) { c.StoreBackend = "dynamo" }, wantErr: true},
		{name: "missing graph id", mutate: func(c *Config) { c.GraphID = "" }, wantErr: true},
		{name: "negative chat limit", mutate: func(c *Config) { c.ChatHistoryLimit = -1 }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.GatewayTimeout = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("FLAG_X", "off")
	assert.False(t, getEnvBool("FLAG_X", true))
	t.Setenv("FLAG_X", "garbage")
	assert.True(t, getEnvBool("FLAG_X", true))
}
