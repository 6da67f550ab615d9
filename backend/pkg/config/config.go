package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends
const (
	StoreSQLite = "sqlite"
	StoreNeo4j  = "neo4j"
)

// Config holds all application configuration
type Config struct {
	// App
	Port string
	Env  string

	// Storage
	StoreBackend  string
	GraphID       string
	SQLitePath    string
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string

	// Telemetry sources
	WorkspaceDir     string
	MemoryDir        string
	SessionsDir      string // empty disables chat telemetry
	ChatHistoryLimit int
	WatchSources     bool

	// Publishing
	MemoryMDPath string
	RedisAddr    string // empty disables change notifications
	RedisChannel string

	// Gateway client (graphctl and remote editors)
	GatewayURL     string
	GatewayToken   string
	GatewayTimeout time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	workspace := getEnv("WORKSPACE_DIR", ".")

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		Env:              getEnv("ENV", "development"),
		StoreBackend:     strings.ToLower(getEnv("STORE_BACKEND", StoreSQLite)),
		GraphID:          getEnv("GRAPH_ID", "default"),
		SQLitePath:       getEnv("SQLITE_PATH", filepath.Join("data", "memory-graph.db")),
		Neo4jURI:         getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:        getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:    getEnv("NEO4J_PASSWORD", ""),
		Neo4jDatabase:    getEnv("NEO4J_DATABASE", ""),
		WorkspaceDir:     workspace,
		MemoryDir:        getEnv("MEMORY_DIR", filepath.Join(workspace, "memory")),
		SessionsDir:      getEnv("SESSIONS_DIR", ""),
		ChatHistoryLimit: getEnvInt("CHAT_HISTORY_LIMIT", 200),
		WatchSources:     getEnvBool("WATCH_SOURCES", true),
		MemoryMDPath:     getEnv("MEMORY_MD_PATH", filepath.Join(workspace, "MEMORY.md")),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisChannel:     getEnv("REDIS_CHANNEL", "memory-graph"),
		GatewayURL:       strings.TrimRight(getEnv("GATEWAY_URL", "http://localhost:8080/api"), "/"),
		GatewayToken:     getEnv("GATEWAY_TOKEN", ""),
		GatewayTimeout:   time.Duration(getEnvInt("GATEWAY_TIMEOUT_SECONDS", 15)) * time.Second,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	case StoreNeo4j:
		if c.Neo4jURI == "" {
			return fmt.Errorf("NEO4J_URI is required")
		}
		if c.Neo4jUser == "" {
			return fmt.Errorf("NEO4J_USER is required")
		}
		if c.Neo4jPassword == "" {
			return fmt.Errorf("NEO4J_PASSWORD is required")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", StoreSQLite, StoreNeo4j, c.StoreBackend)
	}
	if c.GraphID == "" {
		return fmt.Errorf("GRAPH_ID is required")
	}
	if c.WorkspaceDir == "" {
		return fmt.Errorf("WORKSPACE_DIR is required")
	}
	if c.ChatHistoryLimit < 0 {
		return fmt.Errorf("CHAT_HISTORY_LIMIT must not be negative")
	}
	if c.GatewayTimeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT_SECONDS must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultValue
}
