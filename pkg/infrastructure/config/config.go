// Package config loads and validates process configuration: the HMAC/RNG
// secret, database connection, watermark defaults, logging, and the
// extractor's search-grid budget.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// fallbackSecret is the documented value an empty-string SECRET resolves to.
// Resolution happens once, in LoadConfig just before Validate — never lazily
// at a crypto or RNG call site.
const fallbackSecret = "supersecret"

// Config holds all process configuration.
type Config struct {
	Secret    SecretConfig    `json:"secret"`
	Database  DatabaseConfig  `json:"database"`
	Watermark WatermarkConfig `json:"watermark"`
	Logging   LoggingConfig   `json:"logging"`
	Search    SearchConfig    `json:"search"`
}

// SecretConfig holds the process-wide HMAC/RNG secret.
type SecretConfig struct {
	Value string `json:"value"`
}

// DatabaseConfig holds PostgreSQL repository connection settings.
type DatabaseConfig struct {
	ConnectionString string `json:"connection_string"`
	MaxConnections   int32  `json:"max_connections"`
	ConnectTimeout   int    `json:"connect_timeout_seconds"`
	MigrationsPath   string `json:"migrations_path"`
}

// WatermarkConfig holds default embed parameters.
type WatermarkConfig struct {
	Strength float64 `json:"strength"`
	Repeats  int     `json:"repeats"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
	File   string `json:"file"`
}

// SearchConfig bounds the extractor's parameter-grid search.
type SearchConfig struct {
	FastPath           bool `json:"fast_path"`
	MaxConcurrentTuple int  `json:"max_concurrent_tuples"`
	ScanLimit          int  `json:"scan_limit"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Secret: SecretConfig{Value: ""},
		Database: DatabaseConfig{
			ConnectionString: "postgres://localhost:5432/originseal?sslmode=disable",
			MaxConnections:   10,
			ConnectTimeout:   30,
			MigrationsPath:   "file://pkg/provenance/repository/migrations",
		},
		Watermark: WatermarkConfig{
			Strength: 14.0,
			Repeats:  8,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "console",
		},
		Search: SearchConfig{
			FastPath:           true,
			MaxConcurrentTuple: 8,
			ScanLimit:          500,
		},
	}
}

// LoadConfig loads configuration from file with environment variable
// overrides, resolving the secret fallback and validating the result.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		if err := config.loadFromFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()

	if config.Secret.Value == "" {
		config.Secret.Value = fallbackSecret
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, c)
}

func (c *Config) applyEnvironmentOverrides() {
	if val := os.Getenv("ORIGINSEAL_SECRET"); val != "" {
		c.Secret.Value = val
	}
	if val := os.Getenv("ORIGINSEAL_DB_DSN"); val != "" {
		c.Database.ConnectionString = val
	}
	if val := os.Getenv("ORIGINSEAL_DB_MAX_CONNECTIONS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Database.MaxConnections = int32(n)
		}
	}
	if val := os.Getenv("ORIGINSEAL_WATERMARK_STRENGTH"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.Watermark.Strength = f
		}
	}
	if val := os.Getenv("ORIGINSEAL_WATERMARK_REPEATS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Watermark.Repeats = n
		}
	}
	if val := os.Getenv("ORIGINSEAL_LOG_LEVEL"); val != "" {
		c.Logging.Level = val
	}
	if val := os.Getenv("ORIGINSEAL_LOG_FORMAT"); val != "" {
		c.Logging.Format = val
	}
	if val := os.Getenv("ORIGINSEAL_LOG_OUTPUT"); val != "" {
		c.Logging.Output = val
	}
	if val := os.Getenv("ORIGINSEAL_LOG_FILE"); val != "" {
		c.Logging.File = val
	}
	if val := os.Getenv("ORIGINSEAL_SEARCH_FAST_PATH"); val != "" {
		c.Search.FastPath = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("ORIGINSEAL_SEARCH_CONCURRENCY"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Search.MaxConcurrentTuple = n
		}
	}
	if val := os.Getenv("ORIGINSEAL_SEARCH_SCAN_LIMIT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Search.ScanLimit = n
		}
	}
}

// Validate validates the configuration. Call after the secret fallback has
// already been resolved.
func (c *Config) Validate() error {
	if c.Secret.Value == "" {
		return fmt.Errorf("secret must be resolved before validation")
	}
	if c.Database.ConnectionString == "" {
		return fmt.Errorf("database connection string cannot be empty")
	}
	if c.Database.MaxConnections <= 0 {
		return fmt.Errorf("database max connections must be positive")
	}

	if c.Watermark.Strength <= 0 {
		return fmt.Errorf("watermark strength must be positive")
	}
	if c.Watermark.Repeats <= 0 {
		return fmt.Errorf("watermark repeats must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Search.ScanLimit <= 0 {
		return fmt.Errorf("search scan limit must be positive")
	}
	if c.Search.MaxConcurrentTuple <= 0 {
		return fmt.Errorf("search concurrency must be positive")
	}

	return nil
}

// SaveToFile saves the configuration to a JSON file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".originseal", "config.json"), nil
}
