// Package config provides configuration management for Mnemosyne.
// It loads settings from environment variables with the MNEMOSYNE_ prefix
// and provides sensible defaults for all configuration options.
//
// Tuning that does not fit an environment variable (retention periods,
// horizon profiles, protected tags) lives in an optional YAML policy file;
// see LoadPolicy.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration settings for the consolidation service.
type Config struct {
	Storage    StorageConfig
	Scheduler  SchedulerConfig
	Resilience ResilienceConfig
	Insight    InsightConfig

	// PolicyFile is the path to the optional YAML policy file.
	// Env var: MNEMOSYNE_POLICY_FILE. Empty means built-in defaults.
	PolicyFile string
}

// StorageConfig selects and locates the storage backend.
type StorageConfig struct {
	Backend string // Storage backend: sqlite, postgres, badger (default: sqlite)
	DSN     string // File path for sqlite, directory for badger, connection string for postgres (default: ./data/mnemosyne.db)
}

// SchedulerConfig bounds consolidation runs and their bookkeeping.
type SchedulerConfig struct {
	RunTimeout  time.Duration // Deadline for a single consolidation run (default: 30m)
	HistorySize int           // Run reports retained per horizon (default: 20)
	BatchLimit  int           // Working-set cap per run; 0 means the storage default (default: 500)
}

// ResilienceConfig tunes the resilient store decorator.
type ResilienceConfig struct {
	OpTimeout          time.Duration // Per-attempt deadline on store calls (default: 10s)
	MaxRetries         int           // Extra attempts after the first failure (default: 3)
	BreakerMaxFailures int           // Consecutive failures that trip the circuit (default: 5)
	BreakerTimeout     time.Duration // Open-circuit cooldown (default: 30s)
	RatePerSec         float64       // Sustained mutating calls per second; 0 disables (default: 200)
	RateBurst          int           // Mutating-call burst allowance (default: 50)
}

// InsightConfig controls the optional narrative generator.
type InsightConfig struct {
	Enabled     bool          // Attach LLM narratives to produced records (default: false)
	OllamaURL   string        // Ollama API URL (default: http://localhost:11434)
	OllamaModel string        // Ollama model name (default: phi3:mini)
	Timeout     time.Duration // Per-request deadline (default: 5s)
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the MNEMOSYNE_ prefix. The result
// is validated; a config that names an unknown backend or a non-positive
// timeout is rejected here rather than at first use.
func LoadConfig() (*Config, error) {
	cfg := buildBaseConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildBaseConfig constructs a Config with values from environment variables
// and defaults.
func buildBaseConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: getEnv("MNEMOSYNE_STORAGE_BACKEND", "sqlite"),
			DSN:     getEnv("MNEMOSYNE_STORAGE_DSN", "./data/mnemosyne.db"),
		},
		Scheduler: SchedulerConfig{
			RunTimeout:  getEnvDuration("MNEMOSYNE_RUN_TIMEOUT", 30*time.Minute),
			HistorySize: getEnvInt("MNEMOSYNE_HISTORY_SIZE", 20),
			BatchLimit:  getEnvInt("MNEMOSYNE_BATCH_LIMIT", 500),
		},
		Resilience: ResilienceConfig{
			OpTimeout:          getEnvDuration("MNEMOSYNE_STORE_OP_TIMEOUT", 10*time.Second),
			MaxRetries:         getEnvInt("MNEMOSYNE_STORE_MAX_RETRIES", 3),
			BreakerMaxFailures: getEnvInt("MNEMOSYNE_STORE_BREAKER_FAILURES", 5),
			BreakerTimeout:     getEnvDuration("MNEMOSYNE_STORE_BREAKER_TIMEOUT", 30*time.Second),
			RatePerSec:         getEnvFloat("MNEMOSYNE_STORE_RATE_PER_SEC", 200),
			RateBurst:          getEnvInt("MNEMOSYNE_STORE_RATE_BURST", 50),
		},
		Insight: InsightConfig{
			Enabled:     getEnvBool("MNEMOSYNE_INSIGHT_ENABLED", false),
			OllamaURL:   getEnv("MNEMOSYNE_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel: getEnv("MNEMOSYNE_OLLAMA_MODEL", "phi3:mini"),
			Timeout:     getEnvDuration("MNEMOSYNE_INSIGHT_TIMEOUT", 5*time.Second),
		},
		PolicyFile: getEnv("MNEMOSYNE_POLICY_FILE", ""),
	}
}

// validBackends mirrors the backend names connections.Open accepts.
var validBackends = map[string]bool{
	"sqlite":     true,
	"postgres":   true,
	"postgresql": true,
	"badger":     true,
}

// Validate rejects configurations that could never start cleanly.
func (c *Config) Validate() error {
	if !validBackends[c.Storage.Backend] {
		return fmt.Errorf("config: unknown storage backend %q (have: sqlite, postgres, badger)", c.Storage.Backend)
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("config: storage DSN is required")
	}
	if c.Scheduler.RunTimeout <= 0 {
		return fmt.Errorf("config: run timeout must be positive, got %v", c.Scheduler.RunTimeout)
	}
	if c.Scheduler.HistorySize <= 0 {
		return fmt.Errorf("config: history size must be positive, got %d", c.Scheduler.HistorySize)
	}
	if c.Scheduler.BatchLimit < 0 {
		return fmt.Errorf("config: batch limit must not be negative, got %d", c.Scheduler.BatchLimit)
	}
	if c.Resilience.OpTimeout <= 0 {
		return fmt.Errorf("config: store op timeout must be positive, got %v", c.Resilience.OpTimeout)
	}
	if c.Resilience.MaxRetries < 0 {
		return fmt.Errorf("config: store max retries must not be negative, got %d", c.Resilience.MaxRetries)
	}
	if c.Resilience.RatePerSec < 0 {
		return fmt.Errorf("config: store rate must not be negative, got %g", c.Resilience.RatePerSec)
	}
	if c.Insight.Enabled {
		if c.Insight.OllamaURL == "" {
			return fmt.Errorf("config: insight enabled but ollama URL is empty")
		}
		if c.Insight.Timeout <= 0 {
			return fmt.Errorf("config: insight timeout must be positive, got %v", c.Insight.Timeout)
		}
	}
	return nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as a float,
// it returns the default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
// If the environment variable exists but cannot be parsed as a boolean,
// it returns the default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable or returns a
// default value. If the environment variable exists but cannot be parsed
// by time.ParseDuration, it returns the default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
