package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/spetersoncode/careflow"
	"github.com/spetersoncode/careflow/internal/logging"
)

// Config holds the service configuration loaded from environment variables.
type Config struct {
	// Server
	Port        string
	LogLevel    string // debug, info, warn, error
	LogJSON     bool
	CORSOrigins []string

	// Provider selection
	Provider string
	Model    string

	// API Keys
	AnthropicKey string
	OpenAIKey    string
	GoogleKey    string

	// Generation
	StreamTimeout time.Duration
	HistoryWindow int
	TurnBudget    int
	SplitMarkers  bool
	MaxAttempts   int

	// Response cache
	CacheTTL  time.Duration
	CacheSize int
}

// LoadConfig loads configuration from environment variables.
// It loads a .env file if present (silent fail if not found).
func LoadConfig() (*Config, error) {
	godotenv.Load() // Load .env file if present

	cfg := &Config{
		Port:          getEnvOrDefault("CAREFLOW_PORT", "8000"),
		LogLevel:      getEnvOrDefault("CAREFLOW_LOG_LEVEL", "info"),
		LogJSON:       getEnvBoolOrDefault("CAREFLOW_LOG_JSON", false),
		CORSOrigins:   splitList(getEnvOrDefault("CAREFLOW_CORS_ORIGINS", "*")),
		Provider:      getEnvOrDefault("CAREFLOW_PROVIDER", string(careflow.ProviderAnthropic)),
		Model:         os.Getenv("CAREFLOW_MODEL"),
		AnthropicKey:  os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		GoogleKey:     os.Getenv("GOOGLE_API_KEY"),
		StreamTimeout: getEnvDurationOrDefault("CAREFLOW_STREAM_TIMEOUT", 120*time.Second),
		HistoryWindow: getEnvIntOrDefault("CAREFLOW_HISTORY_WINDOW", 4),
		TurnBudget:    getEnvIntOrDefault("CAREFLOW_TURN_BUDGET", 200),
		SplitMarkers:  getEnvBoolOrDefault("CAREFLOW_SPLIT_MARKERS", false),
		MaxAttempts:   getEnvIntOrDefault("CAREFLOW_MAX_ATTEMPTS", 1),
		CacheTTL:      getEnvDurationOrDefault("CAREFLOW_CACHE_TTL", time.Hour),
		CacheSize:     getEnvIntOrDefault("CAREFLOW_CACHE_SIZE", 1024),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable. A missing API key is
// not an error: requests that need the model degrade to fallbacks.
func (c *Config) Validate() error {
	switch careflow.Provider(c.Provider) {
	case careflow.ProviderAnthropic, careflow.ProviderOpenAI, careflow.ProviderGoogle:
	default:
		return fmt.Errorf("unknown provider: %s (must be anthropic, openai, or google)", c.Provider)
	}

	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("CAREFLOW_PORT must be a number: %q", c.Port)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("CAREFLOW_LOG_LEVEL: %w", err)
	}
	if c.StreamTimeout <= 0 {
		return fmt.Errorf("CAREFLOW_STREAM_TIMEOUT must be positive")
	}
	if c.HistoryWindow < 0 {
		return fmt.Errorf("CAREFLOW_HISTORY_WINDOW must not be negative")
	}
	if c.TurnBudget < 1 {
		return fmt.Errorf("CAREFLOW_TURN_BUDGET must be at least 1")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("CAREFLOW_MAX_ATTEMPTS must be at least 1")
	}
	if c.CacheSize < 1 {
		return fmt.Errorf("CAREFLOW_CACHE_SIZE must be at least 1")
	}

	return nil
}

// APIKey returns the key configured for the selected provider.
func (c *Config) APIKey() string {
	switch careflow.Provider(c.Provider) {
	case careflow.ProviderAnthropic:
		return c.AnthropicKey
	case careflow.ProviderOpenAI:
		return c.OpenAIKey
	case careflow.ProviderGoogle:
		return c.GoogleKey
	}
	return ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
