package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/muaviaUsmani/hearth/internal/kv"
	"github.com/muaviaUsmani/hearth/internal/logger"
	"github.com/muaviaUsmani/hearth/internal/serialization"
)

// Config holds all configuration shared by the Hearth processes
type Config struct {
	// Store selects the key-value backend (redis or sqlite)
	Store kv.Config
	// EventCodec is the format new event records are written in
	EventCodec serialization.Format
	// APIPort is the port the API server listens on
	APIPort string
	// APIRateLimit is the sustained request rate allowed per second
	APIRateLimit float64
	// APIRateBurst is the token bucket size
	APIRateBurst int
	// StatusCacheTTL is how long a status report is memoized
	StatusCacheTTL time.Duration
	// StatusMaxUpcoming caps nextScheduledEvents in the status report
	StatusMaxUpcoming int
	// AutoModeConfigPath is an optional YAML file with the auto-mode windows
	AutoModeConfigPath string
	// AutoModeWatch reloads AutoModeConfigPath when it changes
	AutoModeWatch bool
	// Logging configuration
	Logging *logger.Config
}

// LoadConfig loads configuration from environment variables with sensible defaults
func LoadConfig() (*Config, error) {
	codec, err := serialization.ParseFormat(getEnv("EVENT_CODEC", "json"))
	if err != nil {
		return nil, fmt.Errorf("invalid EVENT_CODEC: %w", err)
	}

	logging, err := loadLoggingConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Store: kv.Config{
			Driver:     strings.ToLower(getEnv("STORE_DRIVER", "redis")),
			RedisURL:   getEnv("REDIS_URL", "redis://localhost:6379"),
			SQLitePath: getEnv("SQLITE_PATH", "hearth.db"),
			KeyPrefix:  getEnv("KEY_PREFIX", "hearth:"),
		},
		EventCodec:         codec,
		APIPort:            getEnv("API_PORT", "8080"),
		APIRateLimit:       getEnvAsFloat("API_RATE_LIMIT", 50),
		APIRateBurst:       getEnvAsInt("API_RATE_BURST", 100),
		StatusCacheTTL:     getEnvAsDuration("STATUS_CACHE_TTL", 5*time.Second),
		StatusMaxUpcoming:  getEnvAsInt("STATUS_MAX_UPCOMING", 5),
		AutoModeConfigPath: getEnv("AUTOMODE_CONFIG_PATH", ""),
		AutoModeWatch:      getEnvAsBool("AUTOMODE_WATCH", false),
		Logging:            logging,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded values
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "redis":
		if c.Store.RedisURL == "" {
			return fmt.Errorf("REDIS_URL cannot be empty")
		}
	case "sqlite", "sqlite3":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH cannot be empty")
		}
	default:
		return fmt.Errorf("invalid STORE_DRIVER: %s (must be redis or sqlite)", c.Store.Driver)
	}
	if c.APIPort == "" {
		return fmt.Errorf("API_PORT cannot be empty")
	}
	if c.APIRateLimit <= 0 {
		return fmt.Errorf("API_RATE_LIMIT must be positive")
	}
	if c.APIRateBurst < 1 {
		return fmt.Errorf("API_RATE_BURST must be at least 1")
	}
	if c.StatusCacheTTL < 0 {
		return fmt.Errorf("STATUS_CACHE_TTL cannot be negative")
	}
	if c.StatusMaxUpcoming < 1 {
		return fmt.Errorf("STATUS_MAX_UPCOMING must be at least 1")
	}
	if c.AutoModeWatch && c.AutoModeConfigPath == "" {
		return fmt.Errorf("AUTOMODE_WATCH requires AUTOMODE_CONFIG_PATH")
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat retrieves an environment variable as a float or returns a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration retrieves an environment variable as a duration or returns a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsStringSlice retrieves an environment variable as a comma-separated list
func getEnvAsStringSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

// loadLoggingConfig loads logging configuration from environment variables
func loadLoggingConfig() (*logger.Config, error) {
	cfg := logger.DefaultConfig()

	if level := getEnv("LOG_LEVEL", ""); level != "" {
		parsed, err := logger.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Level = parsed
	}
	if format := getEnv("LOG_FORMAT", ""); format != "" {
		cfg.Format = logger.LogFormat(strings.ToLower(format))
	}

	// Tier 1: Console
	cfg.Console.Enabled = getEnvAsBool("LOG_CONSOLE_ENABLED", true)
	cfg.Console.Color = getEnvAsBool("LOG_COLOR", true)
	cfg.Console.BufferSize = getEnvAsInt("LOG_CONSOLE_BUFFER_SIZE", cfg.Console.BufferSize)
	cfg.Console.FlushInterval = getEnvAsDuration("LOG_CONSOLE_FLUSH_INTERVAL", cfg.Console.FlushInterval)

	// Tier 2: File
	cfg.File.Enabled = getEnvAsBool("LOG_FILE_ENABLED", false)
	cfg.File.Path = getEnv("LOG_FILE_PATH", cfg.File.Path)
	cfg.File.MaxSizeMB = getEnvAsInt("LOG_FILE_MAX_SIZE_MB", cfg.File.MaxSizeMB)
	cfg.File.MaxBackups = getEnvAsInt("LOG_FILE_MAX_BACKUPS", cfg.File.MaxBackups)
	cfg.File.MaxAgeDays = getEnvAsInt("LOG_FILE_MAX_AGE_DAYS", cfg.File.MaxAgeDays)
	cfg.File.Compress = getEnvAsBool("LOG_FILE_COMPRESS", cfg.File.Compress)
	cfg.File.BufferSize = getEnvAsInt("LOG_FILE_BUFFER_SIZE", cfg.File.BufferSize)
	cfg.File.BatchSize = getEnvAsInt("LOG_FILE_BATCH_SIZE", cfg.File.BatchSize)
	cfg.File.BatchInterval = getEnvAsDuration("LOG_FILE_BATCH_INTERVAL", cfg.File.BatchInterval)

	return cfg, nil
}
