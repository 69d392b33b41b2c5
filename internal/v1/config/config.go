package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds validated environment configuration.
type Config struct {
	// Required variables
	JWTSecret string
	Port      string

	// Optional variables with defaults
	GoEnv    string
	LogLevel string

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	// Auth0 JWKS mode (alternative to JWTSecret)
	Auth0Domain     string
	Auth0Audience   string
	SkipAuth        bool
	DevelopmentMode bool
	AllowedOrigins  string

	// Persistence
	PersistenceDriver string // "memory" | "postgres"
	PostgresURL       string

	// Activity sink
	ActivitySinkURL       string
	ActivityRingSize      int
	ActivityRetentionDays int

	// Session gateway
	OutboundQueueDepth int
	TokenTTLSeconds    int

	// Rate limits
	RateLimitAPIGlobal   string
	RateLimitAPIPublic   string
	RateLimitAPIBoards   string
	RateLimitAPIComments string
	RateLimitWsIP        string
	RateLimitWsUser      string
}

// ValidateEnv validates all required environment variables and returns a Config object.
// Returns an error if any required variable is missing or invalid.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	// Required: JWT_SECRET (minimum 32 characters), unless Auth0 JWKS mode is configured.
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.Auth0Domain = os.Getenv("AUTH0_DOMAIN")
	cfg.Auth0Audience = os.Getenv("AUTH0_AUDIENCE")
	usingAuth0 := cfg.Auth0Domain != "" && cfg.Auth0Audience != ""

	if cfg.JWTSecret == "" && !usingAuth0 {
		errors = append(errors, "JWT_SECRET is required (or set AUTH0_DOMAIN and AUTH0_AUDIENCE)")
	} else if cfg.JWTSecret != "" && len(cfg.JWTSecret) < 32 {
		errors = append(errors, fmt.Sprintf("JWT_SECRET must be at least 32 characters (got %d)", len(cfg.JWTSecret)))
	}

	// Required: PORT (valid port number)
	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		errors = append(errors, "PORT is required")
	} else {
		port, err := strconv.Atoi(cfg.Port)
		if err != nil || port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
		}
	}

	// Conditional: REDIS_ADDR (required if REDIS_ENABLED=true)
	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			cfg.RedisAddr = "localhost:6379"
			slog.Warn("REDIS_ADDR not set, using default", "addr", cfg.RedisAddr)
		} else if !isValidHostPort(cfg.RedisAddr) {
			errors = append(errors, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	// Persistence driver
	cfg.PersistenceDriver = getEnvOrDefault("PERSISTENCE_DRIVER", "memory")
	if cfg.PersistenceDriver != "memory" && cfg.PersistenceDriver != "postgres" {
		errors = append(errors, fmt.Sprintf("PERSISTENCE_DRIVER must be 'memory' or 'postgres' (got '%s')", cfg.PersistenceDriver))
	}
	cfg.PostgresURL = os.Getenv("POSTGRES_URL")
	if cfg.PersistenceDriver == "postgres" && cfg.PostgresURL == "" {
		errors = append(errors, "POSTGRES_URL is required when PERSISTENCE_DRIVER=postgres")
	}

	cfg.ActivitySinkURL = os.Getenv("ACTIVITY_SINK_URL")

	var err error
	cfg.ActivityRingSize, err = getEnvIntOrDefault("ACTIVITY_RING_SIZE", 20)
	if err != nil {
		errors = append(errors, err.Error())
	}
	cfg.ActivityRetentionDays, err = getEnvIntOrDefault("ACTIVITY_RETENTION_DAYS", 90)
	if err != nil {
		errors = append(errors, err.Error())
	}
	cfg.OutboundQueueDepth, err = getEnvIntOrDefault("OUTBOUND_QUEUE_DEPTH", 256)
	if err != nil {
		errors = append(errors, err.Error())
	}
	cfg.TokenTTLSeconds, err = getEnvIntOrDefault("TOKEN_TTL_SECONDS", 3600)
	if err != nil {
		errors = append(errors, err.Error())
	}

	// Optional: GO_ENV (defaults to "production")
	cfg.GoEnv = os.Getenv("GO_ENV")
	if cfg.GoEnv == "" {
		cfg.GoEnv = "production"
	}

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = os.Getenv("LOG_LEVEL")
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.SkipAuth = os.Getenv("SKIP_AUTH") == "true"
	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")

	// Rate Limits (Defaults: M = Minute, H = Hour)
	cfg.RateLimitAPIGlobal = getEnvOrDefault("RATE_LIMIT_API_GLOBAL", "1000-M")
	cfg.RateLimitAPIPublic = getEnvOrDefault("RATE_LIMIT_API_PUBLIC", "100-M")
	cfg.RateLimitAPIBoards = getEnvOrDefault("RATE_LIMIT_API_BOARDS", "100-M")
	cfg.RateLimitAPIComments = getEnvOrDefault("RATE_LIMIT_API_COMMENTS", "500-M")
	cfg.RateLimitWsIP = getEnvOrDefault("RATE_LIMIT_WS_IP", "100-M")
	cfg.RateLimitWsUser = getEnvOrDefault("RATE_LIMIT_WS_USER", "10-M")

	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	logValidatedConfig(cfg)

	return cfg, nil
}

// isValidHostPort checks if a string is in the format "host:port"
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}

	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}

	if parts[0] == "" {
		return false
	}

	return true
}

// logValidatedConfig logs the validated configuration with secrets redacted
func logValidatedConfig(cfg *Config) {
	slog.Info("environment configuration validated")
	slog.Info("configuration",
		"jwt_secret", redactSecret(cfg.JWTSecret),
		"port", cfg.Port,
		"persistence_driver", cfg.PersistenceDriver,
		"redis_enabled", cfg.RedisEnabled,
		"redis_addr", cfg.RedisAddr,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"development_mode", cfg.DevelopmentMode,
		"rate_limit_api_global", cfg.RateLimitAPIGlobal,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault parses an integer environment variable, returning defaultValue if unset.
func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got '%s')", key, value)
	}
	return n, nil
}

// redactSecret redacts a secret by showing only the first 8 characters
func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
