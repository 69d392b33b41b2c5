package config

import (
	"os"
	"strings"
	"testing"
)

// setupTestEnv sets up environment variables for testing
func setupTestEnv(t *testing.T) func() {
	origVars := map[string]string{
		"JWT_SECRET":         os.Getenv("JWT_SECRET"),
		"PORT":               os.Getenv("PORT"),
		"AUTH0_DOMAIN":       os.Getenv("AUTH0_DOMAIN"),
		"AUTH0_AUDIENCE":     os.Getenv("AUTH0_AUDIENCE"),
		"REDIS_ENABLED":      os.Getenv("REDIS_ENABLED"),
		"REDIS_ADDR":         os.Getenv("REDIS_ADDR"),
		"GO_ENV":             os.Getenv("GO_ENV"),
		"LOG_LEVEL":          os.Getenv("LOG_LEVEL"),
		"PERSISTENCE_DRIVER": os.Getenv("PERSISTENCE_DRIVER"),
		"POSTGRES_URL":       os.Getenv("POSTGRES_URL"),
	}

	for key := range origVars {
		os.Unsetenv(key)
	}

	return func() {
		for key, val := range origVars {
			if val != "" {
				os.Setenv(key, val)
			} else {
				os.Unsetenv(key)
			}
		}
	}
}

func TestValidateEnv_ValidConfiguration(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("JWT_SECRET", "this-is-a-very-long-secret-key-for-testing-purposes")
	os.Setenv("PORT", "8080")
	os.Setenv("REDIS_ENABLED", "false")

	cfg, err := ValidateEnv()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.JWTSecret != "this-is-a-very-long-secret-key-for-testing-purposes" {
		t.Errorf("Expected JWT_SECRET to be set correctly")
	}
	if cfg.Port != "8080" {
		t.Errorf("Expected PORT to be '8080', got '%s'", cfg.Port)
	}
	if cfg.GoEnv != "production" {
		t.Errorf("Expected GO_ENV to default to 'production', got '%s'", cfg.GoEnv)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected LOG_LEVEL to default to 'info', got '%s'", cfg.LogLevel)
	}
	if cfg.PersistenceDriver != "memory" {
		t.Errorf("Expected PERSISTENCE_DRIVER to default to 'memory', got '%s'", cfg.PersistenceDriver)
	}
}

func TestValidateEnv_MissingJWTSecretAndAuth0(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("PORT", "8080")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("Expected error for missing JWT_SECRET/Auth0, got nil")
	}
	if !strings.Contains(err.Error(), "JWT_SECRET is required") {
		t.Errorf("Expected error message about JWT_SECRET, got: %v", err)
	}
}

func TestValidateEnv_Auth0ModeSatisfiesRequirement(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("PORT", "8080")
	os.Setenv("AUTH0_DOMAIN", "example.auth0.com")
	os.Setenv("AUTH0_AUDIENCE", "https://api.example.com")

	cfg, err := ValidateEnv()
	if err != nil {
		t.Fatalf("Expected no error when Auth0 is configured, got: %v", err)
	}
	if cfg.Auth0Domain != "example.auth0.com" {
		t.Errorf("Expected AUTH0_DOMAIN to be set correctly")
	}
}

func TestValidateEnv_ShortJWTSecret(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("JWT_SECRET", "short")
	os.Setenv("PORT", "8080")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("Expected error for short JWT_SECRET, got nil")
	}
	if !strings.Contains(err.Error(), "must be at least 32 characters") {
		t.Errorf("Expected error message about JWT_SECRET length, got: %v", err)
	}
}

func TestValidateEnv_MissingPort(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("JWT_SECRET", "this-is-a-very-long-secret-key-for-testing-purposes")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("Expected error for missing PORT, got nil")
	}
	if !strings.Contains(err.Error(), "PORT is required") {
		t.Errorf("Expected error message about PORT, got: %v", err)
	}
}

func TestValidateEnv_InvalidPort(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("JWT_SECRET", "this-is-a-very-long-secret-key-for-testing-purposes")
	os.Setenv("PORT", "99999")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("Expected error for invalid PORT, got nil")
	}
	if !strings.Contains(err.Error(), "PORT must be a valid port number") {
		t.Errorf("Expected error message about invalid PORT, got: %v", err)
	}
}

func TestValidateEnv_InvalidRedisAddr(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("JWT_SECRET", "this-is-a-very-long-secret-key-for-testing-purposes")
	os.Setenv("PORT", "8080")
	os.Setenv("REDIS_ENABLED", "true")
	os.Setenv("REDIS_ADDR", "invalid-format")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("Expected error for invalid REDIS_ADDR, got nil")
	}
	if !strings.Contains(err.Error(), "REDIS_ADDR must be in format 'host:port'") {
		t.Errorf("Expected error message about REDIS_ADDR format, got: %v", err)
	}
}

func TestValidateEnv_PostgresRequiresURL(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("JWT_SECRET", "this-is-a-very-long-secret-key-for-testing-purposes")
	os.Setenv("PORT", "8080")
	os.Setenv("PERSISTENCE_DRIVER", "postgres")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("Expected error for missing POSTGRES_URL, got nil")
	}
	if !strings.Contains(err.Error(), "POSTGRES_URL is required") {
		t.Errorf("Expected error message about POSTGRES_URL, got: %v", err)
	}
}

func TestValidateEnv_OptionalDefaults(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("JWT_SECRET", "this-is-a-very-long-secret-key-for-testing-purposes")
	os.Setenv("PORT", "8080")

	cfg, err := ValidateEnv()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.GoEnv != "production" {
		t.Errorf("Expected GO_ENV to default to 'production', got '%s'", cfg.GoEnv)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected LOG_LEVEL to default to 'info', got '%s'", cfg.LogLevel)
	}
	if cfg.ActivityRingSize != 20 {
		t.Errorf("Expected ACTIVITY_RING_SIZE to default to 20, got %d", cfg.ActivityRingSize)
	}
	if cfg.OutboundQueueDepth != 256 {
		t.Errorf("Expected OUTBOUND_QUEUE_DEPTH to default to 256, got %d", cfg.OutboundQueueDepth)
	}
}

func TestValidateEnv_RedisDefaultAddr(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("JWT_SECRET", "this-is-a-very-long-secret-key-for-testing-purposes")
	os.Setenv("PORT", "8080")
	os.Setenv("REDIS_ENABLED", "true")

	cfg, err := ValidateEnv()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("Expected REDIS_ADDR to default to 'localhost:6379', got '%s'", cfg.RedisAddr)
	}
}

func TestRedactSecret(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		expected string
	}{
		{"Long secret", "this-is-a-very-long-secret-key", "this-is-***"},
		{"Short secret", "short", "***"},
		{"Exactly 8 chars", "12345678", "***"},
		{"9 chars", "123456789", "12345678***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := redactSecret(tt.secret)
			if result != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, result)
			}
		})
	}
}

func TestIsValidHostPort(t *testing.T) {
	tests := []struct {
		name     string
		addr     string
		expected bool
	}{
		{"Valid localhost", "localhost:8080", true},
		{"Valid IP", "127.0.0.1:3000", true},
		{"Valid hostname", "example.com:443", true},
		{"Missing port", "localhost", false},
		{"Missing host", ":8080", false},
		{"Invalid port", "localhost:99999", false},
		{"Non-numeric port", "localhost:abc", false},
		{"Multiple colons", "localhost:8080:9090", false},
		{"Empty string", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isValidHostPort(tt.addr)
			if result != tt.expected {
				t.Errorf("isValidHostPort('%s') = %v, expected %v", tt.addr, result, tt.expected)
			}
		})
	}
}
