/**
 * @description
 * This package handles configuration management for the client core and the
 * local development backend. It uses Viper to read settings from environment
 * variables (optionally seeded from a .env file), applies defaults and
 * validates the values each binary cannot run without.
 *
 * @dependencies
 * - github.com/spf13/viper: configuration loading and environment binding.
 */
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ClientConfig holds the settings for the client-side session core.
type ClientConfig struct {
	APIBaseURL              string `mapstructure:"API_BASE_URL"`
	StoreBackend            string `mapstructure:"STORE_BACKEND"`
	StoreDir                string `mapstructure:"STORE_DIR"`
	StoreDeviceSecret       string `mapstructure:"STORE_DEVICE_SECRET"`
	DeviceID                string `mapstructure:"DEVICE_ID"`
	HTTPTimeoutSeconds      int    `mapstructure:"HTTP_TIMEOUT_SECONDS"`
	BootstrapRefreshSeconds int    `mapstructure:"BOOTSTRAP_REFRESH_TIMEOUT_SECONDS"`
	CoalesceRefresh         bool   `mapstructure:"COALESCE_REFRESH"`
	BiometricMaxAttempts    int    `mapstructure:"BIOMETRIC_MAX_ATTEMPTS"`
	BiometricLockoutMinutes int    `mapstructure:"BIOMETRIC_LOCKOUT_MINUTES"`
	ContentCacheTTLHours    int    `mapstructure:"CONTENT_CACHE_TTL_HOURS"`
	ContentCachePrefix      string `mapstructure:"CONTENT_CACHE_PREFIX"`
	RedisURL                string `mapstructure:"REDIS_URL"`
}

// HTTPTimeout returns the default socket timeout for backend calls.
func (c ClientConfig) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// BootstrapRefreshTimeout bounds the direct refresh exchange at startup.
func (c ClientConfig) BootstrapRefreshTimeout() time.Duration {
	return time.Duration(c.BootstrapRefreshSeconds) * time.Second
}

// LockoutWindow is how long a biometric lockout stays active.
func (c ClientConfig) LockoutWindow() time.Duration {
	return time.Duration(c.BiometricLockoutMinutes) * time.Minute
}

// ContentCacheTTL is how long cached content responses stay fresh.
func (c ClientConfig) ContentCacheTTL() time.Duration {
	return time.Duration(c.ContentCacheTTLHours) * time.Hour
}

// LoadClientConfig reads the client configuration from environment variables.
func LoadClientConfig() (*ClientConfig, error) {
	viper.SetDefault("STORE_BACKEND", "file")
	viper.SetDefault("STORE_DIR", ".surgicalm")
	viper.SetDefault("HTTP_TIMEOUT_SECONDS", 30)
	viper.SetDefault("BOOTSTRAP_REFRESH_TIMEOUT_SECONDS", 10)
	viper.SetDefault("COALESCE_REFRESH", true)
	viper.SetDefault("BIOMETRIC_MAX_ATTEMPTS", 3)
	viper.SetDefault("BIOMETRIC_LOCKOUT_MINUTES", 5)
	viper.SetDefault("CONTENT_CACHE_TTL_HOURS", 12)
	viper.SetDefault("CONTENT_CACHE_PREFIX", "assorted_")
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	for _, key := range []string{
		"API_BASE_URL",
		"STORE_BACKEND",
		"STORE_DIR",
		"STORE_DEVICE_SECRET",
		"DEVICE_ID",
		"HTTP_TIMEOUT_SECONDS",
		"BOOTSTRAP_REFRESH_TIMEOUT_SECONDS",
		"COALESCE_REFRESH",
		"BIOMETRIC_MAX_ATTEMPTS",
		"BIOMETRIC_LOCKOUT_MINUTES",
		"CONTENT_CACHE_TTL_HOURS",
		"CONTENT_CACHE_PREFIX",
		"REDIS_URL",
	} {
		_ = viper.BindEnv(key)
	}

	var cfg ClientConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("API_BASE_URL must be configured")
	}

	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	switch cfg.StoreBackend {
	case "memory":
	case "file":
		if strings.TrimSpace(cfg.StoreDeviceSecret) == "" {
			return nil, fmt.Errorf("STORE_DEVICE_SECRET must be configured for the file store")
		}
	default:
		return nil, fmt.Errorf("unsupported STORE_BACKEND %q", cfg.StoreBackend)
	}

	if cfg.BiometricMaxAttempts < 1 {
		return nil, fmt.Errorf("BIOMETRIC_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.BootstrapRefreshSeconds < 1 {
		cfg.BootstrapRefreshSeconds = 10
	}
	if cfg.HTTPTimeoutSeconds < 1 {
		cfg.HTTPTimeoutSeconds = 30
	}

	return &cfg, nil
}

// BackendConfig holds the settings for the development backend.
type BackendConfig struct {
	ServerPort                string `mapstructure:"SERVER_PORT"`
	DatabaseURL               string `mapstructure:"DATABASE_URL"`
	RedisURL                  string `mapstructure:"REDIS_URL"`
	RabbitMQURL               string `mapstructure:"RABBITMQ_URL"`
	JWTSigningKey             string `mapstructure:"JWT_SIGNING_KEY"`
	JWTIssuer                 string `mapstructure:"JWT_ISSUER"`
	AccessTokenTTLMinutes     int    `mapstructure:"ACCESS_TOKEN_TTL_MINUTES"`
	RefreshTokenTTLHours      int    `mapstructure:"REFRESH_TOKEN_TTL_HOURS"`
	RotateRefreshTokens       bool   `mapstructure:"ROTATE_REFRESH_TOKENS"`
	RevocationPruneSchedule   string `mapstructure:"REVOCATION_PRUNE_SCHEDULE"`
	PasswordResetLimitPerHour int    `mapstructure:"PASSWORD_RESET_LIMIT_PER_HOUR"`
	CORSAllowedOrigins        string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	SeedAccounts              string `mapstructure:"SEED_ACCOUNTS"`
}

// AccessTokenTTL is the lifetime of issued access tokens.
func (c BackendConfig) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

// RefreshTokenTTL is the lifetime of issued refresh tokens.
func (c BackendConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTLHours) * time.Hour
}

// AllowedOrigins splits the comma separated CORS origin list.
func (c BackendConfig) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// LoadBackendConfig reads the development backend configuration.
func LoadBackendConfig() (*BackendConfig, error) {
	viper.SetDefault("SERVER_PORT", "8000")
	viper.SetDefault("JWT_ISSUER", "surgicalm-devbackend")
	viper.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 5)
	viper.SetDefault("REFRESH_TOKEN_TTL_HOURS", 24*7)
	viper.SetDefault("ROTATE_REFRESH_TOKENS", true)
	viper.SetDefault("REVOCATION_PRUNE_SCHEDULE", "@every 1h")
	viper.SetDefault("PASSWORD_RESET_LIMIT_PER_HOUR", 5)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	viper.AutomaticEnv()

	for _, key := range []string{
		"SERVER_PORT",
		"PORT",
		"DATABASE_URL",
		"REDIS_URL",
		"RABBITMQ_URL",
		"JWT_SIGNING_KEY",
		"JWT_ISSUER",
		"ACCESS_TOKEN_TTL_MINUTES",
		"REFRESH_TOKEN_TTL_HOURS",
		"ROTATE_REFRESH_TOKENS",
		"REVOCATION_PRUNE_SCHEDULE",
		"PASSWORD_RESET_LIMIT_PER_HOUR",
		"CORS_ALLOWED_ORIGINS",
		"SEED_ACCOUNTS",
	} {
		_ = viper.BindEnv(key)
	}

	var cfg BackendConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// A platform-provided PORT takes precedence
	if port := strings.TrimSpace(viper.GetString("PORT")); port != "" {
		cfg.ServerPort = port
	}

	if len(strings.TrimSpace(cfg.JWTSigningKey)) < 32 {
		return nil, fmt.Errorf("JWT_SIGNING_KEY must be at least 32 characters")
	}
	if cfg.AccessTokenTTLMinutes < 1 {
		return nil, fmt.Errorf("ACCESS_TOKEN_TTL_MINUTES must be positive")
	}
	if cfg.RefreshTokenTTLHours < 1 {
		return nil, fmt.Errorf("REFRESH_TOKEN_TTL_HOURS must be positive")
	}

	return &cfg, nil
}
