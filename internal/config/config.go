/**
 * @description
 * Configuration loader for the Veristat Backend.
 * Responsible for reading environment variables, setting defaults, and performing validation.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files
 * - standard "os": For reading env vars
 *
 * @notes
 * - Venue endpoints default to the public production cluster.
 * - Redis is optional: when REDIS_URL is empty the badge ledger and metadata
 *   cache fall back to the in-memory backend.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	Venue    VenueConfig
	Activity ActivityConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port string
	Env  string // "development" or "production"
}

// RedisConfig holds Redis settings
type RedisConfig struct {
	URL string
}

// VenueConfig holds the trading venue API endpoints
type VenueConfig struct {
	RestURL      string
	StreamURL    string
	MetaCacheTTL time.Duration
}

// ActivityConfig tunes the per-user activity aggregation loop
type ActivityConfig struct {
	RefreshInterval time.Duration
	FetchTimeout    time.Duration
}

// Load reads .env file and populates the Config struct
func Load() (*Config, error) {
	// Attempt to load .env, but don't crash if it fails (prod might inject env vars directly)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("GO_ENV", "development"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Venue: VenueConfig{
			RestURL:      strings.TrimSuffix(getEnv("VENUE_REST_URL", "https://api.veristat.exchange"), "/"),
			StreamURL:    getEnv("VENUE_STREAM_URL", "wss://api.veristat.exchange/ws"),
			MetaCacheTTL: getEnvAsDuration("VENUE_META_CACHE_TTL", 10*time.Minute),
		},
		Activity: ActivityConfig{
			RefreshInterval: getEnvAsDuration("ACTIVITY_REFRESH_INTERVAL", 30*time.Second),
			FetchTimeout:    getEnvAsDuration("ACTIVITY_FETCH_TIMEOUT", 10*time.Second),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks for required variables
func validate(cfg *Config) error {
	if cfg.Venue.RestURL == "" {
		return fmt.Errorf("VENUE_REST_URL is required")
	}
	if cfg.Venue.StreamURL == "" {
		return fmt.Errorf("VENUE_STREAM_URL is required")
	}
	if cfg.Activity.RefreshInterval <= 0 {
		return fmt.Errorf("ACTIVITY_REFRESH_INTERVAL must be positive")
	}
	return nil
}

// Helper to get env var with default
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// Helper to get env var as a duration (seconds when given a bare integer)
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	return fallback
}
