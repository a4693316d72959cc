// Package config provides configuration management for the application
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Default timings for the occupancy workflow. The grace period and the
// upcoming window are deliberate policy values inherited from the kiosk
// deployment; override them through the environment when a site needs
// different behavior.
const (
	DefaultPollInterval   = 5 * time.Second
	DefaultCheckInGrace   = 5 * time.Minute
	DefaultUpcomingWindow = 15 * time.Minute
	DefaultSessionTimeout = 2 * time.Minute
)

// KioskConfig holds the occupancy controller configuration
type KioskConfig struct {
	// BackendURL is the base URL of the booking backend REST API
	BackendURL string
	// Port the local HTTP surface listens on
	Port string
	// PollInterval is the cadence of the active-meeting poll
	PollInterval time.Duration
	// CheckInGrace is how long after the start time a meeting may remain
	// unattended before its reservation counts as abandoned
	CheckInGrace time.Duration
	// UpcomingWindow controls how far ahead of the start time the display
	// announces an upcoming meeting
	UpcomingWindow time.Duration
	// SessionTimeout is the wall-clock lifetime of a signed-in session
	SessionTimeout time.Duration
	// SignOutOnDenial forces a full kiosk sign-out when a privileged
	// action is denied. Off by default; a denial alone should not evict
	// the signed-in operator.
	SignOutOnDenial bool
}

// IdentityConfig holds the identity-provider configuration
type IdentityConfig struct {
	ClientID      string
	ClientSecret  string
	TokenURL      string
	DeviceAuthURL string
	UserInfoURL   string
	Scopes        []string
}

// RedisConfig holds Redis/Valkey configuration for the kiosk state store
type RedisConfig struct {
	Enabled bool
	// URI is prioritized if provided, otherwise individual connection parameters are used
	URI       string
	Host      string
	Port      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
	// TTL for persisted kiosk state (0 means no expiration)
	StateTTL time.Duration
}

// GetKioskConfig loads the controller configuration from environment variables
func GetKioskConfig() KioskConfig {
	return KioskConfig{
		BackendURL:      getEnv("KIOSK_BACKEND_URL", "http://localhost:8000"),
		Port:            getEnv("PORT", "8080"),
		PollInterval:    getEnvDuration("KIOSK_POLL_INTERVAL", DefaultPollInterval),
		CheckInGrace:    getEnvDuration("KIOSK_CHECKIN_GRACE", DefaultCheckInGrace),
		UpcomingWindow:  getEnvDuration("KIOSK_UPCOMING_WINDOW", DefaultUpcomingWindow),
		SessionTimeout:  getEnvDuration("KIOSK_SESSION_TIMEOUT", DefaultSessionTimeout),
		SignOutOnDenial: getEnvBool("KIOSK_SIGNOUT_ON_DENIAL", false),
	}
}

// GetIdentityConfig loads identity-provider configuration from environment variables
func GetIdentityConfig() IdentityConfig {
	scopes := strings.Fields(getEnv("IDENTITY_SCOPES", "User.Read Calendars.ReadWrite"))
	return IdentityConfig{
		ClientID:      getEnv("IDENTITY_CLIENT_ID", ""),
		ClientSecret:  getEnv("IDENTITY_CLIENT_SECRET", ""),
		TokenURL:      getEnv("IDENTITY_TOKEN_URL", ""),
		DeviceAuthURL: getEnv("IDENTITY_DEVICE_AUTH_URL", ""),
		UserInfoURL:   getEnv("IDENTITY_USERINFO_URL", ""),
		Scopes:        scopes,
	}
}

// GetRedisConfig loads Redis/Valkey configuration from environment variables
func GetRedisConfig() RedisConfig {
	// Parse TTL from environment variable (in hours)
	ttlHours, _ := strconv.Atoi(getEnv("REDIS_STATE_TTL_HOURS", "24"))
	ttl := time.Duration(ttlHours) * time.Hour

	// Parse DB index
	db, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	return RedisConfig{
		Enabled:   getEnvBool("REDIS_ENABLED", false),
		URI:       getEnv("REDIS_URI_ROOMKIOSK", ""),
		Host:      getEnv("REDIS_HOST_ROOMKIOSK", getEnv("REDIS_ADDRESS", "localhost")),
		Port:      getEnv("REDIS_PORT_ROOMKIOSK", "6379"),
		Username:  getEnv("REDIS_USERNAME_ROOMKIOSK", ""),
		Password:  getEnv("REDIS_PASSWORD_ROOMKIOSK", getEnv("REDIS_PASSWORD", "")),
		DB:        db,
		KeyPrefix: getEnv("REDIS_KEY_PREFIX", "roomkiosk:"),
		StateTTL:  ttl,
	}
}

// IsValid checks if all required identity configuration is present
func (c IdentityConfig) IsValid() bool {
	return c.ClientID != "" && c.TokenURL != "" && c.DeviceAuthURL != ""
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvBool retrieves a boolean environment variable
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

// getEnvDuration retrieves a duration environment variable ("5s", "2m", ...)
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
