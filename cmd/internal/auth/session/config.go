package session

import (
	"os"
	"strconv"
	"time"
)

// Config defines all runtime configuration for the session subsystem.
//
// It controls access-token TTL, refresh-token TTL, clock skew tolerance,
// refresh entropy size, the Ed25519 signing key, and sweep retention.
//
// This struct is intentionally explicit and environment-driven so that
// production deployments can tune security parameters without code changes.
type Config struct {
	// Issuer is the value set in the "iss" claim of access tokens.
	Issuer string

	// AccessTokenTTL defines the lifetime of signed access tokens.
	AccessTokenTTL time.Duration

	// RefreshTokenTTL defines the validity window of refresh records.
	RefreshTokenTTL time.Duration

	// ClockSkew defines the allowed time skew during token validation.
	ClockSkew time.Duration

	// RefreshTokenBytes defines the number of random bytes used
	// to generate opaque refresh secrets.
	RefreshTokenBytes int

	// SigningKeyHex is the hex-encoded Ed25519 seed (32 bytes) used to sign
	// access tokens.
	SigningKeyHex string

	// SweepInterval and SweepRetention control the background janitor that
	// deletes records that are both revoked and long past expiry.
	SweepInterval  time.Duration
	SweepRetention time.Duration
}

// DefaultConfig returns a secure default configuration suitable for development.
//
// Production environments should override values via environment variables.
func DefaultConfig() Config {
	return Config{
		Issuer:            "tipcast",
		AccessTokenTTL:    15 * time.Minute,
		RefreshTokenTTL:   7 * 24 * time.Hour,
		ClockSkew:         30 * time.Second,
		RefreshTokenBytes: 32,
		SweepInterval:     1 * time.Hour,
		SweepRetention:    30 * 24 * time.Hour,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - TIPCAST_AUTH_SIGNING_KEY_HEX
//
// Optional (durations must be valid Go duration strings):
//   - TIPCAST_AUTH_ISSUER
//   - TIPCAST_AUTH_ACCESS_TTL
//   - TIPCAST_AUTH_REFRESH_TTL
//   - TIPCAST_AUTH_CLOCK_SKEW
//   - TIPCAST_AUTH_REFRESH_TOKEN_BYTES
//   - TIPCAST_AUTH_SWEEP_INTERVAL
//   - TIPCAST_AUTH_SWEEP_RETENTION
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("TIPCAST_AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("TIPCAST_AUTH_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTokenTTL = d
	}

	if v := os.Getenv("TIPCAST_AUTH_REFRESH_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTokenTTL = d
	}

	if v := os.Getenv("TIPCAST_AUTH_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	if v := os.Getenv("TIPCAST_AUTH_REFRESH_TOKEN_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 32 || n > 64 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTokenBytes = n
	}

	if v := os.Getenv("TIPCAST_AUTH_SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.SweepInterval = d
	}

	if v := os.Getenv("TIPCAST_AUTH_SWEEP_RETENTION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.SweepRetention = d
	}

	cfg.SigningKeyHex = os.Getenv("TIPCAST_AUTH_SIGNING_KEY_HEX")
	if cfg.SigningKeyHex == "" {
		return Config{}, ErrConfig
	}

	// Invariants: access tokens must be strictly shorter-lived than refresh records.
	if cfg.AccessTokenTTL >= cfg.RefreshTokenTTL {
		return Config{}, ErrConfig
	}

	return cfg, nil
}
