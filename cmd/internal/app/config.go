package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Security policy:
	// If true, TIPCAST_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and
	// refresh-token hashing must be HMAC-based.
	RequireTokenHMAC bool

	// Browser policy for the auth endpoints. Origins support a trailing
	// wildcard port ("http://127.0.0.1:*"). Empty list disables CORS handling.
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("TIPCAST_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("TIPCAST_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("TIPCAST_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("TIPCAST_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("TIPCAST_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("TIPCAST_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("TIPCAST_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("TIPCAST_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("TIPCAST_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("TIPCAST_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("TIPCAST_READINESS_REQUIRE_DB", false),

		RequireTokenHMAC: EnvBool("TIPCAST_REQUIRE_TOKEN_HMAC", false),

		CORSAllowedOrigins:   EnvStringSlice("TIPCAST_CORS_ALLOWED_ORIGINS", nil),
		CORSAllowCredentials: EnvBool("TIPCAST_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("TIPCAST_CORS_MAX_AGE_SECONDS", 600),
	}
}
