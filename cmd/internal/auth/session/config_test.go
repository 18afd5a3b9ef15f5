package session

import (
	"errors"
	"testing"
	"time"
)

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("TIPCAST_AUTH_SIGNING_KEY_HEX", testSeedHex)

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.Issuer != "tipcast" {
		t.Fatalf("issuer = %q", cfg.Issuer)
	}
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("access ttl = %v", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != 7*24*time.Hour {
		t.Fatalf("refresh ttl = %v", cfg.RefreshTokenTTL)
	}
	if cfg.RefreshTokenBytes != 32 {
		t.Fatalf("refresh bytes = %d", cfg.RefreshTokenBytes)
	}
}

func TestLoadConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("TIPCAST_AUTH_SIGNING_KEY_HEX", testSeedHex)
	t.Setenv("TIPCAST_AUTH_ISSUER", "tipcast-staging")
	t.Setenv("TIPCAST_AUTH_ACCESS_TTL", "5m")
	t.Setenv("TIPCAST_AUTH_REFRESH_TTL", "48h")
	t.Setenv("TIPCAST_AUTH_REFRESH_TOKEN_BYTES", "48")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.Issuer != "tipcast-staging" {
		t.Fatalf("issuer = %q", cfg.Issuer)
	}
	if cfg.AccessTokenTTL != 5*time.Minute || cfg.RefreshTokenTTL != 48*time.Hour {
		t.Fatalf("ttls = %v / %v", cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	}
	if cfg.RefreshTokenBytes != 48 {
		t.Fatalf("refresh bytes = %d", cfg.RefreshTokenBytes)
	}
}

func TestLoadConfigFromEnvRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"missing signing key", map[string]string{}},
		{"bad duration", map[string]string{
			"TIPCAST_AUTH_SIGNING_KEY_HEX": testSeedHex,
			"TIPCAST_AUTH_ACCESS_TTL":      "soon",
		}},
		{"negative ttl", map[string]string{
			"TIPCAST_AUTH_SIGNING_KEY_HEX": testSeedHex,
			"TIPCAST_AUTH_REFRESH_TTL":     "-1h",
		}},
		{"entropy too small", map[string]string{
			"TIPCAST_AUTH_SIGNING_KEY_HEX":    testSeedHex,
			"TIPCAST_AUTH_REFRESH_TOKEN_BYTES": "8",
		}},
		{"access outlives refresh", map[string]string{
			"TIPCAST_AUTH_SIGNING_KEY_HEX": testSeedHex,
			"TIPCAST_AUTH_ACCESS_TTL":      "48h",
			"TIPCAST_AUTH_REFRESH_TTL":     "24h",
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("TIPCAST_AUTH_SIGNING_KEY_HEX", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := LoadConfigFromEnv(); !errors.Is(err, ErrConfig) {
				t.Fatalf("err = %v, want ErrConfig", err)
			}
		})
	}
}
