package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	setEnvs(t, map[string]string{"ENVIRONMENT": "development"})

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 15*time.Minute, cfg.JWTAccessExpiry)
	assert.Equal(t, 7*24*time.Hour, cfg.JWTRefreshExpiry)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.GoogleEnabled())
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_Development_AcceptsDefaultSecret(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT": "development",
		"JWT_SECRET":  defaultJWTSecret,
	})

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, defaultJWTSecret, cfg.JWTSecret)
}

func TestLoad_Production_RejectsDefaultSecret(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT": "production",
		"JWT_SECRET":  defaultJWTSecret,
	})

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET must be explicitly set")
}

func TestLoad_Production_RejectsShortSecret(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT": "production",
		"JWT_SECRET":  "short-but-not-default-secret",
	})

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 characters")
}

func TestLoad_Production_AcceptsStrongSecret(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT":   "production",
		"JWT_SECRET":    "this-is-a-very-secure-secret-key-for-production-use-1234",
		"KAFKA_BROKERS": "kafka-1:9092,kafka-2:9092",
	})

	cfg, err := Load()

	require.NoError(t, err)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
}

func TestLoad_Durations(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT":              "development",
		"JWT_ACCESS_TOKEN_EXPIRY":  "5m",
		"JWT_REFRESH_TOKEN_EXPIRY": "720h",
	})

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.JWTAccessExpiry)
	assert.Equal(t, 30*24*time.Hour, cfg.JWTRefreshExpiry)
}

func TestLoad_InvalidDuration(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT":             "development",
		"JWT_ACCESS_TOKEN_EXPIRY": "fifteen minutes",
	})

	cfg, err := Load()

	assert.Nil(t, cfg)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Environment:      "development",
			HTTPPort:         8080,
			JWTSecret:        defaultJWTSecret,
			JWTAccessExpiry:  15 * time.Minute,
			JWTRefreshExpiry: time.Hour,
			OTELSampleRate:   1,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "port zero", mutate: func(c *Config) { c.HTTPPort = 0 }, wantErr: "invalid HTTP port"},
		{name: "port too large", mutate: func(c *Config) { c.HTTPPort = 70000 }, wantErr: "invalid HTTP port"},
		{name: "zero access expiry", mutate: func(c *Config) { c.JWTAccessExpiry = 0 }, wantErr: "must be positive"},
		{
			name:    "access outlives refresh",
			mutate:  func(c *Config) { c.JWTAccessExpiry = 2 * time.Hour },
			wantErr: "must be shorter than",
		},
		{name: "sample rate", mutate: func(c *Config) { c.OTELSampleRate = 1.5 }, wantErr: "OTEL_SAMPLE_RATE"},
		{
			name:    "google secret without id",
			mutate:  func(c *Config) { c.GoogleClientSecret = "secret" },
			wantErr: "GOOGLE_CLIENT_ID is empty",
		},
		{
			name:   "google enabled",
			mutate: func(c *Config) { c.GoogleClientID = "client.apps.googleusercontent.com" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPostgres(t *testing.T) {
	cfg := Config{
		PostgresHost: "db",
		PostgresPort: 5433,
		PostgresUser: "u",
		PostgresPass: "p",
		PostgresDB:   "kb",
		PostgresSSL:  "require",
		DBMaxConns:   10,
		DBMinConns:   1,
	}

	pg := cfg.Postgres()

	assert.Equal(t, "db", pg.Host)
	assert.Equal(t, 5433, pg.Port)
	assert.Equal(t, "kb", pg.DBName)
	assert.Equal(t, int32(10), pg.MaxConns)
}
