package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DB_DRIVER", "sqlite")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8787", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 256, cfg.WSSendBuffer)
	assert.Equal(t, 30, cfg.MessageRateLimit)
	assert.Equal(t, time.Minute, cfg.MessageRateWindow)
	assert.False(t, cfg.RedisEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("WS_SEND_BUFFER", "8")
	t.Setenv("MESSAGE_RATE_WINDOW", "30s")
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("OTEL_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.WSSendBuffer)
	assert.Equal(t, 30*time.Second, cfg.MessageRateWindow)
	assert.True(t, cfg.RedisEnabled())
	assert.True(t, cfg.OTelEnabled)
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate_RejectsUnknownDriver(t *testing.T) {
	cfg := &Config{JWTSecret: "x", DBDriver: "mysql", WSSendBuffer: 1}
	assert.ErrorContains(t, cfg.Validate(), "DB_DRIVER")
}

func TestPostgresDSN(t *testing.T) {
	cfg := &Config{DBHost: "db", DBPort: "5432", DBUser: "u", DBPassword: "p", DBName: "n", DBSSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", cfg.PostgresDSN())

	cfg.DatabaseURL = "postgres://elsewhere"
	assert.Equal(t, "postgres://elsewhere", cfg.PostgresDSN())
}
