package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Addr)
	require.Contains(t, cfg.Database.DSN, "postgres://")
	require.Equal(t, 15*time.Minute, cfg.Auth.AccessTokenTTL)
}

func TestNewConfig_Environment(t *testing.T) {
	t.Setenv("ADDR", ":9090")
	t.Setenv("DATABASE_DSN", "postgres://x:y@db:5432/envault")
	t.Setenv("AUTH_ACCESS_TOKEN_TTL", "30m")

	cfg, err := NewConfig()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Addr)
	require.Equal(t, "postgres://x:y@db:5432/envault", cfg.Database.DSN)
	require.Equal(t, 30*time.Minute, cfg.Auth.AccessTokenTTL)
}
