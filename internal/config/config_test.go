package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppliesDefaults(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "stdio", cfg.Control.Mode)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.NotEmpty(t, cfg.RouterID)
	assert.Equal(t, 20*time.Millisecond, cfg.NackMinAge())
	assert.Equal(t, 2*time.Second, cfg.NackMaxAge())
	assert.Equal(t, 2*time.Second, cfg.PliCoalesceWindow())
}

func TestNewHonoursRouterIDAndMediaOverrides(t *testing.T) {
	t.Setenv("SFU_ROUTER_ID", "room-fixed")
	t.Setenv("SFU_NACK_MIN_AGE_MS", "5")
	t.Setenv("SFU_NACK_MAX_AGE_MS", "500")
	t.Setenv("SFU_PLI_COALESCE_WINDOW_MS", "250")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "room-fixed", cfg.RouterID)
	assert.Equal(t, 5*time.Millisecond, cfg.NackMinAge())
	assert.Equal(t, 500*time.Millisecond, cfg.NackMaxAge())
	assert.Equal(t, 250*time.Millisecond, cfg.PliCoalesceWindow())
}
