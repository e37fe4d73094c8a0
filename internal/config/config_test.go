package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Chat.DefaultPageSize)
	assert.Equal(t, 100, cfg.Chat.MaxPageSize)
	assert.Equal(t, 1000, cfg.Chat.MaxMessageLength)
	assert.Equal(t, 2*time.Second, cfg.Delivery.PollInterval)
	assert.Equal(t, DeliveryStrategyPush, cfg.Delivery.Strategy)
	assert.Equal(t, int64(10<<20), cfg.Storage.MaxUploadBytes)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("DELIVERY_STRATEGY", "POLL")
	t.Setenv("DELIVERY_POLL_INTERVAL", "500ms")
	t.Setenv("SERVER_ALLOWED_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DeliveryStrategyPoll, cfg.Delivery.Strategy)
	assert.Equal(t, 500*time.Millisecond, cfg.Delivery.PollInterval)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.AllowedOrigins)
}

func TestLoad_RejectsUnknownStrategy(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("DELIVERY_STRATEGY", "carrier-pigeon")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsInconsistentBackoff(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("DELIVERY_BACKOFF_INITIAL", "1m")
	t.Setenv("DELIVERY_BACKOFF_MAX", "1s")

	_, err := Load()
	assert.Error(t, err)
}
