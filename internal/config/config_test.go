package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "chatwire-gateway", cfg.Gateway.Name)
	assert.Equal(t, ":8090", cfg.Gateway.WSAddr)
	assert.Equal(t, 256, cfg.Gateway.SendQueueSize)
	assert.Equal(t, "localhost", cfg.Broker.Host)
	assert.Equal(t, 6379, cfg.Broker.Port)
	assert.Equal(t, 2112, cfg.Metrics.Port)
	assert.Equal(t, 5*time.Second, cfg.Broker.PublishTimeout)
	assert.True(t, cfg.Auth.AllowAnonymous)
	assert.True(t, cfg.Gateway.Throttling.RateLimit.Enabled)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("GATEWAY_BROKER_PORT", "6380")
	t.Setenv("GATEWAY_GATEWAY_WS_ADDR", ":9000")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, 6380, cfg.Broker.Port)
	assert.Equal(t, ":9000", cfg.Gateway.WSAddr)
}

func TestLoadConfigFileOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
GATEWAY:
  NAME: "edge-gateway-1"
BROKER:
  HOST: "redis.internal"
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "edge-gateway-1", cfg.Gateway.Name)
	assert.Equal(t, "redis.internal", cfg.Broker.Host)
	// Untouched keys keep their defaults
	assert.Equal(t, 6379, cfg.Broker.Port)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad ws addr", "GATEWAY_GATEWAY_WS_ADDR", "not-an-addr"},
		{"queue size not a power of two", "GATEWAY_GATEWAY_SEND_QUEUE_SIZE", "100"},
		{"bad log level", "GATEWAY_LOGGING_LEVEL", "verbose"},
		{"metrics port collides with broker", "GATEWAY_METRICS_PORT", "6379"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load("", nil)
			assert.Error(t, err)
		})
	}
}

func TestSecretRequiredWithoutAnonymous(t *testing.T) {
	t.Setenv("GATEWAY_AUTH_ALLOW_ANONYMOUS", "false")

	_, err := Load("", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")

	t.Setenv("GATEWAY_AUTH_JWT_SECRET", "a-long-enough-secret")
	_, err = Load("", nil)
	assert.NoError(t, err)
}

func TestUnknownKeysRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("TYPO_SECTION:\n  FOO: 1\n"), 0o600))

	_, err := Load(path, nil)
	assert.Error(t, err)
}
