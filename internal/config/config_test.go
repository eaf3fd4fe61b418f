package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firefly/internal/retry"
)

const (
	testServiceKey = "5f668a7ee96d944a4494cc947e4005e172d7ab3461ee5538f1f2a45a835e9657"
	testWallet     = "1111eJsudjqHwU55i6erfDNUmAoXtcoEmZtMXSxXUK3tmzMFhRHXL"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "http://localhost:40401", cfg.DeployServiceURL)
	assert.Equal(t, "http://localhost:40402", cfg.ProposeServiceURL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8080, cfg.APIPort)
	assert.Empty(t, cfg.TrackedWallets)
	assert.Equal(t, 60*time.Second, cfg.DeployWait)
	assert.Equal(t, retry.DefaultConfig(), cfg.Retry)
	assert.Equal(t, "ws://localhost:40403", cfg.EventsURL())
	require.NoError(t, cfg.Validate())

	_, err := cfg.SigningKey()
	assert.ErrorIs(t, err, ErrNoServiceKey)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FIREFLY_DEPLOY_SERVICE_URL", "http://validator:40401")
	t.Setenv("FIREFLY_OBSERVER_WS_API_URL", "ws://observer:40403")
	t.Setenv("FIREFLY_SERVICE_KEY", "0x"+testServiceKey)
	t.Setenv("FIREFLY_LOG_LEVEL", "DEBUG")
	t.Setenv("FIREFLY_TRACKED_WALLETS", " "+testWallet+" ,, ")
	t.Setenv("FIREFLY_DEPLOY_WAIT_SEC", "5")
	t.Setenv("FIREFLY_RETRY_MAX_DELAY_SEC", "8")

	cfg := Load()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://validator:40401", cfg.DeployServiceURL)
	assert.Equal(t, "ws://observer:40403", cfg.EventsURL())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{testWallet}, cfg.TrackedWallets)
	assert.Equal(t, 5*time.Second, cfg.DeployWait)
	assert.Equal(t, 8*time.Second, cfg.Retry.MaxDelay)

	key, err := cfg.SigningKey()
	require.NoError(t, err)
	assert.NotNil(t, key)

	wallets, err := cfg.Wallets()
	require.NoError(t, err)
	require.Len(t, wallets, 1)
	assert.Equal(t, testWallet, wallets[0].String())
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("FIREFLY_API_PORT=9191\nFIREFLY_OBSERVER_URL=http://observer:40453\n"), 0o600))

	t.Setenv("FIREFLY_API_PORT", "")
	os.Unsetenv("FIREFLY_API_PORT")
	t.Setenv("FIREFLY_OBSERVER_URL", "")
	os.Unsetenv("FIREFLY_OBSERVER_URL")

	require.NoError(t, godotenv.Load(path))

	cfg := Load()
	assert.Equal(t, 9191, cfg.APIPort)
	assert.Equal(t, "http://observer:40453", cfg.ObserverURL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing deploy url", func(c *Config) { c.DeployServiceURL = "" }},
		{"bad observer url", func(c *Config) { c.ObserverURL = "observer" }},
		{"short key", func(c *Config) { c.ServiceKey = "abcd" }},
		{"non hex key", func(c *Config) { c.ServiceKey = "zz" + testServiceKey[2:] }},
		{"unknown log level", func(c *Config) { c.LogLevel = "trace" }},
		{"port out of range", func(c *Config) { c.APIPort = 70000 }},
		{"zero wait", func(c *Config) { c.DeployWait = 0 }},
		{"bad wallet", func(c *Config) { c.TrackedWallets = []string{"1111notawallet"} }},
		{"inverted delays", func(c *Config) { c.Retry.InitialDelay = time.Minute; c.Retry.MaxDelay = time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
