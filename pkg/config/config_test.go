package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MEXC_API_KEY", "key")
	t.Setenv("MEXC_API_SECRET", "secret")
	t.Setenv("SYMBOLS", "BTC_USDT, ETH_USDT,,")
	t.Setenv("ACCOUNT_POLL_TICKS", "8")
	t.Setenv("SUBSCRIBE_TIMEOUT", "5s")
	t.Setenv("GATEWAY_CONFIG", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "key", cfg.APIKey)
	assert.Equal(t, []string{"BTC_USDT", "ETH_USDT"}, cfg.Symbols)
	assert.Equal(t, 8, cfg.AccountPollTicks)
	assert.Equal(t, 5*time.Second, cfg.SubscribeTimeout)
	assert.Equal(t, 60*time.Second, cfg.WSReadTimeout)
	assert.Equal(t, "http://localhost:5102", cfg.ExecutorURL)
	assert.Equal(t, "https://contract.mexc.com", cfg.RestHost)
}

func TestLoadYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
symbols: [SOL_USDT]
executor_url: http://executor:5102
account_poll_ticks: 2
language: zh
`), 0o644))
	t.Setenv("SYMBOLS", "BTC_USDT")
	t.Setenv("GATEWAY_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"SOL_USDT"}, cfg.Symbols)
	assert.Equal(t, "http://executor:5102", cfg.ExecutorURL)
	assert.Equal(t, 2, cfg.AccountPollTicks)
	assert.Equal(t, "zh", cfg.Language)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GATEWAY_CONFIG", "")
	t.Setenv("LANGUAGE", "fr")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("LANGUAGE", "en")
	t.Setenv("GATEWAY_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = Load()
	assert.Error(t, err)
}
