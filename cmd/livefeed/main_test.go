package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopherex.com/livefeed/pkg/xerr"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, found, err := loadConfig(t.TempDir())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "BTC-USD", cfg.Coinbase.Product)
}

func TestLoadConfig_EnvOverridesWithoutFile(t *testing.T) {
	t.Setenv("LIVEFEED_COINBASE_PRODUCT", "ETH-USD")
	t.Setenv("LIVEFEED_FEED_MAX_LEN", "7")

	cfg, found, err := loadConfig(t.TempDir())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "ETH-USD", cfg.Coinbase.Product)
	assert.Equal(t, 7, cfg.Feed.MaxLen)
	assert.Equal(t, "wss://ws-feed.exchange.coinbase.com", cfg.Coinbase.URL)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "livefeed.yaml"), []byte("feed:\n  max_len: 0\n"), 0o644))

	_, found, err := loadConfig(dir)
	assert.True(t, found)
	require.Error(t, err)
	assert.Equal(t, xerr.RequestParamsError, xerr.CodeOf(err))
}

func TestLoadConfig_RepoConfig(t *testing.T) {
	cfg, found, err := loadConfig("../../config")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "livefeed", cfg.Name)
}

func TestMux(t *testing.T) {
	srv := httptest.NewServer(newMux())
	defer srv.Close()

	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
