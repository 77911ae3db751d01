package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Coinbase struct {
		URL      string   `mapstructure:"url" yaml:"url"`
		Product  string   `mapstructure:"product" yaml:"product"`
		Channels []string `mapstructure:"channels" yaml:"channels"`
	} `mapstructure:"coinbase" yaml:"coinbase"`
	Feed struct {
		MaxLen   int           `mapstructure:"max_len" yaml:"max_len"`
		IdleWait time.Duration `mapstructure:"idle_wait" yaml:"idle_wait"`
	} `mapstructure:"feed" yaml:"feed"`
}

func defaultSample() sample {
	var s sample
	s.Coinbase.URL = "wss://default"
	s.Coinbase.Product = "BTC-USD"
	s.Coinbase.Channels = []string{"full", "heartbeat"}
	s.Feed.MaxLen = 1024
	s.Feed.IdleWait = 10 * time.Millisecond
	return s
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	yaml := "coinbase:\n  url: wss://ws-feed.example\n  product: BTC-USD\nfeed:\n  max_len: 100\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "livefeedtest.yaml"), []byte(yaml), 0o644))

	t.Setenv("LIVEFEEDTEST_COINBASE_PRODUCT", "ETH-USD")

	v := New("livefeedtest", dir)
	var out sample
	require.NoError(t, Load(v, &out))

	assert.Equal(t, "wss://ws-feed.example", out.Coinbase.URL)
	assert.Equal(t, "ETH-USD", out.Coinbase.Product)
	assert.Equal(t, 100, out.Feed.MaxLen)
}

func TestLoad_MissingFile(t *testing.T) {
	v := New("does-not-exist", t.TempDir())
	var out sample
	assert.Error(t, Load(v, &out))
}

func TestLoadWithDefaults_NoFileUsesDefaultsAndEnv(t *testing.T) {
	t.Setenv("LIVEFEEDTEST_COINBASE_PRODUCT", "ETH-USD")
	t.Setenv("LIVEFEEDTEST_FEED_MAX_LEN", "7")

	out := defaultSample()
	found, err := LoadWithDefaults(New("livefeedtest", t.TempDir()), &out)
	require.NoError(t, err)
	assert.False(t, found)

	assert.Equal(t, "ETH-USD", out.Coinbase.Product)
	assert.Equal(t, 7, out.Feed.MaxLen)
	// 没被覆盖的保持默认值
	assert.Equal(t, "wss://default", out.Coinbase.URL)
	assert.Equal(t, []string{"full", "heartbeat"}, out.Coinbase.Channels)
	assert.Equal(t, 10*time.Millisecond, out.Feed.IdleWait)
}

func TestLoadWithDefaults_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "livefeedtest.yaml"), []byte("feed:\n  max_len: 50\n"), 0o644))

	out := defaultSample()
	found, err := LoadWithDefaults(New("livefeedtest", dir), &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 50, out.Feed.MaxLen)
	assert.Equal(t, "BTC-USD", out.Coinbase.Product)
}

func TestLoadWithDefaults_BrokenFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "livefeedtest.yaml"), []byte("feed: [\n"), 0o644))

	out := defaultSample()
	_, err := LoadWithDefaults(New("livefeedtest", dir), &out)
	assert.Error(t, err)
}
