package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pkgconfig "gopherex.com/livefeed/pkg/config"
	"gopherex.com/livefeed/pkg/xerr"
)

func TestDefault_IsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())

	cc := c.ClientConfig()
	assert.Equal(t, []string{"BTC-USD"}, cc.ProductIDs)
	assert.Equal(t, c.Coinbase.URL, cc.URL)
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	c := Default()
	c.Coinbase.Product = ""
	c.Feed.MaxLen = 0
	c.Nats.Enabled = true
	c.Nats.URL = ""
	c.WS.Enabled = true
	c.HTTP.Addr = ""

	err := c.Validate()
	require.Error(t, err)
	assert.Equal(t, xerr.RequestParamsError, xerr.CodeOf(err))
	assert.Contains(t, err.Error(), "coinbase.product")
	assert.Contains(t, err.Error(), "feed.max_len")
	assert.Contains(t, err.Error(), "nats.url")
	assert.Contains(t, err.Error(), "http.addr")
}

func TestLoad_FromYAML(t *testing.T) {
	dir := t.TempDir()
	yaml := `
coinbase:
  product: ETH-USD
  channels: [matches, heartbeat]
  read_timeout: 5s
feed:
  max_len: 100
dispatcher:
  idle_wait: 2ms
influx:
  enabled: true
  bucket: ticks
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "livefeed.yaml"), []byte(yaml), 0o644))

	c := Default()
	require.NoError(t, pkgconfig.Load(pkgconfig.New("livefeed", dir), &c))
	require.NoError(t, c.Validate())

	assert.Equal(t, "ETH-USD", c.Coinbase.Product)
	assert.Equal(t, []string{"matches", "heartbeat"}, c.Coinbase.Channels)
	assert.Equal(t, 5*time.Second, c.Coinbase.ReadTimeout)
	assert.Equal(t, 100, c.Feed.MaxLen)
	assert.Equal(t, 2*time.Millisecond, c.Dispatcher.IdleWait)
	assert.True(t, c.Influx.Enabled)
	assert.Equal(t, "ticks", c.Influx.Bucket)
	// 文件里没写的保留默认值
	assert.Equal(t, "http://127.0.0.1:8086", c.Influx.URL)
}
