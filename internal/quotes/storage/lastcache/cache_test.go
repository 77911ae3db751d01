package lastcache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopherex.com/livefeed/internal/quotes/bar"
	"gopherex.com/livefeed/internal/quotes/datasource/coinbase"
	"gopherex.com/livefeed/internal/quotes/livefeed"
)

func tradeBar(ts time.Time) bar.Bar {
	return livefeed.NewTradeBar(&coinbase.Match{
		OrderHeader: coinbase.OrderHeader{Type: "match", ProductID: "BTC-USD", Sequence: 3, Time: ts},
		TradeID:     11,
		Price:       decimal.RequireFromString("100.50"),
		Size:        decimal.RequireFromString("2"),
		Side:        coinbase.SideSell,
	})
}

func TestFields(t *testing.T) {
	ts := time.Date(2024, 1, 2, 10, 0, 0, 123000000, time.UTC)
	f := Fields(tradeBar(ts))

	assert.Equal(t, "100.5", f["price"])
	assert.Equal(t, "2", f["size"])
	assert.Equal(t, "2024-01-02T10:00:00.123Z", f["time"])
	assert.Equal(t, "trade", f["frequency"])
	assert.Equal(t, int64(11), f["trade_id"])
	assert.Equal(t, "sell", f["side"])
}

func TestCache_Key(t *testing.T) {
	c := New(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), Config{})
	assert.Equal(t, "livefeed:last:BTC-USD", c.Key("BTC-USD"))

	c = New(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), Config{Prefix: "md"})
	assert.Equal(t, "md:ETH-USD", c.Key("ETH-USD"))
}

func TestCache_StoreUnreachable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()
	c := New(rdb, Config{TTL: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := c.Store(ctx, bar.Single("BTC-USD", tradeBar(time.Now())))
	require.Error(t, err)
}
