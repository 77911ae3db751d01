package lastcache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gopherex.com/livefeed/internal/quotes/bar"
	"gopherex.com/livefeed/internal/quotes/livefeed"
	"gopherex.com/livefeed/internal/quotes/mdmetrics"
	"gopherex.com/livefeed/internal/quotes/observer"
	"gopherex.com/livefeed/pkg/logger"
)

// Cache：每个标的最新一笔成交，redis hash，key = {prefix}:{instrument}
type Cache struct {
	rdb     redis.Cmdable
	prefix  string
	ttl     time.Duration
	timeout time.Duration
	log     *zap.Logger
}

type Config struct {
	Prefix  string        // 默认 "livefeed:last"
	TTL     time.Duration // 0 表示不过期
	Timeout time.Duration
}

func New(rdb redis.Cmdable, cfg Config) *Cache {
	if cfg.Prefix == "" {
		cfg.Prefix = "livefeed:last"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 200 * time.Millisecond
	}
	return &Cache{rdb: rdb, prefix: cfg.Prefix, ttl: cfg.TTL, timeout: cfg.Timeout, log: logger.Named("lastcache")}
}

func (c *Cache) Key(instrument string) string { return c.prefix + ":" + instrument }

// Attach 订阅 feed 的新 bar 事件
func (c *Cache) Attach(ev *observer.Event[bar.Bars]) observer.Subscription {
	return ev.Subscribe(func(bs bar.Bars) {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		if err := c.Store(ctx, bs); err != nil {
			c.log.Debug("store last trade failed", zap.Error(err))
		}
	})
}

// Store 一次 pipeline 写完所有标的
func (c *Cache) Store(ctx context.Context, bs bar.Bars) error {
	_, err := c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, inst := range bs.Instruments() {
			b, _ := bs.Bar(inst)
			key := c.Key(inst)
			p.HSet(ctx, key, Fields(b))
			if c.ttl > 0 {
				p.Expire(ctx, key, c.ttl)
			}
		}
		return nil
	})
	mdmetrics.ObserveSink("redis", err)
	return err
}

// Last 读回最新一笔，不存在返回 ok=false
func (c *Cache) Last(ctx context.Context, instrument string) (map[string]string, bool, error) {
	m, err := c.rdb.HGetAll(ctx, c.Key(instrument)).Result()
	if err != nil {
		return nil, false, err
	}
	return m, len(m) > 0, nil
}

// Fields hash 字段；decimal 存字符串
func Fields(b bar.Bar) map[string]interface{} {
	out := map[string]interface{}{
		"price":     b.Close(false).String(),
		"size":      b.Volume().String(),
		"time":      b.DateTime().UTC().Format(time.RFC3339Nano),
		"frequency": b.Frequency().String(),
	}
	if tb, ok := b.(*livefeed.TradeBar); ok && tb.Match() != nil {
		out["trade_id"] = tb.Match().TradeID
		out["side"] = string(tb.Match().Side)
	}
	return out
}
