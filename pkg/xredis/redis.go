package xredis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gopherex.com/livefeed/pkg/metrics"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewRedis 建连并 Ping 一次，连不上直接返回错误，由调用方决定要不要退出
func NewRedis(ctx context.Context, c *Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     16, // 只有 lastcache 在用，不需要大池子
		MinIdleConns: 2,
	})
	rdb.AddHook(metrics.RedisHook{})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", c.Addr, err)
	}
	return rdb, nil
}
