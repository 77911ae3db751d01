package config

import (
	"errors"
	"fmt"
	"time"

	"gopherex.com/livefeed/internal/quotes/dataseries"
	"gopherex.com/livefeed/internal/quotes/datasource/coinbase"
	"gopherex.com/livefeed/pkg/xerr"
)

// Config livefeed 服务总配置，对应 config/livefeed.yaml
type Config struct {
	Name       string           `mapstructure:"name" yaml:"name"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Coinbase   CoinbaseConfig   `mapstructure:"coinbase" yaml:"coinbase"`
	Feed       FeedConfig       `mapstructure:"feed" yaml:"feed"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher" yaml:"dispatcher"`
	HTTP       HTTPConfig       `mapstructure:"http" yaml:"http"`
	WS         WSConfig         `mapstructure:"ws" yaml:"ws"`
	Nats       NatsConfig       `mapstructure:"nats" yaml:"nats"`
	Influx     InfluxConfig     `mapstructure:"influx" yaml:"influx"`
	Redis      RedisConfig      `mapstructure:"redis" yaml:"redis"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

type CoinbaseConfig struct {
	URL          string        `mapstructure:"url" yaml:"url"`
	Product      string        `mapstructure:"product" yaml:"product"`
	Channels     []string      `mapstructure:"channels" yaml:"channels"`
	InboxSize    int           `mapstructure:"inbox_size" yaml:"inbox_size"`
	DropWhenFull bool          `mapstructure:"drop_when_full" yaml:"drop_when_full"`
	MaxDispatch  int           `mapstructure:"max_dispatch" yaml:"max_dispatch"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	PingEvery    time.Duration `mapstructure:"ping_every" yaml:"ping_every"`
	MaxBackoff   time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
}

type FeedConfig struct {
	MaxLen int `mapstructure:"max_len" yaml:"max_len"`
}

type DispatcherConfig struct {
	IdleWait time.Duration `mapstructure:"idle_wait" yaml:"idle_wait"`
}

// HTTPConfig /metrics /healthz /debug/pprof 和 /ws 共用一个端口，Addr 为空不监听
type HTTPConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// WSConfig 把 broker 上的成交转发给 websocket 客户端
type WSConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	SendBuf int  `mapstructure:"send_buf" yaml:"send_buf"`
}

type NatsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
}

type InfluxConfig struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	URL           string        `mapstructure:"url" yaml:"url"`
	Token         string        `mapstructure:"token" yaml:"token"`
	Org           string        `mapstructure:"org" yaml:"org"`
	Bucket        string        `mapstructure:"bucket" yaml:"bucket"`
	BatchSize     uint          `mapstructure:"batch_size" yaml:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval" yaml:"flush_interval"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Addr     string        `mapstructure:"addr" yaml:"addr"`
	Password string        `mapstructure:"password" yaml:"password"`
	DB       int           `mapstructure:"db" yaml:"db"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// Default 没有配置文件时也能跑：只连 Coinbase，sink 全关
func Default() Config {
	return Config{
		Name: "livefeed",
		Log:  LogConfig{Level: "info"},
		Coinbase: CoinbaseConfig{
			URL:         coinbase.DefaultURL,
			Product:     "BTC-USD",
			Channels:    append([]string(nil), coinbase.DefaultChannels...),
			InboxSize:   coinbase.DefaultInboxSize,
			MaxDispatch: coinbase.DefaultMaxDispatch,
			ReadTimeout: 30 * time.Second,
			MaxBackoff:  10 * time.Second,
		},
		Feed:       FeedConfig{MaxLen: dataseries.DefaultMaxLen},
		Dispatcher: DispatcherConfig{IdleWait: 10 * time.Millisecond},
		HTTP:       HTTPConfig{Addr: ":9100"},
		WS:         WSConfig{SendBuf: 1024},
		Nats:       NatsConfig{URL: "nats://127.0.0.1:4222"},
		Influx:     InfluxConfig{URL: "http://127.0.0.1:8086", Bucket: "marketdata", FlushInterval: time.Second},
		Redis:      RedisConfig{Addr: "127.0.0.1:6379"},
	}
}

// Validate 返回所有问题（errors.Join），错误码 RequestParamsError
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Coinbase.URL == "" {
		bad("coinbase.url is required")
	}
	if c.Coinbase.Product == "" {
		bad("coinbase.product is required")
	}
	if len(c.Coinbase.Channels) == 0 {
		bad("coinbase.channels is required")
	}
	if c.Feed.MaxLen <= 0 {
		bad("feed.max_len must be > 0, got %d", c.Feed.MaxLen)
	}
	if c.Dispatcher.IdleWait < 0 {
		bad("dispatcher.idle_wait must be >= 0")
	}
	if c.Nats.Enabled && c.Nats.URL == "" {
		bad("nats.url is required when nats is enabled")
	}
	if c.Influx.Enabled && (c.Influx.URL == "" || c.Influx.Bucket == "") {
		bad("influx.url and influx.bucket are required when influx is enabled")
	}
	if c.WS.Enabled && c.HTTP.Addr == "" {
		bad("http.addr is required when ws is enabled")
	}
	if c.WS.Enabled && c.WS.SendBuf <= 0 {
		bad("ws.send_buf must be > 0")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		bad("redis.addr is required when redis is enabled")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", xerr.New(xerr.RequestParamsError, "invalid config"), errors.Join(errs...))
}

// ClientConfig 转成 coinbase 客户端配置
func (c Config) ClientConfig() coinbase.ClientConfig {
	return coinbase.ClientConfig{
		URL:          c.Coinbase.URL,
		ProductIDs:   []string{c.Coinbase.Product},
		Channels:     c.Coinbase.Channels,
		InboxSize:    c.Coinbase.InboxSize,
		DropWhenFull: c.Coinbase.DropWhenFull,
		MaxDispatch:  c.Coinbase.MaxDispatch,
		ReadTimeout:  c.Coinbase.ReadTimeout,
		PingEvery:    c.Coinbase.PingEvery,
		MaxBackoff:   c.Coinbase.MaxBackoff,
	}
}
