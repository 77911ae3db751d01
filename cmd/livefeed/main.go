package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	qconfig "gopherex.com/livefeed/internal/quotes/config"
	"gopherex.com/livefeed/internal/quotes/datasource/coinbase"
	"gopherex.com/livefeed/internal/quotes/dispatcher"
	"gopherex.com/livefeed/internal/quotes/gateway"
	"gopherex.com/livefeed/internal/quotes/livefeed"
	"gopherex.com/livefeed/internal/quotes/storage/influxsink"
	"gopherex.com/livefeed/internal/quotes/storage/lastcache"
	"gopherex.com/livefeed/internal/quotes/ws"
	pkgconfig "gopherex.com/livefeed/pkg/config"
	"gopherex.com/livefeed/pkg/logger"
	"gopherex.com/livefeed/pkg/xredis"
)

const service = "livefeed"

var configDir = flag.String("c", "./config", "directory containing livefeed.yaml")

func main() {
	flag.Parse()

	cfg, found, err := loadConfig(*configDir)
	if err != nil {
		// logger 还没初始化
		_, _ = os.Stderr.WriteString("load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.InitWithFile(cfg.Name, cfg.Log.Level, cfg.Log.File)
	defer logger.Sync()

	if found {
		watchConfig(*configDir)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error(ctx, "livefeed exited with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Info(ctx, "livefeed stopped")
}

// loadConfig 没有配置文件时用默认值 + 环境变量
func loadConfig(dir string) (qconfig.Config, bool, error) {
	cfg := qconfig.Default()
	found, err := pkgconfig.LoadWithDefaults(pkgconfig.New(service, dir), &cfg)
	if err != nil {
		return cfg, found, err
	}
	return cfg, found, cfg.Validate()
}

// watchConfig 运行中的组件不支持热替换，改了配置只提示重启
func watchConfig(dir string) {
	watched := qconfig.Default()
	_, err := pkgconfig.LoadAndWatch(service, &watched, func() {
		logger.L().Warn("config changed, restart livefeed to apply")
	}, dir)
	if err != nil {
		logger.L().Warn("config watch disabled", zap.Error(err))
	}
}

func run(ctx context.Context, cfg qconfig.Config) error {
	log := logger.Named("main")

	ccfg := cfg.ClientConfig()
	// 重连风暴保护：最多每秒 1 次 dial
	ccfg.DialLimiter = rate.NewLimiter(rate.Every(time.Second), 1)
	client := coinbase.NewClient(ccfg)

	feed, err := livefeed.New(client, cfg.Feed.MaxLen, livefeed.WithInstrument(cfg.Coinbase.Product))
	if err != nil {
		return err
	}

	disp := dispatcher.New()
	disp.IdleWait = cfg.Dispatcher.IdleWait
	disp.AddSubject(feed)

	// dispatcher 自己结束（所有 subject eof）时也要让其它协程退出
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	// sinks：都挂在 feed 的 NewBarsEvent 上，跑在 dispatcher 协程
	var broker gateway.Broker
	if cfg.Nats.Enabled {
		nb, err := gateway.NewNatsBroker(cfg.Nats.URL)
		if err != nil {
			return err
		}
		broker = nb
	} else {
		broker = gateway.NewMemBroker()
	}
	defer broker.Close()
	gateway.NewPublisher(broker, gateway.PublisherConfig{Exchange: "coinbase"}).Attach(feed)

	if cfg.Influx.Enabled {
		sink := influxsink.New(influxsink.Config{
			URL:           cfg.Influx.URL,
			Token:         cfg.Influx.Token,
			Org:           cfg.Influx.Org,
			Bucket:        cfg.Influx.Bucket,
			Source:        "coinbase",
			BatchSize:     cfg.Influx.BatchSize,
			FlushInterval: cfg.Influx.FlushInterval,
		})
		defer sink.Close()
		sink.Attach(feed.NewBarsEvent())
		g.Go(func() error {
			if err := sink.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if cfg.Redis.Enabled {
		rdb, err := xredis.NewRedis(ctx, &xredis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
		lastcache.New(rdb, lastcache.Config{TTL: cfg.Redis.TTL}).Attach(feed.NewBarsEvent())
	}

	mux := newMux()
	if cfg.WS.Enabled {
		hub := ws.NewHub()
		wss := ws.NewServer(gctx, hub)
		wss.SendBuf = cfg.WS.SendBuf
		mux.HandleFunc("/ws", wss.ServeWS)

		topics := []string{gateway.Topic("coinbase", feed.Instrument())}
		g.Go(func() error {
			err := gateway.Forward(gctx, broker, topics, func(m gateway.Message) { ws.Bridge(hub, m) })
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if cfg.HTTP.Addr != "" {
		srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			log.Info("http listening", zap.String("addr", cfg.HTTP.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		log.Info("dispatcher running",
			zap.String("instrument", feed.Instrument()),
			zap.String("url", ccfg.URL))
		err := disp.Run(gctx)
		cancel()
		// dispatcher 退出后 feed 不会再被 poll
		if n := feed.Pending(); n > 0 {
			log.Warn("undelivered trades dropped on shutdown", zap.Int("pending", n))
		}
		return err
	})

	return g.Wait()
}

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}
