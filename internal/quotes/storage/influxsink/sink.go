package influxsink

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"
	"gopherex.com/livefeed/internal/quotes/bar"
	"gopherex.com/livefeed/internal/quotes/livefeed"
	"gopherex.com/livefeed/internal/quotes/mdmetrics"
	"gopherex.com/livefeed/internal/quotes/observer"
	"gopherex.com/livefeed/pkg/logger"
)

const measurement = "trade"

type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
	Source string // tag: "coinbase"

	// 写入优化项
	BatchSize     uint          // 建议从 1000~5000 起步
	FlushInterval time.Duration // 例如 1s
	UseGzip       bool
	// QueueSize：dispatcher 回调和写协程之间的缓冲，满了丢弃并计数
	QueueSize int
}

func (cfg Config) String() string {
	return fmt.Sprintf("url=%s org=%s bucket=%s batch=%d flush=%s gzip=%v",
		cfg.URL, cfg.Org, cfg.Bucket, cfg.BatchSize, cfg.FlushInterval, cfg.UseGzip)
}

// PointWriter influx 异步写 API 里我们用到的部分
type PointWriter interface {
	WritePoint(p *write.Point)
	Flush()
}

// Sink：把逐笔 bar 写成 influx point
type Sink struct {
	source string
	w      PointWriter
	in     chan bar.Bars
	closer func()
	log    *zap.Logger
}

func New(cfg Config) *Sink {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 2000
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 1 * time.Second
	}

	opt := influxdb2.DefaultOptions().
		SetBatchSize(cfg.BatchSize).
		SetFlushInterval(uint(cfg.FlushInterval.Milliseconds())).
		SetUseGZip(cfg.UseGzip)

	c := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opt)
	w := c.WriteAPI(cfg.Org, cfg.Bucket)

	s := NewWithWriter(w, cfg)
	s.closer = c.Close

	// 必须消费 Errors()，否则异步写入错误会阻塞
	go func() {
		for err := range w.Errors() {
			mdmetrics.ObserveSink("influx", err)
			s.log.Warn("influx write error", zap.Error(err))
		}
	}()
	return s
}

// NewWithWriter 测试或自定义 writer 时使用
func NewWithWriter(w PointWriter, cfg Config) *Sink {
	if cfg.Source == "" {
		cfg.Source = "coinbase"
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 8192
	}
	return &Sink{
		source: cfg.Source,
		w:      w,
		in:     make(chan bar.Bars, cfg.QueueSize),
		closer: func() {},
		log:    logger.Named("influxsink"),
	}
}

// Attach 订阅 feed；回调只做非阻塞入队，满了丢弃
func (s *Sink) Attach(ev *observer.Event[bar.Bars]) observer.Subscription {
	return ev.Subscribe(func(bs bar.Bars) { s.Offer(bs) })
}

func (s *Sink) Offer(bs bar.Bars) bool {
	select {
	case s.in <- bs:
		return true
	default:
		mdmetrics.SinkWritesTotal.WithLabelValues("influx", "dropped").Inc()
		return false
	}
}

// Run 写协程，ctx 结束时把已入队的写完再 Flush
func (s *Sink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case bs := <-s.in:
					s.WriteBars(bs)
				default:
					s.w.Flush()
					return ctx.Err()
				}
			}
		case bs := <-s.in:
			s.WriteBars(bs)
		}
	}
}

func (s *Sink) WriteBars(bs bar.Bars) {
	for _, inst := range bs.Instruments() {
		b, _ := bs.Bar(inst)
		s.w.WritePoint(Point(s.source, inst, b))
		mdmetrics.ObserveSink("influx", nil)
	}
}

// Close 会 flush buffer
func (s *Sink) Close() { s.closer() }

// Point measurement=trade；tag 只放低基数字段
func Point(source, instrument string, b bar.Bar) *write.Point {
	tags := map[string]string{
		"instrument": instrument,
		"source":     source,
		"frequency":  b.Frequency().String(),
	}
	fields := map[string]interface{}{
		"price": b.Close(false).InexactFloat64(),
		"size":  b.Volume().InexactFloat64(),
	}
	if tb, ok := b.(*livefeed.TradeBar); ok && tb.Match() != nil {
		fields["trade_id"] = tb.Match().TradeID
		fields["side"] = string(tb.Match().Side)
	}
	return write.NewPoint(measurement, tags, fields, b.DateTime())
}
