package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
	"gopherex.com/livefeed/internal/quotes/bar"
	"gopherex.com/livefeed/internal/quotes/livefeed"
	"gopherex.com/livefeed/internal/quotes/mdmetrics"
	"gopherex.com/livefeed/internal/quotes/observer"
	"gopherex.com/livefeed/pkg/breaker"
	"gopherex.com/livefeed/pkg/logger"
)

// BarSource 能发出新 bar 事件的 feed
type BarSource interface {
	NewBarsEvent() *observer.Event[bar.Bars]
}

// TradePayload：广播出去的一笔成交（decimal 用字符串，避免 float 误差）
type TradePayload struct {
	Exchange   string    `json:"exchange"`
	Instrument string    `json:"instrument"`
	Frequency  string    `json:"frequency"`
	Time       time.Time `json:"time"`
	Price      string    `json:"price"`
	Size       string    `json:"size"`
	TradeID    int64     `json:"trade_id,omitempty"`
	Side       string    `json:"side,omitempty"`
	Sequence   int64     `json:"sequence,omitempty"`
}

// Topic trade:{exchange}:{instrument}，NATS 里会变成 trade.{exchange}.{instrument}
func Topic(exchange, instrument string) string {
	return "trade:" + exchange + ":" + instrument
}

// Publisher：把 feed 的每组 bars 编码后发到 broker
//
// 回调跑在 dispatcher 协程里，broker 故障时按 topic 熔断快速失败，不拖慢 dispatch loop
type Publisher struct {
	broker   Broker
	exchange string
	timeout  time.Duration
	cbs      *breaker.Manager
	log      *zap.Logger
}

type PublisherConfig struct {
	Exchange string
	Timeout  time.Duration

	// 熔断：连续失败 TripConsecutiveFailures 次打开，Open 持续 OpenTimeout
	TripConsecutiveFailures uint32
	OpenTimeout             time.Duration
}

func NewPublisher(broker Broker, cfg PublisherConfig) *Publisher {
	if cfg.Exchange == "" {
		cfg.Exchange = "coinbase"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	if cfg.TripConsecutiveFailures == 0 {
		cfg.TripConsecutiveFailures = 10
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 3 * time.Second
	}

	return &Publisher{
		broker:   broker,
		exchange: cfg.Exchange,
		timeout:  cfg.Timeout,
		cbs: breaker.NewManager("bar-publisher", breaker.Rule{
			MaxRequests:             1,
			Timeout:                 cfg.OpenTimeout,
			TripConsecutiveFailures: cfg.TripConsecutiveFailures,
		}, nil),
		log: logger.Named("gateway"),
	}
}

// Attach 订阅 feed 的新 bar 事件
func (p *Publisher) Attach(src BarSource) observer.Subscription {
	return src.NewBarsEvent().Subscribe(func(bs bar.Bars) {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		if err := p.Publish(ctx, bs); err != nil {
			p.log.Debug("publish bars failed", zap.Error(err))
		}
	})
}

// Publish 每个标的一条消息
func (p *Publisher) Publish(ctx context.Context, bs bar.Bars) error {
	var errs []error
	for _, inst := range bs.Instruments() {
		b, _ := bs.Bar(inst)
		payload, err := json.Marshal(EncodeTrade(p.exchange, inst, b))
		if err != nil {
			errs = append(errs, err)
			continue
		}

		topic := Topic(p.exchange, inst)
		err = p.cbs.Execute(topic, func() error {
			return p.broker.Publish(ctx, topic, payload)
		})
		if breaker.IsRejected(err) {
			mdmetrics.SinkWritesTotal.WithLabelValues("broker", "rejected").Inc()
		} else {
			mdmetrics.ObserveSink("broker", err)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EncodeTrade 逐笔 bar 带上原始成交的 trade_id/side/sequence
func EncodeTrade(exchange, instrument string, b bar.Bar) TradePayload {
	out := TradePayload{
		Exchange:   exchange,
		Instrument: instrument,
		Frequency:  b.Frequency().String(),
		Time:       b.DateTime().UTC(),
		Price:      b.Close(false).String(),
		Size:       b.Volume().String(),
	}
	if tb, ok := b.(*livefeed.TradeBar); ok && tb.Match() != nil {
		m := tb.Match()
		out.TradeID = m.TradeID
		out.Side = string(m.Side)
		out.Sequence = m.Seq()
	}
	return out
}

// Forward：订阅 broker 上的 topics，把消息交给 fn，直到 ctx 结束
func Forward(ctx context.Context, broker Broker, topics []string, fn func(Message)) error {
	ch, err := broker.Subscribe(ctx, topics)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			fn(m)
		}
	}
}
