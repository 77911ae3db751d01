package livefeed

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gopherex.com/livefeed/internal/quotes/bar"
	"gopherex.com/livefeed/internal/quotes/barfeed"
	"gopherex.com/livefeed/internal/quotes/datasource/coinbase"
	"gopherex.com/livefeed/internal/quotes/dispatcher"
	"gopherex.com/livefeed/internal/quotes/mdmetrics"
	"gopherex.com/livefeed/internal/quotes/observer"
	"gopherex.com/livefeed/pkg/logger"
	"gopherex.com/livefeed/pkg/xerr"
)

// DefaultInstrument 只支持一个交易对
const DefaultInstrument = "BTC-USD"

// Client feed 依赖的交易所客户端：能订阅 order 事件，且本身是 dispatcher 的 subject
type Client interface {
	dispatcher.Subject
	OrderEvents() *observer.Event[coinbase.OrderEvent]
}

type Option func(*LiveTradeFeed)

// WithInstrument 覆盖注册的标的
func WithInstrument(instrument string) Option {
	return func(f *LiveTradeFeed) { f.instrument = instrument }
}

// WithClock 替换墙钟，测试用
func WithClock(now func() time.Time) Option {
	return func(f *LiveTradeFeed) { f.now = now }
}

// LiveTradeFeed：把交易所推过来的成交（push）转成 dispatch loop 按需拉取的 bar（pull）
//
// onOrderEvent 和 GetNextBars 可能在不同协程，队列用互斥锁保护；两边都不阻塞
type LiveTradeFeed struct {
	*barfeed.Base

	client     Client
	instrument string
	now        func() time.Time

	mu    sync.Mutex
	queue []*TradeBar

	stopped atomic.Bool
	log     *zap.Logger
}

// New maxLen 只用于下游 bar 序列的长度，必须 > 0
func New(client Client, maxLen int, opts ...Option) (*LiveTradeFeed, error) {
	if client == nil {
		return nil, xerr.New(xerr.RequestParamsError, "nil exchange client")
	}
	base, err := barfeed.NewBase(bar.FrequencyTrade, maxLen)
	if err != nil {
		return nil, err
	}

	f := &LiveTradeFeed{
		Base:       base,
		client:     client,
		instrument: DefaultInstrument,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.log = logger.Named("livefeed").With(zap.String("instrument", f.instrument))

	f.RegisterInstrument(f.instrument)
	client.OrderEvents().Subscribe(f.onOrderEvent)
	return f, nil
}

func (f *LiveTradeFeed) Instrument() string { return f.instrument }

// onOrderEvent 只关心成交，其它事件直接忽略
func (f *LiveTradeFeed) onOrderEvent(ev coinbase.OrderEvent) {
	m, ok := ev.(*coinbase.Match)
	if !ok {
		mdmetrics.EventsIgnoredTotal.WithLabelValues(string(ev.Kind())).Inc()
		return
	}

	f.mu.Lock()
	f.queue = append(f.queue, NewTradeBar(m))
	depth := len(f.queue)
	f.mu.Unlock()

	mdmetrics.TradesQueuedTotal.WithLabelValues(f.instrument).Inc()
	mdmetrics.QueueDepth.WithLabelValues(f.instrument).Set(float64(depth))
}

// GetNextBars 弹出最早的一笔；队列为空返回 ok=false（实时源的常态，不是错误）
func (f *LiveTradeFeed) GetNextBars() (bar.Bars, bool) {
	f.mu.Lock()
	if len(f.queue) == 0 {
		f.mu.Unlock()
		return bar.Bars{}, false
	}
	tb := f.queue[0]
	f.queue[0] = nil
	f.queue = f.queue[1:]
	depth := len(f.queue)
	f.mu.Unlock()

	mdmetrics.QueueDepth.WithLabelValues(f.instrument).Set(float64(depth))
	return bar.Single(f.instrument, tb), true
}

// Pending 还没被取走的成交数
func (f *LiveTradeFeed) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// Dispatch 取一组 bars 写入序列并发出 NewBarsEvent
func (f *LiveTradeFeed) Dispatch() bool {
	bars, ok := f.GetNextBars()
	if !ok {
		return false
	}
	if err := f.Apply(bars); err != nil {
		// 只注册了一个标的，这里不应该发生
		f.log.Error("apply bars failed", zap.Error(err))
		return false
	}
	mdmetrics.BarsDispatchedTotal.WithLabelValues(f.instrument).Inc()
	return true
}

// PeekDateTime 实时源，不能提前和其它 feed 按时间归并
func (f *LiveTradeFeed) PeekDateTime() (time.Time, bool) { return time.Time{}, false }

func (f *LiveTradeFeed) CurrentDateTime() time.Time { return f.now() }

func (f *LiveTradeFeed) BarsHaveAdjClose() bool { return false }

// OnDispatcherRegistered 把 client 一起注册，client 的 Dispatch 才会被同一个 loop 驱动
func (f *LiveTradeFeed) OnDispatcherRegistered(r dispatcher.Registry) {
	r.AddSubject(f.client)
}

// Start 订阅在构造时已经生效
func (f *LiveTradeFeed) Start() {}

// Stop 幂等，不会失败；不清空队列
func (f *LiveTradeFeed) Stop() {
	if !f.stopped.Swap(true) {
		f.log.Info("live trade feed stopped", zap.Int("pending", f.Pending()))
	}
}

// Join 没有自己的协程
func (f *LiveTradeFeed) Join() {}

// Eof 只看 stop 标记；Stop 之后队列里剩下的 bar 仍然可以 GetNextBars 取出
func (f *LiveTradeFeed) Eof() bool { return f.stopped.Load() }

var (
	_ dispatcher.Subject    = (*LiveTradeFeed)(nil)
	_ dispatcher.Registrant = (*LiveTradeFeed)(nil)
)
