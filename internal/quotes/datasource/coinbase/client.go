package coinbase

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gopherex.com/livefeed/internal/quotes/dispatcher"
	"gopherex.com/livefeed/internal/quotes/mdmetrics"
	"gopherex.com/livefeed/internal/quotes/observer"
	"gopherex.com/livefeed/pkg/logger"
	"gopherex.com/livefeed/pkg/safe"
)

const (
	DefaultURL         = "wss://ws-feed.exchange.coinbase.com"
	DefaultInboxSize   = 8192
	DefaultMaxDispatch = 256
)

var DefaultChannels = []string{"full", "heartbeat"}

// ClientConfig 零值字段用默认值
type ClientConfig struct {
	URL        string
	ProductIDs []string
	Channels   []string

	InboxSize int
	// DropWhenFull：inbox 满时丢弃（计数），否则阻塞读协程形成背压
	DropWhenFull bool
	// MaxDispatch：一次 Dispatch 最多处理的消息数，避免饿死其它 subject
	MaxDispatch int

	ReadLimit   int64
	DialTimeout time.Duration
	ReadTimeout time.Duration // 有 heartbeat channel 时可以设短一点
	PingEvery   time.Duration // 0 表示不 ping
	StableReset time.Duration // 连接存活多久才重置 backoff
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// DialLimiter 限制拨号频率，防止重连风暴；nil 用默认值
	DialLimiter *rate.Limiter
}

func (c *ClientConfig) withDefaults() {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if len(c.Channels) == 0 {
		c.Channels = DefaultChannels
	}
	if c.InboxSize <= 0 {
		c.InboxSize = DefaultInboxSize
	}
	if c.MaxDispatch <= 0 {
		c.MaxDispatch = DefaultMaxDispatch
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 1 << 20
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.StableReset <= 0 {
		c.StableReset = 10 * time.Second
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 200 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Second
	}
	if c.DialLimiter == nil {
		c.DialLimiter = rate.NewLimiter(rate.Every(time.Second), 3)
	}
}

// Client：Coinbase websocket feed 客户端，同时是一个 dispatcher.Subject
//
// 读协程只负责解码并写入 inbox；事件在 Dispatch（dispatcher 协程）里发出，
// 所以订阅者的回调和 dispatch loop 在同一个协程
type Client struct {
	cfg ClientConfig

	orderEvents *observer.Event[OrderEvent]
	heartbeats  *observer.Event[*Heartbeat]

	inbox chan Message

	startOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	stopped   atomic.Bool
	connected atomic.Bool

	// 只在 Dispatch 协程访问
	lastSeq map[string]int64

	log *zap.Logger
}

func NewClient(cfg ClientConfig) *Client {
	cfg.withDefaults()
	return &Client{
		cfg:         cfg,
		orderEvents: observer.New[OrderEvent](),
		heartbeats:  observer.New[*Heartbeat](),
		inbox:       make(chan Message, cfg.InboxSize),
		lastSeq:     make(map[string]int64, len(cfg.ProductIDs)),
		log:         logger.Named("coinbase").With(zap.Strings("products", cfg.ProductIDs)),
	}
}

func (c *Client) Config() ClientConfig { return c.cfg }

// OrderEvents received/open/done/match/change/activate
func (c *Client) OrderEvents() *observer.Event[OrderEvent] { return c.orderEvents }

func (c *Client) HeartbeatEvents() *observer.Event[*Heartbeat] { return c.heartbeats }

func (c *Client) Connected() bool { return c.connected.Load() }

// Pending inbox 里还没派发的消息数
func (c *Client) Pending() int { return len(c.inbox) }

// Start 启动读协程；重复调用或 Stop 之后调用是 no-op
func (c *Client) Start() {
	c.startOnce.Do(func() {
		if c.stopped.Load() {
			return
		}
		ctx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		c.wg.Add(1)
		safe.GoCtx(ctx, func(ctx context.Context) {
			defer c.wg.Done()
			c.run(ctx)
		})
	})
}

// Stop 幂等，不会失败
func (c *Client) Stop() {
	if c.stopped.Swap(true) {
		return
	}
	// 没 Start 过时消耗掉 startOnce
	c.startOnce.Do(func() {})
	if c.cancel != nil {
		c.cancel()
	}
	c.log.Info("coinbase client stopped")
}

// Join 等读协程退出
func (c *Client) Join() { c.wg.Wait() }

func (c *Client) Eof() bool { return c.stopped.Load() }

// PeekDateTime 实时源，时间未知
func (c *Client) PeekDateTime() (time.Time, bool) { return time.Time{}, false }

// Dispatch 非阻塞地取出最多 MaxDispatch 条消息并发出事件
func (c *Client) Dispatch() bool {
	n := 0
	for n < c.cfg.MaxDispatch {
		select {
		case m := <-c.inbox:
			c.handle(m)
			n++
		default:
			return n > 0
		}
	}
	return n > 0
}

func (c *Client) handle(m Message) {
	switch m := m.(type) {
	case OrderEvent:
		if !c.checkSeq(m) {
			return
		}
		mdmetrics.OrderEventsTotal.WithLabelValues(string(m.Kind())).Inc()
		c.orderEvents.Emit(m)
	case *Heartbeat:
		c.heartbeats.Emit(m)
	case *Subscriptions:
		c.log.Info("subscribed", zap.Any("channels", m.Channels))
	case *ErrorMessage:
		c.log.Warn("feed error", zap.String("message", m.Message), zap.String("reason", m.Reason))
	}
}

// checkSeq 丢弃重复/过期的事件（seq <= last），跳号只记录
func (c *Client) checkSeq(ev OrderEvent) bool {
	seq := ev.Seq()
	if seq == 0 {
		// activate 等消息没有 sequence
		return true
	}
	last, ok := c.lastSeq[ev.Product()]
	if ok && seq <= last {
		c.log.Debug("stale order event", zap.Int64("seq", seq), zap.Int64("last", last))
		return false
	}
	if ok && seq > last+1 {
		mdmetrics.SequenceGapsTotal.Inc()
		c.log.Warn("sequence gap", zap.String("product", ev.Product()), zap.Int64("last", last), zap.Int64("seq", seq))
	}
	c.lastSeq[ev.Product()] = seq
	return true
}

// run：拨号 + 重连循环，直到 ctx 结束
func (c *Client) run(ctx context.Context) {
	backoff := c.cfg.BaseBackoff
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for ctx.Err() == nil {
		if err := c.cfg.DialLimiter.Wait(ctx); err != nil {
			return
		}
		mdmetrics.ReconnectsTotal.Inc()

		// Dial timeout：避免网络黑洞卡死
		dctx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
		conn, _, err := websocket.Dial(dctx, c.cfg.URL, nil)
		cancel()
		if err != nil {
			sleep := jitter(rng, backoff)
			c.log.Warn("dial failed", zap.Error(err), zap.Duration("retry_in", sleep))
			if !sleepCtx(ctx, sleep) {
				return
			}
			backoff = min(backoff*2, c.cfg.MaxBackoff)
			continue
		}

		c.log.Info("connected", zap.String("url", c.cfg.URL))
		c.connected.Store(true)
		start := time.Now()

		err = c.serveConn(ctx, conn)

		c.connected.Store(false)
		_ = conn.CloseNow()

		// 连接稳定才重置 backoff，避免“连上马上断”的重连风暴
		if time.Since(start) >= c.cfg.StableReset {
			backoff = c.cfg.BaseBackoff
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			c.log.Warn("connection ended", zap.Error(err), zap.Int("close_status", int(websocket.CloseStatus(err))))
		}
	}
}

func (c *Client) serveConn(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadLimit(c.cfg.ReadLimit)

	sub, err := SubscribeMessage(c.cfg.ProductIDs, c.cfg.Channels)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	err = conn.Write(wctx, websocket.MessageText, sub)
	cancel()
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.readLoop(ctx, conn)
	}()

	var pingC <-chan time.Time
	if c.cfg.PingEvery > 0 {
		t := time.NewTicker(c.cfg.PingEvery)
		defer t.Stop()
		pingC = t.C
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "bye")
			<-errCh
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-pingC:
			pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		rctx, cancel := context.WithTimeout(ctx, c.cfg.ReadTimeout)
		_, raw, err := conn.Read(rctx)
		cancel()
		if err != nil {
			return err
		}

		m, err := Decode(raw)
		if err != nil {
			// 未知类型直接忽略；其它解析失败计数
			if !errors.Is(err, ErrUnknownMessage) {
				mdmetrics.DecodeErrorsTotal.Inc()
				c.log.Debug("decode failed", zap.Error(err), zap.ByteString("raw", raw))
			}
			continue
		}
		mdmetrics.MessagesInTotal.WithLabelValues(m.MessageType()).Inc()

		if c.cfg.DropWhenFull {
			select {
			case c.inbox <- m:
			default:
				mdmetrics.InboxDroppedTotal.Inc()
			}
			continue
		}
		select {
		case c.inbox <- m:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func jitter(rng *rand.Rand, d time.Duration) time.Duration {
	f := 0.5 + rng.Float64() // 0.5x~1.5x
	return time.Duration(float64(d) * f)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

var _ dispatcher.Subject = (*Client)(nil)
