package livefeed

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopherex.com/livefeed/internal/quotes/datasource/coinbase"
	"gopherex.com/livefeed/internal/quotes/observer"
)

// fakeClient：没有网络，测试直接 Publish 事件
type fakeClient struct {
	events *observer.Event[coinbase.OrderEvent]

	started, stopped, joined, dispatched int
}

func newFakeClient() *fakeClient {
	return &fakeClient{events: observer.New[coinbase.OrderEvent]()}
}

func (c *fakeClient) OrderEvents() *observer.Event[coinbase.OrderEvent] { return c.events }
func (c *fakeClient) Publish(ev coinbase.OrderEvent)                    { c.events.Emit(ev) }

func (c *fakeClient) Start()                          { c.started++ }
func (c *fakeClient) Stop()                           { c.stopped++ }
func (c *fakeClient) Join()                           { c.joined++ }
func (c *fakeClient) Eof() bool                       { return c.stopped > 0 }
func (c *fakeClient) Dispatch() bool                  { c.dispatched++; return false }
func (c *fakeClient) PeekDateTime() (time.Time, bool) { return time.Time{}, false }

var seq int64

func header(kind coinbase.Kind, ts time.Time) coinbase.OrderHeader {
	seq++
	return coinbase.OrderHeader{Type: string(kind), ProductID: "BTC-USD", Sequence: seq, Time: ts}
}

func matchEvent(ts time.Time, price, size string) *coinbase.Match {
	return &coinbase.Match{
		OrderHeader:  header(coinbase.KindMatch, ts),
		TradeID:      seq,
		MakerOrderID: uuid.New(),
		TakerOrderID: uuid.New(),
		Price:        decimal.RequireFromString(price),
		Size:         decimal.RequireFromString(size),
		Side:         coinbase.SideBuy,
	}
}

// nonMatchEvents 每种非成交事件各一条
func nonMatchEvents(ts time.Time) []coinbase.OrderEvent {
	return []coinbase.OrderEvent{
		&coinbase.Received{OrderHeader: header(coinbase.KindReceived, ts), OrderID: uuid.New(), Size: decimal.NewFromInt(1), Price: decimal.NewFromInt(100)},
		&coinbase.Open{OrderHeader: header(coinbase.KindOpen, ts), OrderID: uuid.New(), Price: decimal.NewFromInt(100)},
		&coinbase.Done{OrderHeader: header(coinbase.KindDone, ts), OrderID: uuid.New(), Reason: "canceled"},
		&coinbase.Change{OrderHeader: header(coinbase.KindChange, ts), OrderID: uuid.New()},
		&coinbase.Activate{OrderHeader: header(coinbase.KindActivate, ts), OrderID: uuid.New()},
	}
}
