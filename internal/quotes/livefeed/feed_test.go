package livefeed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopherex.com/livefeed/internal/quotes/bar"
	"gopherex.com/livefeed/internal/quotes/dispatcher"
	"gopherex.com/livefeed/pkg/xerr"
)

func newFeed(t *testing.T, maxLen int, opts ...Option) (*LiveTradeFeed, *fakeClient) {
	t.Helper()
	c := newFakeClient()
	f, err := New(c, maxLen, opts...)
	require.NoError(t, err)
	return f, c
}

func tradeOf(t *testing.T, bs bar.Bars, instrument string) *TradeBar {
	t.Helper()
	b, ok := bs.Bar(instrument)
	require.True(t, ok)
	tb, ok := b.(*TradeBar)
	require.True(t, ok)
	return tb
}

func TestNew_InvalidArgs(t *testing.T) {
	for _, maxLen := range []int{0, -1} {
		_, err := New(newFakeClient(), maxLen)
		require.Error(t, err)
		assert.Equal(t, xerr.RequestParamsError, xerr.CodeOf(err))
	}

	_, err := New(nil, 100)
	assert.Equal(t, xerr.RequestParamsError, xerr.CodeOf(err))
}

func TestNew_RegistersSingleInstrument(t *testing.T) {
	f, c := newFeed(t, 100)

	assert.Equal(t, []string{DefaultInstrument}, f.Instruments())
	assert.Equal(t, 1, c.events.Len(), "构造时订阅 order 事件")
	assert.Equal(t, bar.FrequencyTrade, f.Frequency())
	assert.Equal(t, 100, f.MaxLen())
	assert.Equal(t, 0, f.Pending())
	assert.False(t, f.Eof())

	g, _ := newFeed(t, 10, WithInstrument("ETH-USD"))
	assert.Equal(t, []string{"ETH-USD"}, g.Instruments())
	assert.Equal(t, "ETH-USD", g.Instrument())
}

func TestFeed_SingleTradeScenario(t *testing.T) {
	f, c := newFeed(t, 100)
	ts := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	c.Publish(matchEvent(ts, "100.5", "2"))

	bs, ok := f.GetNextBars()
	require.True(t, ok)
	assert.Equal(t, 1, bs.Len())
	assert.Equal(t, []string{DefaultInstrument}, bs.Instruments())

	tb := tradeOf(t, bs, DefaultInstrument)
	px := decimal.RequireFromString("100.5")
	for _, v := range []decimal.Decimal{tb.Open(false), tb.High(false), tb.Low(false), tb.Close(false)} {
		assert.True(t, v.Equal(px))
	}
	assert.True(t, tb.Volume().Equal(decimal.NewFromInt(2)))
	assert.True(t, tb.DateTime().Equal(ts))
	assert.True(t, bs.DateTime().Equal(ts))

	_, ok = f.GetNextBars()
	assert.False(t, ok, "第二次取应当没有数据")
}

func TestFeed_TwoTradesFIFO(t *testing.T) {
	f, c := newFeed(t, 100)
	ts := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	c.Publish(matchEvent(ts, "100", "1"))
	c.Publish(matchEvent(ts.Add(time.Second), "101", "3"))
	assert.Equal(t, 2, f.Pending())

	first, ok := f.GetNextBars()
	require.True(t, ok)
	second, ok := f.GetNextBars()
	require.True(t, ok)

	a, b := tradeOf(t, first, DefaultInstrument), tradeOf(t, second, DefaultInstrument)
	assert.True(t, a.Price().Equal(decimal.NewFromInt(100)))
	assert.True(t, a.Volume().Equal(decimal.NewFromInt(1)))
	assert.True(t, b.Price().Equal(decimal.NewFromInt(101)))
	assert.True(t, b.Volume().Equal(decimal.NewFromInt(3)))
}

func TestFeed_IgnoresNonMatchEvents(t *testing.T) {
	f, c := newFeed(t, 100)
	for _, ev := range nonMatchEvents(time.Now()) {
		c.Publish(ev)
	}
	assert.Equal(t, 0, f.Pending())
	_, ok := f.GetNextBars()
	assert.False(t, ok)
}

func TestFeed_PeekAndClock(t *testing.T) {
	fixed := time.Date(2030, 5, 6, 7, 8, 9, 0, time.UTC)
	f, c := newFeed(t, 100, WithClock(func() time.Time { return fixed }))

	_, ok := f.PeekDateTime()
	assert.False(t, ok)

	c.Publish(matchEvent(fixed, "1", "1"))
	_, ok = f.PeekDateTime()
	assert.False(t, ok, "有数据时也是未知")

	f.Stop()
	_, ok = f.PeekDateTime()
	assert.False(t, ok, "stop 之后也是未知")

	assert.Equal(t, fixed, f.CurrentDateTime())
	assert.False(t, f.BarsHaveAdjClose())
}

func TestFeed_StopOnEmptyQueue(t *testing.T) {
	f, _ := newFeed(t, 100)

	assert.False(t, f.Eof())
	assert.NotPanics(t, f.Stop)
	assert.True(t, f.Eof())

	assert.NotPanics(t, f.Stop)
	assert.True(t, f.Eof(), "stop 幂等")

	_, ok := f.GetNextBars()
	assert.False(t, ok)

	assert.NotPanics(t, f.Start)
	assert.NotPanics(t, f.Join)
	assert.True(t, f.Eof(), "Active->Stopped 不可逆")
}

func TestFeed_StopDoesNotDrain(t *testing.T) {
	f, c := newFeed(t, 100)
	c.Publish(matchEvent(time.Now(), "10", "1"))

	f.Stop()
	assert.True(t, f.Eof())
	assert.Equal(t, 1, f.Pending())

	// stop 之后仍然可以取出剩下的数据
	_, ok := f.GetNextBars()
	assert.True(t, ok)

	// stop 之后到达的成交仍然入队
	c.Publish(matchEvent(time.Now(), "11", "1"))
	assert.Equal(t, 1, f.Pending())
}

func TestFeed_Dispatch_UpdatesSeriesAndEmits(t *testing.T) {
	f, c := newFeed(t, 2)

	var got []bar.Bars
	f.NewBarsEvent().Subscribe(func(bs bar.Bars) { got = append(got, bs) })

	assert.False(t, f.Dispatch(), "空队列不派发")

	ts := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		c.Publish(matchEvent(ts.Add(time.Duration(i)*time.Second), decimal.NewFromInt(int64(100+i)).String(), "1"))
	}
	for f.Dispatch() {
	}

	require.Len(t, got, 3)
	s, ok := f.Series(DefaultInstrument)
	require.True(t, ok)
	assert.Equal(t, 2, s.Len(), "maxLen 只约束下游序列")

	last, ok := f.LastBar(DefaultInstrument)
	require.True(t, ok)
	assert.True(t, last.Close(false).Equal(decimal.NewFromInt(102)))
}

func TestFeed_OnDispatcherRegistered(t *testing.T) {
	f, c := newFeed(t, 100)

	d := dispatcher.New()
	d.AddSubject(f)

	subs := d.Subjects()
	require.Len(t, subs, 2)
	assert.Same(t, f, subs[0].(*LiveTradeFeed))
	assert.Same(t, c, subs[1].(*fakeClient))
}

func TestFeed_RunsUnderDispatcher(t *testing.T) {
	f, c := newFeed(t, 100)

	d := dispatcher.New()
	d.IdleWait = time.Millisecond
	d.AddSubject(f)

	var (
		mu     sync.Mutex
		prices []string
	)
	f.NewBarsEvent().Subscribe(func(bs bar.Bars) {
		mu.Lock()
		defer mu.Unlock()
		prices = append(prices, tradeOf(t, bs, DefaultInstrument).Price().String())
		if len(prices) == 3 {
			d.Stop()
		}
	})

	// 从另一个协程推送，模拟网络线程
	go func() {
		ts := time.Now()
		for _, px := range []string{"1", "2", "3"} {
			c.Publish(matchEvent(ts, px, "1"))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Run(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"1", "2", "3"}, prices)
	assert.Equal(t, 1, c.started)
	assert.Equal(t, 1, c.stopped)
	assert.Equal(t, 1, c.joined)
	assert.True(t, f.Eof(), "dispatcher 退出时 Stop 所有 subject")
}

func TestFeed_ConcurrentProducerConsumer(t *testing.T) {
	f, c := newFeed(t, 100)
	const n = 2000

	go func() {
		ts := time.Now()
		for i := 0; i < n; i++ {
			c.Publish(matchEvent(ts, decimal.NewFromInt(int64(i+1)).String(), "1"))
		}
	}()

	got := make([]int64, 0, n)
	deadline := time.After(5 * time.Second)
	for len(got) < n {
		bs, ok := f.GetNextBars()
		if !ok {
			select {
			case <-deadline:
				t.Fatalf("only got %d of %d", len(got), n)
			default:
			}
			continue
		}
		got = append(got, tradeOf(t, bs, DefaultInstrument).Price().IntPart())
	}

	for i, v := range got {
		require.Equal(t, int64(i+1), v, "FIFO 顺序被打乱")
	}
}
