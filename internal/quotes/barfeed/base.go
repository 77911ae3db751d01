package barfeed

import (
	"fmt"
	"sync"

	"gopherex.com/livefeed/internal/quotes/bar"
	"gopherex.com/livefeed/internal/quotes/dataseries"
	"gopherex.com/livefeed/internal/quotes/observer"
	"gopherex.com/livefeed/pkg/xerr"
)

// Base：bar feed 的公共部分（标的注册、每个标的的序列、新 bar 事件）
//
// 具体 feed 负责产出 bar.Bars，然后调用 Apply
type Base struct {
	frequency bar.Frequency
	maxLen    int

	mu          sync.RWMutex
	instruments []string
	series      map[string]*dataseries.BarSeries
	lastBars    map[string]bar.Bar
	current     bar.Bars

	newBars *observer.Event[bar.Bars]
}

func NewBase(frequency bar.Frequency, maxLen int) (*Base, error) {
	if maxLen <= 0 {
		return nil, xerr.Newf(xerr.RequestParamsError, "maxLen must be > 0, got %d", maxLen)
	}
	return &Base{
		frequency: frequency,
		maxLen:    maxLen,
		series:    make(map[string]*dataseries.BarSeries, 4),
		lastBars:  make(map[string]bar.Bar, 4),
		newBars:   observer.New[bar.Bars](),
	}, nil
}

func (b *Base) Frequency() bar.Frequency { return b.frequency }

func (b *Base) MaxLen() int { return b.maxLen }

// NewBarsEvent 每次 Apply 成功后触发
func (b *Base) NewBarsEvent() *observer.Event[bar.Bars] { return b.newBars }

// RegisterInstrument 重复注册是 no-op
func (b *Base) RegisterInstrument(instrument string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.series[instrument]; ok {
		return
	}
	// maxLen 已在 NewBase 校验过
	s, _ := dataseries.New(b.maxLen)
	b.series[instrument] = s
	b.instruments = append(b.instruments, instrument)
}

func (b *Base) Instruments() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.instruments...)
}

// DefaultInstrument 第一个注册的标的
func (b *Base) DefaultInstrument() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.instruments) == 0 {
		return ""
	}
	return b.instruments[0]
}

func (b *Base) Series(instrument string) (*dataseries.BarSeries, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.series[instrument]
	return s, ok
}

func (b *Base) LastBar(instrument string) (bar.Bar, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.lastBars[instrument]
	return v, ok
}

// CurrentBars 最近一次 Apply 的集合
func (b *Base) CurrentBars() bar.Bars {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

// Apply 写入序列并触发 NewBarsEvent；含未注册标的时整体拒绝
func (b *Base) Apply(bars bar.Bars) error {
	if bars.IsZero() {
		return bar.ErrEmptyBars
	}

	b.mu.Lock()
	insts := bars.Instruments()
	for _, inst := range insts {
		if _, ok := b.series[inst]; !ok {
			b.mu.Unlock()
			return fmt.Errorf("barfeed: instrument %q not registered", inst)
		}
	}
	for _, inst := range insts {
		v, _ := bars.Bar(inst)
		b.series[inst].Append(v)
		b.lastBars[inst] = v
	}
	b.current = bars
	b.mu.Unlock()

	// 锁外回调，handler 里可以读 feed 状态
	b.newBars.Emit(bars)
	return nil
}
