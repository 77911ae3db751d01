package dataseries

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"gopherex.com/livefeed/internal/quotes/bar"
)

// DefaultMaxLen 默认保留的 bar 数
const DefaultMaxLen = 1024

// BarSeries：有界 bar 序列，满了以后丢最老的
//
// 写入只来自 dispatcher 协程，读取可能来自任意协程（sink / http），所以加读写锁
type BarSeries struct {
	mu     sync.RWMutex
	maxLen int
	buf    []bar.Bar // 环形缓冲
	head   int       // 最老元素下标
	n      int
}

func New(maxLen int) (*BarSeries, error) {
	if maxLen <= 0 {
		return nil, fmt.Errorf("dataseries: maxLen must be > 0, got %d", maxLen)
	}
	return &BarSeries{maxLen: maxLen, buf: make([]bar.Bar, 0, min(maxLen, 64))}, nil
}

func (s *BarSeries) MaxLen() int { return s.maxLen }

func (s *BarSeries) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.n
}

func (s *BarSeries) Append(b bar.Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 还没满：直接追加（buf 按需扩容，避免 maxLen 很大时一次性分配）
	if s.n < s.maxLen {
		s.buf = append(s.buf, b)
		s.n++
		return
	}
	// 满了：覆盖最老的，head 后移
	s.buf[s.head] = b
	s.head = (s.head + 1) % s.maxLen
}

// At：i=0 是最老的，支持负数下标（-1 = 最新）
func (s *BarSeries) At(i int) (bar.Bar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 {
		i += s.n
	}
	if i < 0 || i >= s.n {
		return nil, false
	}
	return s.buf[(s.head+i)%len(s.buf)], true
}

func (s *BarSeries) Last() (bar.Bar, bool) { return s.At(-1) }

// Values 按时间顺序拷贝一份
func (s *BarSeries) Values() []bar.Bar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]bar.Bar, s.n)
	for i := 0; i < s.n; i++ {
		out[i] = s.buf[(s.head+i)%len(s.buf)]
	}
	return out
}

// Closes 收盘价序列（不复权）
func (s *BarSeries) Closes() []decimal.Decimal {
	vals := s.Values()
	out := make([]decimal.Decimal, len(vals))
	for i, b := range vals {
		out[i] = b.Close(false)
	}
	return out
}

// Volumes 成交量序列
func (s *BarSeries) Volumes() []decimal.Decimal {
	vals := s.Values()
	out := make([]decimal.Decimal, len(vals))
	for i, b := range vals {
		out[i] = b.Volume()
	}
	return out
}
