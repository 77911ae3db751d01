package bar

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var ErrEmptyBars = errors.New("bars: empty")

// Bars：同一时刻、多个标的的 bar 集合，构造后只读
type Bars struct {
	m        map[string]Bar
	dateTime time.Time
}

// NewBars 所有 bar 的时间必须一致
func NewBars(m map[string]Bar) (Bars, error) {
	if len(m) == 0 {
		return Bars{}, ErrEmptyBars
	}
	var (
		first    = true
		dateTime time.Time
	)
	cp := make(map[string]Bar, len(m))
	for inst, b := range m {
		if b == nil {
			return Bars{}, fmt.Errorf("bars: nil bar for %s", inst)
		}
		if first {
			dateTime = b.DateTime()
			first = false
		} else if !b.DateTime().Equal(dateTime) {
			return Bars{}, fmt.Errorf("bars: datetime mismatch for %s: %s != %s", inst, b.DateTime(), dateTime)
		}
		cp[inst] = b
	}
	return Bars{m: cp, dateTime: dateTime}, nil
}

// Single 单标的集合，不会失败
func Single(instrument string, b Bar) Bars {
	return Bars{m: map[string]Bar{instrument: b}, dateTime: b.DateTime()}
}

func (b Bars) IsZero() bool { return len(b.m) == 0 }

func (b Bars) Len() int { return len(b.m) }

func (b Bars) DateTime() time.Time { return b.dateTime }

// Instruments 按字典序返回
func (b Bars) Instruments() []string {
	out := make([]string, 0, len(b.m))
	for k := range b.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (b Bars) Bar(instrument string) (Bar, bool) {
	v, ok := b.m[instrument]
	return v, ok
}

// Frequency 取任意一根的粒度（同一集合粒度一致）
func (b Bars) Frequency() Frequency {
	for _, v := range b.m {
		return v.Frequency()
	}
	return 0
}
