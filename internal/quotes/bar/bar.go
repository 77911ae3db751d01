package bar

import (
	"time"

	"github.com/shopspring/decimal"
)

// ErrAdjustedUnsupported 请求复权价格时 panic 的信息
const ErrAdjustedUnsupported = "adjusted values not supported"

// Frequency：bar 的时间粒度（秒数，Trade 表示逐笔）
type Frequency int

const (
	FrequencyTrade  Frequency = -1
	FrequencySecond Frequency = 1
	FrequencyMinute Frequency = 60
	FrequencyHour   Frequency = 60 * 60
	FrequencyDay    Frequency = 24 * 60 * 60
	FrequencyWeek   Frequency = 24 * 60 * 60 * 7
	FrequencyMonth  Frequency = 24 * 60 * 60 * 31
)

func (f Frequency) String() string {
	switch f {
	case FrequencyTrade:
		return "trade"
	case FrequencySecond:
		return "1s"
	case FrequencyMinute:
		return "1m"
	case FrequencyHour:
		return "1h"
	case FrequencyDay:
		return "1d"
	case FrequencyWeek:
		return "1w"
	case FrequencyMonth:
		return "1M"
	default:
		return "unknown"
	}
}

// Bar：一个标的在一个时间粒度上的 OHLCV 快照
//
// adjusted=true 只对支持复权的数据源有意义；不支持的实现直接 panic
type Bar interface {
	DateTime() time.Time
	Open(adjusted bool) decimal.Decimal
	High(adjusted bool) decimal.Decimal
	Low(adjusted bool) decimal.Decimal
	Close(adjusted bool) decimal.Decimal
	Volume() decimal.Decimal
	AdjClose() (decimal.Decimal, bool)
	Frequency() Frequency
	TypicalPrice() decimal.Decimal
	// Price：UseAdjValue 为 true 时是复权收盘价，否则是收盘价
	Price() decimal.Decimal
	UseAdjValue() bool
	SetUseAdjustedValue(useAdjusted bool)
}
