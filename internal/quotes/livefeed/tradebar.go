package livefeed

import (
	"time"

	"github.com/shopspring/decimal"
	"gopherex.com/livefeed/internal/quotes/bar"
	"gopherex.com/livefeed/internal/quotes/datasource/coinbase"
)

// TradeBar：一笔成交就是一根 bar，OHLC 都等于成交价
type TradeBar struct {
	match    *coinbase.Match
	dateTime time.Time
	price    decimal.Decimal
	amount   decimal.Decimal
}

func NewTradeBar(m *coinbase.Match) *TradeBar {
	return &TradeBar{
		match:    m,
		dateTime: m.At(),
		price:    m.Price,
		amount:   m.Size,
	}
}

// Match 原始成交事件，仅用于排查
func (b *TradeBar) Match() *coinbase.Match { return b.match }

func (b *TradeBar) SetUseAdjustedValue(useAdjusted bool) { mustNotAdjust(useAdjusted) }

func (b *TradeBar) Frequency() bar.Frequency { return bar.FrequencyTrade }

func (b *TradeBar) DateTime() time.Time { return b.dateTime }

func (b *TradeBar) Open(adjusted bool) decimal.Decimal {
	mustNotAdjust(adjusted)
	return b.price
}

func (b *TradeBar) High(adjusted bool) decimal.Decimal {
	mustNotAdjust(adjusted)
	return b.price
}

func (b *TradeBar) Low(adjusted bool) decimal.Decimal {
	mustNotAdjust(adjusted)
	return b.price
}

func (b *TradeBar) Close(adjusted bool) decimal.Decimal {
	mustNotAdjust(adjusted)
	return b.price
}

func (b *TradeBar) Volume() decimal.Decimal { return b.amount }

// AdjClose 逐笔数据没有复权价
func (b *TradeBar) AdjClose() (decimal.Decimal, bool) { return decimal.Zero, false }

func (b *TradeBar) TypicalPrice() decimal.Decimal { return b.price }

func (b *TradeBar) Price() decimal.Decimal { return b.price }

func (b *TradeBar) UseAdjValue() bool { return false }

func mustNotAdjust(adjusted bool) {
	if adjusted {
		panic(bar.ErrAdjustedUnsupported)
	}
}

var _ bar.Bar = (*TradeBar)(nil)
