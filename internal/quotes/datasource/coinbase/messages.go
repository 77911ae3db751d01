package coinbase

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind：order 事件的类型（即 full channel 消息里的 "type"）
type Kind string

const (
	KindReceived Kind = "received"
	KindOpen     Kind = "open"
	KindDone     Kind = "done"
	KindMatch    Kind = "match"
	KindChange   Kind = "change"
	KindActivate Kind = "activate"
)

// 非 order 事件的消息类型
const (
	TypeHeartbeat     = "heartbeat"
	TypeSubscriptions = "subscriptions"
	TypeError         = "error"
	typeLastMatch     = "last_match" // 订阅 matches 时先推一条最近成交，按 match 处理
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Message：Decode 的结果，OrderEvent 或 Heartbeat/Subscriptions/ErrorMessage
type Message interface {
	MessageType() string
}

// OrderEvent：订单簿上的一个事件。封闭的和类型，只有本包的几种实现
type OrderEvent interface {
	Message
	Kind() Kind
	Seq() int64
	Product() string
	At() time.Time
	isOrderEvent()
}

// OrderHeader 所有 order 事件的公共字段
type OrderHeader struct {
	Type      string    `json:"type"`
	ProductID string    `json:"product_id"`
	Sequence  int64     `json:"sequence"`
	Time      time.Time `json:"time"`
}

func (h OrderHeader) MessageType() string { return h.Type }
func (h OrderHeader) Seq() int64          { return h.Sequence }
func (h OrderHeader) Product() string     { return h.ProductID }
func (h OrderHeader) At() time.Time       { return h.Time }
func (h OrderHeader) isOrderEvent()       {}

// Received 订单进入撮合引擎
type Received struct {
	OrderHeader
	OrderID   uuid.UUID       `json:"order_id"`
	ClientOID string          `json:"client_oid"`
	Size      decimal.Decimal `json:"size"`
	Price     decimal.Decimal `json:"price"`
	Funds     decimal.Decimal `json:"funds"` // 市价单
	Side      Side            `json:"side"`
	OrderType string          `json:"order_type"`
}

func (*Received) Kind() Kind { return KindReceived }

// Open 限价单挂上订单簿
type Open struct {
	OrderHeader
	OrderID       uuid.UUID       `json:"order_id"`
	Price         decimal.Decimal `json:"price"`
	RemainingSize decimal.Decimal `json:"remaining_size"`
	Side          Side            `json:"side"`
}

func (*Open) Kind() Kind { return KindOpen }

// Done 订单离开订单簿（filled / canceled）
type Done struct {
	OrderHeader
	OrderID       uuid.UUID       `json:"order_id"`
	Price         decimal.Decimal `json:"price"`
	RemainingSize decimal.Decimal `json:"remaining_size"`
	Reason        string          `json:"reason"`
	Side          Side            `json:"side"`
}

func (*Done) Kind() Kind { return KindDone }

// Match 一笔成交。Side 是 maker 的方向
type Match struct {
	OrderHeader
	TradeID      int64           `json:"trade_id"`
	MakerOrderID uuid.UUID       `json:"maker_order_id"`
	TakerOrderID uuid.UUID       `json:"taker_order_id"`
	Size         decimal.Decimal `json:"size"`
	Price        decimal.Decimal `json:"price"`
	Side         Side            `json:"side"`
}

func (*Match) Kind() Kind { return KindMatch }

// Change 订单数量被修改（自成交防护等）
type Change struct {
	OrderHeader
	OrderID  uuid.UUID       `json:"order_id"`
	NewSize  decimal.Decimal `json:"new_size"`
	OldSize  decimal.Decimal `json:"old_size"`
	NewFunds decimal.Decimal `json:"new_funds"`
	OldFunds decimal.Decimal `json:"old_funds"`
	Price    decimal.Decimal `json:"price"`
	Side     Side            `json:"side"`
}

func (*Change) Kind() Kind { return KindChange }

// Activate 止损单被触发。没有 time 字段，时间在 timestamp（epoch 秒，字符串）
type Activate struct {
	OrderHeader
	Timestamp decimal.Decimal `json:"timestamp"`
	OrderID   uuid.UUID       `json:"order_id"`
	StopType  string          `json:"stop_type"`
	Side      Side            `json:"side"`
	StopPrice decimal.Decimal `json:"stop_price"`
	Size      decimal.Decimal `json:"size"`
	Funds     decimal.Decimal `json:"funds"`
}

func (*Activate) Kind() Kind { return KindActivate }

func (a *Activate) At() time.Time {
	if !a.Time.IsZero() {
		return a.Time
	}
	nanos := a.Timestamp.Shift(9).IntPart()
	return time.Unix(0, nanos).UTC()
}

type Heartbeat struct {
	Type        string    `json:"type"`
	Sequence    int64     `json:"sequence"`
	LastTradeID int64     `json:"last_trade_id"`
	ProductID   string    `json:"product_id"`
	Time        time.Time `json:"time"`
}

func (h *Heartbeat) MessageType() string { return h.Type }

type Channel struct {
	Name       string   `json:"name"`
	ProductIDs []string `json:"product_ids"`
}

type Subscriptions struct {
	Type     string    `json:"type"`
	Channels []Channel `json:"channels"`
}

func (s *Subscriptions) MessageType() string { return s.Type }

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Reason  string `json:"reason"`
}

func (e *ErrorMessage) MessageType() string { return e.Type }

var (
	_ OrderEvent = (*Received)(nil)
	_ OrderEvent = (*Open)(nil)
	_ OrderEvent = (*Done)(nil)
	_ OrderEvent = (*Match)(nil)
	_ OrderEvent = (*Change)(nil)
	_ OrderEvent = (*Activate)(nil)
)
