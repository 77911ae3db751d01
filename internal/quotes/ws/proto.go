package ws

import "github.com/segmentio/encoding/json"

type ClientMsg struct {
	Type   string   `json:"type"`   // "sub" | "unsub"
	Topics []string `json:"topics"` // topic list, e.g. trade:coinbase:BTC-USD
}

type ServerMsg struct {
	Type  string          `json:"type"` // "trade"
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"` // gateway.TradePayload 原样转发
}
