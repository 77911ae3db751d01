package ws

import (
	"github.com/segmentio/encoding/json"
	"gopherex.com/livefeed/internal/quotes/gateway"
)

// Encode 把 broker 上的一条成交包成下发给客户端的 ServerMsg
func Encode(m gateway.Message) ([]byte, error) {
	return json.Marshal(ServerMsg{
		Type:  "trade",
		Topic: m.Topic,
		Data:  json.RawMessage(m.Payload),
	})
}

// Bridge：broker 消息 -> hub 广播，配合 gateway.Forward 使用
func Bridge(h *Hub, m gateway.Message) {
	b, err := Encode(m)
	if err != nil {
		return
	}
	h.Publish(m.Topic, b)
}
