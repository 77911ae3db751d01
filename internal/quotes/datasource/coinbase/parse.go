package coinbase

import (
	"errors"
	"fmt"

	"github.com/segmentio/encoding/json"
)

var (
	ErrUnknownMessage = errors.New("coinbase: unknown message type")
	ErrInvalidMatch   = errors.New("coinbase: match price and size must be > 0")
)

// 只解 type，再按类型解到具体结构
type envelope struct {
	Type string `json:"type"`
}

// Decode 解析 websocket feed 的一帧
func Decode(raw []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}

	var m Message
	switch env.Type {
	case string(KindReceived):
		m = &Received{}
	case string(KindOpen):
		m = &Open{}
	case string(KindDone):
		m = &Done{}
	case string(KindMatch), typeLastMatch:
		m = &Match{}
	case string(KindChange):
		m = &Change{}
	case string(KindActivate):
		m = &Activate{}
	case TypeHeartbeat:
		m = &Heartbeat{}
	case TypeSubscriptions:
		m = &Subscriptions{}
	case TypeError:
		m = &ErrorMessage{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
	}

	if err := json.Unmarshal(raw, m); err != nil {
		return nil, fmt.Errorf("coinbase: decode %s: %w", env.Type, err)
	}
	if mt, ok := m.(*Match); ok {
		if !mt.Price.IsPositive() || !mt.Size.IsPositive() {
			return nil, ErrInvalidMatch
		}
	}
	return m, nil
}

type subscribeMsg struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

// SubscribeMessage 订阅帧
func SubscribeMessage(productIDs, channels []string) ([]byte, error) {
	return json.Marshal(subscribeMsg{Type: "subscribe", ProductIDs: productIDs, Channels: channels})
}
