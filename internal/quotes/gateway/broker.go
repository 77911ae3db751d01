package gateway

import "context"

type Message struct {
	Topic   string
	Payload []byte
}

// Broker：bar 广播的传输层，单机用内存，多机用 NATS
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe 返回的 channel 在 ctx 结束或 Close 后关闭
	Subscribe(ctx context.Context, topics []string) (<-chan Message, error)
	Close() error
}
