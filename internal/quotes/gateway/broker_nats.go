package gateway

import (
	"context"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
)

type NatsBroker struct {
	nc *nats.Conn
}

func NewNatsBroker(url string, opts ...nats.Option) (*NatsBroker, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &NatsBroker{nc: nc}, nil
}

// Publish 只写入客户端缓冲，真正发送由 nats 的 flusher 完成
func (b *NatsBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.nc.Publish(TopicToSubject(topic), payload)
}

// Flush 等服务端确认缓冲区已发送
func (b *NatsBroker) Flush(ctx context.Context) error {
	return b.nc.FlushWithContext(ctx)
}

func (b *NatsBroker) Subscribe(ctx context.Context, topics []string) (<-chan Message, error) {
	out := make(chan Message, 8192)
	subs := make([]*nats.Subscription, 0, len(topics))

	// 回调可能在 Unsubscribe 之后还在跑，关 channel 前先置位
	var (
		mu     sync.RWMutex
		closed bool
	)

	for _, t := range topics {
		sub, err := b.nc.Subscribe(TopicToSubject(t), func(m *nats.Msg) {
			mu.RLock()
			defer mu.RUnlock()
			if closed {
				return
			}
			// at-most-once：慢消费者直接丢，避免把 NATS 回调卡死
			select {
			case out <- Message{Topic: SubjectToTopic(m.Subject), Payload: m.Data}:
			default:
			}
		})
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return nil, err
		}
		subs = append(subs, sub)
	}

	go func() {
		<-ctx.Done()
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()
	return out, nil
}

func (b *NatsBroker) Close() error {
	if b.nc == nil {
		return nil
	}
	err := b.nc.Drain()
	b.nc.Close()
	return err
}

// TopicToSubject trade:coinbase:BTC-USD -> trade.coinbase.BTC-USD
func TopicToSubject(topic string) string { return strings.ReplaceAll(topic, ":", ".") }

func SubjectToTopic(subj string) string { return strings.ReplaceAll(subj, ".", ":") }
