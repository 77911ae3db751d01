package gateway

import (
	"context"
	"errors"
	"sync"

	"gopherex.com/livefeed/internal/quotes/mdmetrics"
)

var ErrBrokerClosed = errors.New("gateway: broker closed")

type memSub struct {
	ch     chan Message
	topics []string
	once   sync.Once
}

func (s *memSub) close() { s.once.Do(func() { close(s.ch) }) }

// MemBroker 进程内 fanout，at-most-once：慢订阅者直接丢
type MemBroker struct {
	mu     sync.RWMutex
	subs   map[string][]*memSub
	bufLen int
	closed bool
}

func NewMemBroker() *MemBroker {
	return &MemBroker{subs: make(map[string][]*memSub), bufLen: 4096}
}

func (b *MemBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBrokerClosed
	}

	msg := Message{Topic: topic, Payload: payload}
	for _, s := range b.subs[topic] {
		select {
		case s.ch <- msg:
		default:
			mdmetrics.SinkWritesTotal.WithLabelValues("mem", "dropped").Inc()
		}
	}
	return nil
}

func (b *MemBroker) Subscribe(ctx context.Context, topics []string) (<-chan Message, error) {
	s := &memSub{ch: make(chan Message, b.bufLen), topics: topics}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBrokerClosed
	}
	for _, t := range topics {
		b.subs[t] = append(b.subs[t], s)
	}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(s)
	}()
	return s.ch, nil
}

// remove 在写锁下摘掉订阅再关 channel，Publish 不会写到已关闭的 channel
func (b *MemBroker) remove(s *memSub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range s.topics {
		list := b.subs[t]
		for i, cur := range list {
			if cur == s {
				b.subs[t] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(b.subs[t]) == 0 {
			delete(b.subs, t)
		}
	}
	s.close()
}

func (b *MemBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, list := range b.subs {
		for _, s := range list {
			s.close()
		}
	}
	b.subs = make(map[string][]*memSub)
	return nil
}
