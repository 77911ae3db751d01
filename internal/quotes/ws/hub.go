package ws

import (
	"sync"

	"go.uber.org/zap"
	"gopherex.com/livefeed/internal/quotes/wsmetrics"
	"gopherex.com/livefeed/pkg/logger"
)

type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Conn]struct{} // topic -> set(conn)
	last map[string][]byte             // topic -> last payload (snapshot)
	log  *zap.Logger
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*Conn]struct{}, 64),
		last: make(map[string][]byte, 64),
		log:  logger.Named("ws-hub"),
	}
}

// Subscribe 订阅后立即回放该 topic 最近一笔成交
func (h *Hub) Subscribe(c *Conn, topics []string) {
	h.log.Debug("subscribe", zap.String("conn", c.id), zap.Strings("topics", topics))
	wsmetrics.SubOpsTotal.WithLabelValues("sub").Inc()

	// 记录订阅和取快照在同一把锁里，避免订阅后立刻 publish 却取不到
	h.mu.Lock()
	snaps := make([][]byte, 0, len(topics))
	for _, t := range topics {
		set := h.subs[t]
		if set == nil {
			set = make(map[*Conn]struct{}, 16)
			h.subs[t] = set
		}
		set[c] = struct{}{}
		h.updateGauge(t)
		if b := h.last[t]; b != nil {
			snaps = append(snaps, b)
		}
	}
	h.mu.Unlock()

	for _, b := range snaps {
		if c.Offer(b) {
			wsmetrics.SnapshotsReplayedTotal.Inc()
		}
	}
}

func (h *Hub) Unsubscribe(c *Conn, topics []string) {
	wsmetrics.SubOpsTotal.WithLabelValues("unsub").Inc()
	h.mu.Lock()
	for _, t := range topics {
		if set := h.subs[t]; set != nil {
			delete(set, c)
			if len(set) == 0 {
				delete(h.subs, t)
			}
			h.updateGauge(t)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) RemoveConn(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic, m := range h.subs {
		if _, ok := m[c]; !ok {
			continue
		}
		delete(m, c)
		if len(m) == 0 {
			delete(h.subs, topic)
		}
		h.updateGauge(topic)
	}
}

// updateGauge 调用方持有 h.mu
func (h *Hub) updateGauge(topic string) {
	wsmetrics.Subscribers.WithLabelValues(topic).Set(float64(len(h.subs[topic])))
}

// Subscribers topic 当前订阅数
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

// Publish：把 payload 广播给 topic 的所有订阅者。
// 对每个 conn 都是非阻塞 Offer，慢客户端不会卡住广播。
func (h *Hub) Publish(topic string, payload []byte) {
	cp := make([]byte, len(payload))
	copy(cp, payload)

	h.mu.Lock()
	h.last[topic] = cp
	conns := make([]*Conn, 0, len(h.subs[topic]))
	for c := range h.subs[topic] {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.Offer(cp)
	}
}
