package ws

import (
	"sync"

	"tradeflow.com/internal/quotes/wsmetrics"
)

// Hub topic -> 连接集合，另存每个 topic 的最新一条作为订阅快照
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Conn]struct{}
	last map[string][]byte
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*Conn]struct{}, 16),
		last: make(map[string][]byte, 16),
	}
}

type snapshot struct {
	topic string
	data  []byte
}

func (h *Hub) Subscribe(c *Conn, topics []string) {
	wsmetrics.SubOpsTotal.WithLabelValues("sub").Add(float64(len(topics)))

	// 记录订阅和取快照在同一把锁里，避免订阅后立刻 publish 却取不到
	h.mu.Lock()
	snaps := make([]snapshot, 0, len(topics))
	for _, t := range topics {
		set := h.subs[t]
		if set == nil {
			set = make(map[*Conn]struct{}, 4)
			h.subs[t] = set
		}
		set[c] = struct{}{}
		if b := h.last[t]; b != nil {
			snaps = append(snaps, snapshot{t, b})
		}
	}
	h.mu.Unlock()

	// 立即回放最新状态
	for _, s := range snaps {
		c.Offer(s.topic, s.data)
	}
}

func (h *Hub) Unsubscribe(c *Conn, topics []string) {
	wsmetrics.SubOpsTotal.WithLabelValues("unsub").Add(float64(len(topics)))
	h.mu.Lock()
	for _, t := range topics {
		if set := h.subs[t]; set != nil {
			delete(set, c)
			if len(set) == 0 {
				delete(h.subs, t)
			}
		}
	}
	h.mu.Unlock()
}

func (h *Hub) RemoveConn(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic, m := range h.subs {
		delete(m, c)
		if len(m) == 0 {
			delete(h.subs, topic)
		}
	}
}

// Publish 广播给 topic 的所有订阅者；对每个连接都是非阻塞 Offer，慢客户端不会卡住广播
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
		if !c.Offer(topic, cp) {
			wsmetrics.DroppedTotal.WithLabelValues("closed").Inc()
		}
	}
}

// Conns 当前有订阅的连接数
func (h *Hub) Conns() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[*Conn]struct{})
	for _, set := range h.subs {
		for c := range set {
			seen[c] = struct{}{}
		}
	}
	return len(seen)
}
