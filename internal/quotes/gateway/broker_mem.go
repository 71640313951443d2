package gateway

import (
	"context"
	"slices"
	"sync"
)

type MemBroker struct {
	mu     sync.RWMutex
	subs   map[string][]chan Message
	closed bool
}

func NewMemBroker() *MemBroker {
	return &MemBroker{subs: make(map[string][]chan Message)}
}

func (b *MemBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	// 持读锁发送：退订在写锁下 close，不会向已关闭的 channel 写
	b.mu.RLock()
	defer b.mu.RUnlock()

	// fanout：at-most-once，慢订阅者直接丢
	msg := Message{Topic: topic, Payload: payload}
	for _, ch := range b.subs[topic] {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

func (b *MemBroker) Subscribe(ctx context.Context, topics []string) (<-chan Message, error) {
	ch := make(chan Message, 4096)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, nil
	}
	for _, t := range topics {
		b.subs[t] = append(b.subs[t], ch)
	}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.closed {
			return
		}
		for _, t := range topics {
			b.subs[t] = slices.DeleteFunc(b.subs[t], func(c chan Message) bool { return c == ch })
			if len(b.subs[t]) == 0 {
				delete(b.subs, t)
			}
		}
		close(ch)
	}()

	return ch, nil
}

// Close 关闭所有订阅
func (b *MemBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	seen := make(map[chan Message]struct{})
	for _, list := range b.subs {
		for _, ch := range list {
			if _, ok := seen[ch]; !ok {
				seen[ch] = struct{}{}
				close(ch)
			}
		}
	}
	b.subs = map[string][]chan Message{}
	return nil
}
