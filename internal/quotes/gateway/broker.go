package gateway

import (
	"context"
	"fmt"
)

type Message struct {
	Topic   string
	Payload []byte
}

type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe 返回的 channel 在 ctx 结束后关闭
	Subscribe(ctx context.Context, topics []string) (<-chan Message, error)
	Close() error
}

// NewBroker natsURL 为空时用进程内 broker（单机），否则连 NATS（跨节点）
func NewBroker(natsURL string) (Broker, error) {
	if natsURL == "" {
		return NewMemBroker(), nil
	}
	b, err := NewNatsBroker(natsURL)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", natsURL, err)
	}
	return b, nil
}
