package ws

import (
	"context"
	"strings"

	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
	"tradeflow.com/internal/quotes/gateway"
	"tradeflow.com/pkg/logger"
)

// msgType topic 的第二段作为消息类型：export:status:<symbol> -> status
func msgType(topic string) string {
	parts := strings.SplitN(topic, ":", 3)
	if len(parts) < 2 {
		return topic
	}
	return parts[1]
}

// Bridge 把 broker 上的事件转成 ws 消息发到 hub，直到 ctx 结束
func Bridge(ctx context.Context, b gateway.Broker, h *Hub, topics []string) error {
	return gateway.Watch(ctx, b, topics, func(m gateway.Message) {
		out, err := json.Marshal(ServerMsg{Type: msgType(m.Topic), Topic: m.Topic, Data: m.Payload})
		if err != nil {
			logger.Warn(ctx, "encode ws message failed", zap.String("topic", m.Topic), zap.Error(err))
			return
		}
		h.Publish(m.Topic, out)
	})
}
