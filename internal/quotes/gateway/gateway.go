package gateway

import (
	"context"

	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
	"tradeflow.com/pkg/logger"
)

// StatusTopic 导出状态事件的 topic；NATS 上对应 subject export.status.<symbol>
func StatusTopic(prefix, symbol string) string {
	if prefix == "" {
		prefix = "export:status"
	}
	return prefix + ":" + symbol
}

// Publisher 把事件编码成 JSON 发到 broker；失败只记日志，不影响导出
type Publisher struct {
	broker Broker
	topic  string
	last   []byte
}

func NewPublisher(broker Broker, topic string) *Publisher {
	return &Publisher{broker: broker, topic: topic}
}

func (p *Publisher) Topic() string { return p.topic }

// PublishChanged 与上一次发布的内容相同则跳过。只在 tick 循环里调用，无锁。
func (p *Publisher) PublishChanged(ctx context.Context, event any) bool {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error(ctx, "encode status event failed", zap.Error(err))
		return false
	}
	if string(payload) == string(p.last) {
		return false
	}
	p.last = payload
	if err := p.broker.Publish(ctx, p.topic, payload); err != nil {
		logger.Warn(ctx, "broker publish failed", zap.String("topic", p.topic), zap.Error(err))
		return false
	}
	return true
}

// Watch 订阅 topics 并把消息交给 fn，直到 ctx 结束
func Watch(ctx context.Context, b Broker, topics []string, fn func(Message)) error {
	ch, err := b.Subscribe(ctx, topics)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			fn(m)
		}
	}
}
