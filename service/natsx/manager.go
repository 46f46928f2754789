package natsx

import (
	"context"
)

// 事件路由
const (
	BizMessagePersisted = "message.persisted"
	BizPresenceChanged  = "presence.changed"

	SubjectMessagePersisted = "chat.message.persisted"
	SubjectPresenceChanged  = "chat.presence.changed"
)

// DefaultRoutes relay 发布/订阅的全部事件
func DefaultRoutes() []NatsxRoute {
	return []NatsxRoute{
		{Biz: BizMessagePersisted, Subject: SubjectMessagePersisted},
		{Biz: BizPresenceChanged, Subject: SubjectPresenceChanged},
	}
}

// NatsManager 统一门面：对外只暴露这一个对象来用
type NatsManager struct {
	client   *NatsxClient
	producer *NatsxProducer
	consumer *NatsxConsumer
}

// NewNatsManager 连接并注册 routes
func NewNatsManager(cfg NatsxConfig, routes []NatsxRoute, middlewares ...NatsxMiddleware) (*NatsManager, error) {
	c, err := NewNatsxClient(cfg)
	if err != nil {
		return nil, err
	}
	for _, r := range routes {
		if err := c.RegisterRoute(r); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	return &NatsManager{
		client:   c,
		producer: NewNatsxProducer(c),
		consumer: NewNatsxConsumer(c, middlewares...),
	}, nil
}

// Close 释放资源（优雅关闭订阅与连接）
func (m *NatsManager) Close() error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Close()
}

func (m *NatsManager) Flush() error { return m.client.Flush() }

func (m *NatsManager) PublishJSON(ctx context.Context, biz string, v any, hdr map[string]string) error {
	return m.producer.PublishJSON(ctx, biz, v, hdr)
}

func (m *NatsManager) Subscribe(ctx context.Context, biz string, h NatsxHandler) error {
	return m.consumer.Subscribe(ctx, biz, h)
}
