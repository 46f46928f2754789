package natsx

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// NatsxProducer 生产端
type NatsxProducer struct{ c *NatsxClient }

func NewNatsxProducer(c *NatsxClient) *NatsxProducer { return &NatsxProducer{c: c} }

// Publish 按 Biz 路由发送
func (p *NatsxProducer) Publish(ctx context.Context, biz string, data []byte, hdr map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r, ok := p.c.route(biz)
	if !ok {
		return fmt.Errorf("%w: %s", ErrRouteNotFound, biz)
	}
	msg := nats.NewMsg(r.Subject)
	msg.Data = data
	msg.Header = toHeader(hdr)
	if err := p.c.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", r.Subject, err)
	}
	return nil
}

// PublishOnce 带 Nats-Msg-Id 的发布；msgID 为空则生成 uuid
func (p *NatsxProducer) PublishOnce(ctx context.Context, biz string, data []byte, hdr map[string]string, msgID string) error {
	h := make(map[string]string, len(hdr)+1)
	for k, v := range hdr {
		h[k] = v
	}
	if msgID == "" {
		msgID = uuid.NewString()
	}
	h[HeaderMsgID] = msgID
	return p.Publish(ctx, biz, data, h)
}

// PublishJSON JSON 编码后 PublishOnce
func (p *NatsxProducer) PublishJSON(ctx context.Context, biz string, v any, hdr map[string]string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", biz, err)
	}
	return p.PublishOnce(ctx, biz, data, hdr, "")
}
