package chat

import "context"

// HeaderRelayNode 事件来源节点，订阅端据此跳过自己发出的事件
const HeaderRelayNode = "Relay-Node"

// Publisher 事件总线（NATS），只做尽力而为的通知。
type Publisher interface {
	PublishJSON(ctx context.Context, biz string, v any, hdr map[string]string) error
}

type NopPublisher struct{}

func (NopPublisher) PublishJSON(context.Context, string, any, map[string]string) error { return nil }

// PresenceEvent chat.presence.changed 的载荷
type PresenceEvent struct {
	UserID      string   `json:"userId"`
	Online      bool     `json:"online"`
	OnlineUsers []string `json:"onlineUsers"`
	Node        string   `json:"node"`
}
