package handlers

import (
	"context"

	"PPRelay/logger"
	"PPRelay/middleware/ratelimit"
	"PPRelay/service/chat"
	"PPRelay/tools/decode"
	"PPRelay/tools/errs"

	"go.uber.org/zap"
)

type sendPayload struct {
	ReceiverID string `json:"receiverId"`
	Text       string `json:"text"`
	Image      string `json:"image"`
}

// SendMessageHandler WS 通道上的发消息，结果以 messageSent 回执给发送方。
type SendMessageHandler struct {
	d       *chat.Dispatcher
	limiter *ratelimit.Limiter // 与 HTTP 发送共用计数
}

type SendOption func(*SendMessageHandler)

func WithLimiter(l *ratelimit.Limiter) SendOption {
	return func(h *SendMessageHandler) { h.limiter = l }
}

func NewSendMessageHandler(d *chat.Dispatcher, opts ...SendOption) chat.Handler {
	h := &SendMessageHandler{d: d}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *SendMessageHandler) Event() string { return chat.EventSendMessage }

func (h *SendMessageHandler) Handle(ctx context.Context, c chat.Handle, data any) error {
	p, err := decode.DecodeMap[sendPayload](data)
	if err != nil {
		return errs.ErrValidation.WrapMsg("malformed sendMessage payload")
	}
	if err := h.allow(ctx, c.UserID()); err != nil {
		return err
	}
	m, err := h.d.Send(ctx, chat.SendRequest{
		SenderID:   c.UserID(),
		ReceiverID: p.ReceiverID,
		Text:       p.Text,
		Image:      p.Image,
	})
	if err != nil {
		return err
	}
	frame, err := chat.EncodeFrame(chat.EventMessageSent, m)
	if err != nil {
		return err
	}
	return c.Send(frame)
}

func (h *SendMessageHandler) allow(ctx context.Context, userID string) error {
	res, err := h.limiter.Allow(ctx, userID)
	if err != nil {
		// 限流后端不可用时放行
		logger.Warn("rate limiter unavailable", zap.String("user", userID), zap.Error(err))
		return nil
	}
	if !res.Allowed {
		return errs.ErrRateLimited.WrapMsg("too many messages, try again later")
	}
	return nil
}
