package chat

import (
	"context"
	"sync"

	"PPRelay/logger"
	"PPRelay/tools/errs"

	"go.uber.org/zap"
)

// Handler 处理一种客户端事件。
type Handler interface {
	Event() string
	Handle(ctx context.Context, c Handle, data any) error
}

// FrameRouter 按 event 分发客户端帧；出错时给该连接回 error 帧。
type FrameRouter struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewFrameRouter() *FrameRouter {
	return &FrameRouter{handlers: make(map[string]Handler)}
}

func (r *FrameRouter) Register(h Handler) {
	r.mu.Lock()
	r.handlers[h.Event()] = h
	r.mu.Unlock()
}

func (r *FrameRouter) GetHandler(event string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[event]
}

func (r *FrameRouter) Route(ctx context.Context, c Handle, raw []byte) {
	f, err := ParseFrame(raw)
	if err != nil {
		r.reply(c, err)
		return
	}
	h := r.GetHandler(f.Event)
	if h == nil {
		r.reply(c, errs.ErrValidation.WrapMsg("unknown event", "event", f.Event))
		return
	}
	if err := h.Handle(ctx, c, f.Data); err != nil {
		logger.Debug("frame handler failed", zap.String("event", f.Event), zap.String("conn", c.ID()), zap.Error(err))
		r.reply(c, err)
	}
}

func (r *FrameRouter) reply(c Handle, err error) {
	_ = c.Send(ErrorFrame(err))
}
