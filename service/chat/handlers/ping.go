package handlers

import (
	"context"

	"PPRelay/service/chat"
)

// PingHandler 应用层心跳：{"event":"ping"} -> {"event":"pong"}
type PingHandler struct{}

func NewPingHandler() chat.Handler { return &PingHandler{} }

func (h *PingHandler) Event() string { return chat.EventPing }

func (h *PingHandler) Handle(_ context.Context, c chat.Handle, _ any) error {
	frame, err := chat.EncodeFrame(chat.EventPong, nil)
	if err != nil {
		return err
	}
	return c.Send(frame)
}
