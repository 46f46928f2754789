package chat

import (
	"encoding/json"
	"fmt"

	"PPRelay/tools/errs"
)

// 服务端 -> 客户端
const (
	EventOnlineUsers = "onlineUsers"
	EventNewMessage  = "newMessage"
	EventMessageSent = "messageSent"
	EventError       = "error"
	EventPong        = "pong"
)

// 客户端 -> 服务端
const (
	EventSendMessage = "sendMessage"
	EventPing        = "ping"
)

// Frame 线上帧：{"event":..,"data":..}
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type ErrorPayload struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func EncodeFrame(event string, data any) ([]byte, error) {
	b, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", event, err)
	}
	return b, nil
}

// ParseFrame data 保持为 any，交给具体 handler 用 mapstructure 解码。
func ParseFrame(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errs.ErrValidation.WrapMsg("malformed frame")
	}
	if f.Event == "" {
		return nil, errs.ErrValidation.WrapMsg("frame has no event")
	}
	return &f, nil
}

// ErrorFrame 非 CodeError 一律按内部错误返回，不暴露细节。
func ErrorFrame(err error) []byte {
	ce, ok := errs.As(err)
	if !ok {
		ce = errs.ErrInternal
	}
	msg := ce.Msg
	if ce.Detail != "" {
		msg += ": " + ce.Detail
	}
	b, _ := EncodeFrame(EventError, ErrorPayload{Code: ce.Code, Msg: msg})
	return b
}
