package global

import (
	"PPRelay/tools/errs"
)

// Msg 接口统一返回结构
type Msg struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

func Success(data any) *Msg {
	return &Msg{
		Code: 200,
		Msg:  "",
		Data: data,
	}
}

// Fail 把错误链转换成返回体；非 CodeError 一律按内部错误处理，不暴露细节。
func Fail(err error) *Msg {
	ce, ok := errs.As(err)
	if !ok {
		ce = errs.ErrInternal
	}
	msg := ce.Msg
	if ce.Detail != "" {
		msg += ": " + ce.Detail
	}
	return &Msg{Code: ce.Code, Msg: msg}
}
