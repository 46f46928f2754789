package chat

import (
	"errors"
	"fmt"

	"PPRelay/service/presence"
)

// Handle 一条可推送的连接，与在线表共用同一接口。
type Handle = presence.Handle

var (
	ErrHandleClosed  = errors.New("connection handle closed")
	ErrSendQueueFull = fmt.Errorf("%w: send queue full", ErrHandleClosed)
)
