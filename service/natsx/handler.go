package natsx

import (
	"context"
	"time"

	"PPRelay/logger"

	"go.uber.org/zap"
)

// NatsxMessage 统一消息对象
type NatsxMessage struct {
	Subject string
	Data    []byte
	Header  map[string]string
}

// NatsxHandler 业务处理函数
type NatsxHandler func(ctx context.Context, msg NatsxMessage) error

// NatsxMiddleware 中间件（日志、幂等、恢复等）
type NatsxMiddleware func(NatsxHandler) NatsxHandler

// NatsxChain 组合中间件，mws[0] 在最外层
func NatsxChain(h NatsxHandler, mws ...NatsxMiddleware) NatsxHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// NatsxLogMiddleware 记录失败与耗时
func NatsxLogMiddleware() NatsxMiddleware {
	return func(next NatsxHandler) NatsxHandler {
		return func(ctx context.Context, msg NatsxMessage) error {
			start := time.Now()
			err := next(ctx, msg)
			if err != nil {
				logger.Warn("nats handler failed", zap.String("subject", msg.Subject), zap.Duration("cost", time.Since(start)), zap.Error(err))
			}
			return err
		}
	}
}

// NatsxRecoverMiddleware handler panic 不能带走订阅回调
func NatsxRecoverMiddleware() NatsxMiddleware {
	return func(next NatsxHandler) NatsxHandler {
		return func(ctx context.Context, msg NatsxMessage) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("nats handler panic", zap.String("subject", msg.Subject), zap.Any("panic", r))
					err = errPanic
				}
			}()
			return next(ctx, msg)
		}
	}
}
