package ratelimit

import (
	"strconv"

	"PPRelay/global"
	"PPRelay/logger"
	"PPRelay/tools/errs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// KeyFunc 取限流维度，返回空串时不限流。
type KeyFunc func(c *gin.Context) string

// ByClientIP 默认按客户端 IP
func ByClientIP(c *gin.Context) string { return c.ClientIP() }

// Middleware 超限返回 429。Redis 不可用时放行，只记日志。
func Middleware(l *Limiter, key KeyFunc) gin.HandlerFunc {
	if key == nil {
		key = ByClientIP
	}
	return func(c *gin.Context) {
		k := key(c)
		if k == "" {
			c.Next()
			return
		}
		res, err := l.Allow(c.Request.Context(), k)
		if err != nil {
			logger.Warn("rate limiter unavailable, letting request through", zap.String("key", k), zap.Error(err))
			c.Next()
			return
		}
		if res.Limit > 0 {
			c.Header(HeaderLimit, strconv.Itoa(res.Limit))
			c.Header(HeaderRemaining, strconv.Itoa(res.Remaining))
			c.Header(HeaderReset, strconv.FormatInt(res.ResetAt.Unix(), 10))
		}
		if !res.Allowed {
			err := errs.ErrRateLimited.WrapMsg("too many messages, try again later")
			c.AbortWithStatusJSON(errs.HTTPStatus(err), global.Fail(err))
			return
		}
		c.Next()
	}
}
