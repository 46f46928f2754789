package middleware

import (
	"net/http"
	"strings"

	"PPRelay/global"
	"PPRelay/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// Origin 浏览器请求的 Origin 必须在白名单里；allowed 为空时放行。
// 没有 Origin 头的请求（服务端调用、curl）不受影响。
// 不调用 c.Next()，可以挂在 MiddlewareManager 里。
func Origin(allowed []string) gin.HandlerFunc {
	set := lo.SliceToMap(allowed, func(o string) (string, struct{}) {
		return strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/"), struct{}{}
	})
	return func(c *gin.Context) {
		origin := strings.TrimRight(strings.ToLower(c.GetHeader("Origin")), "/")
		if len(set) == 0 || origin == "" {
			return
		}
		if _, ok := set[origin]; !ok {
			err := errs.ErrUnauthorized.WrapMsg("origin not allowed", "origin", origin)
			c.AbortWithStatusJSON(http.StatusForbidden, global.Fail(err))
			return
		}
		c.Header("Access-Control-Allow-Origin", c.GetHeader("Origin"))
		c.Header("Vary", "Origin")
		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.AbortWithStatus(http.StatusNoContent)
		}
	}
}
