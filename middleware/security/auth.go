package security

import (
	"strings"

	"PPRelay/global"
	"PPRelay/tools/errs"
	toolsec "PPRelay/tools/security"

	"github.com/gin-gonic/gin"
)

// context key
// 后续 handler 统一用 UserID(c) 读取
const PPCtxUserIDKey = "userId"

// Resolver bearer 令牌 -> 用户ID
type Resolver interface {
	Resolve(token string) (string, error)
}

type Options struct {
	// 额外读取的请求头，Authorization: Bearer 始终支持
	HeaderToken string
	// 允许 ?token= （浏览器 WebSocket 无法带请求头）
	AllowQueryToken bool
}

func DefaultOptions() *Options {
	return &Options{HeaderToken: "X-Auth-Token", AllowQueryToken: false}
}

// Middleware 认证失败直接 401，后续 handler 不会执行。
func Middleware(r Resolver, opts *Options) gin.HandlerFunc {
	if opts == nil {
		opts = DefaultOptions()
	}
	return func(c *gin.Context) {
		userID, err := r.Resolve(tokenFrom(c, opts))
		if err != nil {
			c.AbortWithStatusJSON(errs.HTTPStatus(err), global.Fail(err))
			return
		}
		c.Set(PPCtxUserIDKey, userID)
		c.Next()
	}
}

func tokenFrom(c *gin.Context, opts *Options) string {
	if tok := toolsec.BearerToken(c.GetHeader("Authorization")); tok != "" {
		return tok
	}
	if opts.HeaderToken != "" {
		if tok := strings.TrimSpace(c.GetHeader(opts.HeaderToken)); tok != "" {
			return tok
		}
	}
	if opts.AllowQueryToken {
		return strings.TrimSpace(c.Query("token"))
	}
	return ""
}

// UserID 已认证请求的用户ID，未经过 Middleware 时为空串。
func UserID(c *gin.Context) string {
	return c.GetString(PPCtxUserIDKey)
}
