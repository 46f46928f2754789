package middleware

import (
	"github.com/gin-gonic/gin"
)

// 配置选项
type RouteOpt struct {
	IsAuth      bool
	RateLimited bool
}

// Guards 由启动代码注入：认证、限流中间件
type Guards struct {
	Auth      gin.HandlerFunc
	RateLimit gin.HandlerFunc
}

// Routes 按 RouteOpt 给路由挂上守卫。限流在认证之后，按用户计数。
type Routes struct {
	r      gin.IRoutes
	guards Guards
}

func NewRoutes(r gin.IRoutes, g Guards) *Routes {
	return &Routes{r: r, guards: g}
}

func (rt *Routes) chain(h gin.HandlerFunc, opt RouteOpt) []gin.HandlerFunc {
	hs := make([]gin.HandlerFunc, 0, 3)
	if opt.IsAuth && rt.guards.Auth != nil {
		hs = append(hs, rt.guards.Auth)
	}
	if opt.RateLimited && rt.guards.RateLimit != nil {
		hs = append(hs, rt.guards.RateLimit)
	}
	return append(hs, h)
}

// 封装 POST
func (rt *Routes) POST(path string, h gin.HandlerFunc, opt RouteOpt) {
	rt.r.POST(path, rt.chain(h, opt)...)
}

// 封装 GET
func (rt *Routes) GET(path string, h gin.HandlerFunc, opt RouteOpt) {
	rt.r.GET(path, rt.chain(h, opt)...)
}
