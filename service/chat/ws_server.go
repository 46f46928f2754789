package chat

import (
	"net/http"
	"strings"

	"PPRelay/global"
	"PPRelay/tools/errs"
	"PPRelay/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// CheckOrigin 由 middleware.Origin 把关，这里放行
var upgrader = websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: func(r *http.Request) bool { return true }}

// HandleWS GET /ws?token=<jwt> 或 Authorization: Bearer <jwt>
// 先认证再升级：认证失败直接回 401，不建立连接。
func (s *Server) HandleWS(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		token = security.BearerToken(c.GetHeader("Authorization"))
	}
	userID, err := s.resolver.Resolve(token)
	if err != nil {
		c.AbortWithStatusJSON(errs.HTTPStatus(err), global.Fail(err))
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 常见：非 WebSocket 请求/握手失败，Upgrade 已经写了响应
		s.log.Debug("upgrade websocket failed", zap.Error(err))
		return
	}
	s.Serve(ws, userID)
}
