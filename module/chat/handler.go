package chat

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"PPRelay/global"
	midsec "PPRelay/middleware/security"
	chatmsg "PPRelay/module/chat/message"
	chatsvc "PPRelay/service/chat"
	"PPRelay/service/presence"
	"PPRelay/tools/errs"

	"github.com/gin-gonic/gin"
)

type sendBody struct {
	ReceiverID string `json:"receiverId"`
	Text       string `json:"text"`
	Image      string `json:"image"`
}

// Handler 消息与在线状态的 HTTP 入口，需挂在认证中间件之后。
type Handler struct {
	d      *chatsvc.Dispatcher
	reg    *presence.Registry
	mirror presence.Mirror // 可空：为空时集群视图退化为本节点
	nodeID string
}

func NewHandler(d *chatsvc.Dispatcher, reg *presence.Registry, mirror presence.Mirror, nodeID string) *Handler {
	return &Handler{d: d, reg: reg, mirror: mirror, nodeID: nodeID}
}

// UserPresence GET /api/presence/:userId 的返回
type UserPresence struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
	Node   string `json:"node,omitempty"`
}

// Send POST /api/messages/send
func (h *Handler) Send(c *gin.Context) {
	var body sendBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, errs.ErrValidation.WrapMsg("malformed request body"))
		return
	}
	m, err := h.d.Send(c.Request.Context(), chatsvc.SendRequest{
		SenderID:   midsec.UserID(c),
		ReceiverID: body.ReceiverID,
		Text:       body.Text,
		Image:      body.Image,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, global.Success(m))
}

// History GET /api/messages/:userId?before=<RFC3339>&limit=<n>
func (h *Handler) History(c *gin.Context) {
	q, err := parseHistoryQuery(c)
	if err != nil {
		fail(c, err)
		return
	}
	msgs, err := h.d.History(c.Request.Context(), midsec.UserID(c), c.Param("userId"), q)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, global.Success(msgs))
}

// Online GET /api/presence/online[?scope=cluster]
// 默认返回本节点的在线集合；scope=cluster 时读 Redis 镜像。
func (h *Handler) Online(c *gin.Context) {
	switch c.DefaultQuery("scope", "local") {
	case "local":
		c.JSON(http.StatusOK, global.Success(h.reg.OnlineUserIDs()))
	case "cluster":
		if h.mirror == nil {
			c.JSON(http.StatusOK, global.Success(h.reg.OnlineUserIDs()))
			return
		}
		users, err := h.mirror.OnlineUsers(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		sort.Strings(users)
		c.JSON(http.StatusOK, global.Success(users))
	default:
		fail(c, errs.ErrValidation.WrapMsg("scope must be local or cluster", "scope", c.Query("scope")))
	}
}

// Presence GET /api/presence/:userId 本节点优先，其次查镜像得到所在节点。
func (h *Handler) Presence(c *gin.Context) {
	userID := c.Param("userId")
	if h.reg.IsOnline(userID) {
		c.JSON(http.StatusOK, global.Success(UserPresence{UserID: userID, Online: true, Node: h.nodeID}))
		return
	}
	out := UserPresence{UserID: userID}
	if h.mirror != nil {
		node, online, err := h.mirror.Lookup(c.Request.Context(), userID)
		if err != nil {
			fail(c, err)
			return
		}
		out.Online, out.Node = online, node
	}
	c.JSON(http.StatusOK, global.Success(out))
}

func parseHistoryQuery(c *gin.Context) (chatmsg.HistoryQuery, error) {
	var q chatmsg.HistoryQuery
	if s := strings.TrimSpace(c.Query("before")); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return q, errs.ErrValidation.WrapMsg("before must be an RFC3339 timestamp", "before", s)
		}
		q.Before = t
	}
	if s := strings.TrimSpace(c.Query("limit")); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return q, errs.ErrValidation.WrapMsg("limit must be a non-negative integer", "limit", s)
		}
		q.Limit = n
	}
	return q.Normalize(), nil
}

func fail(c *gin.Context, err error) {
	c.AbortWithStatusJSON(errs.HTTPStatus(err), global.Fail(err))
}
