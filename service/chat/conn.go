package chat

import (
	"net"
	"sync"
	"time"

	"PPRelay/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ConnConf 连接级参数，零值取默认。
type ConnConf struct {
	SendQueueSize  int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration // 必须小于 PongWait
	MaxMessageSize int64
}

func (c *ConnConf) norm() {
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 256
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 64 * 1024
	}
}

// WsConn 一条 WebSocket 连接：读协程 + 写协程，出站帧走独立队列。
type WsConn struct {
	SnowID string
	UserId string
	Remote net.Addr

	CreatedAt time.Time

	conn *websocket.Conn
	conf ConnConf
	send chan []byte // 每连接独立发送队列，消费者只有写协程

	closeOnce sync.Once
	done      chan struct{}
	unregOnce sync.Once
}

func NewWsConn(snowID, userID string, conn *websocket.Conn, conf ConnConf) *WsConn {
	conf.norm()
	return &WsConn{
		SnowID:    snowID,
		UserId:    userID,
		Remote:    conn.RemoteAddr(),
		CreatedAt: time.Now(),
		conn:      conn,
		conf:      conf,
		send:      make(chan []byte, conf.SendQueueSize),
		done:      make(chan struct{}),
	}
}

func (c *WsConn) ID() string     { return c.SnowID }
func (c *WsConn) UserID() string { return c.UserId }

// Send 只入队，不阻塞。连接关闭或队列满时返回 ErrHandleClosed。
func (c *WsConn) Send(frame []byte) error {
	select {
	case <-c.done:
		return ErrHandleClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrHandleClosed
	default:
		return ErrSendQueueFull
	}
}

// Close 幂等；写协程收到后发 close 帧并关闭底层连接。
func (c *WsConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *WsConn) Done() <-chan struct{} { return c.done }

// readPump 阻塞直到连接出错或被关闭。
func (c *WsConn) readPump(onFrame func(data []byte)) {
	c.conn.SetReadLimit(c.conf.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.conf.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.conf.PongWait))
	})
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				logger.Debug("ws read error", zap.String("conn", c.SnowID), zap.String("user", c.UserId), zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		onFrame(data)
	}
}

// writePump 唯一写者：业务帧优先，其次定时 ping。
func (c *WsConn) writePump() {
	ticker := time.NewTicker(c.conf.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(c.conf.WriteWait))
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.conf.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debug("ws write error", zap.String("conn", c.SnowID), zap.Error(err))
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.conf.WriteWait)); err != nil {
				logger.Debug("ws ping error", zap.String("conn", c.SnowID), zap.Error(err))
				_ = c.Close()
				return
			}
		}
	}
}
