package chat

import (
	"context"
	"sync"

	"PPRelay/logger"
	"PPRelay/service/presence"
	"PPRelay/tools/ids"
	"PPRelay/tools/safe"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// IdentityResolver bearer 令牌 -> 用户ID
type IdentityResolver interface {
	Resolve(token string) (string, error)
}

type Server struct {
	reg      *presence.Registry
	bc       *Broadcaster
	router   *FrameRouter
	resolver IdentityResolver
	conf     ConnConf
	log      *zap.Logger

	// 已接入的连接，注册前就在这里，关停时据此关闭
	mu      sync.Mutex
	conns   map[*WsConn]struct{}
	closing bool
	wg      sync.WaitGroup
}

func NewServer(reg *presence.Registry, bc *Broadcaster, resolver IdentityResolver, conf ConnConf) *Server {
	safe.MustNotNil(reg, "registry")
	safe.MustNotNil(bc, "broadcaster")
	safe.MustNotNil(resolver, "resolver")
	conf.norm()
	return &Server{
		reg:      reg,
		bc:       bc,
		router:   NewFrameRouter(),
		resolver: resolver,
		conf:     conf,
		conns:    make(map[*WsConn]struct{}),
		log:      logger.Named("ws"),
	}
}

func (s *Server) Router() *FrameRouter { return s.router }

func (s *Server) Registry() *presence.Registry { return s.reg }

// Serve 接管一条已升级、已认证的连接，阻塞到连接结束。
func (s *Server) Serve(ws *websocket.Conn, userID string) {
	c := NewWsConn(ids.GenerateString(), userID, ws, s.conf)
	if !s.admit(c) {
		_ = ws.Close()
		return
	}
	defer s.release(c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writerDone := make(chan struct{})
	safe.Go("ws-write", func() {
		defer close(writerDone)
		c.writePump()
	})

	s.Connect(c)
	c.readPump(func(data []byte) {
		s.router.Route(ctx, c, data)
	})
	s.Disconnect(c)
	<-writerDone
}

// admit 关停开始后不再接入；接入与关停在同一把锁下判断，不会漏关。
func (s *Server) admit(c *WsConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) release(c *WsConn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.wg.Done()
}

// Connect 注册连接。成员变化时由 Broadcaster 广播（包含这条连接）；
// 否则单独给它发一份当前在线集合。
func (s *Server) Connect(c *WsConn) {
	became := s.reg.Register(c.UserID(), c)
	s.log.Info("connected", zap.String("user", c.UserID()), zap.String("conn", c.ID()), zap.Bool("becameOnline", became))
	if became {
		return
	}
	if err := s.bc.SendSnapshot(c); err != nil {
		s.log.Error("send online snapshot", zap.String("conn", c.ID()), zap.Error(err))
	}
}

// Disconnect 每条连接只注销一次。
func (s *Server) Disconnect(c *WsConn) {
	c.unregOnce.Do(func() {
		_ = c.Close()
		went := s.reg.Unregister(c.UserID(), c)
		s.log.Info("disconnected", zap.String("user", c.UserID()), zap.String("conn", c.ID()), zap.Bool("wentOffline", went))
	})
}

// Shutdown 关闭所有连接并等待它们退出。
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	conns := make([]*WsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type Stats struct {
	OnlineUsers int   `json:"onlineUsers"`
	Handles     int   `json:"handles"`
	Broadcasts  int64 `json:"broadcasts"`
}

func (s *Server) Stats() Stats {
	return Stats{
		OnlineUsers: s.reg.Len(),
		Handles:     s.reg.HandleCount(),
		Broadcasts:  s.bc.Broadcasts(),
	}
}
