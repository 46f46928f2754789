package chat

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"PPRelay/logger"
	"PPRelay/service/natsx"
	"PPRelay/service/presence"
	"PPRelay/tools/safe"

	"go.uber.org/zap"
)

const sideEffectTimeout = 3 * time.Second

// Broadcaster 在线集合变化时把 onlineUsers 推给所有连接。
// 成员不变（同一用户多开/关一个标签页）不广播。
type Broadcaster struct {
	reg    *presence.Registry
	fanout *Fanout
	mirror presence.Mirror
	pub    Publisher
	nodeID string
	log    *zap.Logger

	mu         sync.Mutex // 快照与提交串行，广播顺序即状态顺序
	broadcasts atomic.Int64

	side     chan presence.Transition
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewBroadcaster(reg *presence.Registry, fanout *Fanout, mirror presence.Mirror, pub Publisher, nodeID string) *Broadcaster {
	if mirror == nil {
		mirror = presence.NopMirror{}
	}
	if pub == nil {
		pub = NopPublisher{}
	}
	b := &Broadcaster{
		reg:    reg,
		fanout: fanout,
		mirror: mirror,
		pub:    pub,
		nodeID: nodeID,
		log:    logger.Named("broadcaster"),
		side:   make(chan presence.Transition, 1024),
		stop:   make(chan struct{}),
	}
	reg.OnTransition(b.onTransition)
	fanout.OnFail(b.evict)
	b.wg.Add(1)
	safe.Go("presence-side-effects", func() {
		defer b.wg.Done()
		b.runSideEffects()
	})
	return b
}

func (b *Broadcaster) onTransition(t presence.Transition) {
	b.mu.Lock()
	users := b.reg.OnlineUserIDs()
	frame, err := EncodeFrame(EventOnlineUsers, users)
	if err == nil {
		b.fanout.Broadcast(b.reg.AllHandles(), frame)
		b.broadcasts.Add(1)
	}
	b.mu.Unlock()
	if err != nil {
		b.log.Error("encode onlineUsers", zap.Error(err))
		return
	}

	select {
	case b.side <- t:
	default:
		b.log.Warn("presence side-effect queue full, dropping", zap.String("user", t.UserID), zap.Bool("online", t.Online))
	}
}

// evict 推送失败的连接视为已断开。worker 里不能同步注销：
// 注销会回到 onTransition 抢 b.mu，而持锁方可能正等这个 worker 的队列。
func (b *Broadcaster) evict(h Handle, err error) {
	b.log.Debug("broadcast delivery failed", zap.String("conn", h.ID()), zap.String("user", h.UserID()), zap.Error(err))
	safe.Go("evict-handle", func() {
		_ = h.Close()
		b.reg.Unregister(h.UserID(), h)
	})
}

// SendSnapshot 给单个连接发当前在线集合。与广播同锁、同走 fanout，
// 这样该连接收到的 onlineUsers 帧顺序与状态变化顺序一致。
func (b *Broadcaster) SendSnapshot(h Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	frame, err := EncodeFrame(EventOnlineUsers, b.reg.OnlineUserIDs())
	if err != nil {
		return err
	}
	b.fanout.Broadcast([]Handle{h}, frame)
	return nil
}

// Broadcasts 已触发的广播次数
func (b *Broadcaster) Broadcasts() int64 { return b.broadcasts.Load() }

// 镜像与事件都涉及 I/O，放到单独协程里按顺序执行
func (b *Broadcaster) runSideEffects() {
	for {
		select {
		case <-b.stop:
			return
		case t := <-b.side:
			b.applySideEffects(t)
		}
	}
}

// applySideEffects 以执行时的注册表状态为准：通知在释放分片锁之后发出，
// 同一用户的上线/下线通知可能乱序到达。
func (b *Broadcaster) applySideEffects(t presence.Transition) {
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	t.Online = b.reg.IsOnline(t.UserID)
	var err error
	if t.Online {
		err = b.mirror.SetOnline(ctx, t.UserID)
	} else {
		err = b.mirror.SetOffline(ctx, t.UserID)
	}
	if err != nil {
		b.log.Warn("presence mirror update failed", zap.String("user", t.UserID), zap.Error(err))
	}

	ev := PresenceEvent{UserID: t.UserID, Online: t.Online, OnlineUsers: b.reg.OnlineUserIDs(), Node: b.nodeID}
	if err := b.pub.PublishJSON(ctx, natsx.BizPresenceChanged, ev, map[string]string{HeaderRelayNode: b.nodeID}); err != nil {
		b.log.Warn("publish presence event failed", zap.String("user", t.UserID), zap.Error(err))
	}
}

func (b *Broadcaster) Close() {
	b.stopOnce.Do(func() { close(b.stop) })
	b.wg.Wait()
}
