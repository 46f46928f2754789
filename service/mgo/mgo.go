package mgo

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"PPRelay/data/database/mgo/mongoutil"
	"PPRelay/logger"
	"PPRelay/tools/errs"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const (
	baseBackoff = 200 * time.Millisecond
	maxBackoff  = 5 * time.Second
	healthEvery = 10 * time.Second // 健康检查周期
	failThresh  = 3                // 连续失败阈值
)

// Manager 持有 Mongo 连接：首次连上后 close readyCh，掉线自动重连。
type Manager struct {
	cfg *mongoutil.Config

	mu        sync.RWMutex
	client    *mongoutil.Client
	readyCh   chan struct{}
	readyOnce sync.Once

	healthy atomic.Bool
	lastErr atomic.Value // error
	onHealth func(bool)
}

func NewManager(cfg *mongoutil.Config) *Manager {
	return &Manager{cfg: cfg, readyCh: make(chan struct{})}
}

// OnHealth 在健康状态变化时回调（例如同步到 gRPC health）。需在 Start 前设置。
func (m *Manager) OnHealth(f func(ok bool)) { m.onHealth = f }

// Start 一直运行到 ctx.Done()
func (m *Manager) Start(ctx context.Context) {
	go m.run(ctx)
}

func (m *Manager) run(ctx context.Context) {
	log := logger.Named("mgo")
	for {
		// ===== 连接阶段（带退避重试） =====
		attempt := 0
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			cli, err := mongoutil.NewMongoDB(ctx, m.cfg)
			if err == nil {
				m.mu.Lock()
				m.client = cli
				m.mu.Unlock()
				m.setHealthy(true)
				m.readyOnce.Do(func() { close(m.readyCh) })
				log.Info("mongo connected", zap.String("database", m.cfg.Database))
				break
			}

			m.lastErr.Store(err)
			log.Warn("mongo connect failed", zap.Int("attempt", attempt), zap.Error(err))

			if !sleepCtx(ctx, backoff(attempt)) {
				return
			}
			if attempt < 6 {
				attempt++
			}
		}

		// ===== 健康检查阶段（保持/掉线→重连）=====
		if !m.watch(ctx) {
			return
		}
	}
}

// watch 返回 false 表示 ctx 结束，true 表示需要重连。
func (m *Manager) watch(ctx context.Context) bool {
	fail := 0
	ticker := time.NewTicker(healthEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.drop()
			return false
		case <-ticker.C:
			m.mu.RLock()
			c := m.client
			m.mu.RUnlock()
			if c == nil {
				return true
			}
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err == nil {
				fail = 0
				m.setHealthy(true)
				continue
			}
			fail++
			m.lastErr.Store(err)
			m.setHealthy(false)
			if fail >= failThresh {
				logger.Warn("mongo unhealthy, reconnecting", zap.Error(err))
				m.drop()
				return true
			}
		}
	}
}

func (m *Manager) drop() {
	m.mu.Lock()
	if m.client != nil {
		_ = m.client.Disconnect(context.Background())
		m.client = nil
	}
	m.mu.Unlock()
	m.setHealthy(false)
}

func (m *Manager) setHealthy(ok bool) {
	if m.healthy.Swap(ok) != ok && m.onHealth != nil {
		m.onHealth(ok)
	}
}

func (m *Manager) Healthy() bool { return m.healthy.Load() }

// Ready 首次连接成功时会 close
func (m *Manager) Ready() <-chan struct{} { return m.readyCh }

// Err 最近一次错误
func (m *Manager) Err() error {
	if v := m.lastErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// DB 只在已连接时返回 true。
func (m *Manager) DB() (*mongo.Database, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil {
		return nil, false
	}
	return m.client.GetDB(), true
}

// WaitReady 阻塞到首次连接成功或 ctx 结束。
func (m *Manager) WaitReady(ctx context.Context) (*mongo.Database, error) {
	select {
	case <-m.readyCh:
		if db, ok := m.DB(); ok {
			return db, nil
		}
		return nil, errs.ErrStorage.WrapMsg("mongo connection lost")
	case <-ctx.Done():
		return nil, errs.ErrStorage.Cause(ctx.Err(), "wait mongo ready", "last", m.Err())
	}
}

func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil
	}
	err := m.client.Disconnect(ctx)
	m.client = nil
	return err
}

// 退避 + 抖动
func backoff(attempt int) time.Duration {
	b := baseBackoff << attempt
	if b > maxBackoff {
		b = maxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(b / 5))) // 0~20%
	return b - jitter/2
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
