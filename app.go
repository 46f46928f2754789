package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"PPRelay/data/database/mgo/mongoutil"
	"PPRelay/global"
	"PPRelay/global/config"
	"PPRelay/logger"
	mid "PPRelay/middleware"
	"PPRelay/middleware/ratelimit"
	midsec "PPRelay/middleware/security"
	chatmod "PPRelay/module/chat"
	chatmsg "PPRelay/module/chat/message"
	"PPRelay/module/user"
	usersvc "PPRelay/module/user/service"
	chatsvc "PPRelay/service/chat"
	"PPRelay/service/chat/handlers"
	mgosrv "PPRelay/service/mgo"
	"PPRelay/service/natsx"
	"PPRelay/service/presence"
	redisx "PPRelay/service/storage/redis"
	"PPRelay/tools/safe"
	"PPRelay/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	mongoStartupWait = 30 * time.Second
	shutdownWait     = 15 * time.Second
	idemTTL          = 5 * time.Minute
	healthService    = "pprelay.Relay"
)

type app struct {
	cfg *config.AppConfig

	mongo  *mgosrv.Manager
	rdb    *redis.Client
	nats   *natsx.NatsManager
	mirror presence.Mirror

	fanout *chatsvc.Fanout
	bc     *chatsvc.Broadcaster
	ws     *chatsvc.Server

	httpSrv *http.Server
	grpcSrv *grpc.Server
	health  *health.Server
}

func newApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	a := &app{cfg: cfg, health: health.NewServer(), mirror: presence.NopMirror{}}

	// 1) Mongo：消息与用户目录
	store, dir, err := a.initMongo(ctx)
	if err != nil {
		return nil, err
	}

	// 2) Redis：在线镜像 + 限流，可选
	var limiter *ratelimit.Limiter
	if cfg.RedisAddr != "" {
		rdb, err := redisx.NewClient(ctx, redisx.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			logger.Warn("redis unavailable, presence mirror and rate limit disabled", zap.Error(err))
		} else {
			a.rdb = rdb
			a.mirror = presence.NewRedisMirror(rdb, cfg.NodeID)
			limiter = ratelimit.NewLimiter(rdb, "relay:ratelimit:send:", cfg.SendRateLimit, cfg.SendRateWindow)
		}
	}

	// 3) NATS：跨节点事件，可选
	var pub chatsvc.Publisher = chatsvc.NopPublisher{}
	if len(cfg.NatsServers) > 0 {
		nm, err := natsx.NewNatsManager(
			natsx.NatsxConfig{Servers: cfg.NatsServers, Name: "pprelay-" + cfg.NodeID},
			natsx.DefaultRoutes(),
			natsx.NatsxRecoverMiddleware(),
			natsx.NatsxLogMiddleware(),
			natsx.NatsxIdemMiddleware(natsx.NewMemIdem(ctx, idemTTL), idemTTL),
		)
		if err != nil {
			a.closeStores(ctx)
			return nil, err
		}
		a.nats = nm
		pub = nm
	}

	// 4) relay 核心
	reg := presence.NewRegistry(cfg.PresenceShards)
	a.fanout = chatsvc.NewFanout(cfg.FanoutWorkers, cfg.FanoutQueue)
	a.bc = chatsvc.NewBroadcaster(reg, a.fanout, a.mirror, pub, cfg.NodeID)
	d := chatsvc.NewDispatcher(store, reg, chatsvc.DispatcherConf{NodeID: cfg.NodeID, Directory: dir, Publisher: pub})
	if a.nats != nil {
		if err := a.nats.Subscribe(ctx, natsx.BizMessagePersisted, d.HandleRemote); err != nil {
			a.close(ctx)
			return nil, err
		}
	}

	resolver := security.NewResolver(security.Options{Secret: []byte(cfg.JwtSecret), Alg: "HS256", TTL: cfg.JwtTTL})
	a.ws = chatsvc.NewServer(reg, a.bc, resolver, chatsvc.ConnConf{SendQueueSize: cfg.SendQueueSize})
	a.ws.Router().Register(handlers.NewPingHandler())
	a.ws.Router().Register(handlers.NewSendMessageHandler(d, handlers.WithLimiter(limiter)))

	// 5) HTTP
	a.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           a.routes(d, reg, dir, resolver, limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 6) gRPC health
	a.grpcSrv = grpc.NewServer()
	healthpb.RegisterHealthServer(a.grpcSrv, a.health)
	a.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return a, nil
}

// initMongo 等待 Mongo 就绪；debug 模式下连不上时退回内存实现，方便本地调试。
func (a *app) initMongo(ctx context.Context) (chatmsg.Store, usersvc.Directory, error) {
	a.mongo = mgosrv.NewManager(&mongoutil.Config{
		Uri:         a.cfg.MongoURI,
		Database:    a.cfg.MongoDatabase,
		Username:    a.cfg.MongoUsername,
		Password:    a.cfg.MongoPassword,
		MaxPoolSize: a.cfg.MongoMaxPoolSize,
		MaxRetry:    3,
	})
	a.mongo.OnHealth(func(ok bool) {
		st := healthpb.HealthCheckResponse_NOT_SERVING
		if ok {
			st = healthpb.HealthCheckResponse_SERVING
		}
		a.health.SetServingStatus(healthService, st)
	})
	a.mongo.Start(ctx)

	waitCtx, cancel := context.WithTimeout(ctx, mongoStartupWait)
	defer cancel()
	db, err := a.mongo.WaitReady(waitCtx)
	if err != nil {
		if a.cfg.IsRelease() {
			_ = a.mongo.Close(context.Background())
			return nil, nil, err
		}
		logger.Warn("mongo not ready, falling back to in-memory store", zap.Error(err))
		return chatmsg.NewMemoryStore(), usersvc.NewMemoryDirectory(), nil
	}

	store := chatmsg.NewMongoStore(db)
	if err := store.EnsureIndexes(ctx); err != nil {
		logger.Warn("ensure message indexes failed", zap.Error(err))
	}
	return store, usersvc.NewMongoDirectory(db), nil
}

func (a *app) routes(d *chatsvc.Dispatcher, reg *presence.Registry, dir usersvc.Directory, resolver *security.Resolver, limiter *ratelimit.Limiter) *gin.Engine {
	mid.Manager().Add(mid.Origin(a.cfg.AllowedOrigins))

	r := gin.New()
	r.Use(mid.Recovery(), mid.AccessLog(), mid.Manager().Use())

	r.GET("/ws", a.ws.HandleWS)
	r.GET("/health", func(c *gin.Context) {
		st := http.StatusOK
		if !a.mongo.Healthy() {
			st = http.StatusServiceUnavailable
		}
		c.JSON(st, global.Success(gin.H{"node": a.cfg.NodeID, "mongo": a.mongo.Healthy(), "redis": a.rdb != nil, "nats": a.nats != nil}))
	})
	r.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, global.Success(a.ws.Stats()))
	})

	rt := mid.NewRoutes(r.Group("/api"), mid.Guards{
		Auth:      midsec.Middleware(resolver, nil),
		RateLimit: ratelimit.Middleware(limiter, midsec.UserID),
	})
	var mirror presence.Mirror
	if a.rdb != nil {
		mirror = a.mirror
	}
	chatH := chatmod.NewHandler(d, reg, mirror, a.cfg.NodeID)
	userH := user.NewHandler(dir)
	rt.POST("/messages/send", chatH.Send, mid.RouteOpt{IsAuth: true, RateLimited: true})
	rt.GET("/messages/users", userH.List, mid.RouteOpt{IsAuth: true})
	rt.GET("/messages/:userId", chatH.History, mid.RouteOpt{IsAuth: true})
	rt.GET("/presence/online", chatH.Online, mid.RouteOpt{IsAuth: true})
	rt.GET("/presence/:userId", chatH.Presence, mid.RouteOpt{IsAuth: true})
	return r
}

// run 阻塞到 ctx 结束或某个监听失败，然后优雅关闭。
func (a *app) run(ctx context.Context) error {
	errCh := make(chan error, 2)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.GrpcPort))
	if err != nil {
		a.close(ctx)
		return err
	}
	safe.Go("grpc-serve", func() {
		logger.Info("[gRPC] listening", zap.Int("port", a.cfg.GrpcPort))
		if err := a.grpcSrv.Serve(lis); err != nil {
			errCh <- err
		}
	})
	safe.Go("http-serve", func() {
		logger.Info("[HTTP] listening", zap.Int("port", a.cfg.HTTPPort), zap.String("node", a.cfg.NodeID))
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	})

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
	}
	a.close(context.Background())
	return err
}

func (a *app) close(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, shutdownWait)
	defer cancel()

	a.health.Shutdown()
	if a.httpSrv != nil {
		_ = a.httpSrv.Shutdown(ctx)
	}
	// WebSocket 连接已被 hijack，不归 http.Server 管
	if a.ws != nil {
		if err := a.ws.Shutdown(ctx); err != nil {
			logger.Warn("websocket shutdown incomplete", zap.Error(err))
		}
	}
	if a.bc != nil {
		a.bc.Close()
	}
	if a.fanout != nil {
		a.fanout.Close()
	}
	if err := a.mirror.Clear(ctx); err != nil {
		logger.Warn("clear presence mirror failed", zap.Error(err))
	}
	if a.nats != nil {
		_ = a.nats.Close()
	}
	if a.grpcSrv != nil {
		a.grpcSrv.GracefulStop()
	}
	a.closeStores(ctx)
}

func (a *app) closeStores(ctx context.Context) {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.mongo != nil {
		_ = a.mongo.Close(ctx)
	}
}
