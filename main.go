package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"PPRelay/global/config"
	"PPRelay/logger"
	"PPRelay/tools/ids"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config failed", zap.Error(err))
		os.Exit(1)
	}
	logger.SetLevel(cfg.LogLevel)
	if cfg.IsRelease() {
		gin.SetMode(gin.ReleaseMode)
	}
	ids.SetNodeID(cfg.IDNode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		logger.Error("start relay failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	if err := a.run(ctx); err != nil {
		logger.Error("relay stopped with error", zap.Error(err))
	}
	logger.Sync()
}
