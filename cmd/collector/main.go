package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"tradeflow.com/internal/collector"
	"tradeflow.com/pkg/config"
	"tradeflow.com/pkg/logger"
	"tradeflow.com/pkg/trace"
)

func main() {
	// 收到 SIGINT/SIGTERM 时取消 ctx，各组件依次退出
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 配置监听在 app 建好之前就可能回调
	var app atomic.Pointer[collector.App]
	cfg, _, err := config.LoadAndWatch("collector", func(next *collector.Cfg) {
		if a := app.Load(); a != nil {
			a.Reload(next)
		}
	})
	if err != nil {
		panic(fmt.Sprintf("加载配置出错 %+v", err))
	}

	a, err := collector.New(cfg)
	if err != nil {
		panic(fmt.Sprintf("配置校验失败 %+v", err))
	}
	app.Store(a)

	c := a.Config()
	logger.InitWithFile(c.Name, c.LogLevel, c.LogFile)
	defer logger.Sync()

	if c.Otel.Enabled {
		shutdown, err := trace.InitTrace(c.Name, c.Otel.Addr)
		if err != nil {
			logger.Fatal(ctx, "init trace", zap.Error(err))
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
	}

	if err := a.Run(ctx); err != nil {
		logger.Error(ctx, "collector stopped with error", zap.Error(err))
		return
	}
	logger.Info(ctx, "collector stopped")
}
