package mdsource

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
	"tradeflow.com/internal/quotes/kline"
	"tradeflow.com/pkg/logger"
	"tradeflow.com/pkg/metrics"
	"tradeflow.com/pkg/safe"
)

// Runner 把多个 Source 合并到一个 trade 流，断线后指数退避重连
type Runner struct {
	sources []Source

	// Out 是统一 trade 流出口（上层只消费这个）
	Out chan kline.Trade

	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func NewRunner(sources ...Source) *Runner {
	return &Runner{
		sources:     sources,
		Out:         make(chan kline.Trade, 64_000),
		BaseBackoff: 300 * time.Millisecond,
		MaxBackoff:  5 * time.Second,
	}
}

// Run 非阻塞；所有 source 退出后关闭 Out
func (r *Runner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, s := range r.sources {
		wg.Add(1)
		safe.GoRecover(ctx, func(ctx context.Context) {
			defer wg.Done()
			r.runOne(ctx, s)
		}, nil)
	}

	go func() {
		wg.Wait()
		close(r.Out)
	}()
}

func (r *Runner) runOne(ctx context.Context, src Source) {
	backoff := r.BaseBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		started := time.Now()
		err := src.Run(ctx, r.Out) // 阻塞直到断线/错误/ctx cancel
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		// 连接稳定跑过一段时间，退避归零
		if time.Since(started) > r.MaxBackoff*4 {
			backoff = r.BaseBackoff
		}

		metrics.SourceErrorsTotal.WithLabelValues(src.Name()).Inc()

		// 指数退避 + jitter（避免所有源同时重连造成尖峰）
		sleep := backoff + time.Duration(rand.Int64N(int64(backoff/2+1)))
		if sleep > r.MaxBackoff {
			sleep = r.MaxBackoff
		}
		logger.Warn(ctx, "market data source disconnected",
			zap.String("source", src.Name()), zap.Duration("retry_in", sleep), zap.Error(err))

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		backoff *= 2
		if backoff > r.MaxBackoff {
			backoff = r.MaxBackoff
		}
	}
}
