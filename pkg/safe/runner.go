package safe

import (
	"context"
	"runtime/debug"

	"go.uber.org/zap"
	"tradeflow.com/pkg/logger"
)

// Go 安全启动协程
func Go(fn func()) {
	GoRecover(context.Background(), func(context.Context) { fn() }, nil)
}

// GoCtx 安全启动携带 context 的协程，便于在日志中保留链路信息。
func GoCtx(ctx context.Context, fn func(ctx context.Context)) {
	GoRecover(ctx, fn, nil)
}

// GoRecover 与 GoCtx 相同，panic 时额外回调 onPanic。
// transport 用它保证一次 POST 无论如何都会落一个终态，不会永远 pending。
func GoRecover(ctx context.Context, fn func(ctx context.Context), onPanic func(r any)) {
	if ctx == nil {
		ctx = context.Background()
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(ctx, "🚨 GOROUTINE PANIC RECOVERED",
					zap.Any("panic", r),
					zap.String("stack", string(debug.Stack())),
				)
				if onPanic != nil {
					onPanic(r)
				}
			}
		}()

		fn(ctx)
	}()
}
