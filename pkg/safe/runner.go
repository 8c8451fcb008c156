package safe

import (
	"context"
	"runtime/debug"

	"go.uber.org/zap"
	"gopherdex.com/pkg/logger"
)

// Go 启动协程，panic 只记日志不带崩进程
func Go(fn func()) {
	go func() {
		defer recoverLog(context.Background())
		fn()
	}()
}

// GoCtx 带 context 的版本，日志里保留 trace/request id
func GoCtx(ctx context.Context, fn func(ctx context.Context)) {
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		defer recoverLog(ctx)
		fn(ctx)
	}()
}

func recoverLog(ctx context.Context) {
	if r := recover(); r != nil {
		logger.Error(ctx, "goroutine panic recovered",
			zap.Any("panic", r),
			zap.ByteString("stack", debug.Stack()),
		)
	}
}
