package safe

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
	"gopherex.com/livefeed/pkg/logger"
)

// Go 安全启动协程
func Go(fn func()) {
	go func() {
		defer Recover(context.Background(), "goroutine")
		fn()
	}()
}

// GoCtx 安全启动携带 context 的协程，日志里保留链路信息
func GoCtx(ctx context.Context, fn func(ctx context.Context)) {
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		defer Recover(ctx, "goroutine")
		fn(ctx)
	}()
}

// Recover 必须直接 defer 调用
func Recover(ctx context.Context, where string) {
	if r := recover(); r != nil {
		logPanic(ctx, where, r)
	}
}

// Call 执行 fn，把 panic 转成 error 返回
func Call(ctx context.Context, where string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logPanic(ctx, where, r)
			err = fmt.Errorf("%s: panic: %v", where, r)
		}
	}()
	fn()
	return nil
}

func logPanic(ctx context.Context, where string, r any) {
	stack := string(debug.Stack())
	if logger.Log != nil {
		logger.Error(ctx, "🚨 PANIC RECOVERED",
			zap.String("where", where),
			zap.Any("panic", r),
			zap.String("stack", stack),
		)
		return
	}
	fmt.Printf("🚨 PANIC in %s: %v\nStack: %s\n", where, r, stack)
}
