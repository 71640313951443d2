package logger

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TraceIdKey TraceID 在 Context 中的 Key
const TraceIdKey = "trace_id"

// Log 全局 Logger 实例；Init 之前是 Nop，库代码和测试直接调用也不会 panic
var Log = zap.NewNop()

// level 支持热更新（配置文件里改 log_level 不用重启）
var level = zap.NewAtomicLevelAt(zap.InfoLevel)

// Init 初始化日志组件
// serviceName: 进程名称 (例如 "collector")
// lvl: 日志级别 (debug, info, warn, error)
func Init(serviceName string, lvl string) {
	InitWithFile(serviceName, lvl, "")
}

// InitWithFile 初始化日志组件，logFile 为空时使用 logs/{serviceName}.log
func InitWithFile(serviceName string, lvl string, logFile string) {
	SetLevel(lvl)

	// 控制台 + 文件
	writeSyncers := []zapcore.WriteSyncer{
		zapcore.AddSync(os.Stdout),
	}
	if logFile == "" {
		logFile = filepath.Join("logs", serviceName+".log")
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err == nil {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			writeSyncers = append(writeSyncers, zapcore.AddSync(file))
		}
		// 打不开文件就只输出到控制台，不中断程序
	}

	build(serviceName, zapcore.NewMultiWriteSyncer(writeSyncers...))
}

// InitWithWriter 把日志写到任意 writer（测试里用 bytes.Buffer 劫持输出）
func InitWithWriter(serviceName string, lvl string, w io.Writer) {
	SetLevel(lvl)
	build(serviceName, zapcore.AddSync(w))
}

func build(serviceName string, ws zapcore.WriteSyncer) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.MessageKey = "msg"

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), ws, level)

	// AddCallerSkip(1)：封装了一层，否则行号永远指向 logger.go
	Log = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).
		With(zap.String("service", serviceName))
}

// SetLevel 动态调整日志级别，非法值按 info 处理
func SetLevel(lvl string) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(lvl)); err != nil {
		zapLevel = zap.InfoLevel
	}
	level.SetLevel(zapLevel)
}

// Enabled 热路径上先判断级别，避免拼装大量 Debug 字段
func Enabled(lvl zapcore.Level) bool {
	return Log.Core().Enabled(lvl)
}

// ---------------------------------------------------------
// 带 Context 的日志方法
// ---------------------------------------------------------

func Info(ctx context.Context, msg string, fields ...zap.Field) {
	extractTrace(ctx, &fields)
	Log.Info(msg, fields...)
}

func Error(ctx context.Context, msg string, fields ...zap.Field) {
	extractTrace(ctx, &fields)
	Log.Error(msg, fields...)
}

func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	extractTrace(ctx, &fields)
	Log.Warn(msg, fields...)
}

func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	extractTrace(ctx, &fields)
	Log.Debug(msg, fields...)
}

// Fatal 会调用 os.Exit
func Fatal(ctx context.Context, msg string, fields ...zap.Field) {
	extractTrace(ctx, &fields)
	Log.Fatal(msg, fields...)
}

// WithTrace 给 ctx 挂上 trace_id（每个 tick / 每个请求一份）
func WithTrace(ctx context.Context, traceID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, TraceIdKey, traceID)
}

func extractTrace(ctx context.Context, fields *[]zap.Field) {
	if ctx == nil {
		return
	}
	if traceID, ok := ctx.Value(TraceIdKey).(string); ok && traceID != "" {
		*fields = append(*fields, zap.String("trace_id", traceID))
	}
}

// Sync 刷新缓冲区 (main 里 defer 调用)
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}
