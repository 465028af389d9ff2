package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapLogger zap 日志实现.
type zapLogger struct {
	logger *zap.Logger
	sugar  *zap.SugaredLogger
	closer io.Closer
}

// newZapLogger 创建 zap logger，w 非空时忽略 Output 配置.
func newZapLogger(config *Config, w io.Writer) (Logger, error) {
	var (
		sink   zapcore.WriteSyncer
		closer io.Closer
	)

	switch {
	case w != nil:
		sink = zapcore.AddSync(w)
	case strings.EqualFold(config.Output, OutputStderr):
		sink = zapcore.Lock(os.Stderr)
	case strings.EqualFold(config.Output, OutputFile):
		file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, &ConfigError{Field: "file_path", Message: "failed to open log file: " + err.Error()}
		}
		sink = zapcore.AddSync(file)
		closer = file
	default:
		sink = zapcore.Lock(os.Stdout)
	}

	core := zapcore.NewCore(buildEncoder(config), sink, parseLevel(config.Level))

	var options []zap.Option
	if config.EnableCaller {
		options = append(options, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	if config.EnableStacktrace {
		options = append(options, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	zapLog := zap.New(core, options...).With(zap.String("service", config.ServiceName))

	return &zapLogger{
		logger: zapLog,
		sugar:  zapLog.Sugar(),
		closer: closer,
	}, nil
}

// NewNop 返回丢弃所有输出的 logger.
func NewNop() Logger {
	l := zap.NewNop()
	return &zapLogger{logger: l, sugar: l.Sugar()}
}

func (z *zapLogger) Debug(args ...any)                 { z.sugar.Debug(args...) }
func (z *zapLogger) Debugf(format string, args ...any) { z.sugar.Debugf(format, args...) }
func (z *zapLogger) Info(args ...any)                  { z.sugar.Info(args...) }
func (z *zapLogger) Infof(format string, args ...any)  { z.sugar.Infof(format, args...) }
func (z *zapLogger) Warn(args ...any)                  { z.sugar.Warn(args...) }
func (z *zapLogger) Warnf(format string, args ...any)  { z.sugar.Warnf(format, args...) }
func (z *zapLogger) Error(args ...any)                 { z.sugar.Error(args...) }
func (z *zapLogger) Errorf(format string, args ...any) { z.sugar.Errorf(format, args...) }

// With 返回带有附加字段的 logger.
func (z *zapLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return z
	}
	zapFields := make([]zap.Field, len(fields))
	for i, f := range fields {
		zapFields[i] = toZapField(f)
	}
	l := z.logger.With(zapFields...)
	return &zapLogger{logger: l, sugar: l.Sugar(), closer: z.closer}
}

// toZapField 将 Field 转换为 zap.Field.
func toZapField(f Field) zap.Field {
	switch v := f.Value.(type) {
	case string:
		return zap.String(f.Key, v)
	case []string:
		return zap.Strings(f.Key, v)
	case int:
		return zap.Int(f.Key, v)
	case int64:
		return zap.Int64(f.Key, v)
	case float64:
		return zap.Float64(f.Key, v)
	case bool:
		return zap.Bool(f.Key, v)
	case time.Time:
		return zap.Time(f.Key, v)
	case time.Duration:
		return zap.Duration(f.Key, v)
	case error:
		return zap.NamedError(f.Key, v)
	default:
		return zap.Reflect(f.Key, v)
	}
}

// WithContext 返回带有 context 中请求 ID 与 traceId 的 logger.
func (z *zapLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return z
	}

	var fields []Field
	if id, ok := ctx.Value(RequestIDKey).(string); ok && id != "" {
		fields = append(fields, Field{Key: "requestId", Value: id})
	}
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok && traceID != "" {
		fields = append(fields, Field{Key: "traceId", Value: traceID})
	}
	return z.With(fields...)
}

// Sync 同步日志缓冲区.
func (z *zapLogger) Sync() error {
	return z.logger.Sync()
}

// Close 同步并关闭文件输出.
func (z *zapLogger) Close() error {
	// stdout 的 sync 错误可以忽略: https://github.com/uber-go/zap/issues/328
	_ = z.logger.Sync()
	if z.closer != nil {
		return z.closer.Close()
	}
	return nil
}

// String 创建字符串字段.
func String(key, value string) Field { return Field{Key: key, Value: value} }

// Strings 创建字符串切片字段.
func Strings(key string, value []string) Field { return Field{Key: key, Value: value} }

// Int 创建整数字段.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Int64 创建 int64 字段.
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

// Bool 创建布尔字段.
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Time 创建时间字段.
func Time(key string, value time.Time) Field { return Field{Key: key, Value: value} }

// Duration 创建持续时间字段.
func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }

// Err 创建错误字段.
func Err(err error) Field { return Field{Key: "error", Value: err} }

// Any 创建任意类型字段.
func Any(key string, value any) Field { return Field{Key: key, Value: value} }
