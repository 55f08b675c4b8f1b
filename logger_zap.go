package users

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger adapts a zap.Logger to Logger. Arguments are key/value pairs.
type ZapLogger struct {
	log *zap.SugaredLogger
}

// NewZapLogger wraps base, a nil base yields a no-op logger
func NewZapLogger(base *zap.Logger) *ZapLogger {
	if base == nil {
		base = zap.NewNop()
	}
	return &ZapLogger{log: base.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (z *ZapLogger) Debug(msg string, args ...any) { z.log.Debugw(msg, pairs(args)...) }

func (z *ZapLogger) Info(msg string, args ...any) { z.log.Infow(msg, pairs(args)...) }

func (z *ZapLogger) Warn(msg string, args ...any) { z.log.Warnw(msg, pairs(args)...) }

func (z *ZapLogger) Error(msg string, args ...any) { z.log.Errorw(msg, pairs(args)...) }

// pairs drops a dangling key so zap does not complain about odd arguments
func pairs(args []any) []any {
	if len(args)%2 == 0 {
		return args
	}
	return append(args[:len(args)-1:len(args)-1], "extra", fmt.Sprint(args[len(args)-1]))
}

// NewZapBase builds the process logger from a level and an encoding
// ("json" or "console").
func NewZapBase(level, encoding string) *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl := zapcore.InfoLevel
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}

	var encoder zapcore.Encoder
	switch encoding {
	case "console":
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	default:
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), lvl)
	return zap.New(core, zap.AddCaller())
}
