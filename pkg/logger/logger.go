package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger defines structured logging interface
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
	With(args ...any) Logger
}

// ZapLogger implements Logger on top of a zap SugaredLogger
type ZapLogger struct {
	logger *zap.SugaredLogger
}

// Config holds logger settings
type Config struct {
	Level    string
	Encoding string
}

// New creates a new structured logger with the specified level and encoding
func New(cfg Config) Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	level := zapcore.InfoLevel
	if err := level.Set(cfg.Level); err != nil {
		level = zapcore.InfoLevel
	}

	var encoder zapcore.Encoder
	switch cfg.Encoding {
	case "console":
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	default:
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(zapcore.Lock(os.Stdout)), level)
	return FromZap(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)))
}

// FromZap wraps an existing zap logger
func FromZap(l *zap.Logger) Logger {
	return &ZapLogger{logger: l.Sugar()}
}

// Nop returns a logger that discards everything
func Nop() Logger {
	return FromZap(zap.NewNop())
}

// Info logs an informational message
func (l *ZapLogger) Info(msg string, args ...any) {
	l.logger.Infow(msg, args...)
}

// Error logs an error message
func (l *ZapLogger) Error(msg string, args ...any) {
	l.logger.Errorw(msg, args...)
}

// Warn logs a warning message
func (l *ZapLogger) Warn(msg string, args ...any) {
	l.logger.Warnw(msg, args...)
}

// Debug logs a debug message
func (l *ZapLogger) Debug(msg string, args ...any) {
	l.logger.Debugw(msg, args...)
}

// With returns a new logger with the specified attributes
func (l *ZapLogger) With(args ...any) Logger {
	return &ZapLogger{logger: l.logger.With(args...)}
}

// Sync flushes buffered entries
func (l *ZapLogger) Sync() error {
	return l.logger.Sync()
}

// Default returns a default logger instance
func Default() Logger {
	return New(Config{Level: "info"})
}
