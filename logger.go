package modinject

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger used by the container. Arguments after the
// message are key-value pairs:
//
//	logger.Info("Module dependencies initialized", "module", "CatsModule")
type Logger interface {
	// Info logs normal lifecycle events such as module initialization.
	Info(msg string, args ...any)

	// Error logs failures.
	Error(msg string, args ...any)

	// Warn logs unusual conditions that do not stop the bootstrap.
	Warn(msg string, args ...any)

	// Debug logs per-provider detail.
	Debug(msg string, args ...any)
}

type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger adapts a zap logger.
func NewZapLogger(logger *zap.Logger) Logger {
	return &zapLogger{sugar: logger.Sugar()}
}

func (l *zapLogger) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l *zapLogger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }
func (l *zapLogger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l *zapLogger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }

// NopLogger returns a logger that discards everything.
func NopLogger() Logger {
	return NewZapLogger(zap.NewNop())
}

// NewLoggerFromConfig builds a zap logger at the configured level. Format
// "console" selects the human-readable development encoder, anything else
// JSON.
func NewLoggerFromConfig(cfg LoggingConfig) (Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("parsing log level: %w", err)
		}
		level = parsed
	}

	var zc zap.Config
	if strings.EqualFold(cfg.Format, "console") {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return NewZapLogger(logger), nil
}
