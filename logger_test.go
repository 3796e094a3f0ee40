package modinject

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(core))

	logger.Info("Module dependencies initialized", "module", "CatsModule")
	logger.Warn("slow provider", "provider", "*cats.Service")
	logger.Error("failed", "error", "boom")
	logger.Debug("resolved")

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "Module dependencies initialized", entries[0].Message)
	assert.Equal(t, "CatsModule", entries[0].ContextMap()["module"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, zapcore.DebugLevel, entries[3].Level)
}

func TestNewLoggerFromConfig(t *testing.T) {
	for _, cfg := range []LoggingConfig{
		{},
		{Level: "debug", Format: "console"},
		{Level: "warn", Format: "json"},
	} {
		logger, err := NewLoggerFromConfig(cfg)
		require.NoError(t, err)
		assert.NotNil(t, logger)
	}

	_, err := NewLoggerFromConfig(LoggingConfig{Level: "loud"})
	assert.ErrorContains(t, err, "parsing log level")
}
