package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beacon-news/analyzer/golang/internal/ports"
)

func TestNewLogrusLoggerLevels(t *testing.T) {
	for _, level := range []string{"trace", "debug", "info", "warn", "error", "fatal", "unknown"} {
		logr, err := NewLogrusLogger(level, "json")
		require.NoError(t, err)
		require.NotNil(t, logr)
	}
}

func TestNewLogrusLoggerFormats(t *testing.T) {
	for _, format := range []string{"json", "text", ""} {
		logr, err := NewLogrusLogger("info", format)
		require.NoError(t, err)
		require.NotNil(t, logr)
	}
}

func TestLoggingDoesNotPanic(t *testing.T) {
	logr, err := NewLogrusLogger("fatal", "text")
	require.NoError(t, err)

	logr.Trace("trace", String("k", "v"))
	logr.Debug("debug", Int("n", 1))
	logr.Info("info", Any("v", struct{}{}))
	logr.Warn("warn", Error(errors.New("e")))
	logr.Error("error")
}

func TestWithFieldsReturnsScopedLogger(t *testing.T) {
	logr, err := NewLogrusLogger("fatal", "text")
	require.NoError(t, err)

	scoped := logr.WithFields(ports.Field{Key: "component", Value: "test"})
	require.NotNil(t, scoped)
	assert.NotSame(t, logr, scoped)
	scoped.Info("scoped message")
}

func TestConvertToLogrusFields(t *testing.T) {
	fields := convertToLogrusFields([]ports.Field{
		{Key: "a", Value: 1},
		{Key: "b", Value: "x"},
	})

	assert.Equal(t, 1, fields["a"])
	assert.Equal(t, "x", fields["b"])
}

func TestFieldHelpers(t *testing.T) {
	assert.Equal(t, ports.Field{Key: "k", Value: "v"}, String("k", "v"))
	assert.Equal(t, ports.Field{Key: "n", Value: 7}, Int("n", 7))

	err := errors.New("e")
	assert.Equal(t, ports.Field{Key: "error", Value: err}, Error(err))
	assert.Equal(t, ports.Field{Key: "any", Value: 1.5}, Any("any", 1.5))
}
