package events

import (
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	var l watermill.LoggerAdapter = NewZapLogger(zap.New(core))

	l = l.With(watermill.LogFields{"topic": TopicLogout})
	l.Info("published", watermill.LogFields{"uuid": "m1"})
	l.Trace("tick", nil)
	l.Error("publish failed", errors.New("boom"), nil)

	entries := logs.All()
	require.Len(t, entries, 3)

	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, TopicLogout, entries[0].ContextMap()["topic"])
	assert.Equal(t, "m1", entries[0].ContextMap()["uuid"])

	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)

	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "boom", entries[2].ContextMap()["error"])
}
