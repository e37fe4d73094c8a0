package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromZap_WritesKeyValues(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := FromZap(zap.New(core)).With("room_id", "r1")

	log.Debug("hidden")
	log.Warn("Dropping slow subscriber", "connection_id", "c1")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "Dropping slow subscriber", entries[0].Message)
	assert.Equal(t, map[string]interface{}{"room_id": "r1", "connection_id": "c1"}, entries[0].ContextMap())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel(" warning "))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}
