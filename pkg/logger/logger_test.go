package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("ERROR"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("chatty"))
}

func TestChildLoggersCarryFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &Logger{Logger: zap.New(core)}

	l.Named("orchestrator").ForMeeting("m1").ForAgent("alice").WithRequest("req-1", "user-9").Info("joined")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "orchestrator", entry.LoggerName)
	assert.Equal(t, map[string]interface{}{
		"meeting_id":     "m1",
		"agent_id":       "alice",
		"correlation_id": "req-1",
		"user_id":        "user-9",
	}, entry.ContextMap())
}

func TestGlobal(t *testing.T) {
	prev := Global()
	t.Cleanup(func() { SetGlobal(prev) })

	nop := NewNop()
	SetGlobal(nop)
	assert.Same(t, nop, Global())
	assert.Same(t, nop, OrGlobal(nil))

	SetGlobal(nil)
	assert.Same(t, nop, Global(), "nil does not replace the global logger")

	own := NewNop()
	assert.Same(t, own, OrGlobal(own))
}
