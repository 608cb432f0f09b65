package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" WARNING "))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo, Format: FormatJSON})

	log.Debug("hidden")
	log.With(Component("test")).Info("Quiz completed", QuizID("q1"), XP(80), Err(errors.New("boom")))
	require.NoError(t, log.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "Quiz completed", entry["message"])
	assert.Equal(t, "test", entry["component"])
	assert.Equal(t, "q1", entry["quiz_id"])
	assert.EqualValues(t, 80, entry["xp"])
	assert.Equal(t, "boom", entry["error"])
}

func TestObserverCore(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := New(Options{Core: core})

	log.Warn("slow", Operation("SubmitQuiz"), Err(nil))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "SubmitQuiz", entry.ContextMap()["operation"])
	_, hasErr := entry.ContextMap()["error"]
	assert.False(t, hasErr)
}

func TestWithLevel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := New(Options{Core: core}).WithLevel(LevelError)

	log.Info("dropped")
	log.Error("kept")
	assert.Equal(t, 1, logs.FilterMessage("kept").Len())
	assert.Equal(t, 0, logs.FilterMessage("dropped").Len())
}

func TestContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := New(Options{Core: core}).WithRequestID("req-1")

	ctx := WithContext(context.Background(), log)
	FromContext(ctx).Info("hello")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "req-1", logs.All()[0].ContextMap()[RequestIDKey])
	assert.NotNil(t, FromContext(context.Background()))
}
