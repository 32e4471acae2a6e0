package logger

import (
	"context"
	"testing"

	obscontext "github.com/dev-orchid/shiksha-sub001/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(nil, Config{Level: "chatty"})
	assert.Error(t, err)
}

func TestBuildConfigDebugSkipsSampler(t *testing.T) {
	cfg, err := buildConfig(Config{Level: "debug", Debug: true, Format: "Console"})
	require.NoError(t, err)
	assert.Equal(t, "console", cfg.Encoding)
	assert.True(t, cfg.Development)
	assert.Equal(t, zapcore.DebugLevel, cfg.Level.Level())

	assert.Len(t, buildOptions(Config{Debug: true}), 0)
	assert.Len(t, buildOptions(Config{}), 1)
}

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithSchoolID(ctx, "42")
	ctx = obscontext.WithActor(ctx, "api_key", "key_A1")
	WithContext(ctx, base).Info("payment recorded")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "42", fields["school_id"])
	assert.Equal(t, "api_key", fields["actor_type"])
	assert.Equal(t, "key_A1", fields["actor_id"])
	assert.NotContains(t, fields, "trace_id")
}

func TestWithContextWithoutFieldsReturnsBase(t *testing.T) {
	base := zap.NewNop()
	assert.Same(t, base, WithContext(context.Background(), base))
}
