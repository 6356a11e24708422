package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNewLogger(t *testing.T) {
	t.Setenv(DebugEnv, "true")
	l := NewLogger()
	assert.NotNil(t, l)
	assert.True(t, l.Desugar().Core().Enabled(zap.DebugLevel))
}

func TestNewLogger_Production(t *testing.T) {
	t.Setenv(DebugEnv, "false")
	l := NewLogger()
	assert.False(t, l.Desugar().Core().Enabled(zap.DebugLevel))
}

func TestWithLogger(t *testing.T) {
	l := NewNopLogger()
	ctx := WithLogger(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}
