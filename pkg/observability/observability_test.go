package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	p, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestStartEvaluation_NoOpWhenDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	p, err := New(context.Background(), cfg)
	require.NoError(t, err)

	ctx, done := p.StartEvaluation(context.Background(), "c-1")
	require.NotNil(t, ctx)
	done(nil)
	// A second evaluation ending with an error must also be safe.
	_, done = p.StartEvaluation(context.Background(), "c-2")
	done(errors.New("boom"))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "provara-engine", cfg.ServiceName)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 1.0, cfg.SampleRate)
}
