package nodes

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorax/workflow-core/internal/registry"
)

func TestDelayNode_SleepsForConfiguredDuration(t *testing.T) {
	ctor := NewDelayNode()
	exec, err := ctor(map[string]any{"durationMs": 10})
	require.NoError(t, err)

	start := time.Now()
	res, err := exec.Execute(&registry.NodeContext{Context: context.Background()})
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestDelayNode_CancelledContextAborts(t *testing.T) {
	ctor := NewDelayNode()
	exec, err := ctor(map[string]any{"durationMs": 1000})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := exec.Execute(&registry.NodeContext{Context: ctx})
	require.Error(t, err)
	assert.False(t, res.Completed)
}

func TestDelayMeta(t *testing.T) {
	assert.Equal(t, "action:delay", DelayMeta().ID)
}
