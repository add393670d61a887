package fiberloop

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLoopOptions_DefaultsWhenNoOptionsGiven(t *testing.T) {
	cfg, err := resolveLoopOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, runtime.NumCPU(), cfg.workerCount)
	assert.Equal(t, defaultStackSize, cfg.stackSize)
	assert.NotNil(t, cfg.logger)
	assert.False(t, cfg.metricsEnabled)
}

func TestResolveLoopOptions_AppliesEachOption(t *testing.T) {
	cfg, err := resolveLoopOptions([]LoopOption{
		WithWorkerCount(4),
		WithStackSize(1 << 20),
		WithMetrics(true),
	})
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.workerCount)
	assert.Equal(t, 1<<20, cfg.stackSize)
	assert.True(t, cfg.metricsEnabled)
}

func TestResolveLoopOptions_NonPositiveValuesFallBackToDefaults(t *testing.T) {
	cfg, err := resolveLoopOptions([]LoopOption{
		WithWorkerCount(0),
		WithStackSize(-1),
	})
	require.NoError(t, err)
	assert.Equal(t, runtime.NumCPU(), cfg.workerCount)
	assert.Equal(t, defaultStackSize, cfg.stackSize)
}

func TestResolveLoopOptions_NilOptionIsSkipped(t *testing.T) {
	cfg, err := resolveLoopOptions([]LoopOption{nil, WithWorkerCount(2), nil})
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.workerCount)
}

func TestWithLogger_NilDisablesLogging(t *testing.T) {
	cfg, err := resolveLoopOptions([]LoopOption{WithLogger(nil)})
	require.NoError(t, err)
	require.NotNil(t, cfg.logger)
	assert.False(t, cfg.logger.Level().Enabled())
}
