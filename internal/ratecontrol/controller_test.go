package ratecontrol

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewControllerStartsAtFloor(t *testing.T) {
	c := New(DefaultOptions())
	assert.Equal(t, 1, c.CurrentParallelism())
	assert.Equal(t, PhaseRamp, c.Phase())
}

func TestParallelismNeverExceedsHardCeiling(t *testing.T) {
	opts := DefaultOptions()
	opts.ConsecutiveSuccessesToIncrease = 1
	opts.MinIncreaseInterval = 0
	c := New(opts)

	for i := 0; i < 200; i++ {
		c.RecordSuccess(time.Millisecond)
	}

	assert.LessOrEqual(t, c.CurrentParallelism(), 52)
	assert.GreaterOrEqual(t, c.CurrentParallelism(), 1)
}

func TestThrottleDecreasesParallelism(t *testing.T) {
	opts := DefaultOptions()
	opts.ConsecutiveSuccessesToIncrease = 1
	opts.MinIncreaseInterval = 0
	c := New(opts)

	for i := 0; i < 20; i++ {
		c.RecordSuccess(time.Millisecond)
	}
	before := c.CurrentParallelism()
	require.Greater(t, before, 1)

	c.RecordThrottle(time.Second)
	after := c.CurrentParallelism()

	assert.Less(t, after, before)
	assert.Equal(t, PhaseBackoff, c.Phase())
}

func TestThrottleNeverGoesBelowFloor(t *testing.T) {
	c := New(DefaultOptions())
	c.RecordThrottle(time.Second)
	assert.GreaterOrEqual(t, c.CurrentParallelism(), 1)
}

func TestRetryAfterBeyondToleranceTriggersFailFast(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxRetryAfterTolerance = time.Second
	c := New(opts)

	failFast := c.RecordThrottle(5 * time.Minute)
	assert.True(t, failFast)
	assert.Equal(t, PhaseFailFast, c.Phase())
}

func TestExecutionTimeCeilingAppliesOnceSlow(t *testing.T) {
	opts := DefaultOptions()
	opts.Preset = Balanced // F=200, T_slow=8s
	opts.ConsecutiveSuccessesToIncrease = 1
	opts.MinIncreaseInterval = 0
	c := New(opts)

	// Durations at/above T_slow should move the controller to
	// CeilingApplied and bound growth by F/(D/1000).
	for i := 0; i < 10; i++ {
		c.RecordSuccess(10 * time.Second)
	}

	assert.Equal(t, PhaseCeilingApplied, c.Phase())
	assert.LessOrEqual(t, c.CurrentParallelism(), 20) // 200/(10000/1000) = 20
}

func TestAcquireRespectsCurrentCeiling(t *testing.T) {
	c := New(DefaultOptions()) // ceiling 1 at floor

	require.NoError(t, c.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := c.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	c.Release()
}

func TestAcquireUnblocksOnRelease(t *testing.T) {
	c := New(DefaultOptions())
	require.NoError(t, c.Acquire(context.Background()))

	var wg sync.WaitGroup
	wg.Add(1)
	acquired := false
	go func() {
		defer wg.Done()
		if err := c.Acquire(context.Background()); err == nil {
			acquired = true
			c.Release()
		}
	}()

	time.Sleep(20 * time.Millisecond)
	c.Release()
	wg.Wait()

	assert.True(t, acquired)
}

func TestRecoverFromBackoffReturnsToRamp(t *testing.T) {
	c := New(DefaultOptions())
	c.RecordThrottle(time.Second)
	assert.Equal(t, PhaseBackoff, c.Phase())

	c.RecoverFromBackoff()
	assert.Equal(t, PhaseRamp, c.Phase())
}
