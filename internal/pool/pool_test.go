package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucernlabs/recordflow/internal/bulkclient"
	"github.com/lucernlabs/recordflow/internal/bulkclient/fake"
	"github.com/lucernlabs/recordflow/internal/connsource"
	"github.com/lucernlabs/recordflow/internal/resilience"
)

func testSource(t *testing.T, name string, maxSize int) connsource.Source {
	t.Helper()
	server := fake.NewServer()
	return connsource.NewPreAuthenticated(name, maxSize, fake.NewClient(server))
}

func TestNewRejectsNoSources(t *testing.T) {
	_, err := New(DefaultConfig(), nil, nil)
	assert.ErrorIs(t, err, ErrNoSources)
}

func TestAcquireReleaseReusesHandle(t *testing.T) {
	p, err := New(DefaultConfig(), nil, nil, testSource(t, "target", 2))
	require.NoError(t, err)
	defer p.Close()

	h1, err := p.Acquire(context.Background(), "target")
	require.NoError(t, err)
	assert.Equal(t, "target", h1.Source)

	id1 := h1.ID
	p.Release(h1)

	h2, err := p.Acquire(context.Background(), "target")
	require.NoError(t, err)
	assert.Equal(t, id1, h2.ID, "expected the idle handle to be reused")
	p.Release(h2)
}

func TestAcquireUnknownSource(t *testing.T) {
	p, err := New(DefaultConfig(), nil, nil, testSource(t, "target", 2))
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Acquire(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestAcquireBlocksAtMaxPoolSize(t *testing.T) {
	p, err := New(DefaultConfig(), nil, nil, testSource(t, "target", 1))
	require.NoError(t, err)
	defer p.Close()

	h1, err := p.Acquire(context.Background(), "target")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx, "target")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, resilience.IsKind(err, resilience.PoolExhausted), "acquire timeout must surface as a typed PoolExhausted error, got %v", err)

	p.Release(h1)
}

func TestAcquireTimesOutAtConfiguredDeadlineRegardlessOfCallerContext(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AcquireTimeout = 30 * time.Millisecond
	p, err := New(cfg, nil, nil, testSource(t, "target", 1))
	require.NoError(t, err)
	defer p.Close()

	h1, err := p.Acquire(context.Background(), "target")
	require.NoError(t, err)

	start := time.Now()
	_, err = p.Acquire(context.Background(), "target")
	elapsed := time.Since(start)

	assert.True(t, resilience.IsKind(err, resilience.PoolExhausted))
	assert.Less(t, elapsed, time.Second, "pool.Config.AcquireTimeout must bound Acquire even when the caller passes an undecorated context")

	p.Release(h1)
}

func TestAcquireUnblocksOnRelease(t *testing.T) {
	p, err := New(DefaultConfig(), nil, nil, testSource(t, "target", 1))
	require.NoError(t, err)
	defer p.Close()

	h1, err := p.Acquire(context.Background(), "target")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	var gotHandle *Handle
	go func() {
		defer wg.Done()
		h, err := p.Acquire(context.Background(), "target")
		require.NoError(t, err)
		gotHandle = h
	}()

	time.Sleep(20 * time.Millisecond)
	p.Release(h1)
	wg.Wait()

	require.NotNil(t, gotHandle)
	p.Release(gotHandle)
}

func TestStatsReflectAcquireAndRelease(t *testing.T) {
	p, err := New(DefaultConfig(), nil, nil, testSource(t, "target", 3))
	require.NoError(t, err)
	defer p.Close()

	h, err := p.Acquire(context.Background(), "target")
	require.NoError(t, err)

	stats := p.Stats()["target"]
	assert.EqualValues(t, 1, stats.ActiveConnections)
	assert.EqualValues(t, 1, stats.ConnectionsCreated)

	p.Release(h)
	stats = p.Stats()["target"]
	assert.EqualValues(t, 0, stats.ActiveConnections)
	assert.EqualValues(t, 1, stats.IdleConnections)
}

func TestValidationEvictsExpiredIdleHandles(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIdleTime = 10 * time.Millisecond
	cfg.ValidationInterval = 5 * time.Millisecond
	p, err := New(cfg, nil, nil, testSource(t, "target", 2))
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.StartValidation(ctx)

	h, err := p.Acquire(context.Background(), "target")
	require.NoError(t, err)
	p.Release(h)

	require.Eventually(t, func() bool {
		return p.Stats()["target"].IdleConnections == 0
	}, time.Second, 5*time.Millisecond)
}

func TestSelectSourceRoundRobin(t *testing.T) {
	p, err := New(DefaultConfig(), nil, nil, testSource(t, "a", 1), testSource(t, "b", 1))
	require.NoError(t, err)
	defer p.Close()

	first := p.SelectSource([]string{"a", "b"}, nil)
	second := p.SelectSource([]string{"a", "b"}, nil)
	assert.NotEqual(t, first, second)
}

func TestSelectSourceSingleCandidateShortCircuits(t *testing.T) {
	p, err := New(DefaultConfig(), nil, nil, testSource(t, "a", 1))
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "a", p.SelectSource([]string{"a"}, nil))
}

type alwaysThrottled struct{ blocked string }

func (a alwaysThrottled) IsThrottled(source string) bool { return source == a.blocked }

func TestSelectSourceThrottleAware(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = ThrottleAware
	p, err := New(cfg, nil, nil, testSource(t, "a", 1), testSource(t, "b", 1))
	require.NoError(t, err)
	defer p.Close()

	picked := p.SelectSource([]string{"a", "b"}, alwaysThrottled{blocked: "a"})
	assert.Equal(t, "b", picked)
}

func TestAcquireWrapsConnectionFailure(t *testing.T) {
	dial := func(ctx context.Context, cs string) (bulkclient.Client, error) {
		return nil, errors.New("dial failed")
	}
	src := connsource.NewLazyFactory("broken", 2, "conn", dial)
	p, err := New(DefaultConfig(), nil, nil, src)
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Acquire(context.Background(), "broken")
	assert.Error(t, err)
}
