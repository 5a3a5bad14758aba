package connsource

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucernlabs/recordflow/internal/bulkclient"
	"github.com/lucernlabs/recordflow/internal/bulkclient/fake"
)

func TestPreAuthenticatedReturnsWrappedClient(t *testing.T) {
	server := fake.NewServer()
	client := fake.NewClient(server)
	src := NewPreAuthenticated("target", 8, client)

	assert.Equal(t, "target", src.Name())
	assert.Equal(t, 8, src.MaxPoolSize())

	got, err := src.SeedClient(context.Background())
	require.NoError(t, err)
	assert.Same(t, bulkclient.Client(client), got)
}

func TestLazyFactoryDialsOnce(t *testing.T) {
	var calls int32
	server := fake.NewServer()
	dial := func(ctx context.Context, cs string) (bulkclient.Client, error) {
		atomic.AddInt32(&calls, 1)
		return fake.NewClient(server), nil
	}
	src := NewLazyFactory("source", 4, "conn=1", dial)

	c1, err := src.SeedClient(context.Background())
	require.NoError(t, err)
	c2, err := src.SeedClient(context.Background())
	require.NoError(t, err)

	assert.Same(t, c1, c2)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestLazyFactoryPropagatesDialError(t *testing.T) {
	dial := func(ctx context.Context, cs string) (bulkclient.Client, error) {
		return nil, errors.New("auth failed")
	}
	src := NewLazyFactory("source", 4, "conn=1", dial)

	_, err := src.SeedClient(context.Background())
	assert.ErrorContains(t, err, "auth failed")

	// A second call returns the same cached error, not a second dial.
	_, err = src.SeedClient(context.Background())
	assert.ErrorContains(t, err, "auth failed")
}
