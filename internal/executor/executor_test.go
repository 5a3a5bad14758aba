package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucernlabs/recordflow/internal/bulkclient"
	"github.com/lucernlabs/recordflow/internal/bulkclient/fake"
	"github.com/lucernlabs/recordflow/internal/connsource"
	"github.com/lucernlabs/recordflow/internal/pool"
	"github.com/lucernlabs/recordflow/internal/ratecontrol"
	"github.com/lucernlabs/recordflow/internal/throttle"
)

func newTestExecutor(t *testing.T, server *fake.Server, opts Options) *Executor {
	t.Helper()
	src := connsource.NewPreAuthenticated("target", 10, fake.NewClient(server))
	p, err := pool.New(pool.DefaultConfig(), nil, nil, src)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	rate := ratecontrol.New(ratecontrol.DefaultOptions())
	tracker := throttle.New(time.Minute)
	t.Cleanup(tracker.Close)

	return New(p, rate, tracker, opts)
}

func records(n int) []bulkclient.Record {
	out := make([]bulkclient.Record, n)
	for i := range out {
		out[i] = bulkclient.Record{"name": i}
	}
	return out
}

func TestExecuteCreatesAllRecords(t *testing.T) {
	server := fake.NewServer()
	e := newTestExecutor(t, server, DefaultOptions())

	result, err := e.Execute(context.Background(), "target", "account", OpCreate, records(5), bulkclient.BatchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 5, result.SuccessCount)
	assert.Equal(t, 0, result.FailureCount)
	assert.True(t, result.AllSucceeded())
}

func TestExecutePartitionsIntoMultipleBatches(t *testing.T) {
	server := fake.NewServer()
	opts := DefaultOptions()
	opts.BatchSize = 2
	e := newTestExecutor(t, server, opts)

	result, err := e.Execute(context.Background(), "target", "account", OpCreate, records(5), bulkclient.BatchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 5, result.SuccessCount)
}

func TestExecuteUpdateReportsPerRecordErrors(t *testing.T) {
	server := fake.NewServer()
	e := newTestExecutor(t, server, DefaultOptions())

	batch := []bulkclient.Record{{"id": "missing-1"}, {"id": "missing-2"}}
	result, err := e.Execute(context.Background(), "target", "account", OpUpdate, batch, bulkclient.BatchOptions{})
	assert.ErrorIs(t, err, ErrAllRecordsFailed)
	assert.Equal(t, 2, result.FailureCount)
	assert.Len(t, result.Errors, 2)
	assert.Equal(t, "not-found", result.Errors[0].Code)
}

func TestExecuteRetriesThrottleThenSucceeds(t *testing.T) {
	server := fake.NewServer()
	server.ThrottleEvery = 2 // every 2nd write call throttles
	server.ThrottleRetryAfter = 5 * time.Millisecond
	opts := DefaultOptions()
	opts.BatchSize = 1
	e := newTestExecutor(t, server, opts)

	result, err := e.Execute(context.Background(), "target", "account", OpCreate, records(3), bulkclient.BatchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, result.SuccessCount)
}

func TestExecuteRecoversFromLazyTVPRace(t *testing.T) {
	server := fake.NewServer()
	_, err := fake.NewClient(server).CreateMultiple(context.Background(), "optionset", []bulkclient.Record{{"id": "1"}}, bulkclient.BatchOptions{})
	require.NoError(t, err)
	server.TVPRaceEntity = "optionset"
	server.FailFirstN = 2

	opts := DefaultOptions()
	opts.TVPRacePolicy.BaseDelay = time.Millisecond
	opts.TVPRacePolicy.MaxDelay = 2 * time.Millisecond
	e := newTestExecutor(t, server, opts)

	result, err := e.Execute(context.Background(), "target", "optionset", OpUpdate, []bulkclient.Record{{"id": "1"}}, bulkclient.BatchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)
}

func TestExecuteEmptyInputReturnsEmptyResult(t *testing.T) {
	server := fake.NewServer()
	e := newTestExecutor(t, server, DefaultOptions())

	result, err := e.Execute(context.Background(), "target", "account", OpCreate, nil, bulkclient.BatchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalRecords)
}

func TestExecuteDeleteDispatchesIDs(t *testing.T) {
	server := fake.NewServer()
	e := newTestExecutor(t, server, DefaultOptions())

	created, err := e.Execute(context.Background(), "target", "account", OpCreate, records(2), bulkclient.BatchOptions{})
	require.NoError(t, err)

	toDelete := make([]bulkclient.Record, len(created.IDs))
	for i, id := range created.IDs {
		toDelete[i] = bulkclient.Record{"id": id}
	}

	result, err := e.Execute(context.Background(), "target", "account", OpDelete, toDelete, bulkclient.BatchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Empty(t, server.Records("account"))
}
