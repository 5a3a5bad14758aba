package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishDeliversToSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Stop()

	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	bus.Publish(Progress(PhaseExporting, "account", 10, 100))

	select {
	case e := <-events:
		assert.Equal(t, PhaseExporting, e.Phase)
		assert.Equal(t, "account", e.Entity)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	defer bus.Stop()

	events, unsubscribe := bus.Subscribe()
	unsubscribe()

	_, ok := <-events
	assert.False(t, ok)
}

func TestBus_RecentBackfillsForLateSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Stop()

	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	for i := 1; i <= 3; i++ {
		bus.Publish(Progress(PhaseExporting, "account", i, 3))
		select {
		case <-events:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}

	recent := bus.Recent()
	require.Len(t, recent, 3)
	assert.Equal(t, 3, recent[len(recent)-1].Current)
}

func TestEmitter_ThrottlesCadenceButAlwaysEmitsBoundaries(t *testing.T) {
	bus := NewBus()
	defer bus.Stop()

	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	e := NewEmitter(bus)
	for i := 1; i <= 250; i++ {
		e.Record(PhaseImporting, "account", i, 250)
	}

	var received []int
drain:
	for {
		select {
		case ev := <-events:
			received = append(received, ev.Current)
		case <-time.After(200 * time.Millisecond):
			break drain
		}
	}

	require.NotEmpty(t, received)
	assert.Equal(t, 250, received[len(received)-1], "final boundary must always be emitted")
	assert.Less(t, len(received), 250, "cadence must suppress most intermediate updates")
}
