package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUnknownSourceNeverThrottled(t *testing.T) {
	tr := New(time.Minute)
	assert.False(t, tr.IsThrottled("unknown"))
}

func TestThrottleMarksSourceUntilExpiry(t *testing.T) {
	tr := New(time.Minute)
	tr.Throttle("src1", 50*time.Millisecond)

	assert.True(t, tr.IsThrottled("src1"))

	time.Sleep(80 * time.Millisecond)
	assert.False(t, tr.IsThrottled("src1"))
}

func TestThrottleDefaultsRetryAfter(t *testing.T) {
	tr := New(time.Minute)
	tr.Throttle("src1", 0)

	st, ok := tr.StateOf("src1")
	assert.True(t, ok)
	assert.Equal(t, DefaultRetryAfter, st.RetryAfter)
}

func TestAvailableSourcesFiltersThrottled(t *testing.T) {
	tr := New(time.Minute)
	tr.Throttle("src1", time.Minute)

	available := tr.AvailableSources([]string{"src1", "src2", "src3"})
	assert.Equal(t, []string{"src2", "src3"}, available)
}

func TestAvailableSourcesAllAvailableWhenNoneThrottled(t *testing.T) {
	tr := New(time.Minute)
	available := tr.AvailableSources([]string{"src1", "src2"})
	assert.Equal(t, []string{"src1", "src2"}, available)
}

func TestSoonestExpiry(t *testing.T) {
	tr := New(time.Minute)
	tr.Throttle("src1", 200*time.Millisecond)
	tr.Throttle("src2", 50*time.Millisecond)

	soonest, found := tr.SoonestExpiry([]string{"src1", "src2"})
	assert.True(t, found)

	st2, _ := tr.StateOf("src2")
	assert.Equal(t, st2.ExpiresAt, soonest)
}

func TestSoonestExpiryNoneFound(t *testing.T) {
	tr := New(time.Minute)
	_, found := tr.SoonestExpiry([]string{"src1"})
	assert.False(t, found)
}

func TestPrunerRemovesExpiredEntries(t *testing.T) {
	tr := New(20 * time.Millisecond)
	tr.Throttle("src1", 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr.StartPruner(ctx, 15*time.Millisecond)
	defer tr.Close()

	time.Sleep(100 * time.Millisecond)

	_, ok := tr.StateOf("src1")
	assert.False(t, ok)
}

func TestConcurrentAccess(t *testing.T) {
	tr := New(time.Minute)
	done := make(chan struct{})

	go func() {
		for i := 0; i < 1000; i++ {
			tr.Throttle("src1", time.Millisecond)
		}
		close(done)
	}()

	for i := 0; i < 1000; i++ {
		tr.IsThrottled("src1")
	}
	<-done
}
