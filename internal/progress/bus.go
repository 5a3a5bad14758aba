package progress

import (
	"context"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// subscriberBuffer is how many events a slow subscriber may lag
// behind before the broadcast worker starts dropping new events for
// it rather than block the producer — progress events are advisory, so
// a stalled consumer must never stall the migration itself.
const subscriberBuffer = 256

// recentEventCapacity bounds the replay buffer a late-joining
// subscriber (e.g. a dashboard that connects mid-run) receives before
// it starts seeing live events.
const recentEventCapacity = 200

// Bus is the channel-based event bus every phase publishes onto.
// Publish never blocks: it hands events to a single internal worker
// goroutine over a buffered queue, which then fans out to
// subscribers, mirroring the teacher's subscribe/publish/
// broadcastWorker shape (internal/realtime/bus.go in the source
// survey).
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]chan Event
	nextID      int

	queue  chan Event
	stopCh chan struct{}
	doneCh chan struct{}

	recent *lru.Cache[string, Event]

	published atomic.Int64
	dropped   atomic.Int64
}

// NewBus creates a Bus and starts its broadcast worker. Call Stop to
// shut it down.
func NewBus() *Bus {
	recent, _ := lru.New[string, Event](recentEventCapacity)
	b := &Bus{
		subscribers: make(map[int]chan Event),
		queue:       make(chan Event, subscriberBuffer),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		recent:      recent,
	}
	go b.broadcastWorker()
	return b
}

// Subscribe registers a new listener and returns its event channel
// plus an unsubscribe function. The returned channel is closed by
// Unsubscribe or Bus.Stop.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	b.subscribers[id] = ch
	b.mu.Unlock()

	return ch, func() { b.unsubscribe(id) }
}

func (b *Bus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
}

// Publish enqueues an event for broadcast. It never blocks the
// caller: if the internal queue is momentarily full, the event is
// dropped rather than stalling the phase that produced it.
func (b *Bus) Publish(e Event) {
	select {
	case b.queue <- e:
	default:
		b.dropped.Add(1)
	}
}

func (b *Bus) broadcastWorker() {
	defer close(b.doneCh)
	for {
		select {
		case e := <-b.queue:
			b.published.Add(1)
			b.recent.Add(e.ID, e)
			b.broadcast(e)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Bus) broadcast(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- e:
		default:
			// slow subscriber: drop the event rather than block others.
			b.dropped.Add(1)
		}
	}
}

// Recent returns the last (up to recentEventCapacity) published
// events, oldest first, for a subscriber that joins mid-run and wants
// to backfill before following the live stream.
func (b *Bus) Recent() []Event {
	keys := b.recent.Keys()
	out := make([]Event, 0, len(keys))
	for _, k := range keys {
		if e, ok := b.recent.Peek(k); ok {
			out = append(out, e)
		}
	}
	return out
}

// ActiveSubscribers returns the current subscriber count.
func (b *Bus) ActiveSubscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Stats returns lifetime published/dropped event counts.
func (b *Bus) Stats() (published, dropped int64) {
	return b.published.Load(), b.dropped.Load()
}

// Stop drains no further events, closes every subscriber channel, and
// returns once the broadcast worker has exited.
func (b *Bus) Stop() {
	close(b.stopCh)
	<-b.doneCh
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}

// Wait blocks until ctx is cancelled or Stop is called, useful for a
// goroutine that owns Bus.Stop on shutdown.
func (b *Bus) Wait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-b.doneCh:
	}
}
