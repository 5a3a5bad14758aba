// Package pool implements the bounded connection pool (C4): one idle
// FIFO queue per named connection source, an outstanding semaphore
// sized to that source's MaxPoolSize, and background validation that
// evicts handles past MaxIdleTime or MaxLifetime. It generalizes the
// teacher's single pgxpool wrapper to N named sources sharing one
// selection and validation strategy.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lucernlabs/recordflow/internal/bulkclient"
	"github.com/lucernlabs/recordflow/internal/connsource"
	"github.com/lucernlabs/recordflow/internal/resilience"
)

// Handle is one pooled, cloned client checked out via Acquire. The
// caller must call Release exactly once, whether or not Client was
// used successfully.
type Handle struct {
	ID        string
	Source    string
	Client    bulkclient.Client
	createdAt time.Time
	lastUsed  time.Time

	pool *sourcePool
}

// idleEntry is one parked handle sitting in a source's idle queue.
type idleEntry struct {
	handle  *Handle
	idledAt time.Time
}

// sourcePool is the per-source state: its connsource.Source, an idle
// FIFO, an outstanding counter bounded by MaxPoolSize, and metrics.
type sourcePool struct {
	src     connsource.Source
	metrics *sourceMetrics

	mu     sync.Mutex
	idle   []idleEntry
	active int32
	total  int32
	notify chan struct{}
}

func newSourcePool(src connsource.Source) *sourcePool {
	return &sourcePool{src: src, metrics: newSourceMetrics(), notify: make(chan struct{})}
}

func (sp *sourcePool) wakeLocked() {
	old := sp.notify
	sp.notify = make(chan struct{})
	close(old)
}

// Pool manages one bounded connection pool per named source.
type Pool struct {
	cfg     Config
	logger  *slog.Logger
	prom    *PrometheusMetrics
	sources map[string]*sourcePool

	rrCounter uint64

	closed         atomic.Bool
	validating     atomic.Bool
	stopValidation chan struct{}
	validationDone chan struct{}
}

// New builds a Pool over sources, validating cfg first. Each source's
// seed client is authenticated lazily on first Acquire (§4.3), not at
// construction time.
func New(cfg Config, logger *slog.Logger, prom *PrometheusMetrics, sources ...connsource.Source) (*Pool, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		cfg:            cfg,
		logger:         logger,
		prom:           prom,
		sources:        make(map[string]*sourcePool, len(sources)),
		stopValidation: make(chan struct{}),
		validationDone: make(chan struct{}),
	}
	for _, src := range sources {
		p.sources[src.Name()] = newSourcePool(src)
	}
	return p, nil
}

// StartValidation launches the background idle/lifetime sweep. Call
// once; Close stops it.
func (p *Pool) StartValidation(ctx context.Context) {
	p.validating.Store(true)
	go func() {
		defer close(p.validationDone)
		ticker := time.NewTicker(p.cfg.ValidationInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.validateAll()
			case <-p.stopValidation:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (p *Pool) validateAll() {
	now := time.Now()
	for name, sp := range p.sources {
		sp.mu.Lock()
		kept := sp.idle[:0]
		for _, entry := range sp.idle {
			age := now.Sub(entry.handle.createdAt)
			idleFor := now.Sub(entry.idledAt)
			expired := (p.cfg.MaxLifetime > 0 && age > p.cfg.MaxLifetime) ||
				(p.cfg.MaxIdleTime > 0 && idleFor > p.cfg.MaxIdleTime)
			if expired {
				sp.metrics.recordValidationFailure()
				sp.total--
				_ = entry.handle.Client.Close()
				sp.metrics.recordDestroyed()
				p.logger.Debug("evicted pooled handle", "source", name, "handle", entry.handle.ID, "age", age, "idle_for", idleFor)
			} else {
				kept = append(kept, entry)
			}
		}
		sp.idle = kept
		sp.mu.Unlock()
	}
}

// Acquire checks out a handle for source, cloning a fresh client from
// the source's seed when the idle queue is empty and the outstanding
// count is below MaxPoolSize, per §4.3/§4.4.
func (p *Pool) Acquire(ctx context.Context, source string) (*Handle, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	sp, ok := p.sources[source]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}

	if p.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.AcquireTimeout)
		defer cancel()
	}

	start := time.Now()
	limit := int32(sp.src.MaxPoolSize())

	for {
		sp.mu.Lock()
		if len(sp.idle) > 0 {
			entry := sp.idle[0]
			sp.idle = sp.idle[1:]
			sp.active++
			sp.mu.Unlock()
			entry.handle.lastUsed = time.Now()
			sp.metrics.recordAcquire(time.Since(start))
			p.observe(source)
			return entry.handle, nil
		}
		if sp.active < limit {
			sp.active++
			sp.mu.Unlock()

			client, err := p.seedAndClone(ctx, sp.src)
			if err != nil {
				sp.mu.Lock()
				sp.active--
				sp.wakeLocked()
				sp.mu.Unlock()
				sp.metrics.recordAcquireError()
				return nil, resilience.New(resilience.ConnectionFailed, err).WithSource(source)
			}

			sp.mu.Lock()
			sp.total++
			sp.mu.Unlock()
			sp.metrics.recordCreated()
			sp.metrics.recordAcquire(time.Since(start))
			p.observe(source)

			return &Handle{
				ID:        uuid.New().String(),
				Source:    source,
				Client:    client,
				createdAt: time.Now(),
				lastUsed:  time.Now(),
				pool:      sp,
			}, nil
		}

		wait := sp.notify
		sp.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			sp.metrics.recordAcquireError()
			return nil, resilience.New(resilience.PoolExhausted, ctx.Err()).WithSource(source)
		}
	}
}

func (p *Pool) seedAndClone(ctx context.Context, src connsource.Source) (bulkclient.Client, error) {
	seed, err := src.SeedClient(ctx)
	if err != nil {
		return nil, err
	}
	return seed.Clone(ctx)
}

// Release returns a handle to its source's idle queue for reuse,
// unless the pool is closed, in which case the underlying client is
// closed immediately.
func (p *Pool) Release(h *Handle) {
	sp := h.pool
	sp.mu.Lock()
	sp.active--
	if p.closed.Load() {
		sp.total--
		sp.wakeLocked()
		sp.mu.Unlock()
		_ = h.Client.Close()
		sp.metrics.recordDestroyed()
		return
	}
	sp.idle = append(sp.idle, idleEntry{handle: h, idledAt: time.Now()})
	sp.wakeLocked()
	sp.mu.Unlock()
	p.observe(h.Source)
}

// SelectSource chooses among candidates using the pool's configured
// Strategy, informed by each source's current active-connection
// count. throttle may be nil if throttle-awareness is not in use.
func (p *Pool) SelectSource(candidates []string, throttle throttleChecker) string {
	if len(candidates) == 1 {
		return candidates[0]
	}
	switch p.cfg.Strategy {
	case LeastConnections:
		return selectLeastConnections(candidates, p.activeCounts())
	case ThrottleAware:
		return selectThrottleAware(candidates, p.activeCounts(), throttle)
	default:
		n := atomic.AddUint64(&p.rrCounter, 1) - 1
		return candidates[n%uint64(len(candidates))]
	}
}

func (p *Pool) activeCounts() map[string]int32 {
	out := make(map[string]int32, len(p.sources))
	for name, sp := range p.sources {
		sp.mu.Lock()
		out[name] = sp.active
		sp.mu.Unlock()
	}
	return out
}

// TotalRecommendedParallelism sums each source's seed-advertised
// recommended parallelism (§4.3/§4.4), used by callers (the bulk
// executor) that want a default degree of parallelism without an
// explicit max_parallel_batches override. Seeds are authenticated
// lazily on first call, same as Acquire.
func (p *Pool) TotalRecommendedParallelism(ctx context.Context) (int, error) {
	total := 0
	for _, sp := range p.sources {
		seed, err := sp.src.SeedClient(ctx)
		if err != nil {
			return 0, resilience.New(resilience.ConnectionFailed, err).WithSource(sp.src.Name())
		}
		total += seed.RecommendedParallelism()
	}
	return total, nil
}

// Stats returns a snapshot of every source's pool.
func (p *Pool) Stats() map[string]Stats {
	out := make(map[string]Stats, len(p.sources))
	for name, sp := range p.sources {
		sp.mu.Lock()
		active, idle, total := sp.active, int32(len(sp.idle)), sp.total
		sp.mu.Unlock()
		out[name] = sp.metrics.snapshot(name, active, idle, total)
	}
	return out
}

func (p *Pool) observe(source string) {
	if p.prom == nil {
		return
	}
	if sp, ok := p.sources[source]; ok {
		sp.mu.Lock()
		active, idle, total := sp.active, int32(len(sp.idle)), sp.total
		sp.mu.Unlock()
		p.prom.observe(sp.metrics.snapshot(source, active, idle, total))
	}
}

// Close stops background validation and closes every idle handle.
// Handles still checked out are closed as they are Released.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(p.stopValidation)
	if p.validating.Load() {
		<-p.validationDone
	}

	for _, sp := range p.sources {
		sp.mu.Lock()
		for _, entry := range sp.idle {
			_ = entry.handle.Client.Close()
			sp.metrics.recordDestroyed()
		}
		sp.idle = nil
		sp.mu.Unlock()
	}
	return nil
}
