// Package executor implements the bulk operation executor (C5):
// partitions a record slice into server-sized batches, fans them out
// over pooled clients gated by the adaptive rate controller, and fans
// results back in with per-record error accumulation, per §4.5.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lucernlabs/recordflow/internal/bulkclient"
	"github.com/lucernlabs/recordflow/internal/pool"
	"github.com/lucernlabs/recordflow/internal/ratecontrol"
	"github.com/lucernlabs/recordflow/internal/resilience"
	"github.com/lucernlabs/recordflow/internal/throttle"
)

// ErrAllRecordsFailed is returned when every batch in a call failed.
var ErrAllRecordsFailed = errors.New("executor: all records failed")

// Options configures one Executor.
type Options struct {
	BatchSize int

	// MaxThrottleRetries bounds how many times one batch resubmits
	// after a service-protection signal before giving up (§7
	// ServiceProtection is retryable, but not unboundedly).
	MaxThrottleRetries int

	// TVPRacePolicy governs the lazy-table-visibility race retry
	// (§4.5 item 6). Defaults to resilience.DefaultPolicy().
	TVPRacePolicy *resilience.Policy

	// MaxParallelBatches, if set, caps concurrent in-flight batches
	// independent of the rate controller, per §4.5 item 2: the
	// effective cap is min(MaxParallelBatches, pool's
	// TotalRecommendedParallelism, rate controller's current P).
	// Zero means no additional cap beyond the pool's recommendation.
	MaxParallelBatches int

	Logger *slog.Logger
}

// DefaultOptions returns the spec's suggested tunables.
func DefaultOptions() Options {
	return Options{
		BatchSize:          MaxBatchSize,
		MaxThrottleRetries: 5,
		TVPRacePolicy:      resilience.DefaultPolicy(),
	}
}

// Executor dispatches bulk writes for one migration run.
type Executor struct {
	pool     *pool.Pool
	rate     *ratecontrol.Controller
	throttle *throttle.Tracker
	opts     Options
}

// New builds an Executor over the given pool, rate controller, and
// throttle tracker. rate and throttle may each be constructed fresh
// per operation, per the rate controller's documented lifecycle.
func New(p *pool.Pool, rate *ratecontrol.Controller, tracker *throttle.Tracker, opts Options) *Executor {
	if opts.BatchSize <= 0 {
		opts = DefaultOptions()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.TVPRacePolicy == nil {
		opts.TVPRacePolicy = resilience.DefaultPolicy()
	}
	return &Executor{pool: p, rate: rate, throttle: tracker, opts: opts}
}

// Execute writes records to entity on source using op, partitioning
// into batches and running them concurrently under the rate
// controller's admission gate. It never aborts early on a batch
// failure (continue-on-error, §4.5); the returned Result carries
// every per-record failure, and the error return is non-nil only when
// every record failed.
func (e *Executor) Execute(ctx context.Context, source, entity string, op Operation, records []bulkclient.Record, opts bulkclient.BatchOptions) (*Result, error) {
	start := time.Now()
	result := newResult(len(records))
	if len(records) == 0 {
		return result, nil
	}

	batches := partition(records, e.opts.BatchSize)

	sem := e.admissionSemaphore(ctx, len(batches))

	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(len(batches))

	for _, b := range batches {
		go func(b batch) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				mu.Lock()
				result.absorbFailure(b, ctx.Err())
				mu.Unlock()
				return
			}

			if err := e.rate.Acquire(ctx); err != nil {
				mu.Lock()
				result.absorbFailure(b, err)
				mu.Unlock()
				return
			}

			batchStart := time.Now()
			br, err := e.runBatch(ctx, source, entity, op, b, opts)
			duration := time.Since(batchStart)
			e.rate.Release()

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.absorbFailure(b, err)
				return
			}
			e.rate.RecordSuccess(duration)
			result.absorb(b, br)
		}(b)
	}

	wg.Wait()
	result.Duration = time.Since(start)

	if result.SuccessCount == 0 {
		return result, ErrAllRecordsFailed
	}
	return result, nil
}

// admissionSemaphore sizes the extra concurrency gate from §4.5 item
// 2: min(MaxParallelBatches if set, pool's
// TotalRecommendedParallelism, batch count). It is independent of the
// rate controller's own admission gate — both must pass for a batch
// to run.
func (e *Executor) admissionSemaphore(ctx context.Context, batchCount int) chan struct{} {
	limit := batchCount
	if e.opts.MaxParallelBatches > 0 && e.opts.MaxParallelBatches < limit {
		limit = e.opts.MaxParallelBatches
	}
	if rec, err := e.pool.TotalRecommendedParallelism(ctx); err == nil && rec > 0 && rec < limit {
		limit = rec
	}
	if limit < 1 {
		limit = 1
	}
	return make(chan struct{}, limit)
}

// runBatch checks out a pooled client and performs one batch's write,
// retrying on a service-protection throttle signal (sleeping for the
// server's retry-after hint) and on the lazy-table-visibility race
// (exponential backoff under opts.TVPRacePolicy), per §4.5 items 5-6.
func (e *Executor) runBatch(ctx context.Context, source, entity string, op Operation, b batch, opts bulkclient.BatchOptions) (bulkclient.BatchResult, error) {
	handle, err := e.pool.Acquire(ctx, source)
	if err != nil {
		return bulkclient.BatchResult{}, err
	}
	defer e.pool.Release(handle)

	for attempt := 0; ; attempt++ {
		result, err := e.dispatch(ctx, handle.Client, entity, op, b.records, opts)
		if err == nil {
			return result, nil
		}

		var throttleErr *bulkclient.ThrottleError
		if errors.As(err, &throttleErr) {
			retryAfter := throttleErr.RetryAfter
			if retryAfter <= 0 {
				retryAfter = throttle.DefaultRetryAfter
			}
			if e.throttle != nil {
				e.throttle.Throttle(source, retryAfter)
			}
			if e.rate != nil {
				e.rate.RecordThrottle(retryAfter)
			}
			if attempt >= e.opts.MaxThrottleRetries {
				return bulkclient.BatchResult{}, err
			}
			if sleepErr := resilience.Sleep(ctx, retryAfter); sleepErr != nil {
				return bulkclient.BatchResult{}, sleepErr
			}
			continue
		}

		if resilience.Classify(err) == resilience.TransientRace {
			var raced bulkclient.BatchResult
			retryErr := resilience.WithRetry(ctx, e.opts.TVPRacePolicy, func() error {
				var innerErr error
				raced, innerErr = e.dispatch(ctx, handle.Client, entity, op, b.records, opts)
				return innerErr
			})
			if retryErr == nil {
				return raced, nil
			}
			return bulkclient.BatchResult{}, retryErr
		}

		return bulkclient.BatchResult{}, err
	}
}

func (e *Executor) dispatch(ctx context.Context, client bulkclient.Client, entity string, op Operation, records []bulkclient.Record, opts bulkclient.BatchOptions) (bulkclient.BatchResult, error) {
	switch op {
	case OpCreate:
		return client.CreateMultiple(ctx, entity, records, opts)
	case OpUpdate:
		return client.UpdateMultiple(ctx, entity, records, opts)
	case OpUpsert:
		return client.UpsertMultiple(ctx, entity, records, opts)
	case OpDelete:
		ids := make([]string, len(records))
		for i, r := range records {
			id, _ := r["id"].(string)
			ids[i] = id
		}
		return client.DeleteMultiple(ctx, entity, ids, opts)
	default:
		return bulkclient.BatchResult{}, errors.New("executor: unknown operation")
	}
}
