// Package ratecontrol implements the adaptive concurrency cap (C2):
// parallelism grows while batches stay fast, shrinks on throttle
// signals, and is bounded by an execution-time-derived ceiling.
package ratecontrol

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Phase is the controller's coarse state machine, per spec §4.2.
type Phase string

const (
	PhaseRamp           Phase = "ramp"
	PhaseCeilingApplied Phase = "ceiling_applied"
	PhaseBackoff        Phase = "backoff"
	PhaseFailFast       Phase = "fail_fast"
)

const (
	floorParallelism = 1
	hardCeiling      = 52
)

// Preset tunes F (the ceiling factor) and T_slow (the slow-batch
// threshold) for a workload profile. See spec §4.2 for the table.
type Preset struct {
	Name              string
	CeilingFactor     int           // F
	SlowBatchThreshold time.Duration // T_slow
}

var (
	Conservative = Preset{Name: "conservative", CeilingFactor: 140, SlowBatchThreshold: 6 * time.Second}
	Balanced     = Preset{Name: "balanced", CeilingFactor: 200, SlowBatchThreshold: 8 * time.Second}
	Aggressive   = Preset{Name: "aggressive", CeilingFactor: 320, SlowBatchThreshold: 11 * time.Second}
)

// Options configures a Controller beyond the chosen preset.
type Options struct {
	Preset Preset

	// EMA smoothing factor for batch duration, spec default 0.3.
	Smoothing float64

	// DecreaseFactor multiplies P on a throttle event. Spec's observed
	// default is 0.5 (see DESIGN.md Open Question decisions).
	DecreaseFactor float64

	// ConsecutiveSuccessesToIncrease and MinIncreaseInterval gate how
	// often P is allowed to grow by one.
	ConsecutiveSuccessesToIncrease int
	MinIncreaseInterval           time.Duration

	// MaxRetryAfterTolerance triggers FailFast when a throttle's
	// retry-after hint exceeds it.
	MaxRetryAfterTolerance time.Duration
}

// DefaultOptions returns Options for the Balanced preset with the
// spec's suggested tunables.
func DefaultOptions() Options {
	return Options{
		Preset:                         Balanced,
		Smoothing:                      0.3,
		DecreaseFactor:                 0.5,
		ConsecutiveSuccessesToIncrease: 5,
		MinIncreaseInterval:           2 * time.Second,
		MaxRetryAfterTolerance:         60 * time.Second,
	}
}

// Controller caps the number of concurrently in-flight batches. It is
// created per bulk operation and discarded when the operation ends
// (spec §3 Lifecycles: "state resets between operations").
type Controller struct {
	mu sync.Mutex

	opts Options

	p              int
	emaDuration    time.Duration
	hasDuration    bool
	throttleCeiling int
	phase          Phase

	consecutiveSuccesses int
	lastIncrease         time.Time

	active int
	notify chan struct{} // closed and replaced on every Release

	// burstLimiter smooths the rate of new admissions so that a sudden
	// jump in P (after a long run of successes) does not release a
	// burst of batches in the same instant; its limit tracks P.
	burstLimiter *rate.Limiter
}

// New creates a Controller starting at parallelism 1 (the Ramp
// phase), per spec §4.2.
func New(opts Options) *Controller {
	if opts.Smoothing <= 0 {
		opts = DefaultOptions()
	}
	return &Controller{
		opts:            opts,
		p:               floorParallelism,
		throttleCeiling: hardCeiling,
		phase:           PhaseRamp,
		notify:          make(chan struct{}),
		burstLimiter:    rate.NewLimiter(rate.Limit(floorParallelism), floorParallelism),
	}
}

// Acquire blocks until a batch slot is admitted. It re-reads the
// effective cap on every attempt, per spec §4.5/§9 ("admission gate
// ... re-reads P on each acquire"), then waits for the per-admission
// burst limiter before releasing the caller. Release must be called
// exactly once per successful Acquire.
func (c *Controller) Acquire(ctx context.Context) error {
	for {
		c.mu.Lock()
		ceiling := c.p
		if effective := c.effectiveCeilingLocked(); effective < ceiling {
			ceiling = effective
		}
		if c.active < ceiling {
			c.active++
			c.burstLimiter.SetLimit(rate.Limit(ceiling))
			c.burstLimiter.SetBurst(ceiling)
			c.mu.Unlock()
			break
		}
		wait := c.notify
		c.mu.Unlock()

		select {
		case <-wait:
			// a slot may have freed up; loop and re-check the ceiling
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := c.burstLimiter.Wait(ctx); err != nil {
		c.Release()
		return err
	}
	return nil
}

// Release returns a slot acquired via Acquire.
func (c *Controller) Release() {
	c.mu.Lock()
	c.active--
	old := c.notify
	c.notify = make(chan struct{})
	c.mu.Unlock()
	close(old)
}

// CurrentParallelism returns the live cap P, already clamped to
// [floor, effective ceiling].
func (c *Controller) CurrentParallelism() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ceiling := c.effectiveCeilingLocked(); c.p > ceiling {
		return ceiling
	}
	return c.p
}

// Phase returns the controller's current state.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// RecordSuccess notifies the controller that a batch completed
// successfully in duration d, per spec §4.2's per-batch update rule.
func (c *Controller) RecordSuccess(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.updateEMA(d)

	ceiling := c.effectiveCeilingLocked()
	if c.emaDuration >= c.opts.Preset.SlowBatchThreshold && c.phase == PhaseRamp {
		c.phase = PhaseCeilingApplied
	}

	if c.p >= ceiling {
		c.consecutiveSuccesses = 0
		return
	}

	c.consecutiveSuccesses++
	if c.consecutiveSuccesses >= c.opts.ConsecutiveSuccessesToIncrease &&
		time.Since(c.lastIncrease) >= c.opts.MinIncreaseInterval {
		c.p++
		c.consecutiveSuccesses = 0
		c.lastIncrease = time.Now()
	}
}

// RecordThrottle notifies the controller of a service-protection
// signal with the server's retry-after hint. Returns true if the
// retry-after exceeds tolerance and the controller has moved to
// FailFast — callers should stop retrying and surface the error.
func (c *Controller) RecordThrottle(retryAfter time.Duration) (failFast bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if retryAfter > c.opts.MaxRetryAfterTolerance {
		c.phase = PhaseFailFast
		return true
	}

	newP := int(float64(c.p) * c.opts.DecreaseFactor)
	if newP < floorParallelism {
		newP = floorParallelism
	}
	c.p = newP
	c.throttleCeiling = newP
	c.phase = PhaseBackoff
	c.consecutiveSuccesses = 0
	return false
}

// RecoverFromBackoff transitions Backoff back to Ramp once the
// cooldown window has passed, per spec §4.2's state machine.
func (c *Controller) RecoverFromBackoff() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseBackoff {
		c.phase = PhaseRamp
	}
}

func (c *Controller) updateEMA(d time.Duration) {
	if !c.hasDuration {
		c.emaDuration = d
		c.hasDuration = true
		return
	}
	alpha := c.opts.Smoothing
	c.emaDuration = time.Duration(alpha*float64(d) + (1-alpha)*float64(c.emaDuration))
}

// effectiveCeilingLocked computes min(hard, throttle, execution-time)
// per spec §4.2. Callers must hold c.mu.
func (c *Controller) effectiveCeilingLocked() int {
	ceiling := hardCeiling
	if c.throttleCeiling < ceiling {
		ceiling = c.throttleCeiling
	}

	if c.hasDuration && c.emaDuration >= c.opts.Preset.SlowBatchThreshold {
		msPerBatch := float64(c.emaDuration.Milliseconds())
		if msPerBatch > 0 {
			execCeiling := int(float64(c.opts.Preset.CeilingFactor) / (msPerBatch / 1000))
			if execCeiling < ceiling {
				ceiling = execCeiling
			}
		}
	}

	if ceiling < floorParallelism {
		ceiling = floorParallelism
	}
	return ceiling
}

// EffectiveCeiling exposes effectiveCeilingLocked for callers (e.g.
// the executor sizing its admission gate) that need the current cap
// without mutating state.
func (c *Controller) EffectiveCeiling() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.effectiveCeilingLocked()
}
