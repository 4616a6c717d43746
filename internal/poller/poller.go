package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotActive is returned when an operation requires a started poller,
	// and by Tick when the poller was cancelled while the fetch was in flight.
	ErrNotActive = errors.New("poller is not active")

	// ErrInvalidInterval is returned for a non-positive Start interval or a
	// negative Reschedule delay.
	ErrInvalidInterval = errors.New("poll interval must be positive")
)

// FetchFunc retrieves the remote resource. The context is cancelled when the
// poller is cancelled.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Outcome classifies a completed tick for an [Observer].
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailure   Outcome = "failure"
	OutcomeDiscarded Outcome = "discarded" // result arrived after Cancel
)

// Observer receives tick outcomes and activity changes, typically to record metrics.
// Implementations must be safe for concurrent use and must not block.
type Observer interface {
	ObserveTick(name string, outcome Outcome, elapsed time.Duration, errorCount int)
	ObserveActive(name string, active bool)
}

// Config holds the dependencies of a [Poller].
type Config[T any] struct {
	// Name identifies the poller in logs and metrics.
	Name string

	// Fetch retrieves the resource. Required.
	Fetch FetchFunc[T]

	// Timer schedules ticks. Defaults to [SystemTimer].
	Timer Timer

	// Logger receives fetch failures and recovered panics.
	// Defaults to slog.Default().
	Logger *slog.Logger

	// OnUpdate is called with a fresh snapshot after every state change.
	// It runs outside the poller's lock, possibly on a timer goroutine, and
	// may call back into the poller.
	OnUpdate func(PollState[T])

	// Observer is optional.
	Observer Observer
}

// Poller periodically fetches a resource and reschedules itself until cancelled.
//
// Poller owns its [PollState]. All mutation happens inside the poller; owners
// read copies via [Poller.Snapshot] or the OnUpdate callback. At most one tick
// is pending at any time: every scheduling path cancels the previous handle
// first.
//
// Timer callbacks and in-flight fetches carry the epoch they started in.
// Cancel advances the epoch, so a callback that already fired but has not yet
// acquired the lock never starts a fetch, and a fetch that completes after
// Cancel has its result discarded.
//
// A tick that fires or is rescheduled while a fetch is in flight does not
// start a second fetch; it is deferred until that fetch completes. Fetches are also
// numbered as they start, and a result older than the last applied one is
// dropped, so a stale resource never replaces a newer one.
//
// All methods are safe for concurrent use.
type Poller[T any] struct {
	name     string
	fetch    FetchFunc[T]
	timer    Timer
	logger   *slog.Logger
	onUpdate func(PollState[T])
	observer Observer

	mu          sync.Mutex
	active      bool
	interval    time.Duration
	epoch       uint64
	pending     TimerHandle
	pendingSeq  uint64
	seq         uint64
	inflight    int
	deferred    time.Duration
	hasDeferred bool
	started     uint64
	applied     uint64
	errorCount  int
	lastErr     error
	resource    T
	hasResource bool
	updatedAt   time.Time
	ticks       int
	version     uint64
	runCtx      context.Context
	runCancel   context.CancelFunc
	stopParent  func() bool
	done        chan struct{}
}

// New creates an idle [Poller]. Call [Poller.Start] to begin polling.
//
// Returns an error if cfg.Fetch is nil.
func New[T any](cfg Config[T]) (*Poller[T], error) {
	if cfg.Fetch == nil {
		return nil, errors.New("poller: fetch function is required")
	}
	timer := cfg.Timer
	if timer == nil {
		timer = SystemTimer()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	done := make(chan struct{})
	close(done)

	return &Poller[T]{
		name:     cfg.Name,
		fetch:    cfg.Fetch,
		timer:    timer,
		logger:   logger,
		onUpdate: cfg.OnUpdate,
		observer: cfg.Observer,
		done:     done,
	}, nil
}

// Start begins the poll cycle. The first tick fires after interval.
//
// Start is idempotent while the poller is active: it returns nil and leaves
// the existing schedule untouched. After [Poller.Cancel], Start begins a new
// cycle and keeps the last fetched resource.
//
// Cancelling ctx cancels the poller. Returns [ErrInvalidInterval] if interval
// is not positive.
func (p *Poller[T]) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}
	if ctx == nil {
		ctx = context.Background()
	}

	p.mu.Lock()
	if p.active {
		p.mu.Unlock()
		return nil
	}
	p.active = true
	p.epoch++
	p.hasDeferred = false
	p.interval = interval
	p.runCtx, p.runCancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	p.scheduleLocked(interval)
	epoch := p.epoch
	snap := p.snapshotLocked()
	p.mu.Unlock()

	// registered after unlocking: AfterFunc runs Cancel right away if ctx is already done
	stop := context.AfterFunc(ctx, p.Cancel)
	p.mu.Lock()
	if p.active && p.epoch == epoch {
		p.stopParent = stop
	} else {
		stop()
	}
	p.mu.Unlock()

	if p.observer != nil {
		p.observer.ObserveActive(p.name, true)
	}
	p.notify(snap)
	return nil
}

// Tick performs one fetch now, then reschedules the next tick after the
// regular interval, replacing any pending tick.
//
// On success the resource is replaced and the error count reset; on failure
// the error count is incremented and the error recorded. The fetch error is
// returned either way; failures never stop the cycle.
//
// Returns [ErrNotActive] without fetching if the poller is not active.
func (p *Poller[T]) Tick(ctx context.Context) error {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return ErrNotActive
	}
	epoch, runCtx := p.epoch, p.runCtx
	fetchSeq, snap := p.beginLocked()
	p.mu.Unlock()
	p.notify(snap)

	if ctx == nil {
		ctx = context.Background()
	}
	return p.run(ctx, runCtx, epoch, fetchSeq)
}

// Reschedule cancels any pending tick and schedules a new one after d.
// The regular interval is unchanged. A zero d schedules an immediate tick.
// While a fetch is in flight the new tick is held back and scheduled when
// that fetch completes, in place of the regular interval.
//
// Returns [ErrNotActive] if the poller is not active and
// [ErrInvalidInterval] if d is negative.
func (p *Poller[T]) Reschedule(d time.Duration) error {
	if d < 0 {
		return ErrInvalidInterval
	}

	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return ErrNotActive
	}
	if p.inflight > 0 {
		p.cancelPendingLocked()
		p.deferLocked(d)
	} else {
		p.scheduleLocked(d)
	}
	snap := p.snapshotLocked()
	p.mu.Unlock()

	p.notify(snap)
	return nil
}

// Cancel stops the poll cycle: the pending tick is cleared, the poller is
// marked inactive and the context of any in-flight fetch is cancelled.
// A fetch that still completes has its result discarded.
//
// Cancel is idempotent and safe to call when nothing is pending.
func (p *Poller[T]) Cancel() {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return
	}
	p.active = false
	p.epoch++
	p.hasDeferred = false
	p.version++
	p.cancelPendingLocked()
	if p.runCancel != nil {
		p.runCancel()
	}
	if p.stopParent != nil {
		p.stopParent()
		p.stopParent = nil
	}
	close(p.done)
	snap := p.snapshotLocked()
	p.mu.Unlock()

	if p.observer != nil {
		p.observer.ObserveActive(p.name, false)
	}
	p.notify(snap)
}

// Snapshot returns a copy of the current state.
func (p *Poller[T]) Snapshot() PollState[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// Done returns a channel that is closed when the current cycle is cancelled.
// Before the first Start the returned channel is already closed.
func (p *Poller[T]) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// scheduleLocked replaces the pending tick with one that fires after d.
// Caller must hold p.mu.
func (p *Poller[T]) scheduleLocked(d time.Duration) {
	p.cancelPendingLocked()

	p.seq++
	seq := p.seq
	epoch := p.epoch
	p.pendingSeq = seq
	p.pending = p.timer.Schedule(d, func() { p.fire(epoch, seq) })
	p.version++
}

// deferLocked records a tick to schedule after d once the in-flight fetch
// completes. The earliest deferred tick wins. Caller must hold p.mu.
func (p *Poller[T]) deferLocked(d time.Duration) {
	if !p.hasDeferred || d < p.deferred {
		p.deferred = d
	}
	p.hasDeferred = true
	p.version++
}

// cancelPendingLocked clears the pending tick. Caller must hold p.mu.
func (p *Poller[T]) cancelPendingLocked() {
	if p.pending != nil {
		p.pending.Cancel()
		p.pending = nil
		p.version++
	}
	p.pendingSeq = 0
}

// fire is the timer callback. Stale callbacks (cancelled or superseded
// after the timer already fired) are ignored.
func (p *Poller[T]) fire(epoch, seq uint64) {
	p.mu.Lock()
	if !p.active || p.epoch != epoch || p.pendingSeq != seq {
		p.mu.Unlock()
		return
	}
	p.pending = nil
	p.pendingSeq = 0
	p.version++
	if p.inflight > 0 {
		p.deferLocked(0)
		snap := p.snapshotLocked()
		p.mu.Unlock()
		p.notify(snap)
		return
	}
	runCtx := p.runCtx
	fetchSeq, snap := p.beginLocked()
	p.mu.Unlock()
	p.notify(snap)

	// the error is already recorded in the poll state
	_ = p.run(runCtx, runCtx, epoch, fetchSeq)
}

// beginLocked marks a fetch as in flight and returns its start number.
// Caller must hold p.mu.
func (p *Poller[T]) beginLocked() (uint64, PollState[T]) {
	p.inflight++
	p.started++
	p.version++
	return p.started, p.snapshotLocked()
}

// run performs a fetch begun with beginLocked and applies its result,
// unless the epoch moved on while it was in flight or a fetch started
// later has already been applied.
func (p *Poller[T]) run(ctx, runCtx context.Context, epoch, fetchSeq uint64) error {
	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(runCtx, cancel)
	defer stop()

	start := time.Now()
	resource, err := p.safeFetch(fetchCtx)
	elapsed := time.Since(start)

	p.mu.Lock()
	p.inflight--
	p.version++
	if !p.active || p.epoch != epoch {
		// a restarted cycle may have deferred a tick behind this stale fetch
		if p.active && p.hasDeferred && p.inflight == 0 {
			p.hasDeferred = false
			p.scheduleLocked(p.deferred)
		}
		snap := p.snapshotLocked()
		p.mu.Unlock()
		if p.observer != nil {
			p.observer.ObserveTick(p.name, OutcomeDiscarded, elapsed, snap.ErrorCount)
		}
		p.notify(snap)
		return ErrNotActive
	}
	if fetchSeq < p.applied {
		// a newer fetch already applied its result and rescheduled
		if p.hasDeferred && p.inflight == 0 {
			p.hasDeferred = false
			p.scheduleLocked(p.deferred)
		}
		snap := p.snapshotLocked()
		p.mu.Unlock()
		if p.observer != nil {
			p.observer.ObserveTick(p.name, OutcomeDiscarded, elapsed, snap.ErrorCount)
		}
		p.notify(snap)
		return err
	}
	p.applied = fetchSeq

	p.ticks++
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
		p.errorCount++
		p.lastErr = err
	} else {
		p.errorCount = 0
		p.lastErr = nil
		p.resource = resource
		p.hasResource = true
		p.updatedAt = time.Now()
	}
	interval := p.interval
	if p.hasDeferred && p.inflight == 0 {
		p.hasDeferred = false
		interval = p.deferred
	}
	p.scheduleLocked(interval)
	snap := p.snapshotLocked()
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn("poll failed",
			"poller", p.name,
			"error", err.Error(),
			"error_count", snap.ErrorCount,
			"next_in", interval.String(),
		)
	} else {
		p.logger.Debug("poll completed",
			"poller", p.name,
			"latency_ms", elapsed.Milliseconds(),
		)
	}
	if p.observer != nil {
		p.observer.ObserveTick(p.name, outcome, elapsed, snap.ErrorCount)
	}
	p.notify(snap)
	return err
}

// safeFetch calls the fetch function with panic recovery. A panic is logged
// with its stack under a correlation id and reported as a fetch failure.
func (p *Poller[T]) safeFetch(ctx context.Context) (resource T, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			p.logger.Error("fetch panic",
				"poller", p.name,
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			var zero T
			resource = zero
			err = fmt.Errorf("fetch panic (correlation_id: %s)", correlationID)
		}
	}()
	return p.fetch(ctx)
}

// snapshotLocked copies the current state. Caller must hold p.mu.
func (p *Poller[T]) snapshotLocked() PollState[T] {
	state := StateIdle
	switch {
	case !p.active:
	case p.inflight > 0:
		state = StateFetching
	case p.pending != nil:
		state = StateScheduled
	}

	return PollState[T]{
		Name:        p.name,
		Active:      p.active,
		Pending:     p.pending != nil,
		State:       state,
		Interval:    p.interval,
		ErrorCount:  p.errorCount,
		LastError:   p.lastErr,
		Resource:    p.resource,
		HasResource: p.hasResource,
		UpdatedAt:   p.updatedAt,
		Ticks:       p.ticks,
		Version:     p.version,
	}
}

func (p *Poller[T]) notify(s PollState[T]) {
	if p.onUpdate != nil {
		p.onUpdate(s)
	}
}
