// Package executor provides the scheduled-task executor that drives timed
// window eviction, periodic sources and asynchronous oplets.
//
// The Executor tracks every task it has accepted. A job is considered alive
// while the executor has scheduled, running or held work, and any failure of
// a task (returned error or recovered panic) is reported through a single
// failure channel instead of being dropped.
package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/zoobzio/edgez/logging"
)

var (
	// ErrShutdown is reported for work submitted after Shutdown.
	ErrShutdown = errors.New("executor is shut down")
	// ErrInvalidPeriod is returned for non-positive periodic task periods.
	ErrInvalidPeriod = errors.New("period must be positive")
)

// Task is a unit of work run by the executor.
type Task func() error

// Future is the cancelable handle of a scheduled task.
type Future interface {
	// Cancel stops future executions of the task. It returns false when the
	// task had already completed or been canceled.
	Cancel() bool
	// Done reports whether the task completed or was canceled.
	Done() bool
}

// Scheduler is the timer facility consumed by windows and oplets.
type Scheduler interface {
	// Schedule runs task once after delay.
	Schedule(delay time.Duration, task Task) Future
	// ScheduleAtFixedRate runs task after initial and then every period
	// until canceled or until an execution fails.
	ScheduleAtFixedRate(initial, period time.Duration, task Task) (Future, error)
	// Execute runs task asynchronously as soon as possible.
	Execute(task Task)
	// Now returns the scheduler's notion of the current time.
	Now() time.Time
}

// Executor is a tracking Scheduler built on a clockz.Clock.
//
//nolint:govet // fieldalignment: struct layout optimized for readability
type Executor struct {
	clock   clockz.Clock
	logger  *zap.SugaredLogger
	sem     *semaphore.Weighted
	onError func(error)

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	futures map[uint64]*future
	nextID  uint64
	pending int
	idle    chan struct{}

	busy     int
	quiet    chan struct{}
	shutdown atomic.Bool

	errMu    sync.Mutex
	firstErr error
	failed   chan struct{}
	errs     chan error

	executed atomic.Int64
	failures atomic.Int64
}

// Option configures an Executor.
type Option func(*Executor)

// WithClock sets the clock used for delays and Now.
func WithClock(clock clockz.Clock) Option {
	return func(e *Executor) {
		e.clock = clock
	}
}

// WithLogger sets the logger failures are written to.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithConcurrency bounds the number of short tasks running at once.
// Long-running work started with Go is not bounded.
func WithConcurrency(n int64) Option {
	return func(e *Executor) {
		if n > 0 {
			e.sem = semaphore.NewWeighted(n)
		}
	}
}

// OnError registers a hook called for every task failure.
func OnError(fn func(error)) Option {
	return func(e *Executor) {
		e.onError = fn
	}
}

// New creates an Executor. The defaults are the real clock, a production
// logger and a concurrency bound of 64 tasks.
func New(opts ...Option) *Executor {
	idle := make(chan struct{})
	close(idle)
	quiet := make(chan struct{})
	close(quiet)
	e := &Executor{
		clock:   clockz.RealClock,
		sem:     semaphore.NewWeighted(64),
		futures: make(map[uint64]*future),
		idle:    idle,
		quiet:   quiet,
		failed:  make(chan struct{}),
		errs:    make(chan error, 16),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.NewLogger()
	}
	e.ctx, e.cancel = context.WithCancel(logging.WithLogger(context.Background(), e.logger))
	return e
}

// Now returns the executor clock's current time.
func (e *Executor) Now() time.Time {
	return e.clock.Now()
}

// Clock returns the executor clock.
func (e *Executor) Clock() clockz.Clock {
	return e.clock
}

// Schedule runs task once after delay. Negative delays run immediately.
// After shutdown the task is dropped and the returned future is done.
func (e *Executor) Schedule(delay time.Duration, task Task) Future {
	f := e.track()
	if f == nil {
		return canceled{}
	}
	if delay < 0 {
		delay = 0
	}
	f.mu.Lock()
	f.arm(delay, task)
	f.mu.Unlock()
	return f
}

// ScheduleAtFixedRate runs task after initial and then every period. Each
// firing is aligned to the previous scheduled time, not to when the previous
// run finished. A failing execution stops the task and is reported.
func (e *Executor) ScheduleAtFixedRate(initial, period time.Duration, task Task) (Future, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPeriod, period)
	}
	if initial < 0 {
		initial = 0
	}
	f := e.track()
	if f == nil {
		return canceled{}, ErrShutdown
	}
	f.period = period
	f.mu.Lock()
	f.next = e.clock.Now().Add(initial)
	f.arm(initial, task)
	f.mu.Unlock()
	return f, nil
}

// Execute runs task on a new goroutine once a concurrency slot is free.
func (e *Executor) Execute(task Task) {
	f := e.track()
	if f == nil {
		e.report(ErrShutdown)
		return
	}
	go e.run(f, task)
}

// Go starts long-running work. The context carries the executor's logger,
// see logging.FromContext, and is canceled by Shutdown.
// The work counts as pending until fn returns.
func (e *Executor) Go(fn func(ctx context.Context) error) {
	if e.shutdown.Load() {
		e.report(ErrShutdown)
		return
	}
	e.inc()
	e.enter()
	go func() {
		defer e.leave()
		defer e.dec()
		if err := e.call(func() error { return fn(e.ctx) }); err != nil && !errors.Is(err, context.Canceled) {
			e.report(err)
		}
	}()
}

// Hold marks external work as pending, keeping the executor alive until the
// returned release function is called. Release is idempotent.
func (e *Executor) Hold() (release func()) {
	e.inc()
	var once sync.Once
	return func() {
		once.Do(e.dec)
	}
}

// HasActiveTasks reports whether any scheduled, running or held work remains.
func (e *Executor) HasActiveTasks() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending > 0
}

// Idle returns a channel closed once no work is pending.
func (e *Executor) Idle() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.idle
}

// Failed returns a channel closed on the first task failure.
func (e *Executor) Failed() <-chan struct{} {
	return e.failed
}

// Errors streams task failures. Failures are dropped from the stream, but
// not from Err, when nobody is reading.
func (e *Executor) Errors() <-chan error {
	return e.errs
}

// Err returns the first reported failure.
func (e *Executor) Err() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.firstErr
}

// Wait blocks until no work is pending, a task fails or ctx is done.
func (e *Executor) Wait(ctx context.Context) error {
	select {
	case <-e.Idle():
		return e.Err()
	case <-e.failed:
		return e.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns the number of executed and failed tasks.
func (e *Executor) Stats() (executed, failed int64) {
	return e.executed.Load(), e.failures.Load()
}

// Shutdown cancels all scheduled tasks and long-running work, then waits for
// running tasks to return or ctx to be done.
func (e *Executor) Shutdown(ctx context.Context) error {
	if !e.shutdown.CAS(false, true) {
		return nil
	}
	e.cancel()

	e.mu.Lock()
	futures := make([]*future, 0, len(e.futures))
	for _, f := range e.futures {
		futures = append(futures, f)
	}
	e.mu.Unlock()
	for _, f := range futures {
		f.Cancel()
	}

	e.mu.Lock()
	quiet := e.quiet
	e.mu.Unlock()
	select {
	case <-quiet:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) track() *future {
	if e.shutdown.Load() {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	f := &future{e: e, id: e.nextID}
	e.futures[f.id] = f
	e.addPendingLocked()
	return f
}

func (e *Executor) untrack(f *future) {
	e.mu.Lock()
	delete(e.futures, f.id)
	e.mu.Unlock()
	e.dec()
}

func (e *Executor) inc() {
	e.mu.Lock()
	e.addPendingLocked()
	e.mu.Unlock()
}

func (e *Executor) addPendingLocked() {
	if e.pending == 0 {
		e.idle = make(chan struct{})
	}
	e.pending++
}

func (e *Executor) enter() {
	e.mu.Lock()
	if e.busy == 0 {
		e.quiet = make(chan struct{})
	}
	e.busy++
	e.mu.Unlock()
}

func (e *Executor) leave() {
	e.mu.Lock()
	e.busy--
	if e.busy == 0 {
		close(e.quiet)
	}
	e.mu.Unlock()
}

func (e *Executor) dec() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending--
	if e.pending == 0 {
		close(e.idle)
	}
}

// run executes one firing of f.
func (e *Executor) run(f *future, task Task) {
	if !f.begin() {
		return
	}
	e.enter()
	defer e.leave()

	if err := e.sem.Acquire(e.ctx, 1); err != nil {
		f.finish()
		return
	}
	err := e.call(task)
	e.sem.Release(1)
	e.executed.Inc()

	if err != nil {
		e.report(err)
		f.finish()
		return
	}
	if f.period > 0 && f.rearm(task) {
		return
	}
	f.finish()
}

// call runs fn, converting a panic into an error.
func (e *Executor) call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return fn()
}

func (e *Executor) report(err error) {
	e.failures.Inc()
	e.logger.Errorw("Task failed", zap.Error(err))

	e.errMu.Lock()
	if e.firstErr == nil {
		e.firstErr = err
		close(e.failed)
	}
	e.errMu.Unlock()

	if e.onError != nil {
		e.onError(err)
	}
	select {
	case e.errs <- err:
	default:
	}
}

type futureState int

const (
	scheduled futureState = iota
	running
	done
)

//nolint:govet // fieldalignment: struct layout optimized for readability
type future struct {
	e      *Executor
	id     uint64
	period time.Duration

	mu       sync.Mutex
	timer    clockz.Timer
	next     time.Time
	state    futureState
	canceled bool
}

func (f *future) begin() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.canceled || f.state != scheduled {
		return false
	}
	f.state = running
	return true
}

// rearm schedules the next periodic firing unless the task was canceled
// while it ran.
func (f *future) rearm(task Task) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.canceled || f.e.shutdown.Load() {
		return false
	}
	f.next = f.next.Add(f.period)
	delay := f.next.Sub(f.e.clock.Now())
	if delay < 0 {
		delay = 0
	}
	f.state = scheduled
	f.arm(delay, task)
	return true
}

// arm starts the timer for the next firing. Zero delays run on a goroutine
// directly so they never wait on a clock advance. Must hold f.mu.
func (f *future) arm(delay time.Duration, task Task) {
	if delay <= 0 {
		f.timer = nil
		go f.e.run(f, task)
		return
	}
	f.timer = f.e.clock.AfterFunc(delay, func() { f.e.run(f, task) })
}

func (f *future) finish() {
	f.mu.Lock()
	if f.state == done {
		f.mu.Unlock()
		return
	}
	f.state = done
	f.mu.Unlock()
	f.e.untrack(f)
}

func (f *future) Cancel() bool {
	f.mu.Lock()
	if f.canceled || f.state == done {
		f.mu.Unlock()
		return false
	}
	f.canceled = true
	wasScheduled := f.state == scheduled
	if wasScheduled && f.timer != nil {
		f.timer.Stop()
	}
	f.mu.Unlock()
	if wasScheduled {
		f.finish()
	}
	return true
}

func (f *future) Done() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.canceled || f.state == done
}

// canceled is the Future returned for work refused after Shutdown.
type canceled struct{}

func (canceled) Cancel() bool { return false }
func (canceled) Done() bool   { return true }
