package oplet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zoobzio/edgez/executor"
	"github.com/zoobzio/edgez/logging"
)

// Source is the base of oplets without inputs.
type Source[O any] struct {
	Base[O]
}

func (s *Source[O]) Inputs() []func(Void) error { return nil }

// Generator runs a function on the executor at start. The function submits
// tuples until it returns or its context is canceled by shutdown. The
// context carries the vertex logger, see logging.FromContext.
type Generator[O any] struct {
	Source[O]
	fn func(ctx context.Context, submit func(O) error) error
}

// NewGenerator creates a source driven by fn.
func NewGenerator[O any](fn func(ctx context.Context, submit func(O) error) error) *Generator[O] {
	return &Generator[O]{fn: fn}
}

func (g *Generator[O]) Start() error {
	logger := g.Context().Logger()
	g.Context().Executor().Go(func(ctx context.Context) error {
		return g.fn(logging.WithLogger(ctx, logger), g.Submit)
	})
	return nil
}

// NewValues creates a source emitting items once, in order.
func NewValues[O any](items ...O) *Generator[O] {
	return NewGenerator(func(ctx context.Context, submit func(O) error) error {
		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := submit(item); err != nil {
				return err
			}
		}
		return nil
	})
}

// Periodic polls a function at a fixed rate and submits what it returns.
//
//nolint:govet // fieldalignment: struct layout optimized for readability
type Periodic[O any] struct {
	Source[O]
	period time.Duration
	fn     func() (O, bool, error)

	mu     sync.Mutex
	future executor.Future
}

// NewPeriodic creates a polling source. fn reports false to skip a poll.
func NewPeriodic[O any](period time.Duration, fn func() (O, bool, error)) (*Periodic[O], error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: %s", executor.ErrInvalidPeriod, period)
	}
	return &Periodic[O]{period: period, fn: fn}, nil
}

func (p *Periodic[O]) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scheduleLocked()
}

// SetPeriod changes the polling period, replacing the running schedule.
func (p *Periodic[O]) SetPeriod(period time.Duration) error {
	if period <= 0 {
		return fmt.Errorf("%w: %s", executor.ErrInvalidPeriod, period)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.period = period
	if p.future == nil {
		return nil
	}
	p.future.Cancel()
	return p.scheduleLocked()
}

// Period returns the polling period.
func (p *Periodic[O]) Period() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.period
}

func (p *Periodic[O]) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.future != nil {
		p.future.Cancel()
	}
	return nil
}

func (p *Periodic[O]) scheduleLocked() error {
	f, err := p.Context().Executor().ScheduleAtFixedRate(0, p.period, p.poll)
	if err != nil {
		return err
	}
	p.future = f
	return nil
}

func (p *Periodic[O]) poll() error {
	v, ok, err := p.fn()
	if err != nil || !ok {
		return err
	}
	return p.Submit(v)
}

// Events is a source fed by an external callback. The setup function is
// given a submit function at start and may call it from any goroutine until
// the job closes. The source keeps the job alive until it is closed.
type Events[O any] struct {
	Source[O]
	setup func(submit func(O) error) error

	mu      sync.Mutex
	release func()
	closed  bool
}

// NewEvents creates a callback source.
func NewEvents[O any](setup func(submit func(O) error) error) *Events[O] {
	return &Events[O]{setup: setup}
}

func (e *Events[O]) Start() error {
	e.mu.Lock()
	e.release = e.Context().Executor().Hold()
	e.mu.Unlock()
	return e.setup(e.submit)
}

func (e *Events[O]) submit(o O) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil
	}
	return e.Submit(o)
}

func (e *Events[O]) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	if e.release != nil {
		e.release()
	}
	return nil
}
