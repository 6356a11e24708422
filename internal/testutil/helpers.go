// Package testutil provides test utilities for edgez.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"

	"github.com/zoobzio/edgez/executor"
	"github.com/zoobzio/edgez/logging"
)

// NewExecutor returns an executor on clock with a silent logger. It is shut
// down when the test ends.
func NewExecutor(t *testing.T, clock clockz.Clock, opts ...executor.Option) *executor.Executor {
	t.Helper()
	opts = append([]executor.Option{
		executor.WithClock(clock),
		executor.WithLogger(logging.NewNopLogger()),
	}, opts...)
	e := executor.New(opts...)
	t.Cleanup(func() {
		_ = e.Shutdown(context.Background())
	})
	return e
}

// Collector records tuples from any number of goroutines.
type Collector[T any] struct {
	mu    sync.Mutex
	items []T
}

// NewCollector returns an empty Collector.
func NewCollector[T any]() *Collector[T] {
	return &Collector[T]{}
}

// Add records t. Its signature fits sink and output functions.
func (c *Collector[T]) Add(t T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, t)
	return nil
}

// Items returns a copy of the recorded tuples.
func (c *Collector[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of recorded tuples.
func (c *Collector[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// WaitForCount waits until at least n tuples were recorded and returns them.
func (c *Collector[T]) WaitForCount(t *testing.T, n int, timeout time.Duration) []T {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.Len() >= n {
			return c.Items()
		}
		time.Sleep(time.Millisecond)
	}
	items := c.Items()
	t.Fatalf("expected %d items, got %d", n, len(items))
	return items
}

// Context is a hand-wired oplet context for unit tests.
//
//nolint:govet // fieldalignment: struct layout optimized for readability
type Context[O any] struct {
	mu      sync.Mutex
	id      string
	inputs  int
	outputs []func(O) error
	exec    *executor.Executor
	logger  *zap.SugaredLogger
	jobName string
}

// NewContext returns a context with the given input count and outputs.
func NewContext[O any](exec *executor.Executor, inputs int, outputs ...func(O) error) *Context[O] {
	return &Context[O]{
		id:      "OP_0",
		inputs:  inputs,
		outputs: outputs,
		exec:    exec,
		logger:  logging.NewNopLogger(),
		jobName: "JOB_test",
	}
}

// AddOutput appends an output port.
func (c *Context[O]) AddOutput(out func(O) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outputs = append(c.outputs, out)
}

func (c *Context[O]) ID() string      { return c.id }
func (c *Context[O]) JobName() string { return c.jobName }
func (c *Context[O]) InputCount() int { return c.inputs }

func (c *Context[O]) OutputCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outputs)
}

func (c *Context[O]) Outputs() []func(O) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]func(O) error, len(c.outputs))
	copy(out, c.outputs)
	return out
}

func (c *Context[O]) Executor() *executor.Executor { return c.exec }

func (c *Context[O]) Logger() *zap.SugaredLogger { return c.logger }
