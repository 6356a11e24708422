package oplet

import "sync"

// Isolate hands tuples to the executor so the submitter never runs the
// downstream stages. Order is preserved: a single drain task runs at a time
// and empties the queue in arrival order. A downstream error or panic ends
// the current task, which is reported, and a new one takes over the queue.
//
//nolint:govet // fieldalignment: struct layout optimized for readability
type Isolate[T any] struct {
	Base[T]
	mu       sync.Mutex
	queue    []T
	draining bool
}

// NewIsolate creates an ordered isolating stage.
func NewIsolate[T any]() *Isolate[T] {
	return &Isolate[T]{}
}

func (i *Isolate[T]) Inputs() []func(T) error {
	return []func(T) error{i.accept}
}

func (i *Isolate[T]) accept(t T) error {
	i.mu.Lock()
	i.queue = append(i.queue, t)
	start := !i.draining
	i.draining = true
	i.mu.Unlock()
	if start {
		i.Context().Executor().Execute(i.drain)
	}
	return nil
}

func (i *Isolate[T]) drain() error {
	var zero T
	for {
		i.mu.Lock()
		if len(i.queue) == 0 {
			i.draining = false
			i.mu.Unlock()
			return nil
		}
		t := i.queue[0]
		i.queue[0] = zero
		i.queue = i.queue[1:]
		i.mu.Unlock()

		if err := deliver(i.Submit, t); err != nil {
			i.mu.Lock()
			restart := len(i.queue) > 0
			if !restart {
				i.draining = false
			}
			i.mu.Unlock()
			if restart {
				i.Context().Executor().Execute(i.drain)
			}
			return err
		}
	}
}

// Pending returns the number of queued tuples.
func (i *Isolate[T]) Pending() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.queue)
}

// UnorderedIsolate submits every tuple on its own executor task. Tuples may
// reach downstream stages in any order.
type UnorderedIsolate[T any] struct {
	Base[T]
}

// NewUnorderedIsolate creates an unordered isolating stage.
func NewUnorderedIsolate[T any]() *UnorderedIsolate[T] {
	return &UnorderedIsolate[T]{}
}

func (u *UnorderedIsolate[T]) Inputs() []func(T) error {
	return []func(T) error{u.accept}
}

func (u *UnorderedIsolate[T]) accept(t T) error {
	u.Context().Executor().Execute(func() error {
		return u.Submit(t)
	})
	return nil
}
