package oplet

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"
)

// ErrPanicked marks a panic raised downstream of a stage that delivers on
// its own task.
var ErrPanicked = errors.New("downstream panicked")

// StageError wraps an error returned by user code inside a vertex.
//
//nolint:govet // fieldalignment: struct layout optimized for readability over memory
type StageError[T any] struct {
	Item      T
	Err       error
	Stage     string // vertex ID
	Timestamp time.Time
}

// NewStageError stamps err with the vertex ID and executor time of ctx.
func NewStageError[T, O any](ctx Context[O], item T, err error) *StageError[T] {
	return &StageError[T]{
		Item:      item,
		Err:       err,
		Stage:     ctx.ID(),
		Timestamp: ctx.Executor().Now(),
	}
}

func (se *StageError[T]) Error() string {
	return fmt.Sprintf("%s: %v (item %v at %s)",
		se.Stage, se.Err, se.Item, se.Timestamp.Format(time.RFC3339Nano))
}

func (se *StageError[T]) Unwrap() error {
	return se.Err
}

// deliver calls submit and turns a panic into an ErrPanicked error, so a
// stage draining on the executor keeps its bookkeeping consistent.
func deliver[T any](submit func(T) error, t T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrPanicked, r, debug.Stack())
		}
	}()
	return submit(t)
}
