package oplet

import "fmt"

// Map transforms each tuple with a function. A function error is returned
// to the submitter wrapped in a StageError and nothing is emitted.
type Map[I, O any] struct {
	Base[O]
	fn func(I) (O, error)
}

// NewMap creates a stage emitting fn(t) for every input tuple t.
//
// Example:
//
//	celsius := oplet.NewMap(func(f float64) (float64, error) {
//		return (f - 32) * 5 / 9, nil
//	})
func NewMap[I, O any](fn func(I) (O, error)) *Map[I, O] {
	return &Map[I, O]{fn: fn}
}

func (m *Map[I, O]) Inputs() []func(I) error {
	return []func(I) error{m.accept}
}

func (m *Map[I, O]) accept(t I) error {
	out, err := m.fn(t)
	if err != nil {
		return NewStageError(m.Context(), t, err)
	}
	return m.Submit(out)
}

// FlatMap emits zero or more tuples per input tuple.
type FlatMap[I, O any] struct {
	Base[O]
	fn func(I) ([]O, error)
}

// NewFlatMap creates a stage emitting every element of fn(t) in order.
func NewFlatMap[I, O any](fn func(I) ([]O, error)) *FlatMap[I, O] {
	return &FlatMap[I, O]{fn: fn}
}

func (m *FlatMap[I, O]) Inputs() []func(I) error {
	return []func(I) error{m.accept}
}

func (m *FlatMap[I, O]) accept(t I) error {
	outs, err := m.fn(t)
	if err != nil {
		return NewStageError(m.Context(), t, err)
	}
	for _, o := range outs {
		if err := m.Submit(o); err != nil {
			return err
		}
	}
	return nil
}

// Filter forwards tuples matching a predicate.
type Filter[T any] struct {
	Base[T]
	predicate func(T) bool
}

// NewFilter creates a stage that drops tuples for which predicate is false.
func NewFilter[T any](predicate func(T) bool) *Filter[T] {
	return &Filter[T]{predicate: predicate}
}

func (f *Filter[T]) Inputs() []func(T) error {
	return []func(T) error{f.accept}
}

func (f *Filter[T]) accept(t T) error {
	if !f.predicate(t) {
		return nil
	}
	return f.Submit(t)
}

// Peek calls a function for each tuple and forwards the tuple unchanged.
//
// Peek is the stage inserted by Connector.Peek. It observes without
// interfering: a panicking observer is logged and the tuple still flows on.
type Peek[T any] struct {
	Base[T]
	fn func(T)
}

// NewPeek creates an observing stage.
//
// When to use:
//   - Debug logging and tracing
//   - Counting tuples for metrics
//   - Observing a running graph in tests
//
// Example:
//
//	tap := oplet.NewPeek(func(r Reading) {
//		logger.Debugw("Reading", "sensor", r.Sensor, "value", r.Value)
//	})
func NewPeek[T any](fn func(T)) *Peek[T] {
	return &Peek[T]{fn: fn}
}

func (p *Peek[T]) Inputs() []func(T) error {
	return []func(T) error{p.accept}
}

func (p *Peek[T]) accept(t T) error {
	func() {
		defer func() {
			if r := recover(); r != nil {
				p.Context().Logger().Errorw("Peek observer panicked",
					"vertex", p.Context().ID(), "panic", fmt.Sprint(r))
			}
		}()
		p.fn(t)
	}()
	return p.Submit(t)
}

// Sink is a terminal stage consuming tuples.
type Sink[T any] struct {
	Base[Void]
	fn func(T) error
}

// NewSink creates a stage calling fn for every tuple.
func NewSink[T any](fn func(T) error) *Sink[T] {
	return &Sink[T]{fn: fn}
}

func (s *Sink[T]) Inputs() []func(T) error {
	return []func(T) error{s.fn}
}
