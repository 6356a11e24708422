package oplet

import "go.uber.org/multierr"

// FanOut delivers every tuple to all of its output ports.
//
// A graph inserts a FanOut transparently when an output port gains a second
// connection, so applications rarely create one directly. Outputs are read
// per tuple: a port added while the graph runs receives every later tuple.
// Delivery continues to the remaining ports when one fails and the failures
// are combined.
type FanOut[T any] struct {
	Base[T]
}

// NewFanOut creates a broadcasting stage.
func NewFanOut[T any]() *FanOut[T] {
	return &FanOut[T]{}
}

func (f *FanOut[T]) Inputs() []func(T) error {
	return []func(T) error{f.accept}
}

func (f *FanOut[T]) accept(t T) error {
	var err error
	for _, out := range f.Context().Outputs() {
		err = multierr.Append(err, out(t))
	}
	return err
}
