// Package oplet defines the processing stages placed on a graph and the
// built-in stages: sources, sinks, transforms, fan-out, peek, split, union,
// window aggregation, pressure relief and isolation.
//
// An Oplet has typed input ports, exposed as handler functions, and typed
// output ports reached through its Context. Every handler returns an error so
// failures travel back to whoever submitted the tuple.
package oplet

import (
	"go.uber.org/zap"

	"github.com/zoobzio/edgez/executor"
)

// Void is the element type of the missing side of sources and sinks.
type Void struct{}

// Context is handed to an oplet at initialization.
type Context[O any] interface {
	// ID is the graph identifier of the oplet's vertex.
	ID() string
	// JobName names the job running the graph.
	JobName() string
	InputCount() int
	OutputCount() int
	// Outputs returns the current output ports. Ports can be added while the
	// graph runs, so oplets that broadcast read it per tuple.
	Outputs() []func(O) error
	Executor() *executor.Executor
	Logger() *zap.SugaredLogger
}

// Oplet is a processing stage with I-typed inputs and O-typed outputs.
type Oplet[I, O any] interface {
	Initialize(ctx Context[O]) error
	Start() error
	// Inputs returns one handler per input port. It is called after
	// Initialize.
	Inputs() []func(I) error
	Close() error
}

// Base carries the Context for oplets with no start or close work.
type Base[O any] struct {
	ctx Context[O]
}

func (b *Base[O]) Initialize(ctx Context[O]) error {
	b.ctx = ctx
	return nil
}

func (b *Base[O]) Start() error { return nil }

func (b *Base[O]) Close() error { return nil }

// Context returns the oplet context set at initialization.
func (b *Base[O]) Context() Context[O] {
	return b.ctx
}

// Submit sends o to output port 0.
func (b *Base[O]) Submit(o O) error {
	outs := b.ctx.Outputs()
	if len(outs) == 0 {
		return nil
	}
	return outs[0](o)
}
