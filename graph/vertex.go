package graph

import (
	"fmt"
	"sort"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/zoobzio/edgez/executor"
	"github.com/zoobzio/edgez/oplet"
)

// VertexInfo describes a vertex.
type VertexInfo struct {
	ID      string
	Kind    string
	Inputs  int
	Outputs int
	// Synthetic marks peeks and fan-outs inserted by connectors.
	Synthetic bool
}

// Vertex holds one oplet in the graph.
//
//nolint:govet // fieldalignment: struct layout optimized for readability
type Vertex[I, O any] struct {
	g         *Graph
	handle    int
	op        oplet.Oplet[I, O]
	inputs    int
	synthetic bool

	// ports and connectors are guarded by g.mu.
	ports      []*port[O]
	connectors []*Connector[O]
	// outs is the lock-free snapshot of port senders read during delivery.
	outs atomic.Pointer[[]func(O) error]

	handlers []func(I) error
	ctx      *vertexContext[I, O]
}

func newVertex[I, O any](g *Graph, handle int, op oplet.Oplet[I, O], inputs int) *Vertex[I, O] {
	v := &Vertex[I, O]{g: g, handle: handle, op: op, inputs: inputs}
	empty := []func(O) error{}
	v.outs.Store(&empty)
	return v
}

// ID returns the vertex ID.
func (v *Vertex[I, O]) ID() string {
	return vertexID(v.handle)
}

// Graph returns the owning graph.
func (v *Vertex[I, O]) Graph() *Graph {
	return v.g
}

// Instance returns the vertex's oplet.
func (v *Vertex[I, O]) Instance() oplet.Oplet[I, O] {
	return v.op
}

// Connectors returns the connectors of the vertex's output ports.
func (v *Vertex[I, O]) Connectors() []*Connector[O] {
	v.g.mu.Lock()
	defer v.g.mu.Unlock()
	out := make([]*Connector[O], len(v.connectors))
	copy(out, v.connectors)
	return out
}

// AddOutput adds an output port and returns its connector. Unconnected
// ports discard what is submitted to them.
func (v *Vertex[I, O]) AddOutput() *Connector[O] {
	v.g.mu.Lock()
	defer v.g.mu.Unlock()
	return v.addOutputLocked()
}

// Disconnect clears the connection of output port i.
func (v *Vertex[I, O]) Disconnect(i int) error {
	v.g.mu.Lock()
	defer v.g.mu.Unlock()
	if i < 0 || i >= len(v.ports) {
		return fmt.Errorf("%w: %s has no output %d", ErrInvalidPort, v.ID(), i)
	}
	v.ports[i].disconnect()
	return nil
}

func (v *Vertex[I, O]) addOutputLocked() *Connector[O] {
	tags := newTagSet()
	idx := v.addPortLocked(tags)
	c := &Connector[O]{
		g:      v.g,
		active: portRef{handle: v.handle, port: idx},
		fanOut: -1,
		tags:   tags,
	}
	v.connectors = append(v.connectors, c)
	return c
}

// addPortLocked adds an output port sharing tags and publishes the new
// sender snapshot.
func (v *Vertex[I, O]) addPortLocked(tags *tagSet) int {
	p := newPort[O](tags)
	v.ports = append(v.ports, p)
	outs := make([]func(O) error, len(v.ports))
	for i, p := range v.ports {
		outs[i] = p.send
	}
	v.outs.Store(&outs)
	return len(v.ports) - 1
}

func (v *Vertex[I, O]) portLocked(i int) *port[O] {
	return v.ports[i]
}

func (v *Vertex[I, O]) graph() *Graph { return v.g }

func (v *Vertex[I, O]) vertexHandle() int { return v.handle }

func (v *Vertex[I, O]) inputCount() int { return v.inputs }

// input returns the delivery function for input port i.
func (v *Vertex[I, O]) input(i int) func(I) error {
	return func(t I) error {
		if v.handlers == nil {
			return fmt.Errorf("%w: %s", ErrNotInitialized, v.ID())
		}
		return v.handlers[i](t)
	}
}

func (v *Vertex[I, O]) info() VertexInfo {
	return VertexInfo{
		ID:        v.ID(),
		Kind:      kindOf(v.op),
		Inputs:    v.inputs,
		Outputs:   len(*v.outs.Load()),
		Synthetic: v.synthetic,
	}
}

func (v *Vertex[I, O]) edgesLocked() []Edge {
	var edges []Edge
	for i, p := range v.ports {
		if !p.connected {
			continue
		}
		edges = append(edges, Edge{
			SourceID:         v.ID(),
			SourceOutputPort: i,
			TargetID:         vertexID(p.targetHandle),
			TargetInputPort:  p.targetPort,
			Tags:             p.tags.sorted(),
		})
	}
	return edges
}

func (v *Vertex[I, O]) initialize(rt *Runtime) error {
	v.ctx = &vertexContext[I, O]{
		v:      v,
		rt:     rt,
		logger: rt.Logger.With("vertex", v.ID()),
	}
	if err := v.op.Initialize(v.ctx); err != nil {
		return err
	}
	handlers := v.op.Inputs()
	if len(handlers) < v.inputs {
		return fmt.Errorf("%w: %s has %d input handlers for %d inputs", ErrInvalidPort, v.ID(), len(handlers), v.inputs)
	}
	v.handlers = handlers
	return nil
}

func (v *Vertex[I, O]) start() error {
	return v.op.Start()
}

func (v *Vertex[I, O]) close() error {
	return v.op.Close()
}

func (v *Vertex[I, O]) peekAllLocked(supplier func(v VertexInfo, port int) func(any)) error {
	info := v.info()
	for i, c := range v.connectors {
		if !c.isConnectedLocked() {
			continue
		}
		observe := supplier(info, i)
		if observe == nil {
			continue
		}
		if err := c.peekLocked(oplet.NewPeek(func(o O) { observe(o) })); err != nil {
			return err
		}
	}
	return nil
}

// vertexContext is the oplet.Context of a vertex.
type vertexContext[I, O any] struct {
	v      *Vertex[I, O]
	rt     *Runtime
	logger *zap.SugaredLogger
}

func (c *vertexContext[I, O]) ID() string { return c.v.ID() }

func (c *vertexContext[I, O]) JobName() string { return c.rt.JobName }

func (c *vertexContext[I, O]) InputCount() int { return c.v.inputs }

func (c *vertexContext[I, O]) OutputCount() int { return len(*c.v.outs.Load()) }

func (c *vertexContext[I, O]) Outputs() []func(O) error { return *c.v.outs.Load() }

func (c *vertexContext[I, O]) Executor() *executor.Executor { return c.rt.Executor }

func (c *vertexContext[I, O]) Logger() *zap.SugaredLogger { return c.logger }

// port is one output port of a vertex.
//
//nolint:govet // fieldalignment: struct layout optimized for readability
type port[O any] struct {
	target atomic.Pointer[func(O) error]

	// Connection metadata, guarded by the graph mutex.
	connected    bool
	targetHandle int
	targetPort   int
	tags         *tagSet
}

func newPort[O any](tags *tagSet) *port[O] {
	return &port[O]{tags: tags}
}

// send delivers o to the connected input, or discards it.
func (p *port[O]) send(o O) error {
	fn := p.target.Load()
	if fn == nil {
		return nil
	}
	return (*fn)(o)
}

func (p *port[O]) connect(handle, inputPort int, fn func(O) error) {
	p.connected = true
	p.targetHandle = handle
	p.targetPort = inputPort
	p.target.Store(&fn)
}

// takeFrom moves the connection of other onto p without disconnecting other.
func (p *port[O]) takeFrom(other *port[O]) {
	p.connected = other.connected
	p.targetHandle = other.targetHandle
	p.targetPort = other.targetPort
	p.target.Store(other.target.Load())
}

func (p *port[O]) disconnect() {
	p.connected = false
	p.target.Store(nil)
}

// tagSet holds the tags shared by a connector's ports.
type tagSet struct {
	set map[string]struct{}
}

func newTagSet() *tagSet {
	return &tagSet{set: make(map[string]struct{})}
}

func (t *tagSet) add(tags ...string) {
	for _, tag := range tags {
		t.set[tag] = struct{}{}
	}
}

func (t *tagSet) sorted() []string {
	if len(t.set) == 0 {
		return nil
	}
	out := make([]string, 0, len(t.set))
	for tag := range t.set {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
