// Package graph builds the dataflow graph of oplets.
//
// Vertices live in an arena owned by the Graph and are addressed by a stable
// integer handle; a vertex's ID is derived from its handle ("OP_<n>"). Each
// output port of a vertex is exposed to applications as a Connector. A
// Connector is a stable handle: connecting a second target to it inserts a
// FanOut vertex, and peeking inserts a Peek vertex, but the application keeps
// using the Connector it was first given.
package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zoobzio/edgez/executor"
	"github.com/zoobzio/edgez/logging"
	"github.com/zoobzio/edgez/oplet"
)

var (
	// ErrInvalidPort is returned for port indexes outside a vertex's ports.
	ErrInvalidPort = errors.New("invalid port")
	// ErrInvalidCount is returned for negative port counts.
	ErrInvalidCount = errors.New("invalid port count")
	// ErrForeignVertex is returned when connecting vertices of different graphs.
	ErrForeignVertex = errors.New("vertex belongs to another graph")
	// ErrClosed is returned when modifying a closed graph.
	ErrClosed = errors.New("graph is closed")
	// ErrNotInitialized is returned when starting a graph before Initialize.
	ErrNotInitialized = errors.New("graph is not initialized")
)

// IDPrefix prefixes every vertex ID.
const IDPrefix = "OP_"

// Runtime is what a running graph needs from its job.
type Runtime struct {
	JobName  string
	Executor *executor.Executor
	Logger   *zap.SugaredLogger
}

type graphState int

const (
	building graphState = iota
	initialized
	started
	closed
)

// node is the type-erased view of a vertex held in the arena.
type node interface {
	info() VertexInfo
	edgesLocked() []Edge
	initialize(rt *Runtime) error
	start() error
	close() error
	peekAllLocked(supplier func(v VertexInfo, port int) func(any)) error
}

// Graph is a directed graph of oplet vertices.
//
//nolint:govet // fieldalignment: struct layout optimized for readability
type Graph struct {
	mu       sync.Mutex
	logger   *zap.SugaredLogger
	vertices []node
	rt       *Runtime
	state    graphState
}

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the logger used for graph construction messages.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(g *Graph) {
		g.logger = logger
	}
}

// New creates an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = logging.NewLogger()
	}
	return g
}

// Insert adds op as a new vertex with the given port counts.
func Insert[I, O any](g *Graph, op oplet.Oplet[I, O], inputs, outputs int) (*Vertex[I, O], error) {
	if inputs < 0 || outputs < 0 {
		return nil, fmt.Errorf("%w: %d inputs, %d outputs", ErrInvalidCount, inputs, outputs)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return insertLocked(g, op, inputs, outputs)
}

// Source adds a source oplet with one output.
func Source[O any](g *Graph, op oplet.Oplet[oplet.Void, O]) (*Vertex[oplet.Void, O], error) {
	return Insert(g, op, 0, 1)
}

// Pipe adds a one-input, one-output oplet fed by c and returns its output.
func Pipe[I, O any](c *Connector[I], op oplet.Oplet[I, O]) (*Connector[O], error) {
	v, err := Insert(c.g, op, 1, 1)
	if err != nil {
		return nil, err
	}
	if err := c.Connect(v, 0); err != nil {
		return nil, err
	}
	return v.Connectors()[0], nil
}

// Sink adds a terminal oplet fed by c.
func Sink[T any](c *Connector[T], op oplet.Oplet[T, oplet.Void]) (*Vertex[T, oplet.Void], error) {
	v, err := Insert(c.g, op, 1, 0)
	if err != nil {
		return nil, err
	}
	if err := c.Connect(v, 0); err != nil {
		return nil, err
	}
	return v, nil
}

func insertLocked[I, O any](g *Graph, op oplet.Oplet[I, O], inputs, outputs int) (*Vertex[I, O], error) {
	if g.state == closed {
		return nil, ErrClosed
	}
	v := newVertex(g, len(g.vertices), op, inputs)
	g.vertices = append(g.vertices, v)
	for i := 0; i < outputs; i++ {
		v.addOutputLocked()
	}
	if g.state >= initialized {
		if err := v.initialize(g.rt); err != nil {
			return nil, err
		}
	}
	if g.state == started {
		if err := v.start(); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Len returns the number of vertices.
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.vertices)
}

// Vertices describes every vertex in handle order.
func (g *Graph) Vertices() []VertexInfo {
	g.mu.Lock()
	defer g.mu.Unlock()
	infos := make([]VertexInfo, len(g.vertices))
	for i, n := range g.vertices {
		infos[i] = n.info()
	}
	return infos
}

// Edges returns one edge per connected output port.
func (g *Graph) Edges() []Edge {
	g.mu.Lock()
	defer g.mu.Unlock()
	var edges []Edge
	for _, n := range g.vertices {
		edges = append(edges, n.edgesLocked()...)
	}
	return edges
}

// PeekAll inserts a Peek on every connected output of the vertices chosen
// by selector. Vertices inserted by the graph itself (peeks and fan-outs)
// are never selected. supplier returns the observer for one output port.
func (g *Graph) PeekAll(supplier func(v VertexInfo, port int) func(any), selector func(v VertexInfo) bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	selected := make([]node, 0, len(g.vertices))
	for _, n := range g.vertices {
		info := n.info()
		if info.Synthetic || (selector != nil && !selector(info)) {
			continue
		}
		selected = append(selected, n)
	}
	for _, n := range selected {
		if err := n.peekAllLocked(supplier); err != nil {
			return err
		}
	}
	return nil
}

// Initialize binds the graph to rt and initializes every vertex in handle
// order. Vertices inserted later are initialized on insertion.
func (g *Graph) Initialize(rt Runtime) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == closed {
		return ErrClosed
	}
	if rt.Logger == nil {
		rt.Logger = g.logger
	}
	g.rt = &rt
	for _, n := range g.vertices {
		if err := n.initialize(g.rt); err != nil {
			return fmt.Errorf("initialize %s: %w", n.info().ID, err)
		}
	}
	g.state = initialized
	g.logger.Debugw("Graph initialized", "job", rt.JobName, "vertices", len(g.vertices))
	return nil
}

// Start starts every vertex. Sources start after all other vertices so no
// tuple reaches a stage that has not started.
func (g *Graph) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != initialized {
		return ErrNotInitialized
	}
	var sources, stages []node
	for _, n := range g.vertices {
		if n.info().Inputs == 0 {
			sources = append(sources, n)
		} else {
			stages = append(stages, n)
		}
	}
	for _, group := range [][]node{stages, sources} {
		eg, _ := errgroup.WithContext(ctx)
		for _, n := range group {
			n := n
			eg.Go(func() error {
				if err := n.start(); err != nil {
					return fmt.Errorf("start %s: %w", n.info().ID, err)
				}
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}
	}
	g.state = started
	return nil
}

// Close closes every vertex, sources first, and combines their errors.
func (g *Graph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == closed {
		return nil
	}
	wasInitialized := g.state >= initialized
	g.state = closed
	if !wasInitialized {
		return nil
	}
	var err error
	for _, sourcesFirst := range []bool{true, false} {
		for _, n := range g.vertices {
			if (n.info().Inputs == 0) != sourcesFirst {
				continue
			}
			if cerr := n.close(); cerr != nil {
				err = multierr.Append(err, fmt.Errorf("close %s: %w", n.info().ID, cerr))
			}
		}
	}
	return err
}

// vertexID derives the external ID of the vertex with handle h.
func vertexID(h int) string {
	return fmt.Sprintf("%s%d", IDPrefix, h)
}

// kindOf names an oplet by its type without package path or type arguments.
func kindOf(op any) string {
	kind := strings.TrimPrefix(fmt.Sprintf("%T", op), "*")
	if i := strings.IndexByte(kind, '['); i >= 0 {
		kind = kind[:i]
	}
	return kind
}
