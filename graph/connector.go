package graph

import (
	"fmt"

	"github.com/zoobzio/edgez/oplet"
)

// Input is an input side a Connector can connect to. It is implemented by
// *Vertex.
type Input[T any] interface {
	graph() *Graph
	vertexHandle() int
	inputCount() int
	input(port int) func(T) error
}

// outputs is the typed view of a vertex's output ports, resolved from the
// arena by handle.
type outputs[T any] interface {
	portLocked(i int) *port[T]
	addPortLocked(tags *tagSet) int
}

type portRef struct {
	handle int
	port   int
}

// Connector is the stable handle of one output port.
//
// A Connector moves through three states. Unconnected, it feeds nothing.
// The first Connect makes a direct connection. The second Connect inserts a
// FanOut vertex: the existing connection moves to the FanOut's first
// output, the port is rewired to feed the FanOut, and the new target gets a
// second FanOut output. Later connections add FanOut outputs.
//
// Peek inserts an observing vertex right after the active port and moves
// the active port's connection onto the peek's output; the peek becomes the
// active port, so peeks run in the order they were added, before any target.
//
//nolint:govet // fieldalignment: struct layout optimized for readability
type Connector[T any] struct {
	g *Graph

	// Guarded by g.mu.
	active portRef
	fanOut int
	tags   *tagSet
}

// Connect connects the port to input port inputPort of target.
func (c *Connector[T]) Connect(target Input[T], inputPort int) error {
	if target.graph() != c.g {
		return ErrForeignVertex
	}
	if inputPort < 0 || inputPort >= target.inputCount() {
		return fmt.Errorf("%w: %s has no input %d", ErrInvalidPort, vertexID(target.vertexHandle()), inputPort)
	}
	c.g.mu.Lock()
	defer c.g.mu.Unlock()
	return c.connectLocked(target, inputPort)
}

func (c *Connector[T]) connectLocked(target Input[T], inputPort int) error {
	if c.fanOut >= 0 {
		fo := c.outputsLocked(c.fanOut)
		idx := fo.addPortLocked(c.tags)
		fo.portLocked(idx).connect(target.vertexHandle(), inputPort, target.input(inputPort))
		return nil
	}

	active := c.activePortLocked()
	if !active.connected {
		active.connect(target.vertexHandle(), inputPort, target.input(inputPort))
		return nil
	}

	fo, err := insertLocked[T, T](c.g, oplet.NewFanOut[T](), 1, 0)
	if err != nil {
		return err
	}
	fo.synthetic = true
	first := fo.addPortLocked(c.tags)
	fo.portLocked(first).takeFrom(active)
	active.connect(fo.handle, 0, fo.input(0))
	second := fo.addPortLocked(c.tags)
	fo.portLocked(second).connect(target.vertexHandle(), inputPort, target.input(inputPort))
	c.fanOut = fo.handle
	c.g.logger.Debugw("Inserted fan-out", "vertex", fo.ID(), "source", vertexID(c.active.handle))
	return nil
}

// Peek inserts op directly after the port's current active output.
func (c *Connector[T]) Peek(op oplet.Oplet[T, T]) error {
	c.g.mu.Lock()
	defer c.g.mu.Unlock()
	return c.peekLocked(op)
}

func (c *Connector[T]) peekLocked(op oplet.Oplet[T, T]) error {
	pv, err := insertLocked(c.g, op, 1, 0)
	if err != nil {
		return err
	}
	pv.synthetic = true
	out := pv.addPortLocked(c.tags)

	active := c.activePortLocked()
	if active.connected {
		pv.portLocked(out).takeFrom(active)
	}
	active.connect(pv.handle, 0, pv.input(0))
	c.g.logger.Debugw("Inserted peek", "vertex", pv.ID(), "source", vertexID(c.active.handle))
	c.active = portRef{handle: pv.handle, port: out}
	return nil
}

// Tag adds tags to the port's edges.
func (c *Connector[T]) Tag(tags ...string) *Connector[T] {
	c.g.mu.Lock()
	defer c.g.mu.Unlock()
	c.tags.add(tags...)
	return c
}

// Tags returns the port's tags, sorted.
func (c *Connector[T]) Tags() []string {
	c.g.mu.Lock()
	defer c.g.mu.Unlock()
	return c.tags.sorted()
}

// IsConnected reports whether the port feeds any target.
func (c *Connector[T]) IsConnected() bool {
	c.g.mu.Lock()
	defer c.g.mu.Unlock()
	return c.isConnectedLocked()
}

// Graph returns the owning graph.
func (c *Connector[T]) Graph() *Graph {
	return c.g
}

func (c *Connector[T]) isConnectedLocked() bool {
	return c.fanOut >= 0 || c.activePortLocked().connected
}

func (c *Connector[T]) activePortLocked() *port[T] {
	return c.outputsLocked(c.active.handle).portLocked(c.active.port)
}

func (c *Connector[T]) outputsLocked(handle int) outputs[T] {
	return c.g.vertices[handle].(outputs[T])
}
