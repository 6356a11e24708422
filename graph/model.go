package graph

import (
	"github.com/goccy/go-json"
)

// Edge is a connection from an output port to an input port.
type Edge struct {
	SourceID         string   `json:"sourceId"`
	SourceOutputPort int      `json:"sourceOutputPort"`
	TargetID         string   `json:"targetId"`
	TargetInputPort  int      `json:"targetInputPort"`
	Tags             []string `json:"tags,omitempty"`
}

type invocationModel struct {
	Kind    string `json:"kind"`
	Inputs  int    `json:"inputs"`
	Outputs int    `json:"outputs"`
}

type vertexModel struct {
	ID         string          `json:"id"`
	Invocation invocationModel `json:"invocation"`
}

type graphModel struct {
	Vertices []vertexModel `json:"vertices"`
	Edges    []Edge        `json:"edges"`
}

// MarshalJSON renders the graph as its vertices and edges.
func (g *Graph) MarshalJSON() ([]byte, error) {
	infos := g.Vertices()
	m := graphModel{
		Vertices: make([]vertexModel, len(infos)),
		Edges:    g.Edges(),
	}
	if m.Edges == nil {
		m.Edges = []Edge{}
	}
	for i, info := range infos {
		m.Vertices[i] = vertexModel{
			ID: info.ID,
			Invocation: invocationModel{
				Kind:    info.Kind,
				Inputs:  info.Inputs,
				Outputs: info.Outputs,
			},
		}
	}
	return json.Marshal(m)
}
