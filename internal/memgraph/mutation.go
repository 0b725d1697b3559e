package memgraph

import (
	"context"

	"github.com/sandgraph/sandgraph/pkg/graph"
)

type propertyOp struct {
	remove     bool
	markHidden bool
	key        string
	name       string
	value      any
	vis        graph.Visibility
}

type mutation struct {
	g      *Graph
	id     string
	vis    graph.Visibility
	ops    []propertyOp
	hidden []graph.Visibility
}

// vertexMutation implements graph.VertexMutation with create-or-update
// semantics: saving an existing id merges into the stored element.
type vertexMutation struct {
	mutation
}

func (g *Graph) PrepareVertex(id string, vis graph.Visibility) graph.VertexMutation {
	return &vertexMutation{mutation{g: g, id: id, vis: vis}}
}

func (m *vertexMutation) SetProperty(key, name string, value any, vis graph.Visibility) graph.VertexMutation {
	m.ops = append(m.ops, propertyOp{key: key, name: name, value: value, vis: vis})
	return m
}

func (m *vertexMutation) RemoveProperty(key, name string, vis graph.Visibility) graph.VertexMutation {
	m.ops = append(m.ops, propertyOp{remove: true, key: key, name: name, vis: vis})
	return m
}

func (m *vertexMutation) MarkHidden(vis graph.Visibility) graph.VertexMutation {
	m.hidden = append(m.hidden, vis)
	return m
}

func (m *vertexMutation) MarkPropertyHidden(key, name string, vis graph.Visibility) graph.VertexMutation {
	m.ops = append(m.ops, propertyOp{markHidden: true, key: key, name: name, vis: vis})
	return m
}

func (m *vertexMutation) Save(ctx context.Context, auths graph.Authorizations) (graph.Vertex, error) {
	g := m.g
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.vertices[m.id]
	if !ok {
		rec = &elementRec{id: m.id, vis: m.vis}
		g.vertices[m.id] = rec
	}
	applyOps(rec, m.ops, m.hidden)
	return snapshotVertex(rec, graph.FetchIncludeHidden, auths), nil
}

type edgeMutation struct {
	mutation
	label string
	out   string
	in    string
}

func (g *Graph) PrepareEdge(id, outVertexID, inVertexID, label string, vis graph.Visibility) graph.EdgeMutation {
	return &edgeMutation{
		mutation: mutation{g: g, id: id, vis: vis},
		label:    label,
		out:      outVertexID,
		in:       inVertexID,
	}
}

func (m *edgeMutation) SetProperty(key, name string, value any, vis graph.Visibility) graph.EdgeMutation {
	m.ops = append(m.ops, propertyOp{key: key, name: name, value: value, vis: vis})
	return m
}

func (m *edgeMutation) RemoveProperty(key, name string, vis graph.Visibility) graph.EdgeMutation {
	m.ops = append(m.ops, propertyOp{remove: true, key: key, name: name, vis: vis})
	return m
}

func (m *edgeMutation) MarkHidden(vis graph.Visibility) graph.EdgeMutation {
	m.hidden = append(m.hidden, vis)
	return m
}

func (m *edgeMutation) MarkPropertyHidden(key, name string, vis graph.Visibility) graph.EdgeMutation {
	m.ops = append(m.ops, propertyOp{markHidden: true, key: key, name: name, vis: vis})
	return m
}

func (m *edgeMutation) Save(ctx context.Context, auths graph.Authorizations) (graph.Edge, error) {
	g := m.g
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.edges[m.id]
	if !ok {
		rec = &edgeRec{
			elementRec: elementRec{id: m.id, vis: m.vis},
			label:      m.label,
			out:        m.out,
			in:         m.in,
		}
		g.edges[m.id] = rec
		g.incident[m.out] = append(g.incident[m.out], m.id)
		if m.in != m.out {
			g.incident[m.in] = append(g.incident[m.in], m.id)
		}
	}
	applyOps(&rec.elementRec, m.ops, m.hidden)
	return snapshotEdge(rec, graph.FetchIncludeHidden, auths), nil
}

func applyOps(rec *elementRec, ops []propertyOp, hidden []graph.Visibility) {
	rec.hidden = append(rec.hidden, hidden...)
	for _, op := range ops {
		switch {
		case op.markHidden:
			// The marker lands on every stored version of the property;
			// whether a reader sees the property as hidden still depends
			// on the marker's own visibility.
			for _, p := range rec.props {
				if p.key == op.key && p.name == op.name {
					p.hidden = append(p.hidden, op.vis)
				}
			}
		case op.remove:
			kept := rec.props[:0]
			for _, p := range rec.props {
				if p.key == op.key && p.name == op.name && p.vis.Equal(op.vis) {
					continue
				}
				kept = append(kept, p)
			}
			rec.props = kept
		default:
			replaced := false
			for _, p := range rec.props {
				if p.key == op.key && p.name == op.name && p.vis.Equal(op.vis) {
					p.value = op.value
					replaced = true
					break
				}
			}
			if !replaced {
				rec.props = append(rec.props, &propertyRec{
					key:   op.key,
					name:  op.name,
					value: op.value,
					vis:   op.vis,
				})
			}
		}
	}
}
