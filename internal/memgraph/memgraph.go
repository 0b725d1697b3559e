// Package memgraph is an in-memory implementation of the graph store
// boundary. It exists for tests and single-process deployments; it
// implements the same visibility, hidden-marker and fetch-hint semantics a
// production store provides, with per-mutation atomicity and no
// transactions.
package memgraph

import (
	"context"
	"fmt"
	"sync"

	"github.com/sandgraph/sandgraph/pkg/graph"
)

type propertyRec struct {
	key      string
	name     string
	value    any
	vis      graph.Visibility
	metadata map[string]any
	hidden   []graph.Visibility
}

type elementRec struct {
	id     string
	vis    graph.Visibility
	props  []*propertyRec
	hidden []graph.Visibility
}

type edgeRec struct {
	elementRec
	label string
	out   string
	in    string
}

// Graph is an in-memory graph.Graph.
type Graph struct {
	mu       sync.RWMutex
	vertices map[string]*elementRec
	edges    map[string]*edgeRec
	// incident maps vertex id to the ids of its incident edges in
	// creation order, so traversal results stay deterministic.
	incident map[string][]string
}

// New returns an empty in-memory graph.
func New() *Graph {
	return &Graph{
		vertices: make(map[string]*elementRec),
		edges:    make(map[string]*edgeRec),
		incident: make(map[string][]string),
	}
}

var _ graph.Graph = (*Graph)(nil)

func (g *Graph) GetVertex(ctx context.Context, id string, hint graph.FetchHint, auths graph.Authorizations) (graph.Vertex, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.vertices[id]
	if !ok || !visibleRecord(&rec.vis, rec.hidden, hint, auths) {
		return nil, nil
	}
	return snapshotVertex(rec, hint, auths), nil
}

func (g *Graph) GetVertices(ctx context.Context, ids []string, hint graph.FetchHint, auths graph.Authorizations) ([]graph.Vertex, error) {
	out := make([]graph.Vertex, 0, len(ids))
	for _, id := range ids {
		v, err := g.GetVertex(ctx, id, hint, auths)
		if err != nil {
			return nil, err
		}
		if v != nil {
			out = append(out, v)
		}
	}
	return out, nil
}

func (g *Graph) GetEdge(ctx context.Context, id string, hint graph.FetchHint, auths graph.Authorizations) (graph.Edge, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.edges[id]
	if !ok || !visibleRecord(&rec.vis, rec.hidden, hint, auths) {
		return nil, nil
	}
	return snapshotEdge(rec, hint, auths), nil
}

func (g *Graph) GetEdges(ctx context.Context, ids []string, hint graph.FetchHint, auths graph.Authorizations) ([]graph.Edge, error) {
	out := make([]graph.Edge, 0, len(ids))
	for _, id := range ids {
		e, err := g.GetEdge(ctx, id, hint, auths)
		if err != nil {
			return nil, err
		}
		if e != nil {
			out = append(out, e)
		}
	}
	return out, nil
}

func (g *Graph) VertexEdges(ctx context.Context, vertexID, label string, hint graph.FetchHint, auths graph.Authorizations) ([]graph.Edge, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []graph.Edge
	for _, edgeID := range g.incident[vertexID] {
		rec, ok := g.edges[edgeID]
		if !ok {
			continue
		}
		if label != "" && rec.label != label {
			continue
		}
		if !visibleRecord(&rec.vis, rec.hidden, hint, auths) {
			continue
		}
		out = append(out, snapshotEdge(rec, hint, auths))
	}
	return out, nil
}

func (g *Graph) RemoveVertex(ctx context.Context, id string, auths graph.Authorizations) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.vertices[id]
	if !ok {
		return fmt.Errorf("memgraph: vertex %q not found", id)
	}
	if !rec.vis.Readable(auths) {
		return fmt.Errorf("memgraph: vertex %q not visible for removal", id)
	}
	for _, edgeID := range g.incident[id] {
		if e, ok := g.edges[edgeID]; ok {
			g.dropEdgeLocked(e)
		}
	}
	delete(g.incident, id)
	delete(g.vertices, id)
	return nil
}

func (g *Graph) RemoveEdge(ctx context.Context, id string, auths graph.Authorizations) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.edges[id]
	if !ok {
		return fmt.Errorf("memgraph: edge %q not found", id)
	}
	if !rec.vis.Readable(auths) {
		return fmt.Errorf("memgraph: edge %q not visible for removal", id)
	}
	g.dropEdgeLocked(rec)
	return nil
}

// Flush is a no-op: mutations commit on Save.
func (g *Graph) Flush(ctx context.Context) error { return nil }

func (g *Graph) dropEdgeLocked(rec *edgeRec) {
	delete(g.edges, rec.id)
	for _, endpoint := range []string{rec.out, rec.in} {
		ids := g.incident[endpoint]
		for i, id := range ids {
			if id == rec.id {
				g.incident[endpoint] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
	}
}

func visibleRecord(vis *graph.Visibility, hidden []graph.Visibility, hint graph.FetchHint, auths graph.Authorizations) bool {
	if !vis.Readable(auths) {
		return false
	}
	if hint == graph.FetchIncludeHidden {
		return true
	}
	for _, marker := range hidden {
		if marker.Readable(auths) {
			return false
		}
	}
	return true
}

func snapshotProps(rec *elementRec, hint graph.FetchHint, auths graph.Authorizations) []graph.Property {
	var out []graph.Property
	for _, p := range rec.props {
		if !p.vis.Readable(auths) {
			continue
		}
		prop := graph.Property{
			Key:        p.key,
			Name:       p.name,
			Value:      p.value,
			Visibility: p.vis,
			Metadata:   p.metadata,
		}.WithHiddenMarkers(append([]graph.Visibility(nil), p.hidden...))
		if hint == graph.FetchNormal && prop.IsHidden(auths) {
			continue
		}
		out = append(out, prop)
	}
	return out
}

type vertexSnapshot struct {
	id     string
	vis    graph.Visibility
	hidden []graph.Visibility
	props  []graph.Property
}

func snapshotVertex(rec *elementRec, hint graph.FetchHint, auths graph.Authorizations) *vertexSnapshot {
	return &vertexSnapshot{
		id:     rec.id,
		vis:    rec.vis,
		hidden: append([]graph.Visibility(nil), rec.hidden...),
		props:  snapshotProps(rec, hint, auths),
	}
}

func (v *vertexSnapshot) ID() string                   { return v.id }
func (v *vertexSnapshot) Visibility() graph.Visibility { return v.vis }
func (v *vertexSnapshot) Properties() []graph.Property { return v.props }

func (v *vertexSnapshot) IsHidden(auths graph.Authorizations) bool {
	return anyMarkerReadable(v.hidden, auths)
}

func (v *vertexSnapshot) Property(key, name string) (graph.Property, bool) {
	return firstProperty(v.props, key, name)
}

type edgeSnapshot struct {
	vertexSnapshot
	label string
	out   string
	in    string
}

func snapshotEdge(rec *edgeRec, hint graph.FetchHint, auths graph.Authorizations) *edgeSnapshot {
	return &edgeSnapshot{
		vertexSnapshot: *snapshotVertex(&rec.elementRec, hint, auths),
		label:          rec.label,
		out:            rec.out,
		in:             rec.in,
	}
}

func (e *edgeSnapshot) Label() string       { return e.label }
func (e *edgeSnapshot) OutVertexID() string { return e.out }
func (e *edgeSnapshot) InVertexID() string  { return e.in }

func (e *edgeSnapshot) OtherVertexID(id string) string {
	if e.out == id {
		return e.in
	}
	return e.out
}

func anyMarkerReadable(markers []graph.Visibility, auths graph.Authorizations) bool {
	for _, m := range markers {
		if m.Readable(auths) {
			return true
		}
	}
	return false
}

func firstProperty(props []graph.Property, key, name string) (graph.Property, bool) {
	for _, p := range props {
		if p.Key == key && p.Name == name {
			return p, true
		}
	}
	return graph.Property{}, false
}
