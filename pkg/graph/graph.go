// Package graph is the boundary to the underlying graph storage engine.
// The synchronization core reads and classifies elements through these
// interfaces and writes its own bookkeeping (workspace, membership and
// entity-association elements) through the mutation builders; it never
// owns the physical persistence of graph data.
package graph

import "context"

// FetchHint controls whether hidden elements and properties are visible to
// a fetch.
type FetchHint int

const (
	// FetchNormal filters out elements and properties carrying a hidden
	// marker readable under the caller's authorizations.
	FetchNormal FetchHint = iota
	// FetchIncludeHidden returns hidden elements and properties as well.
	// Diff computation uses this so pending deletes stay observable.
	FetchIncludeHidden
)

// Property is one value attached to an element. The same (name, key) pair
// may appear multiple times under different visibilities, which is how a
// workspace-scoped override coexists with the published value.
type Property struct {
	Key        string
	Name       string
	Value      any
	Visibility Visibility
	Metadata   map[string]any
	hidden     []Visibility
}

// HiddenMarkers returns the visibilities under which the property has been
// marked hidden.
func (p Property) HiddenMarkers() []Visibility { return p.hidden }

// IsHidden reports whether any hidden marker on the property is readable
// under the given authorizations.
func (p Property) IsHidden(auths Authorizations) bool {
	for _, marker := range p.hidden {
		if marker.Readable(auths) {
			return true
		}
	}
	return false
}

// WithHiddenMarkers returns a copy of the property carrying the given
// hidden markers. Store implementations use this when materializing
// properties; callers treat properties as immutable values.
func (p Property) WithHiddenMarkers(markers []Visibility) Property {
	p.hidden = markers
	return p
}

// Element is the common read surface of vertices and edges.
type Element interface {
	ID() string
	Visibility() Visibility
	// IsHidden reports whether the element carries a hidden marker readable
	// under the given authorizations. A hidden element is a pending delete.
	IsHidden(auths Authorizations) bool
	// Properties returns all property versions in stable storage order.
	Properties() []Property
	// Property returns the first property matching (key, name).
	Property(key, name string) (Property, bool)
}

// Vertex is a graph node.
type Vertex interface {
	Element
}

// Edge is a directed, labeled connection between two vertices.
type Edge interface {
	Element
	Label() string
	OutVertexID() string
	InVertexID() string
	// OtherVertexID returns the endpoint that is not the given vertex id.
	OtherVertexID(id string) string
}

// VertexMutation builds or updates a vertex. Mutations are applied on Save
// and are atomic per element, not per transaction.
type VertexMutation interface {
	SetProperty(key, name string, value any, vis Visibility) VertexMutation
	RemoveProperty(key, name string, vis Visibility) VertexMutation
	// MarkHidden records a pending delete visible under vis.
	MarkHidden(vis Visibility) VertexMutation
	MarkPropertyHidden(key, name string, vis Visibility) VertexMutation
	Save(ctx context.Context, auths Authorizations) (Vertex, error)
}

// EdgeMutation builds or updates an edge.
type EdgeMutation interface {
	SetProperty(key, name string, value any, vis Visibility) EdgeMutation
	RemoveProperty(key, name string, vis Visibility) EdgeMutation
	MarkHidden(vis Visibility) EdgeMutation
	MarkPropertyHidden(key, name string, vis Visibility) EdgeMutation
	Save(ctx context.Context, auths Authorizations) (Edge, error)
}

// Graph is the storage collaborator. Get methods return nil (not an error)
// when the element does not exist or is not readable under the given
// authorizations, matching the row-level security of the store: absence
// and denial are indistinguishable to the caller.
type Graph interface {
	GetVertex(ctx context.Context, id string, hint FetchHint, auths Authorizations) (Vertex, error)
	GetVertices(ctx context.Context, ids []string, hint FetchHint, auths Authorizations) ([]Vertex, error)
	GetEdge(ctx context.Context, id string, hint FetchHint, auths Authorizations) (Edge, error)
	GetEdges(ctx context.Context, ids []string, hint FetchHint, auths Authorizations) ([]Edge, error)

	// VertexEdges returns the edges incident to a vertex, optionally
	// restricted to one label. label "" means all labels.
	VertexEdges(ctx context.Context, vertexID, label string, hint FetchHint, auths Authorizations) ([]Edge, error)

	// PrepareVertex starts a create-or-update mutation for the vertex id.
	PrepareVertex(id string, vis Visibility) VertexMutation
	// PrepareEdge starts a create-or-update mutation for the edge id.
	PrepareEdge(id, outVertexID, inVertexID, label string, vis Visibility) EdgeMutation

	// RemoveVertex hard-deletes a vertex and its incident edges.
	RemoveVertex(ctx context.Context, id string, auths Authorizations) error
	// RemoveEdge hard-deletes an edge.
	RemoveEdge(ctx context.Context, id string, auths Authorizations) error

	// Flush blocks until previously saved mutations are committed and
	// observable by other readers, including queue consumers.
	Flush(ctx context.Context) error
}

// AuthorizationRepository manages the set of visibility labels known to
// the store and grantable to callers.
type AuthorizationRepository interface {
	AddAuthorization(ctx context.Context, label string) error
	RemoveAuthorization(ctx context.Context, label string) error
}
