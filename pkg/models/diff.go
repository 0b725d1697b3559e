package models

import "encoding/json"

// DiffItem is one unit of detected change between public and workspace
// state. The concrete variants are VertexItem, EdgeItem and PropertyItem;
// each owns its own JSON serialization and tags itself with a type field.
type DiffItem interface {
	ItemType() string
}

// DiffResult is the ordered list of diff items for one workspace. Order is
// entity-then-edge, each element followed immediately by its own property
// items, and is deterministic given stable input ordering.
type DiffResult struct {
	Items []DiffItem
}

// Add appends items to the result.
func (r *DiffResult) Add(items ...DiffItem) {
	r.Items = append(r.Items, items...)
}

// Len returns the number of items in the result.
func (r *DiffResult) Len() int {
	return len(r.Items)
}

func (r DiffResult) MarshalJSON() ([]byte, error) {
	items := make([]json.RawMessage, 0, len(r.Items))
	for _, item := range r.Items {
		data, err := marshalWithType(item)
		if err != nil {
			return nil, err
		}
		items = append(items, data)
	}
	return json.Marshal(map[string]any{"diffs": items})
}

// VertexItem reports a vertex whose existence or visibility differs from
// the published graph.
type VertexItem struct {
	VertexID    string          `json:"vertexId"`
	Title       string          `json:"title"`
	ConceptType string          `json:"conceptType,omitempty"`
	Visibility  json.RawMessage `json:"visibilityJson,omitempty"`
	Status      SandboxStatus   `json:"sandboxStatus"`
	Deleted     bool            `json:"deleted"`
	Visible     bool            `json:"visible"`
}

func (VertexItem) ItemType() string { return "VertexDiffItem" }

// EdgeItem reports an edge whose existence or visibility differs from the
// published graph.
type EdgeItem struct {
	EdgeID      string          `json:"edgeId"`
	Label       string          `json:"label"`
	OutVertexID string          `json:"outVertexId"`
	InVertexID  string          `json:"inVertexId"`
	Visibility  json.RawMessage `json:"visibilityJson,omitempty"`
	Status      SandboxStatus   `json:"sandboxStatus"`
	Deleted     bool            `json:"deleted"`
}

func (EdgeItem) ItemType() string { return "EdgeDiffItem" }

// PropertyItem reports one changed property. Old is the serialized prior
// public value used as the diff baseline; it is absent for properties that
// only exist inside the workspace.
type PropertyItem struct {
	ElementType string          `json:"elementType"`
	ElementID   string          `json:"elementId"`
	Name        string          `json:"name"`
	Key         string          `json:"key"`
	Old         json.RawMessage `json:"old,omitempty"`
	New         json.RawMessage `json:"new"`
	Status      SandboxStatus   `json:"sandboxStatus"`
	Deleted     bool            `json:"deleted"`
	Visibility  string          `json:"visibilityString,omitempty"`
}

func (PropertyItem) ItemType() string { return "PropertyDiffItem" }

func marshalWithType(item DiffItem) (json.RawMessage, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return nil, err
	}
	tagged := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &tagged); err != nil {
		return nil, err
	}
	typeData, err := json.Marshal(item.ItemType())
	if err != nil {
		return nil, err
	}
	tagged["type"] = typeData
	return json.Marshal(tagged)
}
