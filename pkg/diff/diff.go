// Package diff derives the structured change set between a workspace's
// private state and the public graph.
package diff

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/sandgraph/sandgraph/pkg/formula"
	"github.com/sandgraph/sandgraph/pkg/graph"
	"github.com/sandgraph/sandgraph/pkg/models"
	"github.com/sandgraph/sandgraph/pkg/sandbox"
)

// Engine computes workspace diffs. It is stateless: calling Diff twice
// with no intervening mutation yields identical ordered results.
type Engine struct {
	graph   graph.Graph
	formula formula.Evaluator
	log     zerolog.Logger
}

// NewEngine returns a diff engine over the given graph and title
// evaluator.
func NewEngine(g graph.Graph, f formula.Evaluator, log zerolog.Logger) *Engine {
	return &Engine{graph: g, formula: f, log: log}
}

// Diff produces the ordered change set for a workspace. Entities the
// caller cannot resolve are skipped silently: another member may have
// added elements the caller has no read access to, and their absence from
// the diff is not an error. The authorizations must include the workspace
// label and hidden data so pending deletes are observable.
func (e *Engine) Diff(ctx context.Context, ws models.Workspace, entities []models.WorkspaceEntity, edges []graph.Edge, uc formula.UserContext, auths graph.Authorizations) (models.DiffResult, error) {
	var result models.DiffResult
	for _, entity := range entities {
		items, err := e.diffEntity(ctx, ws, entity, uc, auths)
		if err != nil {
			return models.DiffResult{}, err
		}
		result.Add(items...)
	}
	for _, edge := range edges {
		items, err := e.diffEdge(ws, edge, auths)
		if err != nil {
			return models.DiffResult{}, err
		}
		result.Add(items...)
	}
	return result, nil
}

func (e *Engine) diffEntity(ctx context.Context, ws models.Workspace, entity models.WorkspaceEntity, uc formula.UserContext, auths graph.Authorizations) ([]models.DiffItem, error) {
	vertex, err := e.graph.GetVertex(ctx, entity.EntityID, graph.FetchIncludeHidden, auths)
	if err != nil {
		return nil, err
	}
	if vertex == nil {
		// The caller has no access to this entity's element.
		e.log.Debug().Str("workspaceId", ws.ID).Str("entityId", entity.EntityID).Msg("skipping unresolvable entity")
		return nil, nil
	}

	var items []models.DiffItem
	status := sandbox.Status(vertex, ws.ID)
	deleted := vertex.IsHidden(auths)
	if status != models.StatusPublic || deleted {
		visJSON, err := json.Marshal(vertex.Visibility())
		if err != nil {
			return nil, err
		}
		conceptType, _ := stringProperty(vertex, models.PropertyConceptType)
		items = append(items, models.VertexItem{
			VertexID:    vertex.ID(),
			Title:       e.formula.EvaluateTitle(vertex, uc),
			ConceptType: conceptType,
			Visibility:  visJSON,
			Status:      status,
			Deleted:     deleted,
			Visible:     entity.Visible,
		})
	}

	propItems, err := diffProperties(ws, vertex, "vertex", auths)
	if err != nil {
		return nil, err
	}
	return append(items, propItems...), nil
}

func (e *Engine) diffEdge(ws models.Workspace, edge graph.Edge, auths graph.Authorizations) ([]models.DiffItem, error) {
	var items []models.DiffItem
	status := sandbox.Status(edge, ws.ID)
	deleted := edge.IsHidden(auths)
	if status != models.StatusPublic || deleted {
		visJSON, err := json.Marshal(edge.Visibility())
		if err != nil {
			return nil, err
		}
		items = append(items, models.EdgeItem{
			EdgeID:      edge.ID(),
			Label:       edge.Label(),
			OutVertexID: edge.OutVertexID(),
			InVertexID:  edge.InVertexID(),
			Visibility:  visJSON,
			Status:      status,
			Deleted:     deleted,
		})
	}

	propItems, err := diffProperties(ws, edge, "edge", auths)
	if err != nil {
		return nil, err
	}
	return append(items, propItems...), nil
}

func diffProperties(ws models.Workspace, el graph.Element, elementType string, auths graph.Authorizations) ([]models.DiffItem, error) {
	props := el.Properties()
	statuses := sandbox.Statuses(props, ws.ID)
	var items []models.DiffItem
	for i, p := range props {
		privateChange := statuses[i] != models.StatusPublic
		deleted := p.IsHidden(auths)
		if !privateChange && !deleted {
			continue
		}
		var old json.RawMessage
		if privateChange {
			if existing := findExistingProperty(props, statuses, p); existing != nil {
				payload, err := propertyPayload(*existing)
				if err != nil {
					return nil, err
				}
				old = payload
			}
		}
		newPayload, err := propertyPayload(p)
		if err != nil {
			return nil, err
		}
		items = append(items, models.PropertyItem{
			ElementType: elementType,
			ElementID:   el.ID(),
			Name:        p.Name,
			Key:         p.Key,
			Old:         old,
			New:         newPayload,
			Status:      statuses[i],
			Deleted:     deleted,
			Visibility:  p.Visibility.String(),
		})
	}
	return items, nil
}

// findExistingProperty locates the prior public value used as the diff
// baseline: the first property in the list sharing (name, key) whose own
// status is PUBLIC. First match wins when history left several public
// versions behind.
func findExistingProperty(props []graph.Property, statuses []models.SandboxStatus, workspaceProp graph.Property) *graph.Property {
	for i, p := range props {
		if p.Name == workspaceProp.Name && p.Key == workspaceProp.Key && statuses[i] == models.StatusPublic {
			return &props[i]
		}
	}
	return nil
}

func propertyPayload(p graph.Property) (json.RawMessage, error) {
	payload := map[string]any{
		"key":   p.Key,
		"name":  p.Name,
		"value": p.Value,
	}
	if len(p.Metadata) > 0 {
		payload["metadata"] = p.Metadata
	}
	if !p.Visibility.IsPublic() {
		payload["visibility"] = p.Visibility.String()
	}
	return json.Marshal(payload)
}

func stringProperty(el graph.Element, name string) (string, bool) {
	for _, p := range el.Properties() {
		if p.Name == name {
			if s, ok := p.Value.(string); ok {
				return s, true
			}
		}
	}
	return "", false
}
