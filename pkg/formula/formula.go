// Package formula is the boundary to the formula-evaluation collaborator
// that computes display titles for diffed elements.
package formula

import "github.com/sandgraph/sandgraph/pkg/graph"

// UserContext carries the caller's locale, time zone and current workspace
// into title evaluation.
type UserContext struct {
	Locale      string
	TimeZone    string
	WorkspaceID string
}

// Evaluator computes a display title for an element. Implementations must
// be pure; evaluation may be expensive, so the diff engine calls it once
// per diffed element.
type Evaluator interface {
	EvaluateTitle(el graph.Element, ctx UserContext) string
}

// PropertyTitleEvaluator is the default evaluator: it returns the value of
// the element's "title" property, preferring a version scoped to the
// context's workspace over the published one.
type PropertyTitleEvaluator struct {
	// PropertyName overrides the property consulted; empty means "title".
	PropertyName string
}

func (e PropertyTitleEvaluator) EvaluateTitle(el graph.Element, ctx UserContext) string {
	name := e.PropertyName
	if name == "" {
		name = "title"
	}
	var published string
	for _, p := range el.Properties() {
		if p.Name != name {
			continue
		}
		s, ok := p.Value.(string)
		if !ok {
			continue
		}
		if ctx.WorkspaceID != "" && p.Visibility.HasLabel(ctx.WorkspaceID) {
			return s
		}
		if published == "" {
			published = s
		}
	}
	return published
}
