// Package sandbox classifies graph elements and properties relative to a
// workspace: published, workspace-private, or published-but-locally-modified.
// The resolution is a pure function of the visibility labels involved and
// has no side effects.
package sandbox

import (
	"github.com/sandgraph/sandgraph/pkg/graph"
	"github.com/sandgraph/sandgraph/pkg/models"
)

// Status returns the sandbox status of an element for the given workspace.
// A nil element is a programmer error and panics.
func Status(el graph.Element, workspaceID string) models.SandboxStatus {
	if el == nil {
		panic("sandbox: Status called with nil element")
	}
	return statusFromVisibility(el.Visibility(), workspaceID)
}

// PropertyStatus returns the sandbox status of a single property in
// isolation. It cannot detect PUBLIC_CHANGED, which requires the sibling
// versions of the property; use Statuses for that.
func PropertyStatus(p graph.Property, workspaceID string) models.SandboxStatus {
	return statusFromVisibility(p.Visibility, workspaceID)
}

// Statuses classifies a batch of properties, returning a parallel slice
// preserving input order. A property scoped to the workspace is upgraded
// from PRIVATE to PUBLIC_CHANGED when any property in the batch shares its
// (name, key) pair and is itself PUBLIC: the workspace version is then an
// override of a published value rather than a new one.
func Statuses(props []graph.Property, workspaceID string) []models.SandboxStatus {
	statuses := make([]models.SandboxStatus, len(props))
	for i, p := range props {
		statuses[i] = statusFromVisibility(p.Visibility, workspaceID)
	}
	for i, p := range props {
		if statuses[i] != models.StatusPrivate {
			continue
		}
		for j, other := range props {
			if j == i {
				continue
			}
			if other.Name == p.Name && other.Key == p.Key && statuses[j] == models.StatusPublic {
				statuses[i] = models.StatusPublicChanged
				break
			}
		}
	}
	return statuses
}

func statusFromVisibility(vis graph.Visibility, workspaceID string) models.SandboxStatus {
	if !vis.HasLabel(workspaceID) {
		return models.StatusPublic
	}
	for _, label := range vis.Labels() {
		if !models.IsWorkspaceLabel(label) {
			// Both a public label and the workspace label are present.
			return models.StatusPublicChanged
		}
	}
	return models.StatusPrivate
}
