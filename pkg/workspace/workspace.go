// Package workspace implements the workspace repository: creation and
// membership of workspaces, the entity set each workspace carries, and
// the diff between a workspace's sandbox and the published graph.
package workspace

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sandgraph/sandgraph/pkg/graph"
	"github.com/sandgraph/sandgraph/pkg/models"
)

const (
	// VisibilityLabel guards workspace vertices and membership edges.
	VisibilityLabel = "workspace"
	// UserVisibilityLabel guards user vertices.
	UserVisibilityLabel = "user"

	EdgeLabelWorkspaceToUser   = "workspaceToUser"
	EdgeLabelWorkspaceToEntity = "workspaceToEntity"

	PropertyAccess    = "workspaceToUserAccess"
	PropertyIsCreator = "workspaceToUserIsCreator"

	PropertyGraphPositionX = "graphPositionX"
	PropertyGraphPositionY = "graphPositionY"
	PropertyGraphLayout    = "graphLayoutJson"
	PropertyVisible        = "visible"
)

// NotFoundError reports a missing workspace, user or entity.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("workspace: %s %s not found", e.Resource, e.ID)
}

// edgeID builds the deterministic association edge id so repeated
// updates hit the same edge instead of accumulating duplicates.
func edgeID(workspaceID, otherID string) string {
	return workspaceID + "_to_" + otherID
}

// AuthorizationSource resolves the graph authorizations a user acts
// under. Implementations typically back onto a user store; additional
// labels are merged in for operation-scoped grants such as a workspace
// id.
type AuthorizationSource interface {
	AuthorizationsFor(user models.User, additional ...string) graph.Authorizations
}

// StaticAuthorizationSource is an in-memory AuthorizationSource keyed by
// user id. The system user holds every granted label.
type StaticAuthorizationSource struct {
	mu     sync.RWMutex
	byUser map[string][]string
	all    map[string]struct{}
}

func NewStaticAuthorizationSource() *StaticAuthorizationSource {
	return &StaticAuthorizationSource{
		byUser: make(map[string][]string),
		all:    make(map[string]struct{}),
	}
}

// Grant adds labels to userID's authorization set.
func (s *StaticAuthorizationSource) Grant(userID string, labels ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser[userID] = append(s.byUser[userID], labels...)
	for _, l := range labels {
		s.all[l] = struct{}{}
	}
}

func (s *StaticAuthorizationSource) AuthorizationsFor(user models.User, additional ...string) graph.Authorizations {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if user.System {
		labels := make([]string, 0, len(s.all)+len(additional))
		for l := range s.all {
			labels = append(labels, l)
		}
		sort.Strings(labels)
		return graph.NewAuthorizations(labels...).With(additional...)
	}
	return graph.NewAuthorizations(s.byUser[user.ID]...).With(additional...)
}
