package workqueue

import (
	"encoding/json"

	"github.com/sandgraph/sandgraph/pkg/models"
)

// Permissions scopes a broadcast to an explicit set of users and/or
// sessions. An event with nil Permissions is visible to every connected
// client.
type Permissions struct {
	Users      []string `json:"users,omitempty"`
	SessionIDs []string `json:"sessionIds,omitempty"`
}

// MembershipPermissions builds the scoping block for a workspace event
// from its current and previous membership, deduplicated so a user who
// just lost access still receives the event exactly once.
func MembershipPermissions(current, previous []models.WorkspaceUser) *Permissions {
	seen := make(map[string]struct{})
	var users []string
	for _, list := range [][]models.WorkspaceUser{previous, current} {
		for _, m := range list {
			if _, ok := seen[m.UserID]; ok {
				continue
			}
			seen[m.UserID] = struct{}{}
			users = append(users, m.UserID)
		}
	}
	return &Permissions{Users: users}
}

// Event is one typed real-time broadcast. Each variant owns its wire
// serialization; MarshalEvent produces the full envelope including the
// type tag and the permissions scoping block.
type Event interface {
	EventType() string
	EventPermissions() *Permissions
	MarshalEvent() ([]byte, error)
}

type envelope struct {
	Type        string       `json:"type"`
	Permissions *Permissions `json:"permissions,omitempty"`
	ModifiedBy  string       `json:"modifiedBy,omitempty"`
	WorkspaceID string       `json:"workspaceId,omitempty"`
	SessionID   string       `json:"sessionId,omitempty"`
	Data        any          `json:"data,omitempty"`
}

func marshalEnvelope(env envelope) ([]byte, error) {
	return json.Marshal(env)
}

// PropertyChangeEvent announces a property mutation on a vertex or edge.
type PropertyChangeEvent struct {
	VertexID    string       `json:"graphVertexId,omitempty"`
	EdgeID      string       `json:"graphEdgeId,omitempty"`
	WorkspaceID string       `json:"workspaceId,omitempty"`
	Scope       *Permissions `json:"-"`
}

func (e PropertyChangeEvent) EventType() string { return "propertyChange" }
func (e PropertyChangeEvent) EventPermissions() *Permissions { return e.Scope }
func (e PropertyChangeEvent) MarshalEvent() ([]byte, error) {
	return marshalEnvelope(envelope{Type: e.EventType(), Permissions: e.Scope, Data: e})
}

// VerticesDeletedEvent announces vertex deletions.
type VerticesDeletedEvent struct {
	VertexIDs []string     `json:"vertexIds"`
	Scope     *Permissions `json:"-"`
}

func (e VerticesDeletedEvent) EventType() string { return "verticesDeleted" }
func (e VerticesDeletedEvent) EventPermissions() *Permissions { return e.Scope }
func (e VerticesDeletedEvent) MarshalEvent() ([]byte, error) {
	return marshalEnvelope(envelope{Type: e.EventType(), Permissions: e.Scope, Data: e})
}

// EdgeDeletionEvent announces an edge deletion together with its
// endpoints so clients can update adjacency without a refetch.
type EdgeDeletionEvent struct {
	EdgeID      string       `json:"edgeId"`
	OutVertexID string       `json:"outVertexId"`
	InVertexID  string       `json:"inVertexId"`
	Scope       *Permissions `json:"-"`
}

func (e EdgeDeletionEvent) EventType() string { return "edgeDeletion" }
func (e EdgeDeletionEvent) EventPermissions() *Permissions { return e.Scope }
func (e EdgeDeletionEvent) MarshalEvent() ([]byte, error) {
	return marshalEnvelope(envelope{Type: e.EventType(), Permissions: e.Scope, Data: e})
}

// PublishType is the direction of a publish or undo transition.
type PublishType string

const (
	PublishToPublic   PublishType = "toPublic"
	PublishDelete     PublishType = "delete"
	PublishUndo       PublishType = "undo"
	PublishUndoDelete PublishType = "undoDelete"
)

// PublishEvent announces a sandbox change crossing the publish boundary:
// an element or property published, deleted publicly, or undone.
type PublishEvent struct {
	VertexID     string       `json:"graphVertexId,omitempty"`
	EdgeID       string       `json:"graphEdgeId,omitempty"`
	PropertyKey  string       `json:"propertyKey,omitempty"`
	PropertyName string       `json:"propertyName,omitempty"`
	Publish      PublishType  `json:"publishType"`
	ObjectType   string       `json:"objectType"`
	Scope        *Permissions `json:"-"`
}

func (e PublishEvent) EventType() string { return "publish" }
func (e PublishEvent) EventPermissions() *Permissions { return e.Scope }
func (e PublishEvent) MarshalEvent() ([]byte, error) {
	return marshalEnvelope(envelope{Type: e.EventType(), Permissions: e.Scope, Data: e})
}

// WorkspaceChangeEvent announces a change to a workspace's title,
// membership or entity set. Scope must include previous members so a user
// being removed learns about their removal.
type WorkspaceChangeEvent struct {
	Workspace  models.Workspace       `json:"workspace"`
	Users      []models.WorkspaceUser `json:"users"`
	ModifiedBy string                 `json:"-"`
	Scope      *Permissions           `json:"-"`
}

func (e WorkspaceChangeEvent) EventType() string { return "workspaceChange" }
func (e WorkspaceChangeEvent) EventPermissions() *Permissions { return e.Scope }
func (e WorkspaceChangeEvent) MarshalEvent() ([]byte, error) {
	return marshalEnvelope(envelope{Type: e.EventType(), Permissions: e.Scope, ModifiedBy: e.ModifiedBy, Data: e})
}

// WorkspaceDeleteEvent announces a workspace deletion.
type WorkspaceDeleteEvent struct {
	WorkspaceID string
	Scope       *Permissions
}

func (e WorkspaceDeleteEvent) EventType() string { return "workspaceDelete" }
func (e WorkspaceDeleteEvent) EventPermissions() *Permissions { return e.Scope }
func (e WorkspaceDeleteEvent) MarshalEvent() ([]byte, error) {
	return marshalEnvelope(envelope{Type: e.EventType(), Permissions: e.Scope, WorkspaceID: e.WorkspaceID})
}

// SessionExpirationEvent tells one session of one user that it expired.
type SessionExpirationEvent struct {
	UserID    string
	SessionID string
}

func (e SessionExpirationEvent) EventType() string { return "sessionExpiration" }
func (e SessionExpirationEvent) EventPermissions() *Permissions {
	return &Permissions{Users: []string{e.UserID}, SessionIDs: []string{e.SessionID}}
}
func (e SessionExpirationEvent) MarshalEvent() ([]byte, error) {
	return marshalEnvelope(envelope{Type: e.EventType(), Permissions: e.EventPermissions(), SessionID: e.SessionID})
}

// NotificationEvent raises a user-facing notification.
type NotificationEvent struct {
	UserID       string
	Notification any `json:"notification"`
}

func (e NotificationEvent) EventType() string { return "notification" }
func (e NotificationEvent) EventPermissions() *Permissions {
	if e.UserID == "" {
		return nil
	}
	return &Permissions{Users: []string{e.UserID}}
}
func (e NotificationEvent) MarshalEvent() ([]byte, error) {
	return marshalEnvelope(envelope{
		Type:        e.EventType(),
		Permissions: e.EventPermissions(),
		Data:        map[string]any{"notification": e.Notification},
	})
}

// LongRunningProcessChangeEvent announces progress of a long-running
// process to the user who started it. Results are stripped from the
// broadcast: they can be large, and clients fetch them over pull.
type LongRunningProcessChangeEvent struct {
	UserID  string
	Process map[string]any
}

func (e LongRunningProcessChangeEvent) EventType() string { return "longRunningProcessChange" }
func (e LongRunningProcessChangeEvent) EventPermissions() *Permissions {
	return &Permissions{Users: []string{e.UserID}}
}
func (e LongRunningProcessChangeEvent) MarshalEvent() ([]byte, error) {
	data := make(map[string]any, len(e.Process))
	for k, v := range e.Process {
		if k == "results" {
			continue
		}
		data[k] = v
	}
	return marshalEnvelope(envelope{Type: e.EventType(), Permissions: e.EventPermissions(), Data: data})
}
