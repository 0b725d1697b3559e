// Package models defines the shared domain types for the workspace
// synchronization core: workspaces, membership, entity associations,
// sandbox statuses and diff items.
package models

import (
	"strings"

	"github.com/google/uuid"
)

// WorkspaceIDPrefix is prepended to every generated workspace id. Labels
// carrying this prefix are workspace-scoped visibility labels; everything
// else is considered public.
const WorkspaceIDPrefix = "WORKSPACE_"

// NewWorkspaceID returns a fresh workspace id.
func NewWorkspaceID() string {
	return WorkspaceIDPrefix + uuid.NewString()
}

// IsWorkspaceLabel reports whether a visibility label is scoped to some
// workspace rather than publicly visible.
func IsWorkspaceLabel(label string) bool {
	return strings.HasPrefix(label, WorkspaceIDPrefix)
}

// AccessLevel is the membership access lattice: NONE < READ <= COMMENT < WRITE.
type AccessLevel string

const (
	AccessNone    AccessLevel = "NONE"
	AccessRead    AccessLevel = "READ"
	AccessComment AccessLevel = "COMMENT"
	AccessWrite   AccessLevel = "WRITE"
)

// CanRead reports whether the level satisfies read access.
func (a AccessLevel) CanRead() bool {
	return a == AccessRead || a == AccessComment || a == AccessWrite
}

// CanComment reports whether the level satisfies comment access.
func (a AccessLevel) CanComment() bool {
	return a == AccessComment || a == AccessWrite
}

// CanWrite reports whether the level satisfies write access.
func (a AccessLevel) CanWrite() bool {
	return a == AccessWrite
}

// ParseAccessLevel maps a stored access string to an AccessLevel,
// defaulting to NONE for empty or unknown values.
func ParseAccessLevel(s string) AccessLevel {
	switch AccessLevel(s) {
	case AccessRead, AccessComment, AccessWrite:
		return AccessLevel(s)
	default:
		return AccessNone
	}
}

// User identifies a caller. System users bypass workspace permission checks.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	System      bool   `json:"-"`
}

// SystemUser returns the internal user that bypasses all permission checks.
func SystemUser() User {
	return User{ID: "system", System: true}
}

// Workspace is a private collaborative context grouping a subset of graph
// elements. Identity is immutable; the title may be changed by any
// write-permitted member.
type Workspace struct {
	ID    string `json:"workspaceId"`
	Title string `json:"title"`
}

// WorkspaceUser is one membership entry on a workspace.
type WorkspaceUser struct {
	UserID  string      `json:"userId"`
	Access  AccessLevel `json:"access"`
	Creator bool        `json:"isCreator,omitempty"`
}

// GraphPosition is the placement of an entity on the workspace canvas.
type GraphPosition struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// WorkspaceEntity is the association between a workspace and a graph
// element, recording placement metadata and a soft-visibility flag.
// Soft deletion flips Visible to false and clears the metadata instead of
// removing the association, so diffs keep their history.
type WorkspaceEntity struct {
	EntityID   string `json:"entityId"`
	Visible    bool   `json:"visible"`
	PositionX  *int   `json:"graphPositionX,omitempty"`
	PositionY  *int   `json:"graphPositionY,omitempty"`
	LayoutJSON string `json:"graphLayoutJson,omitempty"`
}

// EntityUpdate describes one entity association to create or update on a
// workspace. Nil fields leave the current value untouched.
type EntityUpdate struct {
	EntityID   string
	Position   *GraphPosition
	LayoutJSON *string
	Visible    *bool
}

// SandboxStatus classifies an element or property relative to a workspace.
type SandboxStatus string

const (
	// StatusPublic means the item is the published version, untouched by
	// the workspace.
	StatusPublic SandboxStatus = "PUBLIC"
	// StatusPrivate means the item exists only inside the workspace.
	StatusPrivate SandboxStatus = "PRIVATE"
	// StatusPublicChanged means a published version and a workspace-scoped
	// overriding version coexist.
	StatusPublicChanged SandboxStatus = "PUBLIC_CHANGED"
)
