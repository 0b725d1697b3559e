package access

import (
	"context"
	"fmt"

	"github.com/sandgraph/sandgraph/pkg/models"
)

// DeniedError reports that a user lacks the required access to a
// workspace. It carries only identifiers, so surfacing it to an
// unauthorized caller leaks nothing about the workspace beyond its id.
type DeniedError struct {
	UserID      string
	WorkspaceID string
	Required    AccessKind
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("user %s does not have %s access to workspace %s", e.UserID, e.Required, e.WorkspaceID)
}

// MembershipSource provides the membership list for a workspace as seen by
// a user. The workspace repository implements this over its graph store.
type MembershipSource interface {
	FindUsersWithAccess(ctx context.Context, workspaceID string, user models.User) ([]models.WorkspaceUser, error)
}

// Checker answers hasRead/hasComment/hasWrite against the membership list,
// serving positive results from cache. Negative results are never cached,
// so a just-granted permission is visible on the very next call.
type Checker struct {
	cache  PermissionCache
	source MembershipSource
}

// NewChecker returns a Checker over the given cache and membership source.
func NewChecker(cache PermissionCache, source MembershipSource) *Checker {
	return &Checker{cache: cache, source: source}
}

// HasRead reports whether the user may read the workspace. READ, COMMENT
// and WRITE all satisfy it. System users always pass.
func (c *Checker) HasRead(ctx context.Context, workspaceID string, user models.User) (bool, error) {
	return c.has(ctx, ReadAccess, workspaceID, user, models.AccessLevel.CanRead)
}

// HasComment reports whether the user may comment. COMMENT and WRITE
// satisfy it.
func (c *Checker) HasComment(ctx context.Context, workspaceID string, user models.User) (bool, error) {
	return c.has(ctx, CommentAccess, workspaceID, user, models.AccessLevel.CanComment)
}

// HasWrite reports whether the user may mutate the workspace. Only WRITE
// satisfies it.
func (c *Checker) HasWrite(ctx context.Context, workspaceID string, user models.User) (bool, error) {
	return c.has(ctx, WriteAccess, workspaceID, user, models.AccessLevel.CanWrite)
}

// Require returns a DeniedError unless the user holds the given access.
func (c *Checker) Require(ctx context.Context, kind AccessKind, workspaceID string, user models.User) error {
	var (
		granted bool
		err     error
	)
	switch kind {
	case WriteAccess:
		granted, err = c.HasWrite(ctx, workspaceID, user)
	case CommentAccess:
		granted, err = c.HasComment(ctx, workspaceID, user)
	default:
		granted, err = c.HasRead(ctx, workspaceID, user)
	}
	if err != nil {
		return err
	}
	if !granted {
		return &DeniedError{UserID: user.ID, WorkspaceID: workspaceID, Required: kind}
	}
	return nil
}

func (c *Checker) has(ctx context.Context, kind AccessKind, workspaceID string, user models.User, satisfies func(models.AccessLevel) bool) (bool, error) {
	if user.System {
		return true, nil
	}
	if granted, ok := c.cache.GetAccess(kind, workspaceID, user.ID); ok && granted {
		return true, nil
	}
	members, err := c.source.FindUsersWithAccess(ctx, workspaceID, user)
	if err != nil {
		return false, err
	}
	for _, m := range members {
		if m.UserID == user.ID && satisfies(m.Access) {
			c.cache.PutAccess(kind, workspaceID, user.ID)
			return true, nil
		}
	}
	return false, nil
}
