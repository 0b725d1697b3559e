package workspace

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/sandgraph/sandgraph/pkg/access"
	"github.com/sandgraph/sandgraph/pkg/diff"
	"github.com/sandgraph/sandgraph/pkg/formula"
	"github.com/sandgraph/sandgraph/pkg/graph"
	"github.com/sandgraph/sandgraph/pkg/lock"
	"github.com/sandgraph/sandgraph/pkg/models"
	"github.com/sandgraph/sandgraph/pkg/workqueue"
)

// Repository coordinates all workspace state: the workspace vertex, the
// membership edges, the entity-association edges and the caches over
// them. Every mutation runs under the workspace's named lock and ends
// with a graph flush, a cache invalidation where membership changed, and
// a change notification.
type Repository struct {
	graph    graph.Graph
	authRepo graph.AuthorizationRepository
	locks    lock.Repository
	cache    access.PermissionCache
	checker  *access.Checker
	differ   *diff.Engine
	bus      *workqueue.Bus
	auths    AuthorizationSource
	log      zerolog.Logger
}

func NewRepository(
	g graph.Graph,
	authRepo graph.AuthorizationRepository,
	locks lock.Repository,
	cache access.PermissionCache,
	differ *diff.Engine,
	bus *workqueue.Bus,
	auths AuthorizationSource,
	log zerolog.Logger,
) *Repository {
	r := &Repository{
		graph:    g,
		authRepo: authRepo,
		locks:    locks,
		cache:    cache,
		differ:   differ,
		bus:      bus,
		auths:    auths,
		log:      log,
	}
	r.checker = access.NewChecker(cache, r)
	return r
}

// Checker exposes the permission checker bound to this repository's
// membership data, for callers enforcing access outside the repository.
func (r *Repository) Checker() *access.Checker { return r.checker }

func (r *Repository) systemAuths(additional ...string) graph.Authorizations {
	base := append([]string{VisibilityLabel, UserVisibilityLabel}, additional...)
	return r.auths.AuthorizationsFor(models.SystemUser(), base...)
}

// Add creates a new workspace owned by user: a fresh workspace id label
// registered with the store, the workspace vertex, and a creator
// membership edge granting WRITE.
func (r *Repository) Add(ctx context.Context, title string, user models.User) (models.Workspace, error) {
	id := models.NewWorkspaceID()
	if err := r.authRepo.AddAuthorization(ctx, id); err != nil {
		return models.Workspace{}, fmt.Errorf("workspace: register authorization for %s: %w", id, err)
	}
	auths := r.auths.AuthorizationsFor(user, VisibilityLabel, UserVisibilityLabel, id)
	vis := graph.NewVisibility(VisibilityLabel)

	err := r.locks.Lock(lock.Name(id), func() error {
		_, err := r.graph.PrepareVertex(id, vis).
			SetProperty("", models.PropertyTitle, title, vis).
			Save(ctx, auths)
		if err != nil {
			return err
		}
		if err := r.ensureUserVertex(ctx, user.ID, auths); err != nil {
			return err
		}
		_, err = r.graph.PrepareEdge(edgeID(id, user.ID), id, user.ID, EdgeLabelWorkspaceToUser, vis).
			SetProperty("", PropertyAccess, string(models.AccessWrite), vis).
			SetProperty("", PropertyIsCreator, true, vis).
			Save(ctx, auths)
		if err != nil {
			return err
		}
		return r.graph.Flush(ctx)
	})
	if err != nil {
		return models.Workspace{}, fmt.Errorf("workspace: add: %w", err)
	}

	r.cache.InvalidateAll(id)
	ws := models.Workspace{ID: id, Title: title}
	r.log.Info().Str("workspace", id).Str("user", user.ID).Msg("workspace created")
	r.broadcastChange(ctx, ws, user.ID, nil)
	return ws, nil
}

// Delete removes the workspace vertex with all its edges and retires the
// workspace's visibility label. Requires WRITE.
func (r *Repository) Delete(ctx context.Context, ws models.Workspace, user models.User) error {
	if err := r.checker.Require(ctx, access.WriteAccess, ws.ID, user); err != nil {
		return err
	}
	previous := r.previousMembers(ctx, ws.ID)

	err := r.locks.Lock(lock.Name(ws.ID), func() error {
		if err := r.graph.RemoveVertex(ctx, ws.ID, r.systemAuths(ws.ID)); err != nil {
			return err
		}
		return r.graph.Flush(ctx)
	})
	if err != nil {
		return fmt.Errorf("workspace: delete %s: %w", ws.ID, err)
	}
	if err := r.authRepo.RemoveAuthorization(ctx, ws.ID); err != nil {
		r.log.Warn().Err(err).Str("workspace", ws.ID).Msg("could not retire workspace authorization")
	}

	r.cache.InvalidateAll(ws.ID)
	r.log.Info().Str("workspace", ws.ID).Str("user", user.ID).Msg("workspace deleted")
	r.bus.Broadcast(ctx, workqueue.WorkspaceDeleteEvent{
		WorkspaceID: ws.ID,
		Scope:       workqueue.MembershipPermissions(nil, previous),
	})
	return nil
}

// FindByID loads a workspace by id. Requires READ.
func (r *Repository) FindByID(ctx context.Context, workspaceID string, user models.User) (models.Workspace, error) {
	if err := r.checker.Require(ctx, access.ReadAccess, workspaceID, user); err != nil {
		return models.Workspace{}, err
	}
	v, err := r.workspaceVertex(ctx, workspaceID, user)
	if err != nil {
		return models.Workspace{}, err
	}
	if v == nil {
		return models.Workspace{}, &NotFoundError{Resource: "workspace", ID: workspaceID}
	}
	return workspaceFromVertex(v), nil
}

// FindAllForUser returns every workspace the user is a member of,
// discovered through the user's membership edges.
func (r *Repository) FindAllForUser(ctx context.Context, user models.User) ([]models.Workspace, error) {
	auths := r.auths.AuthorizationsFor(user, VisibilityLabel, UserVisibilityLabel)
	edges, err := r.graph.VertexEdges(ctx, user.ID, EdgeLabelWorkspaceToUser, graph.FetchNormal, auths)
	if err != nil {
		return nil, fmt.Errorf("workspace: list for user %s: %w", user.ID, err)
	}
	ids := make([]string, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, e.OtherVertexID(user.ID))
	}
	vertices, err := r.graph.GetVertices(ctx, ids, graph.FetchNormal, auths)
	if err != nil {
		return nil, fmt.Errorf("workspace: list for user %s: %w", user.ID, err)
	}
	workspaces := make([]models.Workspace, 0, len(vertices))
	for _, v := range vertices {
		if v == nil {
			continue
		}
		workspaces = append(workspaces, workspaceFromVertex(v))
	}
	sort.Slice(workspaces, func(i, j int) bool { return workspaces[i].ID < workspaces[j].ID })
	return workspaces, nil
}

// SetTitle renames the workspace. Requires WRITE.
func (r *Repository) SetTitle(ctx context.Context, ws models.Workspace, title string, user models.User) error {
	if err := r.checker.Require(ctx, access.WriteAccess, ws.ID, user); err != nil {
		return err
	}
	auths := r.auths.AuthorizationsFor(user, VisibilityLabel, ws.ID)
	vis := graph.NewVisibility(VisibilityLabel)
	err := r.locks.Lock(lock.Name(ws.ID), func() error {
		_, err := r.graph.PrepareVertex(ws.ID, vis).
			SetProperty("", models.PropertyTitle, title, vis).
			Save(ctx, auths)
		if err != nil {
			return err
		}
		return r.graph.Flush(ctx)
	})
	if err != nil {
		return fmt.Errorf("workspace: set title on %s: %w", ws.ID, err)
	}
	r.cache.InvalidateAll(ws.ID)
	ws.Title = title
	r.broadcastChange(ctx, ws, user.ID, nil)
	return nil
}

// FindUsersWithAccess returns the workspace's membership list. It does
// not itself check permission: it is the membership source the
// permission checker is built on. Results are cached per caller.
func (r *Repository) FindUsersWithAccess(ctx context.Context, workspaceID string, user models.User) ([]models.WorkspaceUser, error) {
	if members, ok := r.cache.GetMembers(workspaceID, user.ID); ok {
		return members, nil
	}
	edges, err := r.graph.VertexEdges(ctx, workspaceID, EdgeLabelWorkspaceToUser, graph.FetchNormal, r.systemAuths())
	if err != nil {
		return nil, fmt.Errorf("workspace: members of %s: %w", workspaceID, err)
	}
	members := make([]models.WorkspaceUser, 0, len(edges))
	for _, e := range edges {
		members = append(members, models.WorkspaceUser{
			UserID:  e.OtherVertexID(workspaceID),
			Access:  models.ParseAccessLevel(stringProperty(e, PropertyAccess)),
			Creator: boolProperty(e, PropertyIsCreator, false),
		})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	r.cache.PutMembers(workspaceID, user.ID, members)
	return members, nil
}

// FindEntities returns the visible entities of the workspace. Requires
// READ.
func (r *Repository) FindEntities(ctx context.Context, ws models.Workspace, user models.User) ([]models.WorkspaceEntity, error) {
	if err := r.checker.Require(ctx, access.ReadAccess, ws.ID, user); err != nil {
		return nil, err
	}
	return lock.Do(r.locks, lock.Name(ws.ID), func() ([]models.WorkspaceEntity, error) {
		return r.findEntitiesNoLock(ctx, ws, user, false)
	})
}

func (r *Repository) findEntitiesNoLock(ctx context.Context, ws models.Workspace, user models.User, includeHidden bool) ([]models.WorkspaceEntity, error) {
	hint := graph.FetchNormal
	if includeHidden {
		hint = graph.FetchIncludeHidden
	}
	auths := r.auths.AuthorizationsFor(user, VisibilityLabel, ws.ID)
	edges, err := r.graph.VertexEdges(ctx, ws.ID, EdgeLabelWorkspaceToEntity, hint, auths)
	if err != nil {
		return nil, fmt.Errorf("workspace: entities of %s: %w", ws.ID, err)
	}
	entities := make([]models.WorkspaceEntity, 0, len(edges))
	for _, e := range edges {
		entity := models.WorkspaceEntity{
			EntityID:   e.OtherVertexID(ws.ID),
			Visible:    boolProperty(e, PropertyVisible, true),
			LayoutJSON: stringProperty(e, PropertyGraphLayout),
		}
		if !includeHidden && !entity.Visible {
			continue
		}
		if x, ok := intProperty(e, PropertyGraphPositionX); ok {
			entity.PositionX = &x
		}
		if y, ok := intProperty(e, PropertyGraphPositionY); ok {
			entity.PositionY = &y
		}
		entities = append(entities, entity)
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].EntityID < entities[j].EntityID })
	return entities, nil
}

// findEntityEdges returns the graph edges whose both endpoints are in
// the workspace's entity set, deduplicated and in stable order.
func (r *Repository) findEntityEdges(ctx context.Context, ws models.Workspace, entities []models.WorkspaceEntity, includeHidden bool, user models.User) ([]graph.Edge, error) {
	hint := graph.FetchNormal
	if includeHidden {
		hint = graph.FetchIncludeHidden
	}
	auths := r.auths.AuthorizationsFor(user, VisibilityLabel, ws.ID)
	inSet := make(map[string]struct{}, len(entities))
	for _, entity := range entities {
		inSet[entity.EntityID] = struct{}{}
	}
	seen := make(map[string]struct{})
	var edges []graph.Edge
	for _, entity := range entities {
		incident, err := r.graph.VertexEdges(ctx, entity.EntityID, "", hint, auths)
		if err != nil {
			return nil, fmt.Errorf("workspace: edges of %s: %w", entity.EntityID, err)
		}
		for _, e := range incident {
			if e.Label() == EdgeLabelWorkspaceToEntity || e.Label() == EdgeLabelWorkspaceToUser {
				continue
			}
			if _, ok := seen[e.ID()]; ok {
				continue
			}
			if _, out := inSet[e.OutVertexID()]; !out {
				continue
			}
			if _, in := inSet[e.InVertexID()]; !in {
				continue
			}
			seen[e.ID()] = struct{}{}
			edges = append(edges, e)
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID() < edges[j].ID() })
	return edges, nil
}

// UpdateEntities adds entities to the workspace or updates their layout
// state. Requires COMMENT: moving an entity on the canvas is not a graph
// mutation.
func (r *Repository) UpdateEntities(ctx context.Context, ws models.Workspace, user models.User, updates []models.EntityUpdate) error {
	if err := r.checker.Require(ctx, access.CommentAccess, ws.ID, user); err != nil {
		return err
	}
	auths := r.auths.AuthorizationsFor(user, VisibilityLabel, ws.ID)
	vis := graph.NewVisibility(ws.ID)

	err := r.locks.Lock(lock.Name(ws.ID), func() error {
		for _, u := range updates {
			id := edgeID(ws.ID, u.EntityID)
			existing, err := r.graph.GetEdge(ctx, id, graph.FetchIncludeHidden, auths)
			if err != nil {
				return err
			}
			m := r.graph.PrepareEdge(id, ws.ID, u.EntityID, EdgeLabelWorkspaceToEntity, vis)
			if u.Visible != nil {
				m.SetProperty("", PropertyVisible, *u.Visible, vis)
			} else if existing == nil {
				m.SetProperty("", PropertyVisible, true, vis)
			}
			if u.Position != nil {
				m.SetProperty("", PropertyGraphPositionX, u.Position.X, vis)
				m.SetProperty("", PropertyGraphPositionY, u.Position.Y, vis)
			}
			if u.LayoutJSON != nil {
				m.SetProperty("", PropertyGraphLayout, *u.LayoutJSON, vis)
			}
			if _, err := m.Save(ctx, auths); err != nil {
				return err
			}
		}
		return r.graph.Flush(ctx)
	})
	if err != nil {
		return fmt.Errorf("workspace: update entities on %s: %w", ws.ID, err)
	}

	scope := r.membershipScope(ctx, ws.ID)
	for _, u := range updates {
		v, err := r.graph.GetVertex(ctx, u.EntityID, graph.FetchIncludeHidden, auths)
		if err != nil || v == nil {
			continue
		}
		if err := r.bus.PushElement(ctx, v, ws.ID, scope); err != nil {
			return err
		}
	}
	return nil
}

// SoftDeleteEntities flips the association edges of the given entities
// to invisible and clears their placement metadata. The association
// itself stays, so the diff keeps observing the entities' sandbox state.
// Requires WRITE.
func (r *Repository) SoftDeleteEntities(ctx context.Context, ws models.Workspace, entityIDs []string, user models.User) error {
	if err := r.checker.Require(ctx, access.WriteAccess, ws.ID, user); err != nil {
		return err
	}
	auths := r.auths.AuthorizationsFor(user, VisibilityLabel, ws.ID)
	vis := graph.NewVisibility(ws.ID)

	err := r.locks.Lock(lock.Name(ws.ID), func() error {
		for _, entityID := range entityIDs {
			id := edgeID(ws.ID, entityID)
			existing, err := r.graph.GetEdge(ctx, id, graph.FetchIncludeHidden, auths)
			if err != nil {
				return err
			}
			if existing == nil {
				continue
			}
			_, err = r.graph.PrepareEdge(id, ws.ID, entityID, EdgeLabelWorkspaceToEntity, vis).
				SetProperty("", PropertyVisible, false, vis).
				RemoveProperty("", PropertyGraphPositionX, vis).
				RemoveProperty("", PropertyGraphPositionY, vis).
				RemoveProperty("", PropertyGraphLayout, vis).
				Save(ctx, auths)
			if err != nil {
				return err
			}
		}
		return r.graph.Flush(ctx)
	})
	if err != nil {
		return fmt.Errorf("workspace: soft delete entities on %s: %w", ws.ID, err)
	}
	r.broadcastChange(ctx, ws, user.ID, nil)
	return nil
}

// UpdateUserOnWorkspace grants or changes updateUserID's access level.
// Requires WRITE.
func (r *Repository) UpdateUserOnWorkspace(ctx context.Context, ws models.Workspace, updateUserID string, level models.AccessLevel, user models.User) error {
	if err := r.checker.Require(ctx, access.WriteAccess, ws.ID, user); err != nil {
		return err
	}
	target, err := r.graph.GetVertex(ctx, updateUserID, graph.FetchNormal, r.systemAuths())
	if err != nil {
		return fmt.Errorf("workspace: update user %s on %s: %w", updateUserID, ws.ID, err)
	}
	if target == nil {
		return &NotFoundError{Resource: "user", ID: updateUserID}
	}
	previous := r.previousMembers(ctx, ws.ID)

	auths := r.auths.AuthorizationsFor(user, VisibilityLabel, UserVisibilityLabel, ws.ID)
	vis := graph.NewVisibility(VisibilityLabel)
	err = r.locks.Lock(lock.Name(ws.ID), func() error {
		_, err := r.graph.PrepareEdge(edgeID(ws.ID, updateUserID), ws.ID, updateUserID, EdgeLabelWorkspaceToUser, vis).
			SetProperty("", PropertyAccess, string(level), vis).
			Save(ctx, auths)
		if err != nil {
			return err
		}
		return r.graph.Flush(ctx)
	})
	if err != nil {
		return fmt.Errorf("workspace: update user %s on %s: %w", updateUserID, ws.ID, err)
	}

	r.cache.InvalidateAll(ws.ID)
	r.log.Info().Str("workspace", ws.ID).Str("user", updateUserID).Str("access", string(level)).Msg("workspace access updated")
	r.broadcastChange(ctx, ws, user.ID, previous)
	return nil
}

// DeleteUserFromWorkspace removes a member. Requires WRITE, except that
// any member may remove themselves.
func (r *Repository) DeleteUserFromWorkspace(ctx context.Context, ws models.Workspace, removeUserID string, user models.User) error {
	if user.ID != removeUserID {
		if err := r.checker.Require(ctx, access.WriteAccess, ws.ID, user); err != nil {
			return err
		}
	}
	membership, err := r.graph.GetEdge(ctx, edgeID(ws.ID, removeUserID), graph.FetchNormal, r.systemAuths(ws.ID))
	if err != nil {
		return fmt.Errorf("workspace: remove user %s from %s: %w", removeUserID, ws.ID, err)
	}
	if membership == nil {
		return &NotFoundError{Resource: "membership", ID: removeUserID}
	}
	previous := r.previousMembers(ctx, ws.ID)

	err = r.locks.Lock(lock.Name(ws.ID), func() error {
		if err := r.graph.RemoveEdge(ctx, edgeID(ws.ID, removeUserID), r.systemAuths(ws.ID)); err != nil {
			return err
		}
		return r.graph.Flush(ctx)
	})
	if err != nil {
		return fmt.Errorf("workspace: remove user %s from %s: %w", removeUserID, ws.ID, err)
	}

	r.cache.InvalidateAll(ws.ID)
	r.log.Info().Str("workspace", ws.ID).Str("user", removeUserID).Msg("workspace member removed")
	r.broadcastChange(ctx, ws, user.ID, previous)
	return nil
}

// Diff computes the sandbox changes of the workspace against the
// published graph. Requires READ. The whole computation runs under the
// workspace lock so it sees a consistent entity set.
func (r *Repository) Diff(ctx context.Context, ws models.Workspace, user models.User, uc formula.UserContext) (models.DiffResult, error) {
	if err := r.checker.Require(ctx, access.ReadAccess, ws.ID, user); err != nil {
		return models.DiffResult{}, err
	}
	uc.WorkspaceID = ws.ID
	return lock.Do(r.locks, lock.Name(ws.ID), func() (models.DiffResult, error) {
		entities, err := r.findEntitiesNoLock(ctx, ws, user, true)
		if err != nil {
			return models.DiffResult{}, err
		}
		edges, err := r.findEntityEdges(ctx, ws, entities, true, user)
		if err != nil {
			return models.DiffResult{}, err
		}
		auths := r.auths.AuthorizationsFor(user, VisibilityLabel, ws.ID)
		return r.differ.Diff(ctx, ws, entities, edges, uc, auths)
	})
}

func (r *Repository) workspaceVertex(ctx context.Context, workspaceID string, user models.User) (graph.Vertex, error) {
	if v, ok := r.cache.GetWorkspaceVertex(workspaceID, user.ID); ok {
		return v, nil
	}
	v, err := r.graph.GetVertex(ctx, workspaceID, graph.FetchNormal, r.auths.AuthorizationsFor(user, VisibilityLabel))
	if err != nil {
		return nil, fmt.Errorf("workspace: load %s: %w", workspaceID, err)
	}
	if v != nil {
		r.cache.PutWorkspaceVertex(workspaceID, user.ID, v)
	}
	return v, nil
}

func (r *Repository) ensureUserVertex(ctx context.Context, userID string, auths graph.Authorizations) error {
	vis := graph.NewVisibility(UserVisibilityLabel)
	_, err := r.graph.PrepareVertex(userID, vis).Save(ctx, auths)
	return err
}

// previousMembers captures the membership before a mutation so that a
// user being removed still falls inside the broadcast scope. A lookup
// failure narrows the scope to the remaining members, so it is logged
// rather than failing the mutation.
func (r *Repository) previousMembers(ctx context.Context, workspaceID string) []models.WorkspaceUser {
	members, err := r.FindUsersWithAccess(ctx, workspaceID, models.SystemUser())
	if err != nil {
		r.log.Warn().Err(err).Str("workspace", workspaceID).Msg("could not resolve previous membership")
	}
	return members
}

func (r *Repository) membershipScope(ctx context.Context, workspaceID string) *workqueue.Permissions {
	members, err := r.FindUsersWithAccess(ctx, workspaceID, models.SystemUser())
	if err != nil {
		r.log.Warn().Err(err).Str("workspace", workspaceID).Msg("could not resolve broadcast scope")
		return &workqueue.Permissions{}
	}
	return workqueue.MembershipPermissions(members, nil)
}

func (r *Repository) broadcastChange(ctx context.Context, ws models.Workspace, modifiedBy string, previous []models.WorkspaceUser) {
	current, err := r.FindUsersWithAccess(ctx, ws.ID, models.SystemUser())
	if err != nil {
		r.log.Warn().Err(err).Str("workspace", ws.ID).Msg("could not resolve membership for broadcast")
		current = previous
	}
	ev := workqueue.WorkspaceChangeEvent{
		Workspace:  ws,
		Users:      current,
		ModifiedBy: modifiedBy,
		Scope:      workqueue.MembershipPermissions(current, previous),
	}
	if err := r.bus.Broadcast(ctx, ev); err != nil {
		r.log.Warn().Err(err).Str("workspace", ws.ID).Msg("workspace change broadcast failed")
	}
}

func workspaceFromVertex(v graph.Vertex) models.Workspace {
	return models.Workspace{ID: v.ID(), Title: stringProperty(v, models.PropertyTitle)}
}

func stringProperty(el graph.Element, name string) string {
	if p, ok := el.Property("", name); ok {
		if s, ok := p.Value.(string); ok {
			return s
		}
	}
	return ""
}

func boolProperty(el graph.Element, name string, fallback bool) bool {
	if p, ok := el.Property("", name); ok {
		if b, ok := p.Value.(bool); ok {
			return b
		}
	}
	return fallback
}

func intProperty(el graph.Element, name string) (int, bool) {
	p, ok := el.Property("", name)
	if !ok {
		return 0, false
	}
	switch v := p.Value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
