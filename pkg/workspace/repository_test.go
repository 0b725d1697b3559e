package workspace

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandgraph/sandgraph/internal/memgraph"
	"github.com/sandgraph/sandgraph/pkg/access"
	"github.com/sandgraph/sandgraph/pkg/diff"
	"github.com/sandgraph/sandgraph/pkg/formula"
	"github.com/sandgraph/sandgraph/pkg/graph"
	"github.com/sandgraph/sandgraph/pkg/lock"
	"github.com/sandgraph/sandgraph/pkg/models"
	"github.com/sandgraph/sandgraph/pkg/workqueue"
)

type memQueue struct {
	mu    sync.Mutex
	items map[string][][]byte
}

func (q *memQueue) Push(_ context.Context, queue string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items == nil {
		q.items = make(map[string][][]byte)
	}
	q.items[queue] = append(q.items[queue], payload)
	return nil
}

type memBroadcaster struct {
	mu       sync.Mutex
	messages [][]byte
}

func (b *memBroadcaster) Broadcast(_ context.Context, message []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, message)
	return nil
}

func (b *memBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}

type fixture struct {
	repo  *Repository
	graph *memgraph.Graph
	queue *memQueue
	rt    *memBroadcaster
	cache *access.Cache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	g := memgraph.New()
	queue := &memQueue{}
	rt := &memBroadcaster{}
	cache := access.NewCache(time.Minute)
	bus := workqueue.NewBus(g, queue, rt, workqueue.ResolveNames(""), zerolog.Nop())
	differ := diff.NewEngine(g, formula.PropertyTitleEvaluator{}, zerolog.Nop())
	repo := NewRepository(
		g,
		memgraph.NewAuthRepository(),
		lock.NewLocalRepository(),
		cache,
		differ,
		bus,
		NewStaticAuthorizationSource(),
		zerolog.Nop(),
	)
	return &fixture{repo: repo, graph: g, queue: queue, rt: rt, cache: cache}
}

// addUser seeds a user vertex the way a user store would; membership
// mutations refuse to reference a user that does not exist.
func (f *fixture) addUser(t *testing.T, id string) {
	t.Helper()
	vis := graph.NewVisibility(UserVisibilityLabel)
	_, err := f.graph.PrepareVertex(id, vis).Save(context.Background(), graph.NewAuthorizations(UserVisibilityLabel))
	require.NoError(t, err)
	require.NoError(t, f.graph.Flush(context.Background()))
}

func TestAddGrantsCreatorWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	creator := models.User{ID: "u1"}

	ws, err := f.repo.Add(ctx, "plans", creator)
	require.NoError(t, err)
	assert.True(t, models.IsWorkspaceLabel(ws.ID))
	assert.Equal(t, "plans", ws.Title)

	members, err := f.repo.FindUsersWithAccess(ctx, ws.ID, creator)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "u1", members[0].UserID)
	assert.Equal(t, models.AccessWrite, members[0].Access)
	assert.True(t, members[0].Creator)

	got, err := f.repo.FindByID(ctx, ws.ID, creator)
	require.NoError(t, err)
	assert.Equal(t, ws, got)
}

func TestFindByIDDeniedForNonMember(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ws, err := f.repo.Add(ctx, "plans", models.User{ID: "u1"})
	require.NoError(t, err)

	_, err = f.repo.FindByID(ctx, ws.ID, models.User{ID: "stranger"})
	var denied *access.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "stranger", denied.UserID)
}

func TestGrantVisibleImmediately(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	creator := models.User{ID: "u1"}
	guest := models.User{ID: "u2"}

	ws, err := f.repo.Add(ctx, "plans", creator)
	require.NoError(t, err)

	_, err = f.repo.FindByID(ctx, ws.ID, guest)
	var denied *access.DeniedError
	require.ErrorAs(t, err, &denied)

	f.addUser(t, guest.ID)
	require.NoError(t, f.repo.UpdateUserOnWorkspace(ctx, ws, guest.ID, models.AccessRead, creator))

	// No waiting for cache expiry: the denial was never cached and the
	// membership mutation invalidated the member list.
	got, err := f.repo.FindByID(ctx, ws.ID, guest)
	require.NoError(t, err)
	assert.Equal(t, ws.ID, got.ID)

	// READ does not grant write.
	err = f.repo.SetTitle(ctx, ws, "renamed", guest)
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, access.WriteAccess, denied.Required)
}

func TestFindAllForUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u1 := models.User{ID: "u1"}
	u2 := models.User{ID: "u2"}

	ws1, err := f.repo.Add(ctx, "first", u1)
	require.NoError(t, err)
	_, err = f.repo.Add(ctx, "second", u2)
	require.NoError(t, err)
	ws3, err := f.repo.Add(ctx, "third", u1)
	require.NoError(t, err)

	got, err := f.repo.FindAllForUser(ctx, u1)
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, ws := range got {
		ids = append(ids, ws.ID)
	}
	assert.ElementsMatch(t, []string{ws1.ID, ws3.ID}, ids)
}

func TestSetTitle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	creator := models.User{ID: "u1"}

	ws, err := f.repo.Add(ctx, "plans", creator)
	require.NoError(t, err)
	require.NoError(t, f.repo.SetTitle(ctx, ws, "renamed", creator))

	got, err := f.repo.FindByID(ctx, ws.ID, creator)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
}

func TestUpdateAndFindEntities(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	creator := models.User{ID: "u1"}

	ws, err := f.repo.Add(ctx, "plans", creator)
	require.NoError(t, err)
	_, err = f.graph.PrepareVertex("e1", graph.Public()).Save(ctx, graph.NewAuthorizations())
	require.NoError(t, err)

	require.NoError(t, f.repo.UpdateEntities(ctx, ws, creator, []models.EntityUpdate{{
		EntityID: "e1",
		Position: &models.GraphPosition{X: 10, Y: 20},
	}}))

	entities, err := f.repo.FindEntities(ctx, ws, creator)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "e1", entities[0].EntityID)
	assert.True(t, entities[0].Visible)
	require.NotNil(t, entities[0].PositionX)
	assert.Equal(t, 10, *entities[0].PositionX)
	require.NotNil(t, entities[0].PositionY)
	assert.Equal(t, 20, *entities[0].PositionY)

	// Update moves the entity without duplicating the association.
	require.NoError(t, f.repo.UpdateEntities(ctx, ws, creator, []models.EntityUpdate{{
		EntityID: "e1",
		Position: &models.GraphPosition{X: 30, Y: 40},
	}}))
	entities, err = f.repo.FindEntities(ctx, ws, creator)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, 30, *entities[0].PositionX)

	// The mutation landed on the durable queue.
	assert.NotEmpty(t, f.queue.items["graphProperty"])
}

func TestEntitiesAreWorkspaceScoped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u1 := models.User{ID: "u1"}
	u2 := models.User{ID: "u2"}

	ws1, err := f.repo.Add(ctx, "mine", u1)
	require.NoError(t, err)
	ws2, err := f.repo.Add(ctx, "theirs", u2)
	require.NoError(t, err)

	_, err = f.graph.PrepareVertex("e1", graph.Public()).Save(ctx, graph.NewAuthorizations())
	require.NoError(t, err)
	require.NoError(t, f.repo.UpdateEntities(ctx, ws1, u1, []models.EntityUpdate{{EntityID: "e1"}}))

	entities, err := f.repo.FindEntities(ctx, ws2, u2)
	require.NoError(t, err)
	assert.Empty(t, entities, "another workspace must not see the association")
}

func TestSoftDeleteEntities(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	creator := models.User{ID: "u1"}

	ws, err := f.repo.Add(ctx, "plans", creator)
	require.NoError(t, err)
	_, err = f.graph.PrepareVertex("e1", graph.Public()).Save(ctx, graph.NewAuthorizations())
	require.NoError(t, err)
	require.NoError(t, f.repo.UpdateEntities(ctx, ws, creator, []models.EntityUpdate{{
		EntityID: "e1",
		Position: &models.GraphPosition{X: 5, Y: 6},
	}}))

	require.NoError(t, f.repo.SoftDeleteEntities(ctx, ws, []string{"e1"}, creator))

	entities, err := f.repo.FindEntities(ctx, ws, creator)
	require.NoError(t, err)
	assert.Empty(t, entities, "a soft-deleted entity leaves the visible set")

	// The association itself survives with its metadata cleared, so the
	// diff can still observe the entity.
	all, err := f.repo.findEntitiesNoLock(ctx, ws, creator, true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].Visible)
	assert.Nil(t, all[0].PositionX)
	assert.Empty(t, all[0].LayoutJSON)
}

func TestSelfRemovalWithoutWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	creator := models.User{ID: "u1"}
	guest := models.User{ID: "u2"}

	ws, err := f.repo.Add(ctx, "plans", creator)
	require.NoError(t, err)
	f.addUser(t, guest.ID)
	require.NoError(t, f.repo.UpdateUserOnWorkspace(ctx, ws, guest.ID, models.AccessRead, creator))

	// A read-only member cannot remove someone else...
	err = f.repo.DeleteUserFromWorkspace(ctx, ws, creator.ID, guest)
	var denied *access.DeniedError
	require.ErrorAs(t, err, &denied)

	// ...but may always remove themselves.
	require.NoError(t, f.repo.DeleteUserFromWorkspace(ctx, ws, guest.ID, guest))

	members, err := f.repo.FindUsersWithAccess(ctx, ws.ID, models.SystemUser())
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, creator.ID, members[0].UserID)

	_, err = f.repo.FindByID(ctx, ws.ID, guest)
	require.ErrorAs(t, err, &denied, "removal must take effect immediately")
}

func TestDeleteWorkspace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	creator := models.User{ID: "u1"}

	ws, err := f.repo.Add(ctx, "plans", creator)
	require.NoError(t, err)
	require.NoError(t, f.repo.Delete(ctx, ws, creator))

	got, err := f.repo.FindAllForUser(ctx, creator)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDiffAddedEntity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	creator := models.User{ID: "u1"}

	ws, err := f.repo.Add(ctx, "plans", creator)
	require.NoError(t, err)

	// A vertex created inside the workspace sandbox.
	auths := graph.NewAuthorizations(ws.ID)
	_, err = f.graph.PrepareVertex("e1", graph.NewVisibility(ws.ID)).
		SetProperty("", models.PropertyTitle, "draft", graph.NewVisibility(ws.ID)).
		Save(ctx, auths)
	require.NoError(t, err)
	require.NoError(t, f.repo.UpdateEntities(ctx, ws, creator, []models.EntityUpdate{{EntityID: "e1"}}))

	result, err := f.repo.Diff(ctx, ws, creator, formula.UserContext{})
	require.NoError(t, err)
	require.GreaterOrEqual(t, result.Len(), 1)

	vi, ok := result.Items[0].(models.VertexItem)
	require.True(t, ok)
	assert.Equal(t, "e1", vi.VertexID)
	assert.Equal(t, models.StatusPrivate, vi.Status)
	assert.Equal(t, "draft", vi.Title)
}

func TestDiffSeesRelationBetweenEntities(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	creator := models.User{ID: "u1"}

	ws, err := f.repo.Add(ctx, "plans", creator)
	require.NoError(t, err)
	pub := graph.NewAuthorizations()
	_, err = f.graph.PrepareVertex("a", graph.Public()).Save(ctx, pub)
	require.NoError(t, err)
	_, err = f.graph.PrepareVertex("b", graph.Public()).Save(ctx, pub)
	require.NoError(t, err)
	_, err = f.graph.PrepareEdge("r1", "a", "b", "knows", graph.NewVisibility(ws.ID)).
		Save(ctx, graph.NewAuthorizations(ws.ID))
	require.NoError(t, err)

	require.NoError(t, f.repo.UpdateEntities(ctx, ws, creator, []models.EntityUpdate{
		{EntityID: "a"}, {EntityID: "b"},
	}))

	result, err := f.repo.Diff(ctx, ws, creator, formula.UserContext{})
	require.NoError(t, err)

	var edgeItems []models.EdgeItem
	for _, item := range result.Items {
		if ei, ok := item.(models.EdgeItem); ok {
			edgeItems = append(edgeItems, ei)
		}
	}
	require.Len(t, edgeItems, 1)
	assert.Equal(t, "r1", edgeItems[0].EdgeID)
	assert.Equal(t, models.StatusPrivate, edgeItems[0].Status)
}

func TestMembershipChangeBroadcasts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	creator := models.User{ID: "u1"}

	ws, err := f.repo.Add(ctx, "plans", creator)
	require.NoError(t, err)
	before := f.rt.count()

	f.addUser(t, "u2")
	require.NoError(t, f.repo.UpdateUserOnWorkspace(ctx, ws, "u2", models.AccessRead, creator))
	assert.Greater(t, f.rt.count(), before, "membership changes notify members")
}

func TestGrantToUnknownUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	creator := models.User{ID: "u1"}

	ws, err := f.repo.Add(ctx, "plans", creator)
	require.NoError(t, err)

	err = f.repo.UpdateUserOnWorkspace(ctx, ws, "nobody", models.AccessRead, creator)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "user", notFound.Resource)
	assert.Equal(t, "nobody", notFound.ID)

	// The mistyped id must not have been materialized as a user.
	members, err := f.repo.FindUsersWithAccess(ctx, ws.ID, models.SystemUser())
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, creator.ID, members[0].UserID)
}

func TestRemoveNonMember(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	creator := models.User{ID: "u1"}

	ws, err := f.repo.Add(ctx, "plans", creator)
	require.NoError(t, err)
	f.addUser(t, "u2")

	err = f.repo.DeleteUserFromWorkspace(ctx, ws, "u2", creator)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "membership", notFound.Resource)
	assert.Equal(t, "u2", notFound.ID)
}
