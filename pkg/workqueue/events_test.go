package workqueue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandgraph/sandgraph/pkg/models"
)

func TestMembershipPermissions(t *testing.T) {
	current := []models.WorkspaceUser{
		{UserID: "u1", Access: models.AccessWrite},
		{UserID: "u2", Access: models.AccessRead},
	}
	previous := []models.WorkspaceUser{
		{UserID: "u1", Access: models.AccessWrite},
		{UserID: "u3", Access: models.AccessRead},
	}

	p := MembershipPermissions(current, previous)
	require.NotNil(t, p)
	// u3 lost access but still hears about it, and u1 appears once.
	assert.ElementsMatch(t, []string{"u1", "u2", "u3"}, p.Users)
	counts := map[string]int{}
	for _, u := range p.Users {
		counts[u]++
	}
	assert.Equal(t, 1, counts["u1"])
}

func TestPropertyChangeEventEnvelope(t *testing.T) {
	ev := PropertyChangeEvent{
		VertexID:    "v1",
		WorkspaceID: "ws1",
		Scope:       &Permissions{Users: []string{"u1"}},
	}
	data, err := ev.MarshalEvent()
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "propertyChange", env["type"])

	perms := env["permissions"].(map[string]any)
	assert.Equal(t, []any{"u1"}, perms["users"])

	payload := env["data"].(map[string]any)
	assert.Equal(t, "v1", payload["graphVertexId"])
	assert.Equal(t, "ws1", payload["workspaceId"])
}

func TestWorkspaceChangeEventEnvelope(t *testing.T) {
	ev := WorkspaceChangeEvent{
		Workspace:  models.Workspace{ID: "ws1", Title: "plans"},
		Users:      []models.WorkspaceUser{{UserID: "u1", Access: models.AccessWrite, Creator: true}},
		ModifiedBy: "u1",
		Scope:      &Permissions{Users: []string{"u1"}},
	}
	data, err := ev.MarshalEvent()
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "workspaceChange", env["type"])
	assert.Equal(t, "u1", env["modifiedBy"])

	payload := env["data"].(map[string]any)
	ws := payload["workspace"].(map[string]any)
	assert.Equal(t, "plans", ws["title"])
	// The scoping block must not leak into the payload.
	_, leaked := payload["Scope"]
	assert.False(t, leaked)
}

func TestPublishEventEnvelope(t *testing.T) {
	ev := PublishEvent{
		VertexID:     "v1",
		PropertyKey:  "k",
		PropertyName: "title",
		Publish:      PublishToPublic,
		ObjectType:   "property",
	}
	data, err := ev.MarshalEvent()
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "publish", env["type"])
	payload := env["data"].(map[string]any)
	assert.Equal(t, "toPublic", payload["publishType"])
	assert.Equal(t, "property", payload["objectType"])
}

func TestDeletionEventEnvelopes(t *testing.T) {
	data, err := VerticesDeletedEvent{VertexIDs: []string{"v1", "v2"}}.MarshalEvent()
	require.NoError(t, err)
	var env map[string]any
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "verticesDeleted", env["type"])
	assert.Len(t, env["data"].(map[string]any)["vertexIds"], 2)

	data, err = EdgeDeletionEvent{EdgeID: "e1", OutVertexID: "a", InVertexID: "b"}.MarshalEvent()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &env))
	payload := env["data"].(map[string]any)
	assert.Equal(t, "a", payload["outVertexId"])
	assert.Equal(t, "b", payload["inVertexId"])
}

func TestWorkspaceDeleteEventEnvelope(t *testing.T) {
	ev := WorkspaceDeleteEvent{
		WorkspaceID: "ws1",
		Scope:       &Permissions{Users: []string{"u1"}},
	}
	data, err := ev.MarshalEvent()
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "workspaceDelete", env["type"])
	assert.Equal(t, "ws1", env["workspaceId"])
	_, hasData := env["data"]
	assert.False(t, hasData, "a delete event carries no payload beyond the id")
}

func TestSessionExpirationEventScopedToSession(t *testing.T) {
	ev := SessionExpirationEvent{UserID: "u1", SessionID: "s1"}
	p := ev.EventPermissions()
	require.NotNil(t, p)
	assert.Equal(t, []string{"u1"}, p.Users)
	assert.Equal(t, []string{"s1"}, p.SessionIDs)

	data, err := ev.MarshalEvent()
	require.NoError(t, err)
	var env map[string]any
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "s1", env["sessionId"])
}

func TestLongRunningProcessChangeStripsResults(t *testing.T) {
	ev := LongRunningProcessChangeEvent{
		UserID: "u1",
		Process: map[string]any{
			"id":      "p1",
			"status":  "running",
			"results": []string{"huge"},
		},
	}
	data, err := ev.MarshalEvent()
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal(data, &env))
	payload := env["data"].(map[string]any)
	assert.Equal(t, "p1", payload["id"])
	_, hasResults := payload["results"]
	assert.False(t, hasResults)
}

func TestNotificationEventBroadcastWhenNoUser(t *testing.T) {
	assert.Nil(t, NotificationEvent{}.EventPermissions())
	assert.NotNil(t, NotificationEvent{UserID: "u1"}.EventPermissions())
}
