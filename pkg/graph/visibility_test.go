package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVisibilityNormalizes(t *testing.T) {
	v := NewVisibility("b", "a", "b", "")
	assert.Equal(t, []string{"a", "b"}, v.Labels())
	assert.True(t, v.Equal(NewVisibility("a", "b")))
	assert.Equal(t, "a&b", v.String())
}

func TestVisibilityReadable(t *testing.T) {
	v := NewVisibility("workspace", "WORKSPACE_1")

	assert.True(t, v.Readable(NewAuthorizations("workspace", "WORKSPACE_1", "extra")))
	assert.False(t, v.Readable(NewAuthorizations("workspace")))
	assert.False(t, v.Readable(NewAuthorizations()))

	assert.True(t, Public().Readable(NewAuthorizations()))
	assert.True(t, Public().IsPublic())
}

func TestVisibilityJSON(t *testing.T) {
	data, err := json.Marshal(NewVisibility("b", "a"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"labels":["a","b"]}`, string(data))

	data, err = json.Marshal(Public())
	require.NoError(t, err)
	assert.JSONEq(t, `{"labels":[]}`, string(data))
}

func TestAuthorizationsWith(t *testing.T) {
	base := NewAuthorizations("a")
	extended := base.With("b")

	assert.True(t, extended.Has("a"))
	assert.True(t, extended.Has("b"))
	assert.False(t, base.Has("b"))
	assert.Equal(t, []string{"a", "b"}, extended.Labels())
}
