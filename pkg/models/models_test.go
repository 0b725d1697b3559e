package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewWorkspaceID(t *testing.T) {
	id := NewWorkspaceID()
	assert.True(t, IsWorkspaceLabel(id))
	assert.NotEqual(t, id, NewWorkspaceID())
}

func TestIsWorkspaceLabel(t *testing.T) {
	assert.True(t, IsWorkspaceLabel("WORKSPACE_abc"))
	assert.False(t, IsWorkspaceLabel("workspace_abc"))
	assert.False(t, IsWorkspaceLabel("secret"))
	assert.False(t, IsWorkspaceLabel(""))
}

func TestAccessLevelLattice(t *testing.T) {
	assert.True(t, AccessWrite.CanRead())
	assert.True(t, AccessWrite.CanComment())
	assert.True(t, AccessWrite.CanWrite())

	assert.True(t, AccessComment.CanRead())
	assert.True(t, AccessComment.CanComment())
	assert.False(t, AccessComment.CanWrite())

	assert.True(t, AccessRead.CanRead())
	assert.False(t, AccessRead.CanComment())

	assert.False(t, AccessNone.CanRead())
}

func TestParseAccessLevel(t *testing.T) {
	assert.Equal(t, AccessWrite, ParseAccessLevel("WRITE"))
	assert.Equal(t, AccessRead, ParseAccessLevel("READ"))
	assert.Equal(t, AccessNone, ParseAccessLevel("garbage"))
	assert.Equal(t, AccessNone, ParseAccessLevel(""))
}
