package access

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sandgraph/sandgraph/pkg/models"
)

func TestCacheExpiry(t *testing.T) {
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }
	c := NewCacheWithClock(15*time.Second, clock)

	c.PutAccess(ReadAccess, "ws1", "u1")
	granted, ok := c.GetAccess(ReadAccess, "ws1", "u1")
	assert.True(t, ok)
	assert.True(t, granted)

	now = now.Add(14 * time.Second)
	_, ok = c.GetAccess(ReadAccess, "ws1", "u1")
	assert.True(t, ok, "entry should still be live just under the ttl")

	now = now.Add(2 * time.Second)
	_, ok = c.GetAccess(ReadAccess, "ws1", "u1")
	assert.False(t, ok, "entry should have expired past the ttl")
}

func TestCacheBucketsAreIndependent(t *testing.T) {
	c := NewCache(0)
	c.PutAccess(ReadAccess, "ws1", "u1")

	_, ok := c.GetAccess(WriteAccess, "ws1", "u1")
	assert.False(t, ok)
	_, ok = c.GetAccess(CommentAccess, "ws1", "u1")
	assert.False(t, ok)
	_, ok = c.GetAccess(ReadAccess, "ws1", "u2")
	assert.False(t, ok)
}

func TestCacheInvalidateAll(t *testing.T) {
	c := NewCache(time.Minute)
	members := []models.WorkspaceUser{{UserID: "u1", Access: models.AccessWrite}}

	c.PutAccess(ReadAccess, "ws1", "u1")
	c.PutAccess(WriteAccess, "ws1", "u1")
	c.PutMembers("ws1", "u1", members)
	c.PutAccess(ReadAccess, "ws2", "u1")

	c.InvalidateAll("ws1")

	_, ok := c.GetAccess(ReadAccess, "ws1", "u1")
	assert.False(t, ok)
	_, ok = c.GetAccess(WriteAccess, "ws1", "u1")
	assert.False(t, ok)
	_, ok = c.GetMembers("ws1", "u1")
	assert.False(t, ok)

	// Other workspaces are untouched.
	_, ok = c.GetAccess(ReadAccess, "ws2", "u1")
	assert.True(t, ok)
}

func TestCacheMembersRoundTrip(t *testing.T) {
	c := NewCache(time.Minute)
	members := []models.WorkspaceUser{
		{UserID: "u1", Access: models.AccessWrite, Creator: true},
		{UserID: "u2", Access: models.AccessRead},
	}
	c.PutMembers("ws1", "u1", members)

	got, ok := c.GetMembers("ws1", "u1")
	assert.True(t, ok)
	assert.Equal(t, members, got)
}
