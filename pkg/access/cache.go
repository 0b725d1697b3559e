// Package access implements the per-workspace permission checks and the
// time-bounded cache in front of them.
package access

import (
	"strings"
	"sync"
	"time"

	"github.com/sandgraph/sandgraph/pkg/graph"
	"github.com/sandgraph/sandgraph/pkg/models"
)

// DefaultTTL is how long a positive permission result may be served from
// cache. A revoked permission can therefore remain falsely positive for up
// to this long; a granted one is visible immediately because negative
// results are never cached.
const DefaultTTL = 15 * time.Second

// PermissionCache is the explicit cache interface in front of permission
// checks. Invalidation is the caller's responsibility at every membership
// mutation site; passive expiry only bounds staleness.
type PermissionCache interface {
	GetAccess(kind AccessKind, workspaceID, userID string) (granted bool, ok bool)
	PutAccess(kind AccessKind, workspaceID, userID string)
	GetMembers(workspaceID, userID string) ([]models.WorkspaceUser, bool)
	PutMembers(workspaceID, userID string, members []models.WorkspaceUser)
	GetWorkspaceVertex(workspaceID, userID string) (graph.Vertex, bool)
	PutWorkspaceVertex(workspaceID, userID string, v graph.Vertex)
	InvalidateAll(workspaceID string)
}

// AccessKind names one of the three boolean permission buckets.
type AccessKind int

const (
	ReadAccess AccessKind = iota
	CommentAccess
	WriteAccess
)

func (k AccessKind) String() string {
	switch k {
	case ReadAccess:
		return "read"
	case CommentAccess:
		return "comment"
	case WriteAccess:
		return "write"
	default:
		return "unknown"
	}
}

// Cache is the default PermissionCache: five independent TTL buckets
// (read, comment, write, member list, workspace vertex), each keyed by
// (workspaceID, userID). Reads and writes never block each other; the cost
// is the bounded staleness documented on DefaultTTL.
type Cache struct {
	read    *ttlBucket
	comment *ttlBucket
	write   *ttlBucket
	members *ttlBucket
	vertex  *ttlBucket
}

// NewCache returns a Cache with the given TTL. A zero ttl uses DefaultTTL.
func NewCache(ttl time.Duration) *Cache {
	return NewCacheWithClock(ttl, time.Now)
}

// NewCacheWithClock is NewCache with an injectable clock for tests.
func NewCacheWithClock(ttl time.Duration, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		read:    &ttlBucket{ttl: ttl, now: now},
		comment: &ttlBucket{ttl: ttl, now: now},
		write:   &ttlBucket{ttl: ttl, now: now},
		members: &ttlBucket{ttl: ttl, now: now},
		vertex:  &ttlBucket{ttl: ttl, now: now},
	}
}

var _ PermissionCache = (*Cache)(nil)

func (c *Cache) accessBucket(kind AccessKind) *ttlBucket {
	switch kind {
	case CommentAccess:
		return c.comment
	case WriteAccess:
		return c.write
	default:
		return c.read
	}
}

func (c *Cache) GetAccess(kind AccessKind, workspaceID, userID string) (bool, bool) {
	v, ok := c.accessBucket(kind).get(cacheKey(workspaceID, userID))
	if !ok {
		return false, false
	}
	return v.(bool), true
}

func (c *Cache) PutAccess(kind AccessKind, workspaceID, userID string) {
	c.accessBucket(kind).put(cacheKey(workspaceID, userID), true)
}

func (c *Cache) GetMembers(workspaceID, userID string) ([]models.WorkspaceUser, bool) {
	v, ok := c.members.get(cacheKey(workspaceID, userID))
	if !ok {
		return nil, false
	}
	return v.([]models.WorkspaceUser), true
}

func (c *Cache) PutMembers(workspaceID, userID string, members []models.WorkspaceUser) {
	c.members.put(cacheKey(workspaceID, userID), members)
}

func (c *Cache) GetWorkspaceVertex(workspaceID, userID string) (graph.Vertex, bool) {
	v, ok := c.vertex.get(cacheKey(workspaceID, userID))
	if !ok {
		return nil, false
	}
	return v.(graph.Vertex), true
}

func (c *Cache) PutWorkspaceVertex(workspaceID, userID string, vertex graph.Vertex) {
	c.vertex.put(cacheKey(workspaceID, userID), vertex)
}

// InvalidateAll drops every cached result for the workspace across all
// five buckets. Must be called before a membership mutation returns
// success.
func (c *Cache) InvalidateAll(workspaceID string) {
	prefix := workspaceID + "|"
	for _, b := range []*ttlBucket{c.read, c.comment, c.write, c.members, c.vertex} {
		b.invalidatePrefix(prefix)
	}
}

func cacheKey(workspaceID, userID string) string {
	return workspaceID + "|" + userID
}

type ttlEntry struct {
	value   any
	expires time.Time
}

// ttlBucket is a lock-free-read TTL map over sync.Map: readers never block
// writers and vice versa. Expired entries are dropped lazily on read.
type ttlBucket struct {
	ttl     time.Duration
	now     func() time.Time
	entries sync.Map
}

func (b *ttlBucket) get(key string) (any, bool) {
	v, ok := b.entries.Load(key)
	if !ok {
		return nil, false
	}
	entry := v.(ttlEntry)
	if b.now().After(entry.expires) {
		b.entries.Delete(key)
		return nil, false
	}
	return entry.value, true
}

func (b *ttlBucket) put(key string, value any) {
	b.entries.Store(key, ttlEntry{value: value, expires: b.now().Add(b.ttl)})
}

func (b *ttlBucket) invalidatePrefix(prefix string) {
	b.entries.Range(func(k, _ any) bool {
		if strings.HasPrefix(k.(string), prefix) {
			b.entries.Delete(k)
		}
		return true
	})
}
