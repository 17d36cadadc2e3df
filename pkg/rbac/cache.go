package rbac

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/tenantadmin/pkg/observability"
)

const roleCacheType = "role"

// RoleCache is a TTL'd LRU in front of a RoleFinder. Entries may be stale for
// up to the TTL after a role's permissions change on another instance; local
// writes call Invalidate.
type RoleCache struct {
	next    RoleFinder
	cache   *lru.LRU[int64, *Role]
	metrics *observability.Metrics
}

// NewRoleCache creates a role cache with at most size entries
func NewRoleCache(next RoleFinder, size int, ttl time.Duration, metrics *observability.Metrics) *RoleCache {
	if size < 1 {
		size = 1
	}
	return &RoleCache{
		next:    next,
		cache:   lru.NewLRU[int64, *Role](size, nil, ttl),
		metrics: metrics,
	}
}

// FindRoleByID serves from cache, falling through to the wrapped finder.
// Missing roles and errors are not cached.
func (c *RoleCache) FindRoleByID(ctx context.Context, id int64) (*Role, error) {
	if role, ok := c.cache.Get(id); ok {
		c.metrics.RecordCache(roleCacheType, true)
		return cloneRole(role), nil
	}
	c.metrics.RecordCache(roleCacheType, false)

	role, err := c.next.FindRoleByID(ctx, id)
	if err != nil || role == nil {
		return role, err
	}

	c.cache.Add(id, cloneRole(role))
	return role, nil
}

// Invalidate drops a single role
func (c *RoleCache) Invalidate(id int64) {
	c.cache.Remove(id)
}

// Purge drops every entry
func (c *RoleCache) Purge() {
	c.cache.Purge()
}

// Len returns the number of cached roles
func (c *RoleCache) Len() int {
	return c.cache.Len()
}

func cloneRole(r *Role) *Role {
	out := *r
	out.Permissions = append([]string(nil), r.Permissions...)
	return &out
}

// WithRoleCache routes the guard's role reads through c
func WithRoleCache(c *RoleCache) GuardOption {
	return func(g *Guard) {
		if c != nil {
			g.roles = c
		}
	}
}
