package rbac

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultCacheTTL is how long a decision stays memoized.
const DefaultCacheTTL = 5 * time.Minute

// CachedDecision is a memoized check outcome. ValidUntil caps the entry's
// life below the cache TTL when a contributing grant expires sooner, so a
// cached allow can never outlive the grant that produced it.
type CachedDecision struct {
	Allowed    bool
	Reason     ReasonCode
	ValidUntil time.Time
}

// DecisionCache memoizes (user, permission, tenant) decisions. Entries expire
// lazily on read; mutations invalidate by user.
type DecisionCache interface {
	Get(userID, permission, tenantID string, now time.Time) (CachedDecision, bool)
	Set(userID, permission, tenantID string, d CachedDecision)
	// InvalidateUser drops every entry for the user across tenants.
	InvalidateUser(userID string)
	// InvalidateUsers drops entries for each user, used after a role
	// definition change fans out through the role's grantees.
	InvalidateUsers(userIDs []string)
}

// LRUCache is the in-process DecisionCache backed by an expirable LRU, with a
// per-user key index for targeted invalidation.
//
// Lock order: the LRU's internal lock is always taken before idxMu (the evict
// callback runs under the former and takes the latter), so no method may call
// into the LRU while holding idxMu.
type LRUCache struct {
	entries *lru.LRU[string, CachedDecision]

	idxMu  sync.Mutex
	byUser map[string]map[string]struct{}
}

// NewLRUCache creates a decision cache with the given entry bound and TTL.
func NewLRUCache(maxEntries int, ttl time.Duration) *LRUCache {
	if maxEntries <= 0 {
		maxEntries = 8192
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &LRUCache{byUser: make(map[string]map[string]struct{})}
	c.entries = lru.NewLRU[string, CachedDecision](maxEntries, c.onEvict, ttl)
	return c
}

func (c *LRUCache) onEvict(key string, _ CachedDecision) {
	user := userOfKey(key)
	c.idxMu.Lock()
	defer c.idxMu.Unlock()
	if keys, ok := c.byUser[user]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(c.byUser, user)
		}
	}
}

func cacheKey(userID, permission, tenantID string) string {
	return userID + "\x00" + permission + "\x00" + tenantID
}

func userOfKey(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == '\x00' {
			return key[:i]
		}
	}
	return key
}

// Get returns the memoized decision, treating entries past their ValidUntil
// as misses.
func (c *LRUCache) Get(userID, permission, tenantID string, now time.Time) (CachedDecision, bool) {
	key := cacheKey(userID, permission, tenantID)
	d, ok := c.entries.Get(key)
	if !ok {
		return CachedDecision{}, false
	}
	if !d.ValidUntil.IsZero() && now.After(d.ValidUntil) {
		c.entries.Remove(key)
		return CachedDecision{}, false
	}
	return d, true
}

// Set memoizes a decision.
func (c *LRUCache) Set(userID, permission, tenantID string, d CachedDecision) {
	key := cacheKey(userID, permission, tenantID)
	c.entries.Add(key, d)
	c.idxMu.Lock()
	keys, ok := c.byUser[userID]
	if !ok {
		keys = make(map[string]struct{})
		c.byUser[userID] = keys
	}
	keys[key] = struct{}{}
	c.idxMu.Unlock()
}

// InvalidateUser drops every entry for the user.
func (c *LRUCache) InvalidateUser(userID string) {
	c.idxMu.Lock()
	keys := make([]string, 0, len(c.byUser[userID]))
	for key := range c.byUser[userID] {
		keys = append(keys, key)
	}
	delete(c.byUser, userID)
	c.idxMu.Unlock()

	for _, key := range keys {
		c.entries.Remove(key)
	}
}

// InvalidateUsers drops entries for each user.
func (c *LRUCache) InvalidateUsers(userIDs []string) {
	for _, u := range userIDs {
		c.InvalidateUser(u)
	}
}
