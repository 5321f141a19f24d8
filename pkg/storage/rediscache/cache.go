// Package rediscache implements the decision cache on Redis, for deployments
// running more than one instance. A per-user key set mirrors every cached
// decision so invalidation can drop a user's entries without scanning.
package rediscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/carevoice/accessd/pkg/rbac"
)

const (
	decisionPrefix = "accessd:decision:"
	userSetPrefix  = "accessd:decisionidx:"
)

// Cache is a rbac.DecisionCache backed by Redis. Redis errors are treated as
// cache misses; a degraded cache must never block a permission check.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logrus.Entry
}

// NewCache creates a decision cache over the given client. A non-positive ttl
// falls back to rbac.DefaultCacheTTL.
func NewCache(client *redis.Client, ttl time.Duration, log *logrus.Entry) *Cache {
	if ttl <= 0 {
		ttl = rbac.DefaultCacheTTL
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Cache{client: client, ttl: ttl, log: log}
}

func decisionKey(userID, permission, tenantID string) string {
	return decisionPrefix + userID + "|" + permission + "|" + tenantID
}

func userSetKey(userID string) string {
	return userSetPrefix + userID
}

// Get returns the memoized decision, treating entries past their ValidUntil
// as misses.
func (c *Cache) Get(userID, permission, tenantID string, now time.Time) (rbac.CachedDecision, bool) {
	ctx := context.Background()
	key := decisionKey(userID, permission, tenantID)

	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return rbac.CachedDecision{}, false
	}
	if err != nil {
		c.log.WithError(err).Warn("decision cache read failed")
		return rbac.CachedDecision{}, false
	}

	var d rbac.CachedDecision
	if err := json.Unmarshal(raw, &d); err != nil {
		c.client.Del(ctx, key)
		return rbac.CachedDecision{}, false
	}
	if !d.ValidUntil.IsZero() && now.After(d.ValidUntil) {
		c.client.Del(ctx, key)
		return rbac.CachedDecision{}, false
	}
	return d, true
}

// Set memoizes a decision and records its key in the user's index set.
func (c *Cache) Set(userID, permission, tenantID string, d rbac.CachedDecision) {
	ctx := context.Background()
	key := decisionKey(userID, permission, tenantID)

	raw, err := json.Marshal(d)
	if err != nil {
		return
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, key, raw, c.ttl)
	pipe.SAdd(ctx, userSetKey(userID), key)
	// The index set outlives its newest entry by one TTL, so stale members
	// are at worst harmless DEL targets.
	pipe.Expire(ctx, userSetKey(userID), 2*c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.WithError(err).Warn("decision cache write failed")
	}
}

// InvalidateUser drops every cached decision for the user.
func (c *Cache) InvalidateUser(userID string) {
	ctx := context.Background()
	setKey := userSetKey(userID)

	keys, err := c.client.SMembers(ctx, setKey).Result()
	if err != nil && err != redis.Nil {
		c.log.WithError(err).Warn("decision cache invalidation failed")
		return
	}
	keys = append(keys, setKey)
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.WithError(err).Warn("decision cache invalidation failed")
	}
}

// InvalidateUsers drops cached decisions for each user.
func (c *Cache) InvalidateUsers(userIDs []string) {
	for _, u := range userIDs {
		c.InvalidateUser(u)
	}
}
