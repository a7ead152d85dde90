// Package cache holds the key-value layers in front of Postgres: a two tier
// account cache and the Redis counters used by the widget endpoints.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"qualify/internal/model"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// AccountSource loads an account from the system of record
type AccountSource interface {
	GetAccountByAPIKey(ctx context.Context, apiKey string) (model.Account, error)
}

// AccountCache resolves API keys through an in-process LRU, then Redis
// (account:<key>), then the source. Redis is optional.
type AccountCache struct {
	local  *expirable.LRU[string, model.Account]
	rdb    redis.Cmdable
	source AccountSource
	ttl    time.Duration
	log    *zap.Logger
}

// NewAccountCache creates an account cache; rdb may be nil
func NewAccountCache(rdb redis.Cmdable, source AccountSource, size int, ttl time.Duration, log *zap.Logger) *AccountCache {
	return &AccountCache{
		local:  expirable.NewLRU[string, model.Account](size, nil, ttl),
		rdb:    rdb,
		source: source,
		ttl:    ttl,
		log:    log,
	}
}

func accountKey(apiKey string) string {
	return "account:" + apiKey
}

// Get returns the account owning apiKey. Source errors are returned as is.
func (c *AccountCache) Get(ctx context.Context, apiKey string) (model.Account, error) {
	if a, ok := c.local.Get(apiKey); ok {
		return a, nil
	}

	if c.rdb != nil {
		raw, err := c.rdb.Get(ctx, accountKey(apiKey)).Bytes()
		switch {
		case err == nil:
			var a model.Account
			if err := json.Unmarshal(raw, &a); err == nil {
				c.local.Add(apiKey, a)
				return a, nil
			}
			c.log.Warn("Discarding unreadable cached account", zap.String("key", accountKey(apiKey)))
		case !errors.Is(err, redis.Nil):
			c.log.Warn("Account cache unavailable", zap.Error(err))
		}
	}

	a, err := c.source.GetAccountByAPIKey(ctx, apiKey)
	if err != nil {
		return model.Account{}, err
	}
	c.local.Add(apiKey, a)

	if c.rdb != nil {
		if raw, err := json.Marshal(a); err == nil {
			if err := c.rdb.Set(ctx, accountKey(apiKey), raw, c.ttl).Err(); err != nil {
				c.log.Warn("Failed to cache account", zap.Error(err))
			}
		}
	}
	return a, nil
}

// Invalidate drops apiKey from both tiers
func (c *AccountCache) Invalidate(ctx context.Context, apiKey string) {
	c.local.Remove(apiKey)
	if c.rdb != nil {
		if err := c.rdb.Del(ctx, accountKey(apiKey)).Err(); err != nil {
			c.log.Warn("Failed to invalidate cached account", zap.Error(err))
		}
	}
}
