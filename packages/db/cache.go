package db

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// SeenCache is a best-effort redis set of event identities already imported,
// consulted before the storage existence check to skip the common case
// cheaply. It is never authoritative: a cache miss falls through to storage,
// and a redis failure only costs the shortcut.
type SeenCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewSeenCache(addr, password string, redisDB int, key string, ttl time.Duration) *SeenCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       redisDB,
	})
	return &SeenCache{client: client, key: key, ttl: ttl}
}

func (c *SeenCache) Close() error {
	return c.client.Close()
}

// Seen reports whether the identity was marked in a previous run. Errors are
// logged and read as "not seen".
func (c *SeenCache) Seen(ctx context.Context, identity string) bool {
	ok, err := c.client.SIsMember(ctx, c.key, identity).Result()
	if err != nil {
		slog.Debug("Seen-cache lookup failed", "error", err)
		return false
	}
	return ok
}

// Mark records an identity after a successful import.
func (c *SeenCache) Mark(ctx context.Context, identity string) {
	pipe := c.client.TxPipeline()
	pipe.SAdd(ctx, c.key, identity)
	pipe.Expire(ctx, c.key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Debug("Seen-cache mark failed", "error", err)
	}
}
