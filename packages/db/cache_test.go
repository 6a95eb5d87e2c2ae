package db

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
)

func TestSeenCache(t *testing.T) {
	mr := miniredis.RunT(t)

	cache := NewSeenCache(mr.Addr(), "", 0, "test:seen", time.Hour)
	defer cache.Close()

	ctx := context.Background()

	assert.False(t, cache.Seen(ctx, "evt-1"))

	cache.Mark(ctx, "evt-1")
	assert.True(t, cache.Seen(ctx, "evt-1"))
	assert.False(t, cache.Seen(ctx, "evt-2"))

	ttl := mr.TTL("test:seen")
	assert.Equal(t, time.Hour, ttl)
}

func TestSeenCacheFailsOpenWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := NewSeenCache(mr.Addr(), "", 0, "test:seen", time.Hour)
	defer cache.Close()

	mr.Close()

	ctx := context.Background()
	assert.False(t, cache.Seen(ctx, "evt-1"), "an unreachable cache reports everything unseen")
	cache.Mark(ctx, "evt-1") // must not panic
}
