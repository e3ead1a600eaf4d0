// Package rostercache holds the directory state kept in Redis: the cached
// member roster and revoked sessions.
package rostercache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmerrifield20/roster/internal/profiles"
	"github.com/redis/go-redis/v9"
)

const (
	rosterKey  = "roster:members:v1"
	DefaultTTL = 5 * time.Minute
)

// Cache implements profiles.RosterCache on a Redis client.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New creates a Cache. ttl <= 0 selects DefaultTTL.
func New(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

// Dial parses a redis:// URL and returns a connected client.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func (c *Cache) Get(ctx context.Context) ([]profiles.Summary, bool, error) {
	raw, err := c.rdb.Get(ctx, rosterKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read roster cache: %w", err)
	}
	var roster []profiles.Summary
	if err := json.Unmarshal(raw, &roster); err != nil {
		// A corrupt entry is a miss; the next Set overwrites it.
		return nil, false, nil
	}
	return roster, true, nil
}

func (c *Cache) Set(ctx context.Context, roster []profiles.Summary) error {
	raw, err := json.Marshal(roster)
	if err != nil {
		return fmt.Errorf("encode roster: %w", err)
	}
	if err := c.rdb.Set(ctx, rosterKey, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("write roster cache: %w", err)
	}
	return nil
}

func (c *Cache) Invalidate(ctx context.Context) error {
	if err := c.rdb.Del(ctx, rosterKey).Err(); err != nil {
		return fmt.Errorf("invalidate roster cache: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
