// Package cache wraps Redis for shared counters and short-lived lookups.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client holds the Redis client
type Client struct {
	Redis  *redis.Client
	prefix string
}

// NewClient connects to redisURL and verifies the connection.
func NewClient(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed connecting to redis: %w", err)
	}

	return New(client), nil
}

// New wraps an existing Redis client.
func New(rdb *redis.Client) *Client {
	return &Client{Redis: rdb, prefix: "leaddesk:"}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.Redis.Close()
}

// Ping checks if Redis is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.Redis.Ping(ctx).Err()
}

func (c *Client) key(k string) string {
	return c.prefix + k
}

// Incr atomically increments a counter and returns the new value.
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	return c.Redis.Incr(ctx, c.key(key)).Result()
}

// GetJSON decodes the value at key into dst. It reports false when the key is missing.
func (c *Client) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.Redis.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores v at key as JSON with an expiration.
func (c *Client) SetJSON(ctx context.Context, key string, v any, expiration time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.Redis.Set(ctx, c.key(key), raw, expiration).Err()
}

// Delete deletes keys
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	return c.Redis.Del(ctx, full...).Err()
}

// CursorStore keeps round-robin cursors in Redis so every API instance shares one rotation.
type CursorStore struct {
	client *Client
}

// NewCursorStore creates a Redis backed cursor store.
func NewCursorStore(client *Client) *CursorStore {
	return &CursorStore{client: client}
}

// AdvanceCursor increments the rule's cursor.
func (s *CursorStore) AdvanceCursor(ctx context.Context, ruleID string) (int64, error) {
	n, err := s.client.Incr(ctx, "rr:"+ruleID)
	if err != nil {
		return 0, fmt.Errorf("advance cursor for rule %s: %w", ruleID, err)
	}
	return n, nil
}
