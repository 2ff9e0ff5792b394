// Package queue wraps Redis as a cache and wake-up hint for the
// reconciler, never as authoritative state: the database remains the
// single source of truth. API handlers use it to nudge a sleeping
// reconciler tick early. The scheduler's queue check reads the store
// directly and does not consult the queue-free cache helpers below.
// Keys use a key-prefix + JSON-marshal convention throughout.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"nebulous/internal/config"
)

const (
	queueFreeKeyPrefix = "nebulous:queue_free:"
	queueFreeTTL       = 30 * time.Second
	wakeChannel        = "nebulous:reconciler:wake"
)

type Client struct {
	rdb *redis.Client
}

func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("queue: connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

func (c *Client) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

// CacheQueueFree caches the result of a recent IsQueueFree check for
// queueName for queueFreeTTL.
func (c *Client) CacheQueueFree(ctx context.Context, queueName string, free bool) {
	if c == nil || c.rdb == nil {
		return
	}
	data, err := json.Marshal(free)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, queueFreeKeyPrefix+queueName, data, queueFreeTTL)
}

// GetCachedQueueFree returns the cached IsQueueFree result, if any is
// still fresh. A cache miss (ok=false) means the caller must ask the
// store directly; this cache is an optimization, never authoritative.
func (c *Client) GetCachedQueueFree(ctx context.Context, queueName string) (free bool, ok bool) {
	if c == nil || c.rdb == nil {
		return false, false
	}
	data, err := c.rdb.Get(ctx, queueFreeKeyPrefix+queueName).Bytes()
	if err != nil {
		return false, false
	}
	if err := json.Unmarshal(data, &free); err != nil {
		return false, false
	}
	return free, true
}

// InvalidateQueueFree drops the cached result for queueName.
func (c *Client) InvalidateQueueFree(ctx context.Context, queueName string) {
	if c == nil || c.rdb == nil {
		return
	}
	c.rdb.Del(ctx, queueFreeKeyPrefix+queueName)
}

// WakeReconciler publishes a hint that the reconciler should run a tick
// sooner than its next scheduled interval, e.g. right after a container
// is declared. It is advisory only: a reconciler with no subscriber
// running just picks the record up on its next regular tick.
func (c *Client) WakeReconciler(ctx context.Context) {
	if c == nil || c.rdb == nil {
		return
	}
	c.rdb.Publish(ctx, wakeChannel, "tick")
}

// SubscribeWake returns a channel of wake hints for the reconciler to
// select on alongside its ticker.
func (c *Client) SubscribeWake(ctx context.Context) <-chan *redis.Message {
	if c == nil || c.rdb == nil {
		ch := make(chan *redis.Message)
		close(ch)
		return ch
	}
	return c.rdb.Subscribe(ctx, wakeChannel).Channel()
}
