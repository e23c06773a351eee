package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// pingTimeout bounds connection checks at startup and on /healthz.
const pingTimeout = 3 * time.Second

// Client holds the live side of active games: cached state, the passed set of
// the current activity, and deadline timers.
type Client struct {
	rdb *redis.Client
}

// NewClient connects to the Redis named by redisURL and checks it answers.
func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.DialTimeout = pingTimeout
	c := &Client{rdb: redis.NewClient(opts)}
	if err := c.Health(context.Background()); err != nil {
		c.rdb.Close()
		return nil, err
	}
	return c, nil
}

// NewClientFromPool wraps an existing redis.Client for use in tests.
func NewClientFromPool(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Health pings the server with a short deadline.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying returns the raw redis client for keyspace notifications.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}

// EnableExpiryEvents turns on keyevent notifications for expired keys.
// Managed Redis often forbids CONFIG SET; callers treat failure as a warning.
func (c *Client) EnableExpiryEvents(ctx context.Context) error {
	return c.rdb.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err()
}

// ExpiredChannelFor is the keyevent channel that reports expired keys in db.
func ExpiredChannelFor(db int) string {
	return fmt.Sprintf("__keyevent@%d__:expired", db)
}
