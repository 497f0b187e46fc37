package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"watch-party-sync/pkg/config"
	"watch-party-sync/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// Nil is returned when a key or field does not exist
var Nil = redis.Nil

// Client wraps redis client with additional functionality
type Client struct {
	client *redis.Client
}

// NewClient creates a new Redis client from the relay configuration
func NewClient(cfg *config.Config) (*Client, error) {
	return NewClientWithOptions(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// NewClientWithOptions creates a Redis client from raw options, e.g. pointing at an embedded server
func NewClientWithOptions(opts *redis.Options) (*Client, error) {
	rdb := redis.NewClient(opts)

	// test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result := rdb.Ping(ctx)
	if result.Err() != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", result.Err())
	}

	logger.Infof("Connected to Redis at %s", opts.Addr)

	return &Client{
		client: rdb,
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

// Publish publishes a JSON encoded message to a Redis channel
func (c *Client) Publish(ctx context.Context, channel string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	result := c.client.Publish(ctx, channel, data)
	if result.Err() != nil {
		return fmt.Errorf("failed to publish message: %w", result.Err())
	}

	return nil
}

// PSubscribe subscribes to every channel matching the patterns
func (c *Client) PSubscribe(ctx context.Context, patterns ...string) *redis.PubSub {
	return c.client.PSubscribe(ctx, patterns...)
}

// Delete deletes keys
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	result := c.client.Del(ctx, keys...)
	if result.Err() != nil {
		return fmt.Errorf("failed to delete keys: %w", result.Err())
	}

	return nil
}

// HSet sets field-value pairs in a hash
func (c *Client) HSet(ctx context.Context, key string, values ...interface{}) error {
	result := c.client.HSet(ctx, key, values...)
	if result.Err() != nil {
		return fmt.Errorf("failed to set hash fields: %w", result.Err())
	}
	return nil
}

// HGet gets a field value from a hash. A missing field is reported as Nil.
func (c *Client) HGet(ctx context.Context, key, field string) (string, error) {
	result := c.client.HGet(ctx, key, field)
	if result.Err() != nil {
		if result.Err() == redis.Nil {
			return "", Nil
		}
		return "", fmt.Errorf("failed to get hash field: %w", result.Err())
	}
	return result.Val(), nil
}

// HGetAll gets all field-value pairs from a hash
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	result := c.client.HGetAll(ctx, key)
	if result.Err() != nil {
		return nil, fmt.Errorf("failed to get all hash fields: %w", result.Err())
	}
	return result.Val(), nil
}

// HDel deletes fields from a hash
func (c *Client) HDel(ctx context.Context, key string, fields ...string) error {
	result := c.client.HDel(ctx, key, fields...)
	if result.Err() != nil {
		return fmt.Errorf("failed to delete hash fields: %w", result.Err())
	}
	return nil
}

// HLen returns the number of fields in a hash
func (c *Client) HLen(ctx context.Context, key string) (int64, error) {
	result := c.client.HLen(ctx, key)
	if result.Err() != nil {
		return 0, fmt.Errorf("failed to count hash fields: %w", result.Err())
	}
	return result.Val(), nil
}

// Expire sets expiration for a key
func (c *Client) Expire(ctx context.Context, key string, expiration time.Duration) error {
	result := c.client.Expire(ctx, key, expiration)
	if result.Err() != nil {
		return fmt.Errorf("failed to set expiration: %w", result.Err())
	}
	return nil
}
