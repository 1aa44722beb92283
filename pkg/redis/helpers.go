package redis

import (
	"context"
	"encoding/json"
	"time"
)

// SetJSON sets a key with JSON-encoded value
func (c *Client) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, expiration)
}

// GetJSON gets a key and decodes JSON value
func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

// TxGetJSON reads a JSON value through a watched transaction.
// found is false when the key does not exist.
func TxGetJSON(ctx context.Context, tx *Tx, key string, dest interface{}) (found bool, err error) {
	data, err := tx.Get(ctx, key).Result()
	if err == Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal([]byte(data), dest)
}

// PipeSetJSON queues a JSON-encoded SET on a transaction pipeline
func PipeSetJSON(ctx context.Context, pipe Pipeliner, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	pipe.Set(ctx, key, data, expiration)
	return nil
}

// SetNX sets a key only if it does not exist
func (c *Client) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, value, expiration).Result()
}

// IncrWindow increments a fixed-window counter, starting the window on the first hit.
// Returns the count after increment and the remaining window.
func (c *Client) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := c.Incr(ctx, key)
	if err != nil {
		return 0, 0, err
	}
	if count == 1 {
		if err := c.Expire(ctx, key, window); err != nil {
			return 0, 0, err
		}
		return count, window, nil
	}

	ttl, err := c.TTL(ctx, key)
	if err != nil {
		return 0, 0, err
	}
	// Counter lost its expiry (e.g. crash between INCR and EXPIRE)
	if ttl < 0 {
		if err := c.Expire(ctx, key, window); err != nil {
			return 0, 0, err
		}
		ttl = window
	}
	return count, ttl, nil
}

// LockKey acquires a distributed lock
func (c *Client) LockKey(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	return c.SetNX(ctx, key, "locked", expiration)
}

// UnlockKey releases a distributed lock
func (c *Client) UnlockKey(ctx context.Context, key string) error {
	return c.Del(ctx, key)
}
