package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// KV is the persistent key-value surface used for device-local state:
// nickname, device user-id and the question rotator's used set. Durability is
// best effort; a lost value only costs a regenerated id or a repeated
// question cycle.
type KV interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

type redisKV struct {
	client *redis.Client
}

// NewRedisKV creates a Redis-backed KV.
func NewRedisKV(client *redis.Client) KV {
	return &redisKV{client: client}
}

func (c *redisKV) key(k string) string {
	return fmt.Sprintf("troll:%s", k)
}

func (c *redisKV) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, c.key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *redisKV) Set(ctx context.Context, key, value string) error {
	return c.client.Set(ctx, c.key(key), value, 0).Err()
}

func (c *redisKV) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

type memoryKV struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryKV creates an in-process KV for tests and local runs.
func NewMemoryKV() KV {
	return &memoryKV{data: make(map[string]string)}
}

func (c *memoryKV) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	val, ok := c.data[key]
	return val, ok, nil
}

func (c *memoryKV) Set(ctx context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memoryKV) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}
