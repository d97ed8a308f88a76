package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"wellnessgo/internal/storage"
)

var errNotConnected = errors.New("redis client not initialized")

// KV adapts Client to storage.KV, namespacing every key with prefix.
type KV struct {
	client *Client
	prefix string
	ttl    time.Duration
}

// NewKV returns a KV over client. A zero ttl keeps keys until deleted.
func NewKV(client *Client, prefix string, ttl time.Duration) *KV {
	return &KV{client: client, prefix: prefix, ttl: ttl}
}

func (k *KV) Get(ctx context.Context, key string) ([]byte, error) {
	rdb := k.client.Raw()
	if rdb == nil {
		return nil, errNotConnected
	}
	v, err := rdb.Get(ctx, k.prefix+key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, storage.ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

func (k *KV) Set(ctx context.Context, key string, value []byte) error {
	rdb := k.client.Raw()
	if rdb == nil {
		return errNotConnected
	}
	if err := rdb.Set(ctx, k.prefix+key, value, k.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (k *KV) Delete(ctx context.Context, key string) error {
	rdb := k.client.Raw()
	if rdb == nil {
		return errNotConnected
	}
	if err := rdb.Del(ctx, k.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
