// Package redis connects the optional redis backend and exposes it as a storage.KV.
package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	redis "github.com/redis/go-redis/v9"

	"wellnessgo/internal/config"
)

const (
	defaultHost = "127.0.0.1"
	defaultPort = 6379

	// connectTimeout bounds the total time spent retrying the first ping.
	connectTimeout = 10 * time.Second
	pingTimeout    = 3 * time.Second
)

// Client owns the go-redis connection pool.
type Client struct {
	inner *redis.Client
}

// NewRedisClient dials the configured server. The first ping is retried with exponential
// backoff so the service tolerates redis coming up a little after it.
func NewRedisClient(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	opts := options(cfg.Redis)
	client := redis.NewClient(opts)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = connectTimeout
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()
		return client.Ping(ctx).Err()
	}, policy)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s after %d attempts: %w", opts.Addr, attempt, err)
	}
	return &Client{inner: client}, nil
}

func options(rc config.RedisConfig) *redis.Options {
	host := rc.Host
	if host == "" {
		host = defaultHost
	}
	port := rc.Port
	if port == 0 {
		port = defaultPort
	}
	return &redis.Options{
		Addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		Username: rc.Username,
		Password: rc.Password,
		DB:       rc.DB,
	}
}

func (c *Client) Close() error {
	if c == nil || c.inner == nil {
		return nil
	}
	return c.inner.Close()
}

// Raw exposes the underlying go-redis client.
func (c *Client) Raw() *redis.Client {
	if c == nil {
		return nil
	}
	return c.inner
}
