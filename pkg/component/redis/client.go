// Package redis opens the redis connection backing the embedding cache.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	options "github.com/kart-io/okr-assistant/pkg/options/redis"
)

// ErrDisabled is returned by New when redis.enabled is false.
var ErrDisabled = errors.New("redis is disabled")

// defaultPingTimeout bounds the startup ping when no dial timeout is set.
const defaultPingTimeout = 5 * time.Second

// New opens a client for opts and pings it once. The client is closed again
// when the ping fails, so callers only own a client that answered.
func New(ctx context.Context, opts *options.Options) (*goredis.Client, error) {
	if opts == nil || !opts.Enabled {
		return nil, ErrDisabled
	}

	client := goredis.NewClient(clientOptions(opts))

	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s did not answer ping: %w", opts, err)
	}
	return client, nil
}

func clientOptions(opts *options.Options) *goredis.Options {
	return &goredis.Options{
		Addr:         opts.Addr(),
		Password:     opts.Password,
		DB:           opts.Database,
		MaxRetries:   opts.MaxRetries,
		PoolSize:     opts.PoolSize,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
}
