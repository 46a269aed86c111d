package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix            = "widget:"
	DefaultChangeChannel = "widget.changed"
)

// Compile-time check to ensure RedisStore implements Store
var _ Store = (*RedisStore)(nil)

type RedisStore struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

func NewRedisStore(client *redis.Client, channel string, logger *zap.Logger) *RedisStore {
	if channel == "" {
		channel = DefaultChangeChannel
	}
	return &RedisStore{
		client:  client,
		channel: channel,
		logger:  logger,
	}
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, bool) {
	val, err := r.client.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		r.logger.Warn("Redis read failed, treating as absent", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return val, true
}

func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	return r.SetMany(ctx, map[string]string{key: value})
}

// SetMany writes every field and publishes one change notification inside MULTI/EXEC
func (r *RedisStore) SetMany(ctx context.Context, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range fields {
			pipe.Set(ctx, keyPrefix+k, v, 0)
		}
		pipe.Publish(ctx, r.channel, "changed")
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Watch subscribes to the change channel until ctx is done.
func (r *RedisStore) Watch(ctx context.Context) (<-chan struct{}, error) {
	ps := r.client.Subscribe(ctx, r.channel)
	// Wait for the subscription confirmation so no write after Watch returns is missed
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", r.channel, err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer ps.Close()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				signal(out)
			}
		}
	}()
	return out, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
