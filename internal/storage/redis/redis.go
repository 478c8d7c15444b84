// Package redis is a storage.Store backed by Redis. Every write refreshes the
// key's TTL, so idle sessions expire on their own.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sonic7adarsh/bharatapp/internal/storage"
)

const keyPrefix = "storefront:"

// Store implements storage.Store using Redis strings.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

var _ storage.Store = (*Store)(nil)

// New creates a Redis-backed store. A zero ttl stores keys without expiry.
func New(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func redisKey(session, key string) string {
	return keyPrefix + session + ":" + key
}

// Get reads the value stored under key.
func (s *Store) Get(ctx context.Context, session, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, redisKey(session, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound(session, key)
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

// Set writes value with the configured TTL.
func (s *Store) Set(ctx context.Context, session, key string, value []byte) error {
	if err := s.client.Set(ctx, redisKey(session, key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, session, key string) error {
	if err := s.client.Del(ctx, redisKey(session, key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
