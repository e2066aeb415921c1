// Package redis keeps the key-value blobs in a Redis database, under a
// key prefix so several installations can share one instance.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/julianstephens/lockstep/internal/constants"
	"github.com/julianstephens/lockstep/internal/kv"
)

const pingTimeout = 5 * time.Second

type Store struct {
	url    string
	prefix string
	client *redis.Client
}

// New returns a store for a redis:// or rediss:// URL. Keys are namespaced
// under "<appname>:".
func New(url string) *Store {
	return &Store{url: url, prefix: constants.AppName + ":"}
}

// NewWithClient wraps an existing client; prefix may be empty.
func NewWithClient(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// IsURL reports whether s is a Redis connection URL.
func IsURL(s string) bool {
	return strings.HasPrefix(s, "redis://") || strings.HasPrefix(s, "rediss://")
}

func (s *Store) connect() error {
	opts, err := redis.ParseURL(s.url)
	if err != nil {
		return fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	s.client = client
	return nil
}

// Init and Load are equivalent: Redis needs no schema.
func (s *Store) Init() error {
	return s.Load()
}

func (s *Store) Load() error {
	if s.client != nil {
		return nil
	}
	return s.connect()
}

func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if s.client == nil {
		return "", false, kv.ErrNotLoaded
	}

	value, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if s.client == nil {
		return kv.ErrNotLoaded
	}
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if s.client == nil {
		return kv.ErrNotLoaded
	}
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to remove key %s: %w", key, err)
	}
	return nil
}

func (s *Store) Location() string {
	return "redis"
}
