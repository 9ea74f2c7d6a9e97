// Package sessioncache keeps snapshots of in-progress quiz sessions in Redis so a
// learner can reconnect and resume where they left off.
package sessioncache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/algodrill/algodrill/internal/session"
)

// DefaultTTL is how long an untouched snapshot is kept.
const DefaultTTL = 24 * time.Hour

var ErrMiss = errors.New("session not cached")

// kv is the subset of Redis the cache needs.
type kv interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error) // ErrMiss when absent
	Del(ctx context.Context, key string) error
	Close() error
}

// Cache stores session snapshots. A nil *Cache is valid and caches nothing.
type Cache struct {
	kv  kv
	ttl time.Duration
}

// New connects to Redis and pings it. A ttl <= 0 uses DefaultTTL.
func New(addr, password string, db int, ttl time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{kv: redisKV{client}, ttl: ttl}, nil
}

// Key is the cache key for one user's session on one quiz.
func Key(userID, quizID string) string {
	return "session:" + userID + ":" + quizID
}

func (c *Cache) Save(ctx context.Context, key string, st session.State) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return c.kv.Set(ctx, key, data, c.ttl)
}

// Load returns the snapshot under key, or ErrMiss.
func (c *Cache) Load(ctx context.Context, key string) (session.State, error) {
	if c == nil {
		return session.State{}, ErrMiss
	}
	data, err := c.kv.Get(ctx, key)
	if err != nil {
		return session.State{}, err
	}
	var st session.State
	if err := json.Unmarshal(data, &st); err != nil {
		return session.State{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return st, nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	if c == nil {
		return nil
	}
	return c.kv.Del(ctx, key)
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.kv.Close()
}

type redisKV struct{ client *redis.Client }

func (r redisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r redisKV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return b, err
}

func (r redisKV) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r redisKV) Close() error { return r.client.Close() }
