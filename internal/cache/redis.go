package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to Redis and verifies the connection with a ping.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis failed: %w", err)
	}
	return client, nil
}

// RedisBackend stores one session's entries in a single hash, field per key.
// The hash expires ttl after the last write so abandoned sessions clean up.
type RedisBackend struct {
	client *redis.Client
	hash   string
	ttl    time.Duration
}

func NewRedisBackend(client *redis.Client, sessionID string, ttl time.Duration) *RedisBackend {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisBackend{client: client, hash: sessionHashKey(sessionID), ttl: ttl}
}

// RedisFactory returns a BackendFactory that shares client across sessions.
func RedisFactory(client *redis.Client, ttl time.Duration) BackendFactory {
	return func(sessionID string) Backend { return NewRedisBackend(client, sessionID, ttl) }
}

func sessionHashKey(sessionID string) string {
	return fmt.Sprintf("advisor:session:%s:retrieval", sessionID)
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]Entry, bool, error) {
	raw, err := r.client.HGet(ctx, r.hash, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis hget failed: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached entries failed: %w", err)
	}
	return entries, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, entries []Entry) error {
	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal cache entries failed: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.hash, key, payload)
	pipe.Expire(ctx, r.hash, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis hset failed: %w", err)
	}
	return nil
}

func (r *RedisBackend) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.hash).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}
