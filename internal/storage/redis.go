package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis string keys. MSET and multi-key DEL
// are atomic, which gives SetMany and RemoveAll their guarantees. Update
// watches the slots it reads, so instances sharing one prefix do not
// overwrite each other's entries.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// maxUpdateAttempts bounds how often Update retries after a concurrent write.
const maxUpdateAttempts = 10

// ErrUpdateConflict is returned when Update keeps losing to concurrent writers.
var ErrUpdateConflict = errors.New("too many concurrent updates")

// NewRedis creates a new Redis-backed store.
func NewRedis(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultConfig().Redis.Prefix
	}

	slog.Info("redis store connected", "prefix", prefix)

	return NewRedisWithClient(client, prefix), nil
}

// NewRedisWithClient wraps an existing client. The store takes ownership and
// closes the client on Close.
func NewRedisWithClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, slot string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.key(slot)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get %s from redis: %w", slot, err)
	}
	return data, true, nil
}

func (s *RedisStore) Set(ctx context.Context, slot string, data []byte) error {
	if err := s.client.Set(ctx, s.key(slot), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s in redis: %w", slot, err)
	}
	return nil
}

func (s *RedisStore) SetMany(ctx context.Context, values map[string][]byte) error {
	if len(values) == 0 {
		return nil
	}
	pairs := make([]interface{}, 0, len(values)*2)
	for slot, data := range values {
		pairs = append(pairs, s.key(slot), data)
	}
	if err := s.client.MSet(ctx, pairs...).Err(); err != nil {
		return fmt.Errorf("failed to set slots in redis: %w", err)
	}
	return nil
}

// Update runs fn in a WATCH/MULTI transaction on the slot keys and retries
// when another client changed one of them before EXEC.
func (s *RedisStore) Update(ctx context.Context, slots []string, fn func(map[string][]byte) (map[string][]byte, error)) error {
	keys := make([]string, len(slots))
	for i, slot := range slots {
		keys[i] = s.key(slot)
	}

	txf := func(tx *redis.Tx) error {
		vals, err := tx.MGet(ctx, keys...).Result()
		if err != nil {
			return fmt.Errorf("failed to read slots from redis: %w", err)
		}
		current := make(map[string][]byte, len(slots))
		for i, v := range vals {
			if str, ok := v.(string); ok {
				current[slots[i]] = []byte(str)
			}
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		if len(next) == 0 {
			return nil
		}

		pairs := make([]interface{}, 0, len(next)*2)
		for slot, data := range next {
			pairs = append(pairs, s.key(slot), data)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.MSet(ctx, pairs...)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, keys...)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("failed to update slots in redis: %w", err)
		}
		slog.Debug("redis update conflict, retrying", "attempt", attempt+1)
	}
	return fmt.Errorf("failed to update slots in redis: %w", ErrUpdateConflict)
}

func (s *RedisStore) Remove(ctx context.Context, slot string) error {
	return s.RemoveAll(ctx, slot)
}

func (s *RedisStore) RemoveAll(ctx context.Context, slots ...string) error {
	if len(slots) == 0 {
		return nil
	}
	keys := make([]string, len(slots))
	for i, slot := range slots {
		keys[i] = s.key(slot)
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete slots from redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Type() string {
	return TypeRedis
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *RedisStore) key(slot string) string {
	return s.prefix + slot
}
