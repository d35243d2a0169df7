package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps the last observed State per resource bucket.
// Get returns (nil, nil) when nothing has been observed for the resource.
type Store interface {
	Get(ctx context.Context, resource string) (*State, error)
	Set(ctx context.Context, state *State) error
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]State
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

// Get returns a copy of the stored state.
func (m *MemoryStore) Get(_ context.Context, resource string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.states[resource]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

// Set replaces the state of state.Resource.
func (m *MemoryStore) Set(_ context.Context, state *State) error {
	if state == nil {
		return errors.New("state cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.Resource] = *state
	return nil
}

// RedisStore shares rate limit state between processes harvesting with the same token.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{redis: redisClient}
}

// Key returns the Redis hash key holding the state of resource.
func Key(resource string) string {
	return RedisKeyPrefix + resource
}

// Get reads the state hash of resource.
func (r *RedisStore) Get(ctx context.Context, resource string) (*State, error) {
	fields, err := r.redis.HGetAll(ctx, Key(resource)).Result()
	if err != nil {
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	state := &State{Resource: resource}
	if state.Limit, err = strconv.Atoi(fields["limit"]); err != nil {
		return nil, fmt.Errorf("parse limit: %w", err)
	}
	if state.Remaining, err = strconv.Atoi(fields["remaining"]); err != nil {
		return nil, fmt.Errorf("parse remaining: %w", err)
	}
	reset, err := strconv.ParseInt(fields["reset"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse reset: %w", err)
	}
	state.ResetAt = time.Unix(reset, 0)

	lastUpdate, err := strconv.ParseInt(fields["last_update"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse last update: %w", err)
	}
	state.LastUpdate = time.UnixMilli(lastUpdate)

	return state, nil
}

// Set stores the state hash and lets it expire shortly after the window resets.
func (r *RedisStore) Set(ctx context.Context, state *State) error {
	if state == nil {
		return errors.New("state cannot be nil")
	}
	key := Key(state.Resource)

	pipe := r.redis.TxPipeline()
	pipe.HSet(ctx, key,
		"limit", state.Limit,
		"remaining", state.Remaining,
		"reset", state.ResetAt.Unix(),
		"last_update", state.LastUpdate.UnixMilli(),
	)
	pipe.ExpireAt(ctx, key, state.ResetAt.Add(time.Minute))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}
	return nil
}
