package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a test Redis client, skipping when Redis is not reachable.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func testStoreRoundTrip(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	got, err := store.Get(ctx, ResourceCore)
	if err != nil {
		t.Fatalf("Get() on empty store error = %v", err)
	}
	if got != nil {
		t.Fatalf("Get() on empty store = %+v, want nil", got)
	}

	want := &State{
		Resource:   ResourceCore,
		Limit:      5000,
		Remaining:  12,
		ResetAt:    time.Now().Add(10 * time.Minute).Truncate(time.Second),
		LastUpdate: time.Now().Truncate(time.Millisecond),
	}
	if err := store.Set(ctx, want); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err = store.Get(ctx, ResourceCore)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil {
		t.Fatal("Get() returned nil after Set()")
	}
	if got.Limit != want.Limit || got.Remaining != want.Remaining {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
	if !got.ResetAt.Equal(want.ResetAt) {
		t.Errorf("ResetAt = %v, want %v", got.ResetAt, want.ResetAt)
	}
	if !got.LastUpdate.Equal(want.LastUpdate) {
		t.Errorf("LastUpdate = %v, want %v", got.LastUpdate, want.LastUpdate)
	}

	other, err := store.Get(ctx, ResourceSearch)
	if err != nil {
		t.Fatalf("Get(search) error = %v", err)
	}
	if other != nil {
		t.Errorf("Get(search) = %+v, want nil", other)
	}
}

func TestMemoryStore(t *testing.T) {
	testStoreRoundTrip(t, NewMemoryStore())
}

func TestMemoryStore_SetNil(t *testing.T) {
	if err := NewMemoryStore().Set(context.Background(), nil); err == nil {
		t.Error("Set(nil) should fail")
	}
}

func TestRedisStore(t *testing.T) {
	testStoreRoundTrip(t, NewRedisStore(setupTestRedis(t)))
}

func TestRedisStore_Expires(t *testing.T) {
	client := setupTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	state := &State{
		Resource:   ResourceSearch,
		Remaining:  0,
		ResetAt:    time.Now().Add(30 * time.Second),
		LastUpdate: time.Now(),
	}
	if err := store.Set(ctx, state); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	ttl, err := client.TTL(ctx, Key(ResourceSearch)).Result()
	if err != nil {
		t.Fatalf("TTL() error = %v", err)
	}
	if ttl <= 0 || ttl > 2*time.Minute {
		t.Errorf("TTL = %v, want within (0, 2m]", ttl)
	}
}

func TestNewRedisStore_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewRedisStore should panic with nil redis client")
		}
	}()
	NewRedisStore(nil)
}
