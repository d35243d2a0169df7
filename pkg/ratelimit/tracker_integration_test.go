//go:build integration

package ratelimit

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestTracker_Integration_SharedState(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	ctx := context.Background()

	// Two trackers over the same Redis behave like two harvesting processes.
	first := NewTracker(NewRedisStore(redisClient), logger)
	second := NewTracker(NewRedisStore(redisClient), logger)

	headers := http.Header{}
	headers.Set(HeaderLimit, "5000")
	headers.Set(HeaderRemaining, "75")
	headers.Set(HeaderReset, strconv.FormatInt(time.Now().Add(2*time.Minute).Unix(), 10))

	if err := first.UpdateFromHeaders(ctx, ResourceCore, headers); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	state, err := second.GetState(ctx, ResourceCore)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state == nil || state.Remaining != 75 {
		t.Fatalf("state seen by second tracker = %+v, want remaining 75", state)
	}

	expected := 2 * time.Minute
	tolerance := 5 * time.Second
	actual := state.TimeUntilReset(time.Now())
	if actual < expected-tolerance || actual > expected+tolerance {
		t.Errorf("TimeUntilReset = %v, want approximately %v", actual, expected)
	}
}

func TestTracker_Integration_WaitForReset(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	ctx := context.Background()

	limiter := NewTracker(NewRedisStore(redisClient), logger)
	resetAt := time.Now().Add(2 * time.Second)
	if err := limiter.MarkLimited(ctx, ResourceSearch, resetAt); err != nil {
		t.Fatalf("MarkLimited() error = %v", err)
	}

	var wg sync.WaitGroup
	durations := make([]time.Duration, 3)
	for i := range durations {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			waiter := NewTracker(NewRedisStore(redisClient), logger)
			start := time.Now()
			if err := waiter.Wait(ctx, ResourceSearch); err != nil {
				t.Errorf("Wait() error = %v", err)
			}
			durations[i] = time.Since(start)
		}(i)
	}
	wg.Wait()

	for i, d := range durations {
		if d < time.Second {
			t.Errorf("waiter %d returned after %v, want >= 1s", i, d)
		}
	}
}
