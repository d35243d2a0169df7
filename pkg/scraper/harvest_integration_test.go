//go:build integration

package scraper

import (
	"context"
	"fmt"
	"testing"

	"github.com/Sternrassler/gh-harvester/internal/testutil"
	"github.com/Sternrassler/gh-harvester/pkg/client"
	"github.com/Sternrassler/gh-harvester/pkg/export"
	"github.com/Sternrassler/gh-harvester/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedisContainer(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	t.Cleanup(func() {
		rdb.Close()
		container.Terminate(ctx)
	})
	return rdb
}

func TestIntegration_HarvestWithSharedState(t *testing.T) {
	rdb := setupRedisContainer(t)

	mock := testutil.NewMockGitHub()
	defer mock.Close()

	var fixtures []testutil.FixtureUser
	for i := 0; i < 12; i++ {
		fixtures = append(fixtures, testutil.FixtureUser{
			Login:     fmt.Sprintf("dev%02d", i),
			Location:  "Austin",
			Followers: 500 - i,
			Repos:     i * 20,
		})
	}
	mock.ServeUsers(fixtures)

	cfg := client.DefaultConfig("integration-token")
	cfg.BaseURL = mock.URL()
	cfg.Redis = rdb
	c, err := client.New(cfg)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	sink, err := export.NewSQLiteSink(ctx, ":memory:", "integration-run")
	require.NoError(t, err)
	defer sink.Close()

	scfg := DefaultConfig()
	scfg.Workers = 4
	result, err := New(c, scfg).Harvest(ctx, Query{RunID: "integration-run", Location: "Austin", MinFollowers: 100}, sink)
	require.NoError(t, err)

	assert.Len(t, result.Users, 12)
	assert.Len(t, result.Repositories, 20*66)

	stored, err := sink.Repositories(ctx, "integration-run")
	require.NoError(t, err)
	assert.Equal(t, result.Repositories, stored)

	state, err := ratelimit.NewRedisStore(rdb).Get(ctx, ratelimit.ResourceCore)
	require.NoError(t, err)
	require.NotNil(t, state, "core budget is shared through Redis")
	assert.Equal(t, 5000, state.Limit)
}
