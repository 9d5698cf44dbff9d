package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a live server only: REDIS_TEST_ADDR=localhost:6379.
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return client
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	client := newTestRedis(t)
	s := NewRedisStore(client, time.Minute)

	job, err := s.Start(ctx, "reconciliation", 2)
	require.NoError(t, err)
	t.Cleanup(func() { client.Del(ctx, keyPrefix+job.ID) })

	ttl, err := client.TTL(ctx, keyPrefix+job.ID).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, s.Progress(ctx, job.ID, 1))
	require.NoError(t, s.Finish(ctx, job.ID, "ok", []string{"p1"}))

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobDone, got.State)
	assert.Equal(t, 2, got.Processed)
	assert.Equal(t, []any{"p1"}, got.Result)

	missing, err := s.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
