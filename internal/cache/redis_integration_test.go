//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func setupRedisContainer(t *testing.T, capacity int) *RedisClient {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := NewRedisClientFromURL(url, "test:", capacity)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisClient_Integration(t *testing.T) {
	ctx := context.Background()
	c := setupRedisContainer(t, 0)

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "query:a", []byte(`{"ok":true}`), time.Minute))
	require.NoError(t, c.Set(ctx, "query:b", []byte(`{}`), time.Minute))
	v, err := c.Get(ctx, "query:a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(v))

	n, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, c.DeleteByPrefix(ctx, "query:"))
	n, err = c.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisClient_PublishSubscribe(t *testing.T) {
	ctx := context.Background()
	c := setupRedisContainer(t, 0)

	ch, unsubscribe, err := c.Subscribe(ctx, "audit")
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, c.Publish(ctx, "audit", map[string]string{"query": "parks"}))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"query":"parks"}`, string(msg))
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}

func TestRedisClient_EvictsOldestBeyondCapacity(t *testing.T) {
	ctx := context.Background()
	c := setupRedisContainer(t, 3)

	for _, k := range []string{"q1", "q2", "q3"} {
		require.NoError(t, c.Set(ctx, k, []byte(k), time.Minute))
	}
	// reads do not refresh position; overwrites do
	_, err := c.Get(ctx, "q1")
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, "q2", []byte("q2 again"), time.Minute))
	require.NoError(t, c.Set(ctx, "q4", []byte("q4"), time.Minute))

	_, err = c.Get(ctx, "q1")
	assert.ErrorIs(t, err, ErrCacheMiss)
	for _, k := range []string{"q2", "q3", "q4"} {
		_, err := c.Get(ctx, k)
		assert.NoError(t, err, k)
	}

	n, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, c.Delete(ctx, "q3"))
	require.NoError(t, c.Set(ctx, "q5", []byte("q5"), time.Minute))
	_, err = c.Get(ctx, "q2")
	assert.NoError(t, err, "deleted keys free their slot")
}
