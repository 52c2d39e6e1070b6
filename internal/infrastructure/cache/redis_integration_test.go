package cache_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ilramdhan/doorcalc/internal/infrastructure/cache"
)

// setupTestRedis starts Redis and returns its address
func setupTestRedis(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	return fmt.Sprintf("%s:%s", host, port.Port())
}

func newRedis(t *testing.T, addr, prefix string) *cache.Redis {
	t.Helper()
	c, err := cache.NewRedis(context.Background(), cache.RedisOptions{Addr: addr, Prefix: prefix})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRedis_Container(t *testing.T) {
	addr := setupTestRedis(t)
	ctx := context.Background()

	t.Run("get and set", func(t *testing.T) {
		c := newRedis(t, addr, "test:getset:")

		_, ok, err := c.Get(ctx, "product_SKU-001")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, c.Set(ctx, "product_SKU-001", []byte(`{"base_price":4500}`), time.Minute))
		value, ok, err := c.Get(ctx, "product_SKU-001")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.JSONEq(t, `{"base_price":4500}`, string(value))
	})

	t.Run("entries expire", func(t *testing.T) {
		c := newRedis(t, addr, "test:ttl:")

		require.NoError(t, c.Set(ctx, "short", []byte("1"), 200*time.Millisecond))
		require.NoError(t, c.Set(ctx, "long", []byte("2"), time.Minute))
		time.Sleep(500 * time.Millisecond)

		_, okShort, err := c.Get(ctx, "short")
		require.NoError(t, err)
		_, okLong, err := c.Get(ctx, "long")
		require.NoError(t, err)
		assert.False(t, okShort)
		assert.True(t, okLong)
	})

	t.Run("clear drops only its own prefix", func(t *testing.T) {
		c := newRedis(t, addr, "test:clear:")
		other := newRedis(t, addr, "test:other:")

		// more keys than one SCAN/DEL batch
		for i := 0; i < 1200; i++ {
			require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), time.Minute))
		}
		require.NoError(t, other.Set(ctx, "k0", []byte("kept"), time.Minute))

		require.NoError(t, c.Clear(ctx))

		for _, key := range []string{"k0", "k499", "k500", "k1199"} {
			_, ok, err := c.Get(ctx, key)
			require.NoError(t, err)
			assert.False(t, ok, key)
		}
		value, ok, err := other.Get(ctx, "k0")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "kept", string(value))
	})

	t.Run("new selects the redis backend", func(t *testing.T) {
		c, err := cache.New(ctx, cache.Options{Backend: cache.BackendRedis, RedisAddr: addr, KeyPrefix: "test:new:"})
		require.NoError(t, err)
		require.IsType(t, &cache.Redis{}, c)
		require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
		_, ok, err := c.Get(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)
		require.NoError(t, c.(*cache.Redis).Close())
	})
}
