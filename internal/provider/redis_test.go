package provider

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

// Redis provider tests need a live server; set REDIS_TEST_ADDR to run them.
func redisTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisEnumeratesInOrder(t *testing.T) {
	client := redisTestClient(t)
	ctx := context.Background()
	key := fmt.Sprintf("query_layer:test:%d", os.Getpid())

	require.NoError(t, client.Del(ctx, key).Err())
	t.Cleanup(func() { client.Del(ctx, key) })

	for i := 0; i < 10; i++ {
		require.NoError(t, client.RPush(ctx, key, fmt.Sprintf(`{"n":%d}`, i)).Err())
	}

	p := NewRedis(client, key, 3, nil)

	cursor, err := p.Begin(ctx)
	require.NoError(t, err)

	var rows []any
	for {
		more, err := p.More(ctx, cursor)
		require.NoError(t, err)
		if !more {
			break
		}
		next, batch, err := p.Next(ctx, cursor)
		require.NoError(t, err)
		require.LessOrEqual(t, len(batch), 3)
		cursor = next
		rows = append(rows, batch...)
	}

	require.Len(t, rows, 10)
	for i, row := range rows {
		obj := row.(map[string]any)
		require.Equal(t, float64(i), obj["n"])
	}
}

func TestRedisCursorDecode(t *testing.T) {
	p := NewRedis(nil, "k", 0, nil)

	_, err := p.decodeCursor("not json")
	require.Error(t, err)

	c, err := p.decodeCursor(`{"index":12}`)
	require.NoError(t, err)
	require.Equal(t, int64(12), c.Index)
}
