package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisRejectsBadURL(t *testing.T) {
	_, err := NewRedis("not-a-redis-url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid redis url")
}

func TestUnreachableRedisReturnsErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	r := NewRedisClient(client, "test:")
	defer func() { _ = r.Close() }()

	ctx := context.Background()
	_, found, err := r.Get(ctx, "copy:acme")
	assert.Error(t, err)
	assert.False(t, found)
	assert.Error(t, r.Set(ctx, "copy:acme", []byte("{}"), time.Second))
	assert.NoError(t, r.Delete(ctx), "no keys is a no-op")
}

func TestKeyPrefix(t *testing.T) {
	r := NewRedisClient(nil, "haven:")
	assert.Equal(t, "haven:flag:pilot_mode", r.key("flag:pilot_mode"))
}

func TestRedisRoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" || testing.Short() {
		t.Skip("REDIS_URL not set")
	}
	r, err := NewRedis(url)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	ctx := context.Background()
	key := "test:" + time.Now().Format(time.RFC3339Nano)

	_, found, err := r.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, r.Set(ctx, key, []byte("hello"), time.Minute))
	b, found, err := r.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "hello", string(b))

	require.NoError(t, r.Delete(ctx, key))
	_, found, _ = r.Get(ctx, key)
	assert.False(t, found)
}
