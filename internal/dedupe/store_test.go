package dedupe

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestMemoryStore_RejectsRepeatWithinTTL(t *testing.T) {
	store := NewMemoryStore(10, time.Minute)
	ctx := context.Background()

	ok, err := store.Claim(ctx, "fp-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Claim(ctx, "fp-1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.Claim(ctx, "fp-2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_AcceptsAfterTTL(t *testing.T) {
	store := NewMemoryStore(10, 30*time.Millisecond)
	ctx := context.Background()

	ok, _ := store.Claim(ctx, "fp")
	require.True(t, ok)

	time.Sleep(80 * time.Millisecond)

	ok, err := store.Claim(ctx, "fp")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_BoundedCapacity(t *testing.T) {
	store := NewMemoryStore(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := store.Claim(ctx, fmt.Sprintf("fp-%d", i))
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, 3, store.Len())

	// The oldest entries were evicted and are accepted again.
	ok, _ := store.Claim(ctx, "fp-0")
	assert.True(t, ok)
	ok, _ = store.Claim(ctx, "fp-4")
	assert.False(t, ok)
}

func TestMemoryStore_Defaults(t *testing.T) {
	store := NewMemoryStore(0, 0)
	ok, err := store.Claim(context.Background(), "fp")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_ConcurrentClaimsAdmitOne(t *testing.T) {
	store := NewMemoryStore(100, time.Minute)
	var admitted int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := store.Claim(context.Background(), "same"); ok {
				atomic.AddInt32(&admitted, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), admitted)
}

func TestRedisStore_ClaimAndExpire(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewRedisStore(client, 2*time.Minute)
	ctx := context.Background()

	ok, err := store.Claim(ctx, "fp")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists(defaultKeyPrefix+"fp"))

	ok, err = store.Claim(ctx, "fp")
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(2*time.Minute + time.Second)

	ok, err = store.Claim(ctx, "fp")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStore_Error(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewRedisStore(client, time.Minute)
	mr.Close()

	_, err := store.Claim(context.Background(), "fp")
	assert.Error(t, err)
}
