package middleware

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRedis starts miniredis and a client pointed at it.
func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err, "failed to start miniredis")

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return client, mr
}

func TestRedisLimiterFixedWindow(t *testing.T) {
	client, mr := setupRedis(t)
	lim := NewRedisLimiter(client, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := lim.Allow(ctx, "email:a@example.com")
		require.NoError(t, err)
		assert.True(t, ok, "attempt %d", i)
	}

	ok, err := lim.Allow(ctx, "email:a@example.com")
	require.NoError(t, err)
	assert.False(t, ok)

	// separate key, separate window
	ok, err = lim.Allow(ctx, "email:b@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, time.Minute, mr.TTL(redisKeyPrefix+"email:a@example.com"))

	mr.FastForward(time.Minute + time.Second)
	ok, err = lim.Allow(ctx, "email:a@example.com")
	require.NoError(t, err)
	assert.True(t, ok, "window should reset after expiry")
}

func TestRedisLimiterUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	lim := NewRedisLimiter(client, 3, time.Minute)

	mr.Close()
	_, err = lim.Allow(context.Background(), "ip:127.0.0.1")
	assert.Error(t, err)
}

// failFirstScript fails the first script invocation before it reaches Redis.
type failFirstScript struct {
	failed atomic.Bool
}

func (h *failFirstScript) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *failFirstScript) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		name := cmd.Name()
		if (name == "evalsha" || name == "eval") && h.failed.CompareAndSwap(false, true) {
			err := errors.New("i/o timeout")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (h *failFirstScript) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestRedisLimiterWindowSurvivesFailedCall(t *testing.T) {
	client, mr := setupRedis(t)
	client.AddHook(&failFirstScript{})
	lim := NewRedisLimiter(client, 2, time.Minute)
	ctx := context.Background()
	key := "ip:10.0.0.1"

	_, err := lim.Allow(ctx, key)
	require.Error(t, err)

	for i := 0; i < 3; i++ {
		_, err := lim.Allow(ctx, key)
		require.NoError(t, err)
	}
	ok, err := lim.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Minute, mr.TTL(redisKeyPrefix+key))

	mr.FastForward(time.Minute + time.Second)
	ok, err = lim.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLimiterHealsKeyWithoutExpiry(t *testing.T) {
	client, mr := setupRedis(t)
	lim := NewRedisLimiter(client, 2, time.Minute)
	ctx := context.Background()
	key := "email:stuck@example.com"

	// a counter left behind without a TTL
	require.NoError(t, mr.Set(redisKeyPrefix+key, "50"))

	ok, err := lim.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Minute, mr.TTL(redisKeyPrefix+key))

	mr.FastForward(24 * time.Hour)
	ok, err = lim.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok, "a stale counter must not lock the key out")
}
