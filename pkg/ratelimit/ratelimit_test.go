package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryExactlyOneRejectionAfterLimit(t *testing.T) {
	limiter := NewMemory(Rules{"exam:write": {Limit: 5, Window: time.Minute}})
	fixed := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return fixed }

	denied := 0
	for i := 0; i < 6; i++ {
		decision, err := limiter.Allow(context.Background(), "exam:write", "user-1")
		require.NoError(t, err)
		if !decision.Allowed {
			denied++
			assert.Equal(t, time.Minute, decision.RetryAfter)
		}
	}
	assert.Equal(t, 1, denied)
}

func TestMemorySpreadCallsInsideOneWindow(t *testing.T) {
	limiter := NewMemory(Rules{"exam:write": {Limit: 5, Window: time.Minute}})
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	d, err := limiter.Allow(ctx, "exam:write", "user-1")
	require.NoError(t, err)
	require.True(t, d.Allowed)

	now = now.Add(30 * time.Second)
	denied := 0
	for i := 0; i < 5; i++ {
		d, err := limiter.Allow(ctx, "exam:write", "user-1")
		require.NoError(t, err)
		if !d.Allowed {
			denied++
			assert.Equal(t, 30*time.Second, d.RetryAfter)
		}
	}
	assert.Equal(t, 1, denied)
}

func TestMemoryDropsExpiredWindows(t *testing.T) {
	limiter := NewMemory(Rules{"task:write": {Limit: 1, Window: time.Second}})
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for _, user := range []string{"a", "b", "c"} {
		_, err := limiter.Allow(ctx, "task:write", user)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, limiter.Len())

	now = now.Add(2 * sweepEvery)
	_, err := limiter.Allow(ctx, "task:write", "d")
	require.NoError(t, err)
	assert.Equal(t, 1, limiter.Len())
}

func TestMemoryConcurrentCallersCannotBothPass(t *testing.T) {
	limiter := NewMemory(Rules{"task:write": {Limit: 10, Window: time.Hour}})
	var allowed int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := limiter.Allow(context.Background(), "task:write", "user-1")
			if err == nil && d.Allowed {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(10), allowed)
}

func TestMemoryKeysAndClassesAreIndependent(t *testing.T) {
	limiter := NewMemory(Rules{"task:write": {Limit: 1, Window: time.Hour}})
	ctx := context.Background()

	d, _ := limiter.Allow(ctx, "task:write", "a")
	assert.True(t, d.Allowed)
	d, _ = limiter.Allow(ctx, "task:write", "a")
	assert.False(t, d.Allowed)
	d, _ = limiter.Allow(ctx, "task:write", "b")
	assert.True(t, d.Allowed)

	for i := 0; i < 100; i++ {
		d, _ = limiter.Allow(ctx, "unlisted", "a")
		assert.True(t, d.Allowed)
	}
}

func TestMemoryRefillsAfterWindow(t *testing.T) {
	limiter := NewMemory(Rules{"task:comment": {Limit: 2, Window: time.Minute}})
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, _ := limiter.Allow(ctx, "task:comment", "u")
		require.True(t, d.Allowed)
	}
	d, _ := limiter.Allow(ctx, "task:comment", "u")
	require.False(t, d.Allowed)

	now = now.Add(time.Minute)
	d, _ = limiter.Allow(ctx, "task:comment", "u")
	assert.True(t, d.Allowed)
}

func TestRedisKeyFormat(t *testing.T) {
	r := NewRedis(nil, Rules{}, "")
	assert.Equal(t, "ratelimit:exam:write:user-1", r.Key("exam:write", "user-1"))

	d, err := r.Allow(context.Background(), "exam:write", "user-1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}
