package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 MemoryStore 测试
// =============================================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryStore_SetGetExpire(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(5*time.Minute, clock.Now)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	clock.Advance(299 * time.Second)
	_, err = s.Get(ctx, "k")
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = s.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))
	assert.Zero(t, s.Len(), "expired entry is evicted on read")
}

func TestMemoryStore_ExpireExtends(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	s := NewMemoryStore(time.Minute, clock.Now)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "v", 10*time.Second))
	clock.Advance(9 * time.Second)
	require.NoError(t, s.Expire(ctx, "k", 10*time.Second))
	clock.Advance(9 * time.Second)

	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	require.NoError(t, s.Expire(ctx, "missing", time.Second))
}

func TestMemoryStore_DeleteAndClose(t *testing.T) {
	s := NewMemoryStore(0, nil)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", "1", 0))
	require.NoError(t, s.Set(ctx, "b", "2", 0))
	require.NoError(t, s.Delete(ctx, "a", "b", "c"))
	_, err := s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Ping(ctx), ErrClosed)
	assert.ErrorIs(t, s.Set(ctx, "a", "1", 0), ErrClosed)
}

func TestMemoryStore_EvictsLeastRecentlyUsed(t *testing.T) {
	s := NewMemoryStore(0, nil, WithCapacity(3))
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, s.Set(ctx, k, k, 0))
	}
	_, err := s.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "d", "d", 0))
	assert.Equal(t, 3, s.Len())
	_, err = s.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss, "b is least recently used")
	for _, k := range []string{"a", "c", "d"} {
		_, err := s.Get(ctx, k)
		assert.NoError(t, err, k)
	}

	for i := range 50 {
		require.NoError(t, s.Set(ctx, fmt.Sprintf("k%d", i), "v", 0))
	}
	assert.Equal(t, 3, s.Len())
}

func TestMemoryStore_SetSweepsExpired(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	s := NewMemoryStore(time.Minute, clock.Now, WithCapacity(20000))
	ctx := context.Background()

	for i := range 10000 {
		require.NoError(t, s.Set(ctx, fmt.Sprintf("analysis:%d", i), "{}", 0))
	}
	assert.Equal(t, 10000, s.Len())

	clock.Advance(time.Hour)
	require.NoError(t, s.Set(ctx, "fresh", "{}", 0))
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_DefaultCapacity(t *testing.T) {
	s := NewMemoryStore(0, nil, WithCapacity(0))
	ctx := context.Background()
	for i := range DefaultCapacity + 10 {
		require.NoError(t, s.Set(ctx, fmt.Sprintf("k%d", i), "v", 0))
	}
	assert.Equal(t, DefaultCapacity, s.Len())
}

func TestJSONHelpers(t *testing.T) {
	s := NewMemoryStore(time.Minute, nil)
	ctx := context.Background()

	in := map[string]map[string]float64{"color": {"blue": 0.9}}
	require.NoError(t, SetJSON(ctx, s, "j", in, 0))

	var out map[string]map[string]float64
	require.NoError(t, GetJSON(ctx, s, "j", &out))
	assert.Equal(t, in, out)

	require.NoError(t, s.Set(ctx, "bad", "{", 0))
	assert.Error(t, GetJSON(ctx, s, "bad", &out))
	assert.True(t, IsCacheMiss(GetJSON(ctx, s, "nope", &out)))
}

// =============================================================================
// 🧪 RedisStore 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	store, err := NewRedisStore(RedisConfig{
		Addr:       mr.Addr(),
		DefaultTTL: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
		mr.Close()
	})
	return mr, store
}

func TestRedisStore_SetGet(t *testing.T) {
	mr, store := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "analysis:abc", `{"color":{}}`, 0))
	v, err := store.Get(ctx, "analysis:abc")
	require.NoError(t, err)
	assert.Equal(t, `{"color":{}}`, v)
	assert.Equal(t, time.Minute, mr.TTL("analysis:abc"))

	_, err = store.Get(ctx, "missing")
	assert.True(t, IsCacheMiss(err))
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	mr, store := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "v", 300*time.Second))
	mr.FastForward(301 * time.Second)

	_, err := store.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))
}

func TestRedisStore_ExpireDelete(t *testing.T) {
	mr, store := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, store.Expire(ctx, "k", time.Hour))
	assert.Equal(t, time.Hour, mr.TTL("k"))

	require.NoError(t, store.Delete(ctx, "k"))
	assert.False(t, mr.Exists("k"))
	require.NoError(t, store.Delete(ctx))
}

func TestRedisStore_Closed(t *testing.T) {
	_, store := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRedisStore_KeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(RedisConfig{Addr: mr.Addr(), KeyPrefix: "pf:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "v", 0))
	assert.True(t, mr.Exists("pf:k"))
	assert.False(t, mr.Exists("k"))
	assert.Zero(t, mr.TTL("pf:k"), "no default ttl means no expiry")

	v, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	require.NoError(t, store.Delete(ctx, "k"))
	assert.False(t, mr.Exists("pf:k"))
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisStore(RedisConfig{Addr: addr}, nil)
	require.Error(t, err)
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
