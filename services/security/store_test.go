package security

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr:        mr.Addr(),
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, RedisStoreOptions{MaxFailures: 3, OpenTimeout: time.Minute}), mr
}

func counterStores(t *testing.T) map[string]func(t *testing.T) CounterStore {
	return map[string]func(t *testing.T) CounterStore{
		"memory": func(t *testing.T) CounterStore {
			return NewMemoryStore(newFakeClock().Now)
		},
		"redis": func(t *testing.T) CounterStore {
			s, _ := newMiniredisStore(t)
			return s
		},
	}
}

func TestCounterStore_RecordHit(t *testing.T) {
	for name, newStore := range counterStores(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			ctx := context.Background()
			t0 := newFakeClock().Now()

			record := func(at time.Time) int64 {
				n, err := store.RecordHit(ctx, WindowHit{
					Key:      "rate_limit:otp:user:1",
					Member:   newToken(at),
					Now:      at,
					Window:   10 * time.Second,
					Indexes:  map[string]string{rateLimitIndexKey: "rate_limit:otp:user:1"},
					IndexTTL: time.Hour,
				})
				require.NoError(t, err)
				return n
			}

			assert.Equal(t, int64(0), record(t0))
			assert.Equal(t, int64(1), record(t0.Add(time.Second)))
			assert.Equal(t, int64(2), record(t0.Add(2*time.Second)))
			// the first hit has left the window
			assert.Equal(t, int64(2), record(t0.Add(11*time.Second)))

			members, err := store.SMembers(ctx, rateLimitIndexKey)
			require.NoError(t, err)
			assert.Equal(t, []string{"rate_limit:otp:user:1"}, members)
		})
	}
}

func TestCounterStore_RecordHitRecentIndex(t *testing.T) {
	for name, newStore := range counterStores(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			ctx := context.Background()
			t0 := newFakeClock().Now()

			record := func(identifier string, at time.Time) {
				_, err := store.RecordHit(ctx, WindowHit{
					Key:      rateLimitKey(ActionOTP, identifier),
					Member:   newToken(at),
					Now:      at,
					Window:   time.Minute,
					Recent:   map[string]string{rateLimitFamilyKey("10.1.2.0/24"): identifier},
					IndexTTL: time.Hour,
				})
				require.NoError(t, err)
			}

			record("ip:10.1.2.1", t0)
			record("ip:10.1.2.2", t0.Add(30*time.Minute))
			record("ip:10.1.2.1", t0.Add(40*time.Minute))
			// ip:10.1.2.2 is older than the index TTL once this lands
			record("ip:10.1.2.3", t0.Add(91*time.Minute))

			members, err := store.ZRangeByScore(ctx, rateLimitFamilyKey("10.1.2.0/24"), negInf, posInf)
			require.NoError(t, err)
			assert.Equal(t, []ScoredMember{
				{"ip:10.1.2.1", msScore(t0.Add(40 * time.Minute))},
				{"ip:10.1.2.3", msScore(t0.Add(91 * time.Minute))},
			}, members)
		})
	}
}

func TestCounterStore_SortedSets(t *testing.T) {
	for name, newStore := range counterStores(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			ctx := context.Background()

			top, err := store.ZPopMax(ctx, "z")
			require.NoError(t, err)
			assert.Nil(t, top)

			require.NoError(t, store.ZAdd(ctx, "z", 1, "a"))
			require.NoError(t, store.ZAdd(ctx, "z", 3, "c"))
			require.NoError(t, store.ZAdd(ctx, "z", 2, "b"))
			require.NoError(t, store.ZAdd(ctx, "z", 4, "d"))

			n, err := store.ZCount(ctx, "z", 2, 3)
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			rng, err := store.ZRangeByScore(ctx, "z", 2, posInf)
			require.NoError(t, err)
			assert.Equal(t, []ScoredMember{{"b", 2}, {"c", 3}, {"d", 4}}, rng)

			rev, err := store.ZRevRange(ctx, "z", 0, 1)
			require.NoError(t, err)
			assert.Equal(t, []ScoredMember{{"d", 4}, {"c", 3}}, rev)

			top, err = store.ZPopMax(ctx, "z")
			require.NoError(t, err)
			require.NotNil(t, top)
			assert.Equal(t, "d", top.Member)

			removed, err := store.ZRemRangeByScore(ctx, "z", negInf, 1)
			require.NoError(t, err)
			assert.Equal(t, int64(1), removed)

			require.NoError(t, store.ZRem(ctx, "z", "b"))
			card, err := store.ZCard(ctx, "z")
			require.NoError(t, err)
			assert.Equal(t, int64(1), card)
		})
	}
}

func TestCounterStore_StringsAndSets(t *testing.T) {
	for name, newStore := range counterStores(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			ctx := context.Background()

			_, ok, err := store.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Set(ctx, "k", "v1", time.Minute))
			claimed, err := store.SetNX(ctx, "k", "v2", time.Minute)
			require.NoError(t, err)
			assert.False(t, claimed)

			v, ok, err := store.Get(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "v1", v)

			require.NoError(t, store.Del(ctx, "k"))
			claimed, err = store.SetNX(ctx, "k", "v2", time.Minute)
			require.NoError(t, err)
			assert.True(t, claimed)

			require.NoError(t, store.SAdd(ctx, "s", "x", "y", "z"))
			require.NoError(t, store.SRem(ctx, "s", "y"))
			size, err := store.SCard(ctx, "s")
			require.NoError(t, err)
			assert.Equal(t, int64(2), size)

			require.NoError(t, store.Set(ctx, "rate_limit:api:user:1", "1", 0))
			require.NoError(t, store.Set(ctx, "rate_limit:otp:user:1", "1", 0))
			keys, err := store.Keys(ctx, "rate_limit:*")
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"rate_limit:api:user:1", "rate_limit:otp:user:1"}, keys)
		})
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(clock.Now)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, store.SAdd(ctx, "s", "a"))
	require.NoError(t, store.Expire(ctx, "s", 30*time.Second))

	clock.Advance(30 * time.Second)
	n, err := store.SCard(ctx, "s")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(30 * time.Second)
	_, ok, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_Unavailable(t *testing.T) {
	store := NewMemoryStore(nil)
	store.SetUnavailable(true)

	_, err := store.ZCard(context.Background(), "z")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestRedisStore_TTLs(t *testing.T) {
	store, mr := newMiniredisStore(t)
	ctx := context.Background()

	_, err := store.RecordHit(ctx, WindowHit{
		Key:    "rate_limit:login:user:1",
		Member: "m1",
		Now:    time.Now(),
		Window: 15 * time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, mr.TTL("rate_limit:login:user:1"))

	require.NoError(t, store.Set(ctx, "blocked:user:1", "{}", time.Hour))
	assert.Equal(t, time.Hour, mr.TTL("blocked:user:1"))

	mr.FastForward(time.Hour)
	_, ok, err := store.Get(ctx, "blocked:user:1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_BreakerOpensWhenRedisIsDown(t *testing.T) {
	store, mr := newMiniredisStore(t)
	ctx := context.Background()
	mr.Close()

	for i := 0; i < 3; i++ {
		_, err := store.ZCard(ctx, "z")
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	}
	assert.Equal(t, gobreaker.StateOpen, store.State())

	_, err := store.ZCard(ctx, "z")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorContains(t, err, gobreaker.ErrOpenState.Error())
}

func TestRateLimiter_FailsOpenOnRedisOutage(t *testing.T) {
	store, mr := newMiniredisStore(t)
	limiter := NewRateLimiter(store, nil)
	ctx := context.Background()

	res, err := limiter.CheckRateLimit(ctx, "user:1", ActionOTP, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalHits)

	mr.Close()
	res, err = limiter.CheckRateLimit(ctx, "user:1", ActionOTP, nil)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 3, res.Remaining)
}
