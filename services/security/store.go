package security

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrStoreUnavailable wraps every failure of the backing counter store.
var ErrStoreUnavailable = errors.New("counter store unavailable")

var (
	negInf = math.Inf(-1)
	posInf = math.Inf(1)
)

type ScoredMember struct {
	Member string
	Score  float64
}

// WindowHit describes one sliding-window insertion. Indexes maps an auxiliary
// set key to the member registered in it within the same atomic step. Recent
// maps an auxiliary sorted-set key to a member whose score is moved to Now;
// entries older than IndexTTL are dropped from it.
type WindowHit struct {
	Key      string
	Member   string
	Now      time.Time
	Window   time.Duration
	Indexes  map[string]string
	Recent   map[string]string
	IndexTTL time.Duration
}

// CounterStore is the shared key/value and sorted-set store behind every
// security component. Score ranges are inclusive on both ends.
type CounterStore interface {
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRem(ctx context.Context, key string, members ...string) error
	ZRemRangeByScore(ctx context.Context, key string, min, max float64) (int64, error)
	ZCard(ctx context.Context, key string) (int64, error)
	ZCount(ctx context.Context, key string, min, max float64) (int64, error)
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]ScoredMember, error)
	ZRevRange(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error)
	// ZPopMax returns nil when the set is empty.
	ZPopMax(ctx context.Context, key string) (*ScoredMember, error)

	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value; a zero ttl means the key never expires.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error

	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SCard(ctx context.Context, key string) (int64, error)

	Keys(ctx context.Context, pattern string) ([]string, error)

	// RecordHit prunes entries older than Now-Window, counts the survivors,
	// inserts Member at Now and refreshes the key TTL as one atomic step.
	// It returns the count observed before the insertion.
	RecordHit(ctx context.Context, hit WindowHit) (int64, error)
}

func msScore(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func scoreTime(score float64) time.Time {
	return time.UnixMilli(int64(score))
}

// windowFloor is the lowest score still inside a window ending at now.
func windowFloor(now time.Time, window time.Duration) float64 {
	return msScore(now.Add(-window))
}
