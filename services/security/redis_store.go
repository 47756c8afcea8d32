package security

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

type RedisStoreOptions struct {
	BreakerName string
	// MaxFailures consecutive failures open the breaker.
	MaxFailures uint32
	OpenTimeout time.Duration
	ScanCount   int64
}

func DefaultRedisStoreOptions() RedisStoreOptions {
	return RedisStoreOptions{
		BreakerName: "security-counter-store",
		MaxFailures: 5,
		OpenTimeout: 10 * time.Second,
		ScanCount:   500,
	}
}

// RedisStore implements CounterStore on Redis. Every call goes through a
// circuit breaker; an open breaker surfaces as ErrStoreUnavailable.
type RedisStore struct {
	client    redis.UniversalClient
	breaker   *gobreaker.CircuitBreaker
	scanCount int64
}

func NewRedisStore(client redis.UniversalClient, opts RedisStoreOptions) *RedisStore {
	defaults := DefaultRedisStoreOptions()
	if opts.BreakerName == "" {
		opts.BreakerName = defaults.BreakerName
	}
	if opts.MaxFailures == 0 {
		opts.MaxFailures = defaults.MaxFailures
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = defaults.OpenTimeout
	}
	if opts.ScanCount <= 0 {
		opts.ScanCount = defaults.ScanCount
	}

	maxFailures := opts.MaxFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        opts.BreakerName,
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Counter store circuit breaker changed state")
		},
	})

	return &RedisStore{
		client:    client,
		breaker:   breaker,
		scanCount: opts.ScanCount,
	}
}

func (s *RedisStore) State() gobreaker.State {
	return s.breaker.State()
}

func (s *RedisStore) do(fn func() (interface{}, error)) (interface{}, error) {
	res, err := s.breaker.Execute(fn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return res, nil
}

func formatScore(v float64) string {
	switch {
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsInf(v, 1):
		return "+inf"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func toScored(zs []redis.Z) []ScoredMember {
	if len(zs) == 0 {
		return nil
	}
	out := make([]ScoredMember, 0, len(zs))
	for _, z := range zs {
		out = append(out, ScoredMember{Member: fmt.Sprint(z.Member), Score: z.Score})
	}
	return out
}

func (s *RedisStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	_, err := s.do(func() (interface{}, error) {
		return s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Result()
	})
	return err
}

func (s *RedisStore) ZRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	_, err := s.do(func() (interface{}, error) {
		return s.client.ZRem(ctx, key, args...).Result()
	})
	return err
}

func (s *RedisStore) ZRemRangeByScore(ctx context.Context, key string, min, max float64) (int64, error) {
	res, err := s.do(func() (interface{}, error) {
		return s.client.ZRemRangeByScore(ctx, key, formatScore(min), formatScore(max)).Result()
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

func (s *RedisStore) ZCard(ctx context.Context, key string) (int64, error) {
	res, err := s.do(func() (interface{}, error) {
		return s.client.ZCard(ctx, key).Result()
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

func (s *RedisStore) ZCount(ctx context.Context, key string, min, max float64) (int64, error) {
	res, err := s.do(func() (interface{}, error) {
		return s.client.ZCount(ctx, key, formatScore(min), formatScore(max)).Result()
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

func (s *RedisStore) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]ScoredMember, error) {
	res, err := s.do(func() (interface{}, error) {
		return s.client.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
			Min: formatScore(min),
			Max: formatScore(max),
		}).Result()
	})
	if err != nil {
		return nil, err
	}
	return toScored(res.([]redis.Z)), nil
}

func (s *RedisStore) ZRevRange(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error) {
	res, err := s.do(func() (interface{}, error) {
		return s.client.ZRevRangeWithScores(ctx, key, start, stop).Result()
	})
	if err != nil {
		return nil, err
	}
	return toScored(res.([]redis.Z)), nil
}

func (s *RedisStore) ZPopMax(ctx context.Context, key string) (*ScoredMember, error) {
	res, err := s.do(func() (interface{}, error) {
		return s.client.ZPopMax(ctx, key).Result()
	})
	if err != nil {
		return nil, err
	}
	popped := toScored(res.([]redis.Z))
	if len(popped) == 0 {
		return nil, nil
	}
	return &popped[0], nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	var found bool
	res, err := s.do(func() (interface{}, error) {
		v, err := s.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		found = err == nil
		return v, err
	})
	if err != nil {
		return "", false, err
	}
	return res.(string), found, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := s.do(func() (interface{}, error) {
		return s.client.Set(ctx, key, value, ttl).Result()
	})
	return err
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	res, err := s.do(func() (interface{}, error) {
		return s.client.SetNX(ctx, key, value, ttl).Result()
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.do(func() (interface{}, error) {
		return s.client.Del(ctx, keys...).Result()
	})
	return err
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	_, err := s.do(func() (interface{}, error) {
		return s.client.PExpire(ctx, key, ttl).Result()
	})
	return err
}

func (s *RedisStore) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	_, err := s.do(func() (interface{}, error) {
		return s.client.SAdd(ctx, key, args...).Result()
	})
	return err
}

func (s *RedisStore) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	_, err := s.do(func() (interface{}, error) {
		return s.client.SRem(ctx, key, args...).Result()
	})
	return err
}

func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	res, err := s.do(func() (interface{}, error) {
		return s.client.SMembers(ctx, key).Result()
	})
	if err != nil {
		return nil, err
	}
	return res.([]string), nil
}

func (s *RedisStore) SCard(ctx context.Context, key string) (int64, error) {
	res, err := s.do(func() (interface{}, error) {
		return s.client.SCard(ctx, key).Result()
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

// Keys walks the keyspace with SCAN. Hot paths use the index sets instead.
func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	res, err := s.do(func() (interface{}, error) {
		var (
			cursor uint64
			keys   []string
		)
		for {
			batch, next, err := s.client.Scan(ctx, cursor, pattern, s.scanCount).Result()
			if err != nil {
				return nil, err
			}
			keys = append(keys, batch...)
			cursor = next
			if cursor == 0 {
				return keys, nil
			}
		}
	})
	if err != nil {
		return nil, err
	}
	keys, _ := res.([]string)
	return keys, nil
}

func (s *RedisStore) RecordHit(ctx context.Context, hit WindowHit) (int64, error) {
	res, err := s.do(func() (interface{}, error) {
		var card *redis.IntCmd
		_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRemRangeByScore(ctx, hit.Key, "-inf", formatScore(windowFloor(hit.Now, hit.Window)-1))
			card = pipe.ZCard(ctx, hit.Key)
			pipe.ZAdd(ctx, hit.Key, redis.Z{Score: msScore(hit.Now), Member: hit.Member})
			pipe.PExpire(ctx, hit.Key, hit.Window)
			for set, member := range hit.Indexes {
				pipe.SAdd(ctx, set, member)
				if hit.IndexTTL > 0 {
					pipe.Expire(ctx, set, hit.IndexTTL)
				}
			}
			for set, member := range hit.Recent {
				pipe.ZAdd(ctx, set, redis.Z{Score: msScore(hit.Now), Member: member})
				if hit.IndexTTL > 0 {
					pipe.ZRemRangeByScore(ctx, set, "-inf", formatScore(windowFloor(hit.Now, hit.IndexTTL)-1))
					pipe.Expire(ctx, set, hit.IndexTTL)
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return card.Val(), nil
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}
