package security

import (
	"context"
	"path"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process CounterStore. Expiry follows the injected clock,
// which makes it the store of choice for tests and single-node development.
type MemoryStore struct {
	mu  sync.Mutex
	now func() time.Time

	zsets   map[string]map[string]float64
	values  map[string]string
	sets    map[string]map[string]struct{}
	expires map[string]time.Time

	unavailable bool
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:     now,
		zsets:   make(map[string]map[string]float64),
		values:  make(map[string]string),
		sets:    make(map[string]map[string]struct{}),
		expires: make(map[string]time.Time),
	}
}

// SetUnavailable makes every call fail with ErrStoreUnavailable until reset.
func (s *MemoryStore) SetUnavailable(unavailable bool) {
	s.mu.Lock()
	s.unavailable = unavailable
	s.mu.Unlock()
}

// lock acquires the mutex and reports whether the store may be used.
func (s *MemoryStore) lock() error {
	s.mu.Lock()
	if s.unavailable {
		s.mu.Unlock()
		return ErrStoreUnavailable
	}
	return nil
}

func (s *MemoryStore) evict(key string) {
	exp, ok := s.expires[key]
	if !ok || s.now().Before(exp) {
		return
	}
	s.drop(key)
}

func (s *MemoryStore) drop(key string) {
	delete(s.zsets, key)
	delete(s.values, key)
	delete(s.sets, key)
	delete(s.expires, key)
}

func (s *MemoryStore) exists(key string) bool {
	if _, ok := s.zsets[key]; ok {
		return true
	}
	if _, ok := s.values[key]; ok {
		return true
	}
	_, ok := s.sets[key]
	return ok
}

func (s *MemoryStore) expireLocked(key string, ttl time.Duration) {
	if !s.exists(key) {
		return
	}
	if ttl <= 0 {
		s.drop(key)
		return
	}
	s.expires[key] = s.now().Add(ttl)
}

func (s *MemoryStore) zset(key string) map[string]float64 {
	z, ok := s.zsets[key]
	if !ok {
		z = make(map[string]float64)
		s.zsets[key] = z
	}
	return z
}

func (s *MemoryStore) removeEmpty(key string) {
	if z, ok := s.zsets[key]; ok && len(z) == 0 {
		s.drop(key)
	}
	if m, ok := s.sets[key]; ok && len(m) == 0 {
		s.drop(key)
	}
}

func sortedMembers(z map[string]float64) []ScoredMember {
	out := make([]ScoredMember, 0, len(z))
	for m, sc := range z {
		out = append(out, ScoredMember{Member: m, Score: sc})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].Member < out[j].Member
		}
		return out[i].Score < out[j].Score
	})
	return out
}

func (s *MemoryStore) ZAdd(_ context.Context, key string, score float64, member string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	s.evict(key)
	s.zset(key)[member] = score
	return nil
}

func (s *MemoryStore) ZRem(_ context.Context, key string, members ...string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	s.evict(key)
	if z, ok := s.zsets[key]; ok {
		for _, m := range members {
			delete(z, m)
		}
		s.removeEmpty(key)
	}
	return nil
}

func (s *MemoryStore) zremRange(key string, min, max float64) int64 {
	z, ok := s.zsets[key]
	if !ok {
		return 0
	}
	var removed int64
	for m, sc := range z {
		if sc >= min && sc <= max {
			delete(z, m)
			removed++
		}
	}
	s.removeEmpty(key)
	return removed
}

func (s *MemoryStore) ZRemRangeByScore(_ context.Context, key string, min, max float64) (int64, error) {
	if err := s.lock(); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	s.evict(key)
	return s.zremRange(key, min, max), nil
}

func (s *MemoryStore) ZCard(_ context.Context, key string) (int64, error) {
	if err := s.lock(); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	s.evict(key)
	return int64(len(s.zsets[key])), nil
}

func (s *MemoryStore) ZCount(_ context.Context, key string, min, max float64) (int64, error) {
	if err := s.lock(); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	s.evict(key)
	var n int64
	for _, sc := range s.zsets[key] {
		if sc >= min && sc <= max {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ZRangeByScore(_ context.Context, key string, min, max float64) ([]ScoredMember, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	s.evict(key)
	var out []ScoredMember
	for _, sm := range sortedMembers(s.zsets[key]) {
		if sm.Score >= min && sm.Score <= max {
			out = append(out, sm)
		}
	}
	return out, nil
}

func (s *MemoryStore) ZRevRange(_ context.Context, key string, start, stop int64) ([]ScoredMember, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	s.evict(key)
	all := sortedMembers(s.zsets[key])
	n := int64(len(all))
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop {
		return nil, nil
	}
	return all[start : stop+1], nil
}

func (s *MemoryStore) ZPopMax(_ context.Context, key string) (*ScoredMember, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	s.evict(key)
	all := sortedMembers(s.zsets[key])
	if len(all) == 0 {
		return nil, nil
	}
	top := all[len(all)-1]
	delete(s.zsets[key], top.Member)
	s.removeEmpty(key)
	return &top, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	if err := s.lock(); err != nil {
		return "", false, err
	}
	defer s.mu.Unlock()
	s.evict(key)
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStore) setLocked(key, value string, ttl time.Duration) {
	s.drop(key)
	s.values[key] = value
	if ttl > 0 {
		s.expires[key] = s.now().Add(ttl)
	}
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	s.setLocked(key, value, ttl)
	return nil
}

func (s *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := s.lock(); err != nil {
		return false, err
	}
	defer s.mu.Unlock()
	s.evict(key)
	if s.exists(key) {
		return false, nil
	}
	s.setLocked(key, value, ttl)
	return true, nil
}

func (s *MemoryStore) Del(_ context.Context, keys ...string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	for _, k := range keys {
		s.drop(k)
	}
	return nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	s.evict(key)
	s.expireLocked(key, ttl)
	return nil
}

func (s *MemoryStore) SAdd(_ context.Context, key string, members ...string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	s.evict(key)
	s.saddLocked(key, members...)
	return nil
}

func (s *MemoryStore) saddLocked(key string, members ...string) {
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	for _, m := range members {
		set[m] = struct{}{}
	}
}

func (s *MemoryStore) SRem(_ context.Context, key string, members ...string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	s.evict(key)
	if set, ok := s.sets[key]; ok {
		for _, m := range members {
			delete(set, m)
		}
		s.removeEmpty(key)
	}
	return nil
}

func (s *MemoryStore) SMembers(_ context.Context, key string) ([]string, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	s.evict(key)
	out := make([]string, 0, len(s.sets[key]))
	for m := range s.sets[key] {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) SCard(_ context.Context, key string) (int64, error) {
	if err := s.lock(); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	s.evict(key)
	return int64(len(s.sets[key])), nil
}

func (s *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	seen := make(map[string]struct{})
	collect := func(k string) {
		s.evict(k)
		if !s.exists(k) {
			return
		}
		if ok, _ := path.Match(pattern, k); ok {
			seen[k] = struct{}{}
		}
	}
	for k := range s.zsets {
		collect(k)
	}
	for k := range s.values {
		collect(k)
	}
	for k := range s.sets {
		collect(k)
	}

	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) RecordHit(_ context.Context, hit WindowHit) (int64, error) {
	if err := s.lock(); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()

	s.evict(hit.Key)
	s.zremRange(hit.Key, negInf, windowFloor(hit.Now, hit.Window)-1)
	count := int64(len(s.zsets[hit.Key]))
	s.zset(hit.Key)[hit.Member] = msScore(hit.Now)
	s.expireLocked(hit.Key, hit.Window)

	for set, member := range hit.Indexes {
		s.evict(set)
		s.saddLocked(set, member)
		if hit.IndexTTL > 0 {
			s.expireLocked(set, hit.IndexTTL)
		}
	}
	for set, member := range hit.Recent {
		s.evict(set)
		s.zset(set)[member] = msScore(hit.Now)
		if hit.IndexTTL > 0 {
			s.zremRange(set, negInf, windowFloor(hit.Now, hit.IndexTTL)-1)
			s.expireLocked(set, hit.IndexTTL)
		}
	}
	return count, nil
}
