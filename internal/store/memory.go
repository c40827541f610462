package store

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is an in-process Store with the same atomicity guarantees,
// used by tests and by local development without Redis. The clock is
// injectable so expiry behavior can be tested without sleeping.
type MemoryStore struct {
	mu   sync.Mutex
	vals map[string]memVal
	zs   map[string]map[string]float64
	Now  func() time.Time
}

type memVal struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vals: map[string]memVal{},
		zs:   map[string]map[string]float64{},
		Now:  time.Now,
	}
}

func (s *MemoryStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// live returns the value for key, purging it first if expired.
// Caller must hold mu.
func (s *MemoryStore) live(key string) (memVal, bool) {
	v, ok := s.vals[key]
	if !ok {
		return memVal{}, false
	}
	if !v.expiresAt.IsZero() && !s.now().Before(v.expiresAt) {
		delete(s.vals, key)
		return memVal{}, false
	}
	return v, true
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.live(key)
	if !ok {
		return "", false, nil
	}
	return v.value, true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vals[key] = memVal{value: value, expiresAt: s.expiry(ttl)}
	return nil
}

func (s *MemoryStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live(key); ok {
		return false, nil
	}
	s.vals[key] = memVal{value: value, expiresAt: s.expiry(ttl)}
	return true, nil
}

func (s *MemoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.vals, k)
		delete(s.zs, k)
	}
	return nil
}

func (s *MemoryStore) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.live(key)
	if !ok || v.value != expected {
		return false, nil
	}
	delete(s.vals, key)
	return true, nil
}

func (s *MemoryStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.live(key)
	if !ok {
		s.vals[key] = memVal{value: "1", expiresAt: s.expiry(ttl)}
		return 1, nil
	}
	n := parseInt(v.value) + 1
	s.vals[key] = memVal{value: formatInt(n), expiresAt: v.expiresAt}
	return n, nil
}

func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.live(key)
	if !ok {
		return nil
	}
	v.expiresAt = s.expiry(ttl)
	s.vals[key] = v
	return nil
}

func (s *MemoryStore) ZAdd(ctx context.Context, key, member string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zs[key]
	if !ok {
		z = map[string]float64{}
		s.zs[key] = z
	}
	z[member] = score
	return nil
}

func (s *MemoryStore) ZRangeByScoreAsc(ctx context.Context, key string, max float64, limit int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type pair struct {
		member string
		score  float64
	}
	var pairs []pair
	for m, sc := range s.zs[key] {
		if sc <= max {
			pairs = append(pairs, pair{member: m, score: sc})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].score != pairs[j].score {
			return pairs[i].score < pairs[j].score
		}
		return pairs[i].member < pairs[j].member
	})
	out := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
		out = append(out, p.member)
	}
	return out, nil
}

func (s *MemoryStore) ZRem(ctx context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	z := s.zs[key]
	for _, m := range members {
		delete(z, m)
	}
	return nil
}

func (s *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
