package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen int64 // unix nano 最后的时间
}

// Store 按 key 分桶的令牌桶：
// - transport：key = endpoint（出站限流，保护接收端）
// - admin API：key = ip:route
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	rate    rate.Limit
	burst   int
	ttl     time.Duration
}

func NewStore(r rate.Limit, burst int, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if burst <= 0 {
		burst = 1
	}
	return &Store{
		entries: make(map[string]*entry, 64),
		rate:    r,
		burst:   burst,
		ttl:     ttl,
	}
}

func (s *Store) get(key string) *entry {
	now := time.Now().UnixNano()

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(s.rate, s.burst), lastSeen: now}
		s.entries[key] = e
		return e
	}
	atomic.StoreInt64(&e.lastSeen, now)
	return e
}

// Allow 判断是否允许通过。允许则返回 true。
func (s *Store) Allow(key string) bool {
	return s.get(key).limiter.Allow()
}

func (s *Store) Wait(ctx context.Context, key string) error {
	return s.get(key).limiter.Wait(ctx)
}

// SetRate 配置热更新：已有的桶原地改速率，新桶按新速率创建
func (s *Store) SetRate(r rate.Limit, burst int) {
	if burst <= 0 {
		burst = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rate == r && s.burst == burst {
		return
	}
	s.rate, s.burst = r, burst
	for _, e := range s.entries {
		e.limiter.SetLimit(r)
		e.limiter.SetBurst(burst)
	}
}

func (s *Store) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanup()
			}
		}
	}()
}

func (s *Store) cleanup() {
	cut := time.Now().Add(-s.ttl).UnixNano()

	s.mu.Lock()
	for k, e := range s.entries {
		if atomic.LoadInt64(&e.lastSeen) < cut {
			delete(s.entries, k)
		}
	}
	s.mu.Unlock()
}
