package redis

import (
	"context"
	"sync"
	"testing"
	"time"
)

type memRedis struct {
	mu   sync.Mutex
	vals map[string]int64
	ttl  map[string]time.Duration
}

func newMemRedis() *memRedis {
	return &memRedis{vals: map[string]int64{}, ttl: map[string]time.Duration{}}
}

func (m *memRedis) Ping(context.Context) error { return nil }
func (m *memRedis) Set(context.Context, string, interface{}, time.Duration) error {
	return nil
}
func (m *memRedis) Get(context.Context, string) (string, error) { return "", nil }
func (m *memRedis) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[key]++
	return m.vals[key], nil
}
func (m *memRedis) Expire(_ context.Context, key string, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttl[key] = d
	return nil
}
func (m *memRedis) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.vals, k)
	}
	return nil
}
func (m *memRedis) Close() error { return nil }

func TestRateLimiter_FixedWindow(t *testing.T) {
	mr := newMemRedis()
	rl := NewRateLimiter(mr)
	ctx := context.Background()
	key := OrgRequestKey("org-1", time.Unix(120, 0))

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		if err != nil || !ok {
			t.Fatalf("request %d: ok=%v err=%v", i+1, ok, err)
		}
	}
	ok, err := rl.Allow(ctx, key, 3, time.Minute)
	if err != nil || ok {
		t.Fatalf("4th request should be limited: ok=%v err=%v", ok, err)
	}
	if mr.ttl[key] != time.Minute {
		t.Fatalf("expire not set on first hit: %v", mr.ttl[key])
	}
	if key != "rate_limit:org-1:2" {
		t.Fatalf("key = %q", key)
	}
}
